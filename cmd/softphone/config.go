package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/session"
	"github.com/spf13/viper"
)

const envPrefix = "RTCUA"

// Config is everything the softphone reads from flags, file and RTCUA_* env.
type Config struct {
	Endpoint    string   `mapstructure:"endpoint"`
	DisplayName string   `mapstructure:"display_name"`
	Signaling   string   `mapstructure:"signaling"`
	LogLevel    string   `mapstructure:"log_level"`
	AutoAnswer  bool     `mapstructure:"auto_answer"`
	ICEServers  []string `mapstructure:"ice_servers"`
	UDPPortMin  uint16   `mapstructure:"udp_port_min"`
	UDPPortMax  uint16   `mapstructure:"udp_port_max"`
	Timeouts    struct {
		Answer        time.Duration `mapstructure:"answer"`
		ReceiveAnswer time.Duration `mapstructure:"receive_answer"`
		Connection    time.Duration `mapstructure:"connection"`
	} `mapstructure:"timeouts"`
}

func setDefaults(v *viper.Viper) {
	defaults := session.DefaultTimeouts()
	// every key needs a default so AutomaticEnv can see it on Unmarshal
	v.SetDefault("endpoint", "")
	v.SetDefault("display_name", "")
	v.SetDefault("auto_answer", false)
	v.SetDefault("udp_port_min", 0)
	v.SetDefault("udp_port_max", 0)
	v.SetDefault("signaling", "ws://127.0.0.1:8080/ws")
	v.SetDefault("log_level", "info")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("timeouts.answer", defaults.Answer)
	v.SetDefault("timeouts.receive_answer", defaults.ReceiveAnswer)
	v.SetDefault("timeouts.connection", defaults.Connection)
}

// loadConfig reads cfgFile when set, otherwise an optional ./softphone.yaml.
func loadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	setDefaults(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("softphone")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if config.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	return config, nil
}

func (c *Config) iceServers() []media.ICEServer {
	var out []media.ICEServer
	for _, raw := range c.ICEServers {
		// turn:user:pass@host:port
		server := media.ICEServer{URLs: []string{raw}}
		if scheme, rest, found := strings.Cut(raw, ":"); found && strings.Contains(rest, "@") {
			creds, host, _ := strings.Cut(rest, "@")
			user, pass, _ := strings.Cut(creds, ":")
			server = media.ICEServer{URLs: []string{scheme + ":" + host}, Username: user, Credential: pass}
		}
		out = append(out, server)
	}
	return out
}

func (c *Config) timeouts() session.Timeouts {
	return session.Timeouts{
		Answer:        c.Timeouts.Answer,
		ReceiveAnswer: c.Timeouts.ReceiveAnswer,
		Connection:    c.Timeouts.Connection,
	}
}

// signalingURL adds the identity query the signaling server routes on.
func (c *Config) signalingURL(connectionID string) (string, error) {
	u, err := url.Parse(c.Signaling)
	if err != nil {
		return "", fmt.Errorf("signaling url: %w", err)
	}
	q := u.Query()
	q.Set("endpointId", c.Endpoint)
	q.Set("connectionId", connectionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
