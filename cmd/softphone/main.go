package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/account"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/event"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/media/webrtc"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/session"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/transport"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/ua"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/utils"
	"github.com/ghettovoice/gosip/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	noConsole bool
)

var rootCmd = &cobra.Command{
	Use:   "softphone",
	Short: "A console client for calls and direct connections.",
	Long: `softphone connects to a signaling server over WebSocket and places or
answers audio/video calls and data-only direct connections.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./softphone.yaml)")
	flags.String("endpoint", "", "local endpoint id")
	flags.String("display-name", "", "display name sent with calls")
	flags.String("signaling", "", "signaling server WebSocket URL")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error")
	flags.Bool("auto-answer", false, "answer every incoming call and direct connection")
	flags.BoolVar(&noConsole, "nc", false, "no console mode")

	for key, flag := range map[string]string{
		"endpoint":     "endpoint",
		"display_name": "display-name",
		"signaling":    "signaling",
		"log_level":    "log-level",
		"auto_answer":  "auto-answer",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func run(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	level, err := utils.ParseLevel(config.LogLevel)
	if err != nil {
		return err
	}
	utils.DefaultLogLevel = level
	logger := utils.NewLogrusLogger(level, "Softphone", nil)

	profile := account.NewProfile(config.Endpoint, config.DisplayName, config.iceServers())
	signalingURL, err := config.signalingURL(profile.ConnectionID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	ws, err := transport.Dial(ctx, transport.Config{URL: signalingURL}, logger)
	cancel()
	if err != nil {
		return err
	}

	factory, err := webrtc.NewFactory(webrtc.Config{UDPPortMin: config.UDPPortMin, UDPPortMax: config.UDPPortMax}, logger)
	if err != nil {
		ws.Close()
		return err
	}
	defer factory.Close()

	agent, err := ua.NewUserAgent(&ua.UserAgentConfig{
		Profile:     profile,
		Transport:   ws,
		Negotiators: factory,
		Engine:      &webrtc.Engine{},
		Timeouts:    config.timeouts(),
	}, logger)
	if err != nil {
		ws.Close()
		return err
	}
	agent.SessionStateHandler = func(s *session.Session, state session.State) {
		logger.Infof("SessionStateHandler: %s => %s", s, state)
	}
	wireIncoming(agent, config.AutoAnswer, logger)

	ws.OnClose(func(err error) {
		logger.Warnf("signaling closed: %v", err)
		_ = agent.Disconnect()
	})
	if err := ws.Serve(func(raw []byte) {
		if err := agent.HandleSignal(raw); err != nil {
			logger.Warnf("inbound signal: %v", err)
		}
	}); err != nil {
		return err
	}
	logger.Infof("connected to %s as %s/%s", config.Signaling, profile.EndpointID, profile.ConnectionID)

	if !noConsole {
		consoleLoop(agent, logger)
	} else {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-stop:
		case <-ws.Done():
		}
	}

	_ = agent.Disconnect()
	return ws.Close()
}

func wireIncoming(agent *ua.UserAgent, autoAnswer bool, logger log.Logger) {
	agent.Hub().Listen(ua.EventCall, func(e event.Event) {
		s := e.Data.(*session.Session)
		fmt.Printf("\nincoming call %s from %s\n", s.ID(), s.Remote())
		if autoAnswer {
			if err := s.Answer(ua.DefaultConstraints); err != nil {
				logger.Errorf("answer %s: %v", s.ID(), err)
			}
		}
	})
	agent.Hub().Listen(ua.EventDirectConnection, func(e event.Event) {
		s := e.Data.(*session.Session)
		fmt.Printf("\nincoming direct connection %s from %s\n", s.ID(), s.Remote())
		printMessages(s)
		if autoAnswer {
			if err := s.Accept(); err != nil {
				logger.Errorf("accept %s: %v", s.ID(), err)
			}
		}
	})
	agent.Hub().Listen(ua.EventError, func(e event.Event) {
		logger.Errorf("%s: %v", e.Reason, e.Err)
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
