package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/account"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/mock"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/session"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/signaling"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/ua"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/utils"
	"github.com/ghettovoice/gosip/log"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = utils.NewLogrusLogger(log.DebugLevel, "SoftphoneTest", nil)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "softphone.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint: bob
display_name: Bob
signaling: wss://signal.example.com/ws
ice_servers:
  - stun:stun.example.com:3478
  - turn:user:secret@turn.example.com:3478
timeouts:
  answer: 5s
`), 0o600))

	config, err := loadConfig(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "bob", config.Endpoint)
	assert.Equal(t, "Bob", config.DisplayName)
	assert.Equal(t, "info", config.LogLevel)

	timeouts := config.timeouts()
	assert.Equal(t, 5*time.Second, timeouts.Answer)
	assert.Equal(t, session.DefaultTimeouts().ReceiveAnswer, timeouts.ReceiveAnswer)

	servers := config.iceServers()
	require.Len(t, servers, 2)
	assert.Equal(t, media.ICEServer{URLs: []string{"stun:stun.example.com:3478"}}, servers[0])
	assert.Equal(t, media.ICEServer{URLs: []string{"turn:turn.example.com:3478"}, Username: "user", Credential: "secret"}, servers[1])
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("RTCUA_ENDPOINT", "carol")
	t.Setenv("RTCUA_TIMEOUTS_CONNECTION", "3s")

	config, err := loadConfig(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "carol", config.Endpoint)
	assert.Equal(t, 3*time.Second, config.timeouts().Connection)

	u, err := config.signalingURL("carol-1")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8080/ws?connectionId=carol-1&endpointId=carol", u)
}

func TestLoadConfigRequiresEndpoint(t *testing.T) {
	_, err := loadConfig(viper.New(), "")
	assert.Error(t, err)

	_, err = loadConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConsoleCommands(t *testing.T) {
	tr := &mock.Transport{}
	factory := &mock.NegotiatorFactory{}
	agent, err := ua.NewUserAgent(&ua.UserAgentConfig{
		Profile:     &account.Profile{EndpointID: "bob", ConnectionID: "bob-1"},
		Transport:   tr,
		Negotiators: factory,
		Engine:      &mock.Engine{},
	}, logger)
	require.NoError(t, err)

	assert.False(t, execute(agent, nil, logger))
	assert.False(t, execute(agent, []string{"dc", "alice", "alice-2", "files"}, logger))
	sessions := agent.Sessions()
	require.Len(t, sessions, 1)
	s := sessions[0]
	assert.Equal(t, signaling.TargetDirectConnection, s.Target())
	sent := tr.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, signaling.SignalOffer, sent[0].Body.SignalType)
	assert.Equal(t, "alice-2", sent[0].ToConnection)
	assert.Equal(t, "files", factory.Last().Config.Label)

	assert.False(t, execute(agent, []string{"send", s.ID(), "too", "early"}, logger))
	answer, err := signaling.New(signaling.Message{
		SignalType:         signaling.SignalAnswer,
		SessionID:          s.ID(),
		Target:             s.Target(),
		SignalID:           signaling.NewSignalID(),
		SessionDescription: &media.Description{Type: media.SDPTypeAnswer, SDP: mock.AnswerSDP()},
	})
	require.NoError(t, err)
	s.Receive(answer, account.Remote{EndpointID: "alice", ConnectionID: "alice-2"})
	factory.Last().OpenDataChannel("files")
	require.Equal(t, session.Connected, s.State())
	assert.False(t, execute(agent, []string{"send", s.ID(), "hello", "there"}, logger))
	assert.Equal(t, [][]byte{[]byte("hello there")}, factory.Last().Messages())

	assert.False(t, execute(agent, []string{"calls"}, logger))
	assert.False(t, execute(agent, []string{"hangup", "nope"}, logger))
	assert.False(t, execute(agent, []string{"hangup", s.ID()}, logger))
	assert.Equal(t, session.Ended, s.State())
	assert.Equal(t, 1, tr.Count(signaling.SignalBye))

	assert.False(t, execute(agent, []string{"loglevel", "SoftphoneTest", "warn"}, logger))
	assert.Equal(t, "Warn", utils.GetLoggers()["SoftphoneTest"].Level())
	assert.False(t, execute(agent, []string{"bogus"}, logger))
	assert.True(t, execute(agent, []string{"exit"}, logger))
}
