package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/signaling"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/transport"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/utils"
	"github.com/ghettovoice/gosip/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = utils.NewLogrusLogger(log.DebugLevel, "Transport", nil)

var upgrader = websocket.Upgrader{}

// echoServer sends every frame back and records the query of each client.
func echoServer(t *testing.T) (*httptest.Server, <-chan string) {
	queries := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		queries <- r.URL.RawQuery
		defer conn.Close()
		for {
			mt, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, message); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, queries
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type inbox struct {
	mu     sync.Mutex
	frames [][]byte
}

func (i *inbox) handle(raw []byte) {
	i.mu.Lock()
	i.frames = append(i.frames, raw)
	i.mu.Unlock()
}

func (i *inbox) all() [][]byte {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([][]byte(nil), i.frames...)
}

func envelope(t *testing.T, signalType signaling.SignalType) *signaling.Envelope {
	msg, err := signaling.New(signaling.Message{
		SignalType: signalType,
		SessionID:  "s1",
		Target:     signaling.TargetCall,
		SignalID:   signaling.NewSignalID(),
	})
	require.NoError(t, err)
	env := signaling.NewEnvelope("alice", "alice-1", msg)
	env.From, env.FromConnection = "bob", "bob-1"
	return env
}

func TestRoundTrip(t *testing.T) {
	srv, queries := echoServer(t)
	ws, err := transport.Dial(context.Background(), transport.Config{URL: wsURL(srv) + "/?endpoint=bob"}, logger)
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, "endpoint=bob", <-queries)

	in := &inbox{}
	require.NoError(t, ws.Serve(in.handle))
	assert.Error(t, ws.Serve(in.handle))

	require.NoError(t, ws.Send(context.Background(), envelope(t, signaling.SignalBye)))
	require.Eventually(t, func() bool { return len(in.all()) == 1 }, time.Second, 5*time.Millisecond)

	env, err := signaling.ParseEnvelope(in.all()[0])
	require.NoError(t, err)
	assert.Equal(t, "bob", env.From)
	assert.Equal(t, "alice-1", env.ToConnection)
	assert.Equal(t, signaling.SignalBye, env.Body.SignalType)
	assert.NotZero(t, env.Timestamp)
}

func TestSendAfterClose(t *testing.T) {
	srv, _ := echoServer(t)
	ws, err := transport.Dial(context.Background(), transport.Config{URL: wsURL(srv)}, logger)
	require.NoError(t, err)

	closed := make(chan error, 1)
	ws.OnClose(func(err error) { closed <- err })
	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close())

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("OnClose not called")
	}
	assert.ErrorIs(t, ws.Send(context.Background(), envelope(t, signaling.SignalBye)), transport.ErrClosed)
}

func TestSendHonoursContext(t *testing.T) {
	srv, _ := echoServer(t)
	ws, err := transport.Dial(context.Background(), transport.Config{URL: wsURL(srv)}, logger)
	require.NoError(t, err)
	defer ws.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ws.Send(ctx, envelope(t, signaling.SignalBye)), context.Canceled)
}

func TestServerGoingAwayIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
		conn.Close()
	}))
	defer srv.Close()

	ws, err := transport.Dial(context.Background(), transport.Config{URL: wsURL(srv)}, logger)
	require.NoError(t, err)
	closed := make(chan error, 1)
	ws.OnClose(func(err error) { closed <- err })
	require.NoError(t, ws.Serve(func([]byte) {}))

	select {
	case err := <-closed:
		assert.ErrorIs(t, err, transport.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("OnClose not called")
	}
	<-ws.Done()
}

func TestDialFailure(t *testing.T) {
	_, err := transport.Dial(context.Background(), transport.Config{URL: "ws://127.0.0.1:1"}, logger)
	assert.Error(t, err)
}
