// Package transport carries signaling envelopes to and from the signaling
// server over a WebSocket.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/signaling"
	"github.com/ghettovoice/gosip/log"
	"github.com/gorilla/websocket"
	"github.com/tevino/abool"
)

var (
	ErrClosed     = errors.New("transport: closed")
	ErrBufferFull = errors.New("transport: send buffer full")
)

// Handler receives every inbound frame.
type Handler func(raw []byte)

type Config struct {
	URL    string
	Header http.Header
	// PongWait is how long the peer may stay silent. Pings go out at 9/10
	// of it.
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func (c Config) withDefaults() Config {
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	return c
}

// WebSocket is a signaling.Transport over one WebSocket connection.
type WebSocket struct {
	conn      *websocket.Conn
	config    Config
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	serving   abool.AtomicBool
	log       log.Logger

	mu      sync.Mutex
	onClose func(err error)
}

// Dial connects to config.URL. Inbound frames are not read until Serve.
func Dial(ctx context.Context, config Config, logger log.Logger) (*WebSocket, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, config.URL, config.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %s: %w", config.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", config.URL, err)
	}
	return NewWebSocket(conn, config, logger), nil
}

// NewWebSocket wraps an established connection, client or server side.
func NewWebSocket(conn *websocket.Conn, config Config, logger log.Logger) *WebSocket {
	config = config.withDefaults()
	w := &WebSocket{
		conn:   conn,
		config: config,
		send:   make(chan []byte, config.SendBuffer),
		done:   make(chan struct{}),
		log:    logger.WithPrefix("transport.WebSocket").WithFields(log.Fields{"remote": conn.RemoteAddr().String()}),
	}
	go w.writePump()
	return w
}

// Serve starts delivering inbound frames to handler. It may be called once.
func (w *WebSocket) Serve(handler Handler) error {
	if !w.serving.SetToIf(false, true) {
		return errors.New("transport: already serving")
	}
	go w.readPump(handler)
	return nil
}

// OnClose sets the function told once the connection is gone. err is nil
// after a local Close.
func (w *WebSocket) OnClose(f func(err error)) {
	w.mu.Lock()
	w.onClose = f
	w.mu.Unlock()
}

// Send queues env for writing. It never blocks: a full buffer is an error.
func (w *WebSocket) Send(ctx context.Context, env *signaling.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: encode envelope: %w", err)
	}
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.send <- data:
		return nil
	case <-w.done:
		return ErrClosed
	default:
		w.log.Warnf("dropping %s to %s: buffer full", env.Body, env.To)
		return ErrBufferFull
	}
}

// Done is closed once the connection has shut down.
func (w *WebSocket) Done() <-chan struct{} {
	return w.done
}

func (w *WebSocket) Close() error {
	w.shutdown(nil)
	return nil
}

func (w *WebSocket) shutdown(err error) {
	w.closeOnce.Do(func() {
		close(w.done)
		if err != nil {
			w.log.Warnf("connection lost: %v", err)
			w.conn.Close()
		}
		w.mu.Lock()
		f := w.onClose
		w.mu.Unlock()
		if f != nil {
			f(err)
		}
	})
}

func (w *WebSocket) readPump(handler Handler) {
	w.conn.SetReadDeadline(time.Now().Add(w.config.PongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(w.config.PongWait))
	})
	for {
		_, message, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = fmt.Errorf("%w: %v", ErrClosed, err)
			}
			w.shutdown(err)
			return
		}
		handler(message)
	}
}

func (w *WebSocket) writePump() {
	ticker := time.NewTicker(w.config.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		w.conn.Close()
	}()

	for {
		select {
		case message := <-w.send:
			w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteWait))
			if err := w.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				w.shutdown(err)
				return
			}
		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.shutdown(err)
				return
			}
		case <-w.done:
			w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteWait))
			_ = w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

var _ signaling.Transport = (*WebSocket)(nil)
