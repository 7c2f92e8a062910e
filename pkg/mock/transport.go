package mock

import (
	"context"
	"sync"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/signaling"
)

// Transport records outbound envelopes instead of sending them.
type Transport struct {
	mu   sync.Mutex
	Err  error
	sent []*signaling.Envelope
}

func (t *Transport) Send(ctx context.Context, env *signaling.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	t.sent = append(t.sent, env)
	return nil
}

func (t *Transport) Sent() []*signaling.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*signaling.Envelope(nil), t.sent...)
}

// Messages returns the bodies of the envelopes of the given type, in send order.
func (t *Transport) Messages(signalType signaling.SignalType) []*signaling.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*signaling.Message
	for _, env := range t.sent {
		if env.Body != nil && env.Body.SignalType == signalType {
			out = append(out, env.Body)
		}
	}
	return out
}

func (t *Transport) Count(signalType signaling.SignalType) int {
	return len(t.Messages(signalType))
}

func (t *Transport) Reset() {
	t.mu.Lock()
	t.sent = nil
	t.mu.Unlock()
}
