package signaling

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope is the routing header the signaling server puts around a message.
type Envelope struct {
	From           string   `json:"from,omitempty"`
	FromConnection string   `json:"fromConnection,omitempty"`
	To             string   `json:"to,omitempty"`
	ToConnection   string   `json:"toConnection,omitempty"`
	Timestamp      int64    `json:"timestamp,omitempty"`
	Body           *Message `json:"body"`
}

// ParseEnvelope decodes a raw inbound frame and validates its body.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var wire struct {
		From           string          `json:"from"`
		FromConnection string          `json:"fromConnection"`
		To             string          `json:"to"`
		ToConnection   string          `json:"toConnection"`
		Timestamp      int64           `json:"timestamp"`
		Body           json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &ValidationError{Field: "envelope", Reason: err.Error()}
	}
	if len(wire.Body) == 0 || string(wire.Body) == "null" {
		return nil, &ValidationError{Field: "body", Reason: "missing"}
	}
	body, err := Parse(wire.Body)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		From:           wire.From,
		FromConnection: wire.FromConnection,
		To:             wire.To,
		ToConnection:   wire.ToConnection,
		Timestamp:      wire.Timestamp,
		Body:           body,
	}, nil
}

// NewEnvelope addresses msg to an endpoint, optionally a single connection of it.
func NewEnvelope(to, toConnection string, msg *Message) *Envelope {
	return &Envelope{
		To:           to,
		ToConnection: toConnection,
		Timestamp:    time.Now().UnixNano() / int64(time.Millisecond),
		Body:         msg,
	}
}

// Transport hands envelopes to the signaling server. Send is called from the
// client's event loop and must not wait on the network; implementations queue.
type Transport interface {
	Send(ctx context.Context, env *Envelope) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, env *Envelope) error

func (f TransportFunc) Send(ctx context.Context, env *Envelope) error {
	return f(ctx, env)
}
