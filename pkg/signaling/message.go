// Package signaling defines the session-control messages exchanged through
// the signaling server and the transport contract used to deliver them.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
	"github.com/google/uuid"
)

// ProtocolVersion is stamped on every constructed message.
const ProtocolVersion = "1.0"

type SignalType string

const (
	SignalOffer         SignalType = "offer"
	SignalAnswer        SignalType = "answer"
	SignalConnected     SignalType = "connected"
	SignalICECandidates SignalType = "iceCandidates"
	SignalBye           SignalType = "bye"
	SignalModify        SignalType = "modify"
)

func (t SignalType) Valid() bool {
	switch t {
	case SignalOffer, SignalAnswer, SignalConnected, SignalICECandidates, SignalBye, SignalModify:
		return true
	}
	return false
}

type Target string

const (
	TargetCall             Target = "call"
	TargetDirectConnection Target = "directConnection"
)

func (t Target) Valid() bool {
	return t == TargetCall || t == TargetDirectConnection
}

// Modify actions.
const (
	ModifyInitiate = "initiate"
	ModifyAccept   = "accept"
	ModifyReject   = "reject"
)

// ErrInvalidMessage matches every ValidationError with errors.Is.
var ErrInvalidMessage = errors.New("signaling: invalid message")

// ValidationError reports a message that cannot be built or accepted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("signaling: can't build a signal without valid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidMessage
}

// Message is one signaling envelope body. Treat a constructed Message as
// read-only; New copies its input.
type Message struct {
	SignalType         SignalType
	SessionID          string
	Target             Target
	SignalID           string
	Version            string
	SessionDescription *media.Description
	ICECandidates      []media.Candidate
	FinalCandidates    []media.Candidate
	ConnectionID       string
	CallerID           string
	Reason             string
	Action             string
	Error              string
	Status             string
	Metadata           map[string]interface{}
	// Extra holds fields this package does not know about. They are written
	// and read at the top level of the JSON object.
	Extra map[string]interface{}
}

// wireMessage carries the JSON names of the known fields.
type wireMessage struct {
	SignalType         SignalType             `json:"signalType,omitempty"`
	SessionID          string                 `json:"sessionId,omitempty"`
	Target             Target                 `json:"target,omitempty"`
	SignalID           string                 `json:"signalId,omitempty"`
	Version            string                 `json:"version,omitempty"`
	SessionDescription *media.Description     `json:"sessionDescription,omitempty"`
	ICECandidates      []media.Candidate      `json:"iceCandidates,omitempty"`
	FinalCandidates    []media.Candidate      `json:"finalCandidates,omitempty"`
	ConnectionID       string                 `json:"connectionId,omitempty"`
	CallerID           string                 `json:"callerId,omitempty"`
	Reason             string                 `json:"reason,omitempty"`
	Action             string                 `json:"action,omitempty"`
	Error              string                 `json:"error,omitempty"`
	Status             string                 `json:"status,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

var knownFields = map[string]bool{
	"signalType": true, "sessionId": true, "target": true, "signalId": true,
	"version": true, "sessionDescription": true, "iceCandidates": true,
	"finalCandidates": true, "connectionId": true, "callerId": true,
	"reason": true, "action": true, "error": true, "status": true, "metadata": true,
}

// New validates m and returns a copy stamped with ProtocolVersion. Any
// Version set by the caller is overwritten.
func New(m Message) (*Message, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	out := m.clone()
	out.Version = ProtocolVersion
	return out, nil
}

// NewFromFields builds a message from loosely typed fields, as received from
// an application layer. Unknown keys end up in Extra.
func NewFromFields(fields map[string]interface{}) (*Message, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ValidationError{Field: "fields", Reason: err.Error()}
	}
	return New(m)
}

// Parse decodes and validates an inbound message body. The sender's version
// is kept as received.
func Parse(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ValidationError{Field: "body", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewSignalID returns a fresh per-message id.
func NewSignalID() string {
	return uuid.New().String()
}

// Validate checks the mandatory fields.
func (m *Message) Validate() error {
	switch {
	case m.SignalType == "":
		return &ValidationError{Field: "signalType", Reason: "missing"}
	case !m.SignalType.Valid():
		return &ValidationError{Field: "signalType", Reason: fmt.Sprintf("unknown type %q", m.SignalType)}
	case m.SessionID == "":
		return &ValidationError{Field: "sessionId", Reason: "missing"}
	case m.Target == "":
		return &ValidationError{Field: "target", Reason: "missing"}
	case !m.Target.Valid():
		return &ValidationError{Field: "target", Reason: fmt.Sprintf("unknown target %q", m.Target)}
	case m.SignalID == "":
		return &ValidationError{Field: "signalId", Reason: "missing"}
	}
	return nil
}

func (m *Message) String() string {
	return fmt.Sprintf("%s[session=%s target=%s signal=%s]", m.SignalType, m.SessionID, m.Target, m.SignalID)
}

func (m *Message) clone() *Message {
	out := *m
	if m.SessionDescription != nil {
		d := *m.SessionDescription
		out.SessionDescription = &d
	}
	out.ICECandidates = append([]media.Candidate(nil), m.ICECandidates...)
	out.FinalCandidates = append([]media.Candidate(nil), m.FinalCandidates...)
	out.Metadata = copyMap(m.Metadata)
	out.Extra = copyMap(m.Extra)
	return &out
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m Message) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(wireMessage{
		SignalType:         m.SignalType,
		SessionID:          m.SessionID,
		Target:             m.Target,
		SignalID:           m.SignalID,
		Version:            m.Version,
		SessionDescription: m.SessionDescription,
		ICECandidates:      m.ICECandidates,
		FinalCandidates:    m.FinalCandidates,
		ConnectionID:       m.ConnectionID,
		CallerID:           m.CallerID,
		Reason:             m.Reason,
		Action:             m.Action,
		Error:              m.Error,
		Status:             m.Status,
		Metadata:           m.Metadata,
	})
	if err != nil || len(m.Extra) == 0 {
		return known, err
	}

	merged := make(map[string]interface{}, len(m.Extra)+8)
	for k, v := range m.Extra {
		if !knownFields[k] {
			merged[k] = v
		}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	*m = Message{
		SignalType:         w.SignalType,
		SessionID:          w.SessionID,
		Target:             w.Target,
		SignalID:           w.SignalID,
		Version:            w.Version,
		SessionDescription: w.SessionDescription,
		ICECandidates:      w.ICECandidates,
		FinalCandidates:    w.FinalCandidates,
		ConnectionID:       w.ConnectionID,
		CallerID:           w.CallerID,
		Reason:             w.Reason,
		Action:             w.Action,
		Error:              w.Error,
		Status:             w.Status,
		Metadata:           w.Metadata,
	}
	for k, raw := range all {
		if knownFields[k] {
			continue
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if m.Extra == nil {
			m.Extra = make(map[string]interface{})
		}
		m.Extra[k] = v
	}
	return nil
}
