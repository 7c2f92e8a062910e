package session

import (
	"time"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
)

type State string

const (
	Idle        State = "idle"        /**< Created, nothing signaled yet. */
	Negotiating State = "negotiating" /**< Offer sent, or offer received and answer pending. */
	Connecting  State = "connecting"  /**< Both descriptions set, ICE in progress. */
	Connected   State = "connected"   /**< Transport (or data channel) is up. */
	Ended       State = "ended"       /**< Terminated normally. */
	Error       State = "error"       /**< Terminated by a failure. */
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Ended || s == Error
}

type Direction string

const (
	Outgoing Direction = "Outgoing"
	Incoming Direction = "Incoming"
)

// Session events.
const (
	EventLocalStream  = "local-stream-received"
	EventRemoteStream = "remote-stream-received"
	EventConnect      = "connect"
	EventHangup       = "hangup"
	EventError        = "error"
	EventModify       = "modify"
	EventMute         = "mute"
	EventState        = "state"
	// EventMessage carries the []byte received on a direct connection.
	EventMessage = "message"
)

// Client events an incoming session needs a listener for.
const (
	EventCall             = "call"
	EventDirectConnection = "direct-connection"
)

// Hangup and error reasons.
const (
	ReasonHangup            = "hangup"
	ReasonClosed            = "closed"
	ReasonRejected          = "rejected"
	ReasonRemoteHangup      = "remote hangup"
	ReasonAnsweredElsewhere = "answered elsewhere"
	ReasonNoCallListener    = "no call listener"
	ReasonNoDCListener      = "no direct-connection listener"
	ReasonTimeout           = "timeout"
	ReasonMediaError        = "media error"
	ReasonTransportFailure  = "transport failure"
	ReasonTransportClosed   = "transport closed"
	ReasonSignalingFailure  = "signaling failure"
	ReasonMalformedSignal   = "malformed signal"
	ReasonNegotiationFailed = "negotiation failed"
	ReasonInternalError     = "internal error"
	ReasonDisconnected      = "client disconnected"
)

// Timeouts bound how long a session may wait in each phase. Zero fields get
// the defaults; negative fields disable that timer.
type Timeouts struct {
	// Answer bounds local preparation: media approval on the calling side,
	// the application's Answer/Accept on the receiving side.
	Answer time.Duration
	// ReceiveAnswer bounds the wait for the remote answer once the offer is out.
	ReceiveAnswer time.Duration
	// Connection bounds the wait for the transport once both descriptions are set.
	Connection time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Answer:        10 * time.Second,
		ReceiveAnswer: 60 * time.Second,
		Connection:    10 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	def := DefaultTimeouts()
	if t.Answer == 0 {
		t.Answer = def.Answer
	}
	if t.ReceiveAnswer == 0 {
		t.ReceiveAnswer = def.ReceiveAnswer
	}
	if t.Connection == 0 {
		t.Connection = def.Connection
	}
	return t
}

// StateChange is the Data of an EventState.
type StateChange struct {
	From State
	To   State
}

// ConnectInfo is the Data of an EventConnect. Calls carry the local stream
// and the remote one if it arrived first; direct connections carry the label
// of the opened channel.
type ConnectInfo struct {
	LocalStream  media.Stream
	RemoteStream media.Stream
	Label        string
}

// MuteInfo is the Data of an EventMute.
type MuteInfo struct {
	Kind  string
	Muted bool
}
