package media

import "errors"

// SDP types carried in Description.Type.
const (
	SDPTypeOffer    = "offer"
	SDPTypeAnswer   = "answer"
	SDPTypePranswer = "pranswer"
	SDPTypeRollback = "rollback"
)

var (
	ErrPermission     = errors.New("media: permission denied")
	ErrDevice         = errors.New("media: device error")
	ErrNoConstraints  = errors.New("media: no constraints")
	ErrNegotiatorGone = errors.New("media: negotiator closed")
	ErrNoDataChannel  = errors.New("media: no data channel")
)

//Description sdp
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate is one trickled ICE candidate in its browser-compatible JSON form.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// TransportState mirrors the peer connection state reported by the engine.
type TransportState string

const (
	TransportNew          TransportState = "new"
	TransportConnecting   TransportState = "connecting"
	TransportConnected    TransportState = "connected"
	TransportDisconnected TransportState = "disconnected"
	TransportFailed       TransportState = "failed"
	TransportClosed       TransportState = "closed"
)

type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// NegotiatorConfig is handed to a NegotiatorFactory for every new session.
type NegotiatorConfig struct {
	SessionID  string
	ICEServers []ICEServer
	// DataChannel asks the offering side to open a data channel labelled Label.
	DataChannel bool
	Label       string
}

// Negotiator is the offer/answer object of one session. Callbacks may be
// invoked from any goroutine.
type Negotiator interface {
	CreateOffer() (Description, error)
	CreateAnswer() (Description, error)
	SetLocalDescription(desc Description) error
	SetRemoteDescription(desc Description) error
	AddICECandidate(c Candidate) error
	AddStream(s Stream) error
	OnICECandidate(f func(c Candidate))
	OnStateChange(f func(state TransportState))
	OnDataChannelOpen(f func(label string))
	// OnRemoteStream is called once for every stream the remote side sends.
	// Tracks may keep joining a stream after the call.
	OnRemoteStream(f func(s Stream))
	// Send writes data to the data channel of a direct connection.
	Send(data []byte) error
	OnMessage(f func(data []byte))
	Close() error
}

// NegotiatorFactory creates the negotiation object for a session.
type NegotiatorFactory interface {
	NewNegotiator(config NegotiatorConfig) (Negotiator, error)
}

// NegotiatorFactoryFunc adapts a function to NegotiatorFactory.
type NegotiatorFactoryFunc func(config NegotiatorConfig) (Negotiator, error)

func (f NegotiatorFactoryFunc) NewNegotiator(config NegotiatorConfig) (Negotiator, error) {
	return f(config)
}
