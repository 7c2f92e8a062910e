package mock

import (
	"errors"
	"sync"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
)

// Negotiator records every call made by a session and lets tests drive the
// engine callbacks. AddICECandidate fails without a remote description, as a
// real peer connection does.
type Negotiator struct {
	mu          sync.Mutex
	Config      media.NegotiatorConfig
	OfferErr    error
	AnswerErr   error
	local       *media.Description
	remote      *media.Description
	candidates  []media.Candidate
	streams     []media.Stream
	messages    [][]byte
	closed      bool
	onCandidate func(media.Candidate)
	onState     func(media.TransportState)
	onOpen      func(string)
	onRemote    func(media.Stream)
	onMessage   func([]byte)
}

func (n *Negotiator) CreateOffer() (media.Description, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.OfferErr != nil {
		return media.Description{}, n.OfferErr
	}
	return media.Description{Type: media.SDPTypeOffer, SDP: OfferSDP()}, nil
}

func (n *Negotiator) CreateAnswer() (media.Description, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.AnswerErr != nil {
		return media.Description{}, n.AnswerErr
	}
	if n.remote == nil {
		return media.Description{}, errors.New("mock: no remote offer")
	}
	return media.Description{Type: media.SDPTypeAnswer, SDP: AnswerSDP()}, nil
}

func (n *Negotiator) SetLocalDescription(desc media.Description) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.local = &desc
	return nil
}

func (n *Negotiator) SetRemoteDescription(desc media.Description) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.remote = &desc
	return nil
}

func (n *Negotiator) AddICECandidate(c media.Candidate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.remote == nil {
		return errors.New("mock: candidate before remote description")
	}
	n.candidates = append(n.candidates, c)
	return nil
}

func (n *Negotiator) AddStream(s media.Stream) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.streams = append(n.streams, s)
	return nil
}

func (n *Negotiator) OnICECandidate(f func(media.Candidate)) {
	n.mu.Lock()
	n.onCandidate = f
	n.mu.Unlock()
}

func (n *Negotiator) OnStateChange(f func(media.TransportState)) {
	n.mu.Lock()
	n.onState = f
	n.mu.Unlock()
}

func (n *Negotiator) OnDataChannelOpen(f func(string)) {
	n.mu.Lock()
	n.onOpen = f
	n.mu.Unlock()
}

func (n *Negotiator) OnRemoteStream(f func(media.Stream)) {
	n.mu.Lock()
	n.onRemote = f
	n.mu.Unlock()
}

func (n *Negotiator) OnMessage(f func([]byte)) {
	n.mu.Lock()
	n.onMessage = f
	n.mu.Unlock()
}

// Send records data. Only negotiators created for a direct connection have a
// channel to send on.
func (n *Negotiator) Send(data []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return media.ErrNegotiatorGone
	}
	if !n.Config.DataChannel {
		return media.ErrNoDataChannel
	}
	n.messages = append(n.messages, append([]byte(nil), data...))
	return nil
}

func (n *Negotiator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}

// EmitCandidate plays a locally gathered candidate.
func (n *Negotiator) EmitCandidate(c media.Candidate) {
	n.mu.Lock()
	f := n.onCandidate
	n.mu.Unlock()
	if f != nil {
		f(c)
	}
}

// EmitState plays a transport state change.
func (n *Negotiator) EmitState(state media.TransportState) {
	n.mu.Lock()
	f := n.onState
	n.mu.Unlock()
	if f != nil {
		f(state)
	}
}

// OpenDataChannel plays the opening of a data channel.
func (n *Negotiator) OpenDataChannel(label string) {
	n.mu.Lock()
	f := n.onOpen
	n.mu.Unlock()
	if f != nil {
		f(label)
	}
}

// EmitRemoteStream plays the arrival of a remote stream.
func (n *Negotiator) EmitRemoteStream(stream media.Stream) {
	n.mu.Lock()
	f := n.onRemote
	n.mu.Unlock()
	if f != nil {
		f(stream)
	}
}

// EmitMessage plays data received on the data channel.
func (n *Negotiator) EmitMessage(data []byte) {
	n.mu.Lock()
	f := n.onMessage
	n.mu.Unlock()
	if f != nil {
		f(data)
	}
}

// Messages returns everything sent with Send.
func (n *Negotiator) Messages() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]byte(nil), n.messages...)
}

func (n *Negotiator) Local() *media.Description {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.local
}

func (n *Negotiator) Remote() *media.Description {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.remote
}

func (n *Negotiator) Candidates() []media.Candidate {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]media.Candidate(nil), n.candidates...)
}

func (n *Negotiator) Streams() []media.Stream {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]media.Stream(nil), n.streams...)
}

func (n *Negotiator) Closed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// NegotiatorFactory creates mock negotiators and keeps them for inspection.
type NegotiatorFactory struct {
	mu      sync.Mutex
	Err     error
	created []*Negotiator
}

func (f *NegotiatorFactory) NewNegotiator(config media.NegotiatorConfig) (media.Negotiator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	n := &Negotiator{Config: config}
	f.created = append(f.created, n)
	return n, nil
}

func (f *NegotiatorFactory) Created() []*Negotiator {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Negotiator(nil), f.created...)
}

// Last returns the most recent negotiator, or nil.
func (f *NegotiatorFactory) Last() *Negotiator {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}
