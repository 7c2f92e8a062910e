package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/account"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/event"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/signaling"
	"github.com/gammazero/deque"
	"github.com/ghettovoice/gosip/log"
	"github.com/google/uuid"
)

// Tracker keeps the live sessions of a client. registry.Registry satisfies it.
type Tracker interface {
	Register(s *Session) error
	Unregister(s *Session)
}

// ListenerSet tells whether the client has a listener for an event.
type ListenerSet interface {
	HasListeners(name string) bool
}

// Config describes one session.
type Config struct {
	// ID is generated when empty.
	ID        string
	Direction Direction
	Target    signaling.Target
	Local     *account.Profile
	Remote    account.Remote
	// Constraints of the local media to send. Zero means receive only.
	Constraints media.Constraints
	// Label of the data channel of a direct connection.
	Label    string
	Metadata map[string]interface{}
	Timeouts Timeouts
}

// Deps are the collaborators shared by every session of a client.
type Deps struct {
	Exec        event.Executor
	Transport   signaling.Transport
	Pool        *media.Pool
	Negotiators media.NegotiatorFactory
	Tracker     Tracker
	Listeners   ListenerSet
	Logger      log.Logger
}

// Session is one call or direct connection with one remote connection.
//
// Every transition runs as a task on the client's executor. Public methods
// post their work and return; Receive, Answer and the rest never block on
// the network or on media hardware.
type Session struct {
	// guards the fields read from outside the executor
	mu       sync.Mutex
	state    State
	reason   string
	err      error
	remote   account.Remote
	info     media.SDPInfo
	answered bool
	// constraints are written by the answer task
	constraints  media.Constraints
	remoteStream media.Stream
	// channel is the negotiator of a connected direct connection
	channel media.Negotiator

	id        string
	direction Direction
	target    signaling.Target
	local     *account.Profile
	label     string
	metadata  map[string]interface{}
	timeouts  Timeouts

	exec        event.Executor
	transport   signaling.Transport
	pool        *media.Pool
	negotiators media.NegotiatorFactory
	tracker     Tracker
	listeners   ListenerSet
	hub         *event.Hub
	log         log.Logger

	// executor-only state
	ctx        context.Context
	cancel     context.CancelFunc
	negotiator media.Negotiator
	streamRef  *media.StreamRef
	remoteDesc *media.Description
	remoteSet  bool
	pending    deque.Deque
	known      bool
	timer      *time.Timer
	timerGen   uint64
}

// New creates a session in Idle and registers it with deps.Tracker.
func New(cfg Config, deps Deps) (*Session, error) {
	if deps.Exec == nil || deps.Transport == nil || deps.Negotiators == nil || deps.Logger == nil {
		return nil, errors.New("session: missing dependency")
	}
	if !cfg.Target.Valid() {
		return nil, fmt.Errorf("session: invalid target %q", cfg.Target)
	}
	if cfg.Remote.IsZero() {
		return nil, errors.New("session: no remote endpoint")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	if cfg.Direction == "" {
		cfg.Direction = Outgoing
	}
	if cfg.Target == signaling.TargetDirectConnection {
		cfg.Constraints = media.Constraints{}
		if cfg.Label == "" {
			cfg.Label = "default"
		}
	}
	if !cfg.Constraints.IsZero() && deps.Pool == nil {
		return nil, errors.New("session: media requested without a pool")
	}

	s := &Session{
		state:       Idle,
		remote:      cfg.Remote,
		id:          cfg.ID,
		direction:   cfg.Direction,
		target:      cfg.Target,
		local:       cfg.Local,
		constraints: cfg.Constraints,
		label:       cfg.Label,
		metadata:    cfg.Metadata,
		timeouts:    cfg.Timeouts.withDefaults(),
		exec:        deps.Exec,
		transport:   deps.Transport,
		pool:        deps.Pool,
		negotiators: deps.Negotiators,
		tracker:     deps.Tracker,
		listeners:   deps.Listeners,
	}
	s.log = deps.Logger.
		WithPrefix("session.Session").
		WithFields(log.Fields{"session_id": s.id, "direction": string(s.direction)})
	s.hub = event.NewHub(s, s.exec, s.log)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if s.tracker != nil {
		if err := s.tracker.Register(s); err != nil {
			s.cancel()
			return nil, err
		}
	}
	s.log.Debugf("session created, target %s, remote %s", s.target, s.remote)
	return s, nil
}

func (s *Session) ID() string               { return s.id }
func (s *Session) Direction() Direction     { return s.direction }
func (s *Session) Target() signaling.Target { return s.target }
func (s *Session) Hub() *event.Hub          { return s.hub }
func (s *Session) Log() log.Logger          { return s.log }

func (s *Session) Constraints() media.Constraints {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.constraints
}

// RemoteStream is the first stream received from the remote side, or nil.
func (s *Session) RemoteStream() media.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteStream
}

// Caller reports whether the local side initiated the session.
func (s *Session) Caller() bool {
	return s.direction == Outgoing
}

func (s *Session) Metadata() map[string]interface{} {
	out := make(map[string]interface{}, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}
	return out
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason is the hangup or error reason once terminal.
func (s *Session) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Remote() account.Remote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// Info describes what the remote description negotiated.
func (s *Session) Info() media.SDPInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

func (s *Session) String() string {
	return fmt.Sprintf("%s %s %s with %s", s.direction, s.target, s.id, s.Remote())
}

// Start begins an outgoing call or direct connection.
func (s *Session) Start() error {
	if s.direction != Outgoing || s.State() != Idle {
		return ErrInvalidState
	}
	s.post("start", s.start)
	return nil
}

// Answer accepts an incoming call, sending media matching constraints. Zero
// constraints answer receive only.
func (s *Session) Answer(constraints media.Constraints) error {
	if s.target != signaling.TargetCall {
		return fmt.Errorf("%w: answer on a direct connection", ErrInvalidState)
	}
	if !constraints.IsZero() && s.pool == nil {
		return fmt.Errorf("session: no media pool: %w", media.ErrDevice)
	}
	if err := s.markAnswered(); err != nil {
		return err
	}
	s.post("answer", func() {
		s.mu.Lock()
		s.constraints = constraints
		s.mu.Unlock()
		s.answer()
	})
	return nil
}

// Accept accepts an incoming direct connection.
func (s *Session) Accept() error {
	if s.target != signaling.TargetDirectConnection {
		return fmt.Errorf("%w: accept on a call", ErrInvalidState)
	}
	if err := s.markAnswered(); err != nil {
		return err
	}
	s.post("accept", s.answer)
	return nil
}

func (s *Session) markAnswered() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Idle means the offer has not arrived yet
	if s.direction != Incoming || s.state == Idle || s.state.Terminal() || s.answered {
		return ErrInvalidState
	}
	s.answered = true
	return nil
}

// Hangup ends the session. Calling it again does nothing.
func (s *Session) Hangup() {
	s.post("hangup", func() { s.end(ReasonHangup, true) })
}

// Close ends a direct connection, accepted or not.
func (s *Session) Close() {
	s.post("close", func() { s.end(ReasonClosed, true) })
}

// Reject declines an incoming session.
func (s *Session) Reject() {
	s.post("reject", func() { s.end(ReasonRejected, true) })
}

// Terminate ends the session with reason, as the client does on disconnect.
func (s *Session) Terminate(reason string) {
	s.post("terminate", func() { s.end(reason, true) })
}

// Mute disables the local tracks of kind, or all tracks when kind is empty.
func (s *Session) Mute(kind string) {
	s.post("mute", func() { s.setMuted(kind, true) })
}

func (s *Session) Unmute(kind string) {
	s.post("unmute", func() { s.setMuted(kind, false) })
}

// SendMessage writes data to the channel of a connected direct connection.
func (s *Session) SendMessage(data []byte) error {
	if s.target != signaling.TargetDirectConnection {
		return fmt.Errorf("%w: message on a call", ErrInvalidState)
	}
	s.mu.Lock()
	state, channel := s.state, s.channel
	s.mu.Unlock()
	if state != Connected || channel == nil {
		return fmt.Errorf("%w: direct connection is %s", ErrInvalidState, state)
	}
	return channel.Send(data)
}

// Receive delivers an inbound signal sent by from.
func (s *Session) Receive(msg *signaling.Message, from account.Remote) {
	s.post(string(msg.SignalType), func() { s.receive(msg, from) })
}

// TransportState delivers a state change of the underlying peer connection.
func (s *Session) TransportState(state media.TransportState) {
	s.post("transport-state", func() { s.onTransportState(state) })
}

// post runs fn on the executor, turning a panic into the error state.
func (s *Session) post(name string, fn func()) {
	s.exec.Post(func() { s.guard(name, fn) })
}

func (s *Session) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("%s handler panicked: %v\n%s", name, r, debug.Stack())
			s.fail(ReasonInternalError, fmt.Errorf("%w: %s: %v", ErrPanic, name, r))
		}
	}()
	fn()
}

func (s *Session) terminal() bool {
	return s.State().Terminal()
}

func (s *Session) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from == to {
		return
	}
	s.log.Infof("%s => %s", from, to)
	s.hub.Fire(EventState, event.Event{Data: StateChange{From: from, To: to}})
}

func (s *Session) start() {
	if s.State() != Idle {
		return
	}
	s.setState(Negotiating)
	if s.Constraints().IsZero() {
		s.offer()
		return
	}
	s.arm(s.timeouts.Answer, "local media")
	s.acquire()
}

func (s *Session) answer() {
	if state := s.State(); state != Negotiating {
		s.log.Warnf("answer ignored in %s", state)
		if !state.Terminal() {
			s.mu.Lock()
			s.answered = false
			s.mu.Unlock()
		}
		return
	}
	s.disarm()
	if s.Constraints().IsZero() {
		s.completeAnswer()
		return
	}
	s.arm(s.timeouts.Answer, "local media")
	s.acquire()
}

// acquire asks the pool for local media off the executor and resumes on it.
func (s *Session) acquire() {
	ctx, constraints := s.ctx, s.Constraints()
	go func() {
		ref, err := s.pool.Acquire(ctx, constraints)
		s.post("local-media", func() { s.onLocalMedia(ref, err) })
	}()
}

func (s *Session) onLocalMedia(ref *media.StreamRef, err error) {
	if s.terminal() {
		if ref != nil {
			ref.Release()
		}
		return
	}
	if err != nil {
		s.fail(ReasonMediaError, err)
		return
	}
	s.streamRef = ref
	s.hub.Fire(EventLocalStream, event.Event{Data: ref.Stream()})
	s.disarm()
	if s.direction == Outgoing {
		s.offer()
	} else {
		s.completeAnswer()
	}
}

func (s *Session) setupNegotiator() bool {
	if s.negotiator != nil {
		return true
	}
	cfg := media.NegotiatorConfig{
		SessionID:   s.id,
		DataChannel: s.target == signaling.TargetDirectConnection,
		Label:       s.label,
	}
	if s.local != nil {
		cfg.ICEServers = s.local.ICEServers
	}
	n, err := s.negotiators.NewNegotiator(cfg)
	if err != nil {
		s.fail(ReasonNegotiationFailed, err)
		return false
	}
	n.OnICECandidate(func(c media.Candidate) {
		s.post("local-candidate", func() { s.sendCandidates(c) })
	})
	n.OnStateChange(func(state media.TransportState) {
		s.post("transport-state", func() { s.onTransportState(state) })
	})
	n.OnDataChannelOpen(func(label string) {
		s.post("channel-open", func() { s.onChannelOpen(label) })
	})
	n.OnRemoteStream(func(stream media.Stream) {
		s.post("remote-stream", func() { s.onRemoteStream(stream) })
	})
	n.OnMessage(func(data []byte) {
		s.post("message", func() { s.onMessage(data) })
	})
	s.negotiator = n

	if s.streamRef != nil {
		if err := n.AddStream(s.streamRef.Stream()); err != nil {
			s.fail(ReasonNegotiationFailed, err)
			return false
		}
	}
	return true
}

func (s *Session) offer() {
	if !s.setupNegotiator() {
		return
	}
	desc, err := s.negotiator.CreateOffer()
	if err == nil {
		err = s.negotiator.SetLocalDescription(desc)
	}
	if err != nil {
		s.fail(ReasonNegotiationFailed, err)
		return
	}
	err = s.signal(signaling.SignalOffer, s.Remote(), func(m *signaling.Message) {
		m.SessionDescription = &desc
		m.Metadata = s.metadata
		if s.local != nil {
			m.CallerID = s.local.EndpointID
		}
	})
	if err != nil {
		s.fail(ReasonSignalingFailure, err)
		return
	}
	s.known = true
	s.arm(s.timeouts.ReceiveAnswer, "receive answer")
}

func (s *Session) completeAnswer() {
	if !s.setupNegotiator() {
		return
	}
	if !s.applyRemote(*s.remoteDesc) {
		return
	}
	desc, err := s.negotiator.CreateAnswer()
	if err == nil {
		err = s.negotiator.SetLocalDescription(desc)
	}
	if err != nil {
		s.fail(ReasonNegotiationFailed, err)
		return
	}
	err = s.signal(signaling.SignalAnswer, s.Remote(), func(m *signaling.Message) {
		m.SessionDescription = &desc
		if s.local != nil {
			m.ConnectionID = s.local.ConnectionID
		}
	})
	if err != nil {
		s.fail(ReasonSignalingFailure, err)
		return
	}
	s.setState(Connecting)
	s.arm(s.timeouts.Connection, "connection")
}

// applyRemote sets the remote description and flushes queued candidates.
func (s *Session) applyRemote(desc media.Description) bool {
	if err := s.negotiator.SetRemoteDescription(desc); err != nil {
		s.fail(ReasonNegotiationFailed, err)
		return false
	}
	s.remoteSet = true
	if info, err := media.InspectSDP(desc.SDP); err == nil {
		s.mu.Lock()
		s.info = info
		s.mu.Unlock()
	} else {
		s.log.Debugf("remote description not inspectable: %v", err)
	}
	s.flushCandidates()
	return true
}

func (s *Session) flushCandidates() {
	if s.pending.Len() > 0 {
		s.log.Debugf("applying %d queued candidates", s.pending.Len())
	}
	for s.pending.Len() > 0 {
		c := s.pending.PopFront().(media.Candidate)
		s.addCandidate(c)
	}
}

func (s *Session) addCandidate(c media.Candidate) {
	if err := s.negotiator.AddICECandidate(c); err != nil {
		s.log.Warnf("could not add candidate %q: %v", c.Candidate, err)
	}
}

func (s *Session) sendCandidates(candidates ...media.Candidate) {
	if s.terminal() || len(candidates) == 0 {
		return
	}
	err := s.signal(signaling.SignalICECandidates, s.Remote(), func(m *signaling.Message) {
		m.ICECandidates = candidates
	})
	if err != nil {
		s.log.Warnf("could not send candidates: %v", err)
	}
}

func (s *Session) onTransportState(state media.TransportState) {
	if s.terminal() {
		return
	}
	s.log.Debugf("transport %s", state)
	switch state {
	case media.TransportConnected:
		if s.target == signaling.TargetCall && s.State() == Connecting {
			s.connected(ConnectInfo{LocalStream: s.localStream(), RemoteStream: s.RemoteStream()})
		}
	case media.TransportFailed:
		s.fail(ReasonTransportFailure, ErrTransport)
	case media.TransportClosed:
		s.end(ReasonTransportClosed, true)
	}
}

func (s *Session) onChannelOpen(label string) {
	if s.terminal() || s.target != signaling.TargetDirectConnection || s.State() != Connecting {
		return
	}
	s.mu.Lock()
	s.channel = s.negotiator
	s.mu.Unlock()
	s.connected(ConnectInfo{Label: label})
}

func (s *Session) onRemoteStream(stream media.Stream) {
	if s.terminal() || stream == nil {
		return
	}
	s.mu.Lock()
	if s.remoteStream == nil {
		s.remoteStream = stream
	}
	s.mu.Unlock()
	s.log.Infof("remote stream %s, %d tracks", stream.ID(), len(stream.Tracks()))
	s.hub.Fire(EventRemoteStream, event.Event{Data: stream})
}

func (s *Session) onMessage(data []byte) {
	if s.terminal() {
		return
	}
	s.hub.Fire(EventMessage, event.Event{Data: data})
}

func (s *Session) connected(info ConnectInfo) {
	s.disarm()
	s.setState(Connected)
	s.hub.Fire(EventConnect, event.Event{Data: info})
}

func (s *Session) localStream() media.Stream {
	if s.streamRef == nil {
		return nil
	}
	return s.streamRef.Stream()
}

func (s *Session) setMuted(kind string, muted bool) {
	stream := s.localStream()
	if stream == nil {
		return
	}
	changed := false
	for _, t := range stream.Tracks() {
		if kind != "" && t.Kind() != kind {
			continue
		}
		if t.Enabled() == muted {
			t.SetEnabled(!muted)
			changed = true
		}
	}
	if changed {
		s.hub.Fire(EventMute, event.Event{Data: MuteInfo{Kind: kind, Muted: muted}})
	}
}

// signal builds and sends one message to remote.
func (s *Session) signal(t signaling.SignalType, to account.Remote, fill func(m *signaling.Message)) error {
	m := signaling.Message{
		SignalType: t,
		SessionID:  s.id,
		Target:     s.target,
		SignalID:   signaling.NewSignalID(),
	}
	if fill != nil {
		fill(&m)
	}
	msg, err := signaling.New(m)
	if err != nil {
		return err
	}
	env := signaling.NewEnvelope(to.EndpointID, to.ConnectionID, msg)
	if s.local != nil {
		env.From, env.FromConnection = s.local.EndpointID, s.local.ConnectionID
	}
	s.log.Debugf("sending %s to %s", msg, to)
	return s.transport.Send(context.Background(), env)
}

func (s *Session) arm(d time.Duration, phase string) {
	s.disarm()
	if d < 0 {
		return
	}
	gen := s.timerGen
	s.timer = time.AfterFunc(d, func() {
		s.post("timer", func() {
			if gen != s.timerGen || s.terminal() {
				return
			}
			s.log.Warnf("%s timer expired after %s", phase, d)
			s.fail(ReasonTimeout, fmt.Errorf("%s: %w", phase, ErrNegotiationTimeout))
		})
	})
}

func (s *Session) disarm() {
	s.timerGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// end moves to Ended, releasing everything. bye is sent only when asked and
// the remote side knows about the session.
func (s *Session) end(reason string, bye bool) {
	if !s.finish(Ended, reason, nil, bye) {
		return
	}
	s.hub.Fire(EventHangup, event.Event{Reason: reason})
}

// fail moves to Error and always tries to tell the remote side.
func (s *Session) fail(reason string, err error) {
	if !s.finish(Error, reason, err, true) {
		return
	}
	s.hub.Fire(EventError, event.Event{Reason: reason, Err: err})
}

func (s *Session) finish(to State, reason string, err error, bye bool) bool {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.reason = reason
	s.err = err
	s.channel = nil
	s.mu.Unlock()

	if err != nil {
		s.log.Errorf("session failed (%s): %v", reason, err)
	} else {
		s.log.Infof("session ended: %s", reason)
	}

	s.disarm()
	s.cancel()
	if bye && s.known {
		if serr := s.signal(signaling.SignalBye, s.Remote(), func(m *signaling.Message) {
			m.Reason = reason
		}); serr != nil {
			s.log.Warnf("could not send bye: %v", serr)
		}
	}
	if s.streamRef != nil {
		s.streamRef.Release()
		s.streamRef = nil
	}
	if s.negotiator != nil {
		if cerr := s.negotiator.Close(); cerr != nil {
			s.log.Debugf("negotiator close: %v", cerr)
		}
	}
	for s.pending.Len() > 0 {
		s.pending.PopFront()
	}
	s.setState(to)
	if s.tracker != nil {
		s.tracker.Unregister(s)
	}
	return true
}
