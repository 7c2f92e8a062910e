package ua

import (
	"errors"
	"fmt"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/account"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/event"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/loop"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/registry"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/session"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/signaling"
	"github.com/ghettovoice/gosip/log"
	"github.com/tevino/abool"
)

// ErrNotConnected is returned by every operation after Disconnect.
var ErrNotConnected = errors.New("ua: not connected")

// Client events.
const (
	EventCall             = session.EventCall
	EventDirectConnection = session.EventDirectConnection
	EventError            = "error"
)

// DefaultConstraints are used by calls that ask for nothing specific.
var DefaultConstraints = media.Constraints{Audio: true, Video: true}

type UserAgentConfig struct {
	Profile     *account.Profile
	Transport   signaling.Transport
	Negotiators media.NegotiatorFactory
	Engine      media.Engine
	Timeouts    session.Timeouts
}

// SessionStateHandler is told about every state change of every session.
type SessionStateHandler func(s *session.Session, state session.State)

//UserAgent .
type UserAgent struct {
	SessionStateHandler SessionStateHandler
	config              *UserAgentConfig
	loop                *loop.Loop
	hub                 *event.Hub
	pool                *media.Pool
	registry            *registry.MemoryRegistry
	connected           abool.AtomicBool
	log                 log.Logger
}

//NewUserAgent .
func NewUserAgent(config *UserAgentConfig, logger log.Logger) (*UserAgent, error) {
	if config == nil || config.Profile == nil || config.Transport == nil || config.Negotiators == nil {
		return nil, errors.New("ua: incomplete config")
	}
	ua := &UserAgent{
		config: config,
		log:    logger.WithPrefix("UserAgent"),
	}
	ua.loop = loop.New(ua.log)
	ua.hub = event.NewHub(ua, ua.loop, ua.log)
	if config.Engine != nil {
		ua.pool = media.NewPool(config.Engine, ua.loop, logger)
	}
	ua.registry = registry.NewMemoryRegistry(ua.newIncoming, logger)
	ua.registry.OnIncoming(ua.announce)
	ua.connected.Set()
	return ua, nil
}

// Hub carries the client events: call, direct-connection, error.
func (ua *UserAgent) Hub() *event.Hub {
	return ua.hub
}

func (ua *UserAgent) Profile() *account.Profile {
	return ua.config.Profile
}

// Pool is nil when the agent was built without a media engine.
func (ua *UserAgent) Pool() *media.Pool {
	return ua.pool
}

func (ua *UserAgent) Registry() registry.Registry {
	return ua.registry
}

func (ua *UserAgent) Connected() bool {
	return ua.connected.IsSet()
}

// Sessions returns the live sessions.
func (ua *UserAgent) Sessions() []*session.Session {
	return ua.registry.Sessions()
}

// CallOptions describe an outgoing call.
type CallOptions struct {
	Endpoint     string
	ConnectionID string
	// Constraints default to DefaultConstraints unless ReceiveOnly is set.
	Constraints media.Constraints
	ReceiveOnly bool
	Metadata    map[string]interface{}
}

// DirectConnectionOptions describe an outgoing direct connection.
type DirectConnectionOptions struct {
	Endpoint     string
	ConnectionID string
	Label        string
	Metadata     map[string]interface{}
}

// Call starts a call. The session is returned in negotiating.
func (ua *UserAgent) Call(opts CallOptions) (*session.Session, error) {
	constraints := opts.Constraints
	if opts.ReceiveOnly {
		constraints = media.Constraints{}
	} else if constraints.IsZero() {
		constraints = DefaultConstraints
	}
	return ua.start(session.Config{
		Direction:   session.Outgoing,
		Target:      signaling.TargetCall,
		Remote:      account.Remote{EndpointID: opts.Endpoint, ConnectionID: opts.ConnectionID},
		Constraints: constraints,
		Metadata:    opts.Metadata,
	})
}

// DirectConnect opens a data-only session.
func (ua *UserAgent) DirectConnect(opts DirectConnectionOptions) (*session.Session, error) {
	return ua.start(session.Config{
		Direction: session.Outgoing,
		Target:    signaling.TargetDirectConnection,
		Remote:    account.Remote{EndpointID: opts.Endpoint, ConnectionID: opts.ConnectionID},
		Label:     opts.Label,
		Metadata:  opts.Metadata,
	})
}

func (ua *UserAgent) start(cfg session.Config) (*session.Session, error) {
	if !ua.Connected() {
		return nil, ErrNotConnected
	}
	if !cfg.Constraints.IsZero() && ua.pool == nil {
		return nil, fmt.Errorf("ua: no media engine configured: %w", media.ErrDevice)
	}
	s, err := ua.newSession(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	ua.log.Infof("started %s", s)
	return s, nil
}

func (ua *UserAgent) newSession(cfg session.Config) (*session.Session, error) {
	cfg.Local = ua.config.Profile
	cfg.Timeouts = ua.config.Timeouts
	s, err := session.New(cfg, session.Deps{
		Exec:        ua.loop,
		Transport:   ua.config.Transport,
		Pool:        ua.pool,
		Negotiators: ua.config.Negotiators,
		Tracker:     ua.registry,
		Listeners:   ua.hub,
		Logger:      ua.log,
	})
	if err != nil {
		return nil, err
	}
	s.Hub().Listen(session.EventState, func(e event.Event) {
		if ua.SessionStateHandler != nil {
			ua.SessionStateHandler(s, e.Data.(session.StateChange).To)
		}
	})
	return s, nil
}

func (ua *UserAgent) newIncoming(msg *signaling.Message, from account.Remote) (*session.Session, error) {
	return ua.newSession(session.Config{
		ID:        msg.SessionID,
		Direction: session.Incoming,
		Target:    msg.Target,
		Remote:    from,
		Metadata:  msg.Metadata,
	})
}

// announce fires call or direct-connection for a session created by an
// offer, unless it already failed fast.
func (ua *UserAgent) announce(s *session.Session) {
	if s.State().Terminal() {
		ua.log.Infof("incoming %s ended before announce: %s", s.ID(), s.Reason())
		return
	}
	name := EventCall
	if s.Target() == signaling.TargetDirectConnection {
		name = EventDirectConnection
	}
	ua.hub.Fire(name, event.Event{Data: s})
}

// HandleSignal takes one raw inbound envelope from the signaling transport.
// Malformed input is returned as a signaling.ValidationError; everything
// else is processed on the agent's loop.
func (ua *UserAgent) HandleSignal(raw []byte) error {
	if !ua.Connected() {
		return ErrNotConnected
	}
	env, err := signaling.ParseEnvelope(raw)
	if err != nil {
		ua.log.Warnf("rejecting inbound signal: %v", err)
		return err
	}
	ua.HandleEnvelope(env)
	return nil
}

// HandleEnvelope routes an already decoded envelope.
func (ua *UserAgent) HandleEnvelope(env *signaling.Envelope) {
	from := account.Remote{EndpointID: env.From, ConnectionID: env.FromConnection}
	ua.loop.Post(func() {
		if _, err := ua.registry.Route(env.Body, from); err != nil {
			if errors.Is(err, registry.ErrUnknownSession) {
				return
			}
			ua.hub.Fire(EventError, event.Event{Reason: "incoming session", Err: err})
		}
	})
}

// HandleTransportState forwards a peer connection state reported outside the
// negotiator callbacks.
func (ua *UserAgent) HandleTransportState(sessionID string, state media.TransportState) error {
	if !ua.Connected() {
		return ErrNotConnected
	}
	s, found := ua.registry.Find(sessionID)
	if !found {
		return fmt.Errorf("%w: %s", registry.ErrUnknownSession, sessionID)
	}
	s.TransportState(state)
	return nil
}

// Disconnect ends every session, clears the registry and stops all local
// media. The agent cannot be used afterwards.
func (ua *UserAgent) Disconnect() error {
	if !ua.connected.SetToIf(true, false) {
		return ErrNotConnected
	}
	ua.log.Infof("disconnecting")
	ua.loop.Post(func() {
		for _, s := range ua.registry.Clear() {
			s.Terminate(session.ReasonDisconnected)
		}
		ua.loop.Post(func() {
			if ua.pool != nil {
				ua.pool.Close()
			}
		})
	})
	return nil
}
