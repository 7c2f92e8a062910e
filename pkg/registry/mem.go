package registry

import (
	"fmt"
	"sync"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/account"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/session"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/signaling"
	"github.com/ghettovoice/gosip/log"
)

// MemoryRegistry keeps the sessions of one client in memory.
type MemoryRegistry struct {
	mutex      *sync.Mutex
	sessions   map[string]*session.Session
	factory    Factory
	onIncoming IncomingHandler
	log        log.Logger
}

func NewMemoryRegistry(factory Factory, logger log.Logger) *MemoryRegistry {
	mr := &MemoryRegistry{
		sessions: make(map[string]*session.Session),
		mutex:    new(sync.Mutex),
		factory:  factory,
		log:      logger.WithPrefix("registry.MemoryRegistry"),
	}
	return mr
}

// OnIncoming sets the handler told about sessions created by Route.
func (mr *MemoryRegistry) OnIncoming(handler IncomingHandler) {
	mr.mutex.Lock()
	defer mr.mutex.Unlock()
	mr.onIncoming = handler
}

func (mr *MemoryRegistry) Register(s *session.Session) error {
	mr.mutex.Lock()
	defer mr.mutex.Unlock()
	if _, found := mr.sessions[s.ID()]; found {
		return fmt.Errorf("%w: %s", session.ErrDuplicateSession, s.ID())
	}
	mr.sessions[s.ID()] = s
	mr.log.Debugf("registered %s, %d sessions", s.ID(), len(mr.sessions))
	return nil
}

func (mr *MemoryRegistry) Unregister(s *session.Session) {
	mr.mutex.Lock()
	defer mr.mutex.Unlock()
	if current, found := mr.sessions[s.ID()]; found && current == s {
		delete(mr.sessions, s.ID())
		mr.log.Debugf("unregistered %s, %d sessions", s.ID(), len(mr.sessions))
	}
}

func (mr *MemoryRegistry) Find(id string) (*session.Session, bool) {
	mr.mutex.Lock()
	defer mr.mutex.Unlock()
	s, found := mr.sessions[id]
	return s, found
}

func (mr *MemoryRegistry) Sessions() []*session.Session {
	mr.mutex.Lock()
	defer mr.mutex.Unlock()
	out := make([]*session.Session, 0, len(mr.sessions))
	for _, s := range mr.sessions {
		out = append(out, s)
	}
	return out
}

func (mr *MemoryRegistry) Len() int {
	mr.mutex.Lock()
	defer mr.mutex.Unlock()
	return len(mr.sessions)
}

// Clear forgets every session and returns them.
func (mr *MemoryRegistry) Clear() []*session.Session {
	mr.mutex.Lock()
	defer mr.mutex.Unlock()
	out := make([]*session.Session, 0, len(mr.sessions))
	for _, s := range mr.sessions {
		out = append(out, s)
	}
	mr.sessions = make(map[string]*session.Session)
	return out
}

// Route hands msg to its session. An offer for an unknown session creates an
// incoming one through the factory; any other signal for an unknown session
// is dropped with ErrUnknownSession.
func (mr *MemoryRegistry) Route(msg *signaling.Message, from account.Remote) (*session.Session, error) {
	if s, found := mr.Find(msg.SessionID); found {
		s.Receive(msg, from)
		return s, nil
	}
	if msg.SignalType != signaling.SignalOffer {
		mr.log.Infof("dropping %s from %s: no such session", msg, from)
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, msg.SessionID)
	}

	mr.mutex.Lock()
	factory, onIncoming := mr.factory, mr.onIncoming
	mr.mutex.Unlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: no factory for incoming %s", ErrUnknownSession, msg.SessionID)
	}
	s, err := factory(msg, from)
	if err != nil {
		mr.log.Warnf("could not create incoming session %s: %v", msg.SessionID, err)
		return nil, err
	}
	s.Receive(msg, from)
	if onIncoming != nil {
		onIncoming(s)
	}
	return s, nil
}
