package registry

import (
	"errors"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/account"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/session"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/signaling"
)

// ErrUnknownSession is returned by Route for a non-initiating signal that
// names no live session. It is not fatal; the signal is dropped.
var ErrUnknownSession = errors.New("registry: unknown session")

// Factory creates the incoming session for an offer naming an unknown session.
type Factory func(msg *signaling.Message, from account.Remote) (*session.Session, error)

// IncomingHandler is told about every session created by Route, after the
// offer has been handed to it.
type IncomingHandler func(s *session.Session)

// Registry session-id to session registry.
type Registry interface {
	Register(s *session.Session) error
	Unregister(s *session.Session)
	Find(id string) (*session.Session, bool)
	Sessions() []*session.Session
	Len() int
	Clear() []*session.Session
	Route(msg *signaling.Message, from account.Remote) (*session.Session, error)
}
