package session

import "errors"

var (
	ErrNegotiationTimeout = errors.New("session: negotiation timeout")
	ErrTransport          = errors.New("session: transport failure")
	ErrInvalidState       = errors.New("session: invalid state")
	ErrDuplicateSession   = errors.New("session: duplicate session id")
	ErrPanic              = errors.New("session: handler panicked")
)
