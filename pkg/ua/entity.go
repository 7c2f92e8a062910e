package ua

import (
	"github.com/cloudwebrtc/go-rtc-ua/pkg/session"
)

// Callable is anything a session can be started with.
type Callable interface {
	StartCall(opts CallOptions) (*session.Session, error)
	StartDirectConnection(opts DirectConnectionOptions) (*session.Session, error)
}

// Endpoint is a remote identity; calls to it ring every connection.
type Endpoint struct {
	ua *UserAgent
	id string
}

// Endpoint returns the remote endpoint id.
func (ua *UserAgent) Endpoint(id string) *Endpoint {
	return &Endpoint{ua: ua, id: id}
}

func (e *Endpoint) ID() string {
	return e.id
}

// Connection narrows e to one of its connections.
func (e *Endpoint) Connection(id string) *Connection {
	return &Connection{endpoint: e, id: id}
}

func (e *Endpoint) StartCall(opts CallOptions) (*session.Session, error) {
	opts.Endpoint, opts.ConnectionID = e.id, ""
	return e.ua.Call(opts)
}

func (e *Endpoint) StartDirectConnection(opts DirectConnectionOptions) (*session.Session, error) {
	opts.Endpoint, opts.ConnectionID = e.id, ""
	return e.ua.DirectConnect(opts)
}

// Connection is one device or tab of an endpoint.
type Connection struct {
	endpoint *Endpoint
	id       string
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) Endpoint() *Endpoint {
	return c.endpoint
}

func (c *Connection) StartCall(opts CallOptions) (*session.Session, error) {
	opts.Endpoint, opts.ConnectionID = c.endpoint.id, c.id
	return c.endpoint.ua.Call(opts)
}

func (c *Connection) StartDirectConnection(opts DirectConnectionOptions) (*session.Session, error) {
	opts.Endpoint, opts.ConnectionID = c.endpoint.id, c.id
	return c.endpoint.ua.DirectConnect(opts)
}

var (
	_ Callable = (*Endpoint)(nil)
	_ Callable = (*Connection)(nil)
)
