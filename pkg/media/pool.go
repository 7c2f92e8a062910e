package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/event"
	"github.com/ghettovoice/gosip/log"
	"github.com/tevino/abool"
)

// ErrPoolClosed is returned to acquirers whose request settled after Close.
var ErrPoolClosed = errors.New("media: pool closed")

// EventStop is fired by the pool once a stream has been stopped and removed.
const EventStop = "stop"

// StopEvent is the Data of an EventStop.
type StopEvent struct {
	StreamID    string
	Constraints Constraints
}

type record struct {
	constraints   Constraints
	stream        Stream
	numReferences int
	// waiters are acquirers blocked on ready or about to claim a reference.
	waiters int
	// ready is closed once the engine request for this record settles.
	ready chan struct{}
	err   error
}

// StreamRef is one consumer's handle on a pooled stream. The pool owns the
// stream; a ref only keeps it alive until released.
type StreamRef struct {
	pool     *Pool
	rec      *record
	released abool.AtomicBool
}

func (r *StreamRef) Stream() Stream {
	if r == nil {
		return nil
	}
	return r.rec.stream
}

func (r *StreamRef) Constraints() Constraints {
	if r == nil {
		return Constraints{}
	}
	return r.rec.constraints
}

func (r *StreamRef) Released() bool {
	return r == nil || r.released.IsSet()
}

// Release is shorthand for r's pool Release.
func (r *StreamRef) Release() bool {
	if r == nil {
		return false
	}
	return r.pool.Release(r)
}

// Pool is a reference-counted registry of local streams shared by every
// session of a client. Streams are keyed by their constraints.
type Pool struct {
	mu      sync.Mutex
	engine  Engine
	records []*record
	closed  bool
	hub     *event.Hub
	log     log.Logger

	// engine requests run under ctx, which only Close cancels
	ctx    context.Context
	cancel context.CancelFunc
}

func NewPool(engine Engine, exec event.Executor, logger log.Logger) *Pool {
	p := &Pool{
		engine: engine,
		log:    logger.WithPrefix("media.Pool"),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.hub = event.NewHub(p, exec, p.log)
	return p
}

// Hub exposes the pool events (EventStop).
func (p *Pool) Hub() *event.Hub {
	return p.hub
}

// Acquire returns a reference on the stream matching constraints, asking the
// engine for a new one only when no record matches. Callers that ask for the
// same constraints while a request is in flight wait for that request.
//
// ctx only bounds the caller's own wait: the engine request is shared and
// keeps going for the other waiters. A stream that settles after every
// waiter has gone is stopped.
func (p *Pool) Acquire(ctx context.Context, constraints Constraints) (*StreamRef, error) {
	if constraints.IsZero() {
		return nil, ErrNoConstraints
	}
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		rec := p.find(constraints)
		if rec == nil {
			rec = &record{constraints: constraints, ready: make(chan struct{})}
			p.records = append(p.records, rec)
			go p.request(rec)
		} else if rec.stream != nil {
			rec.numReferences++
			p.log.Debugf("reusing stream %s, references %d", rec.stream.ID(), rec.numReferences)
			p.mu.Unlock()
			return &StreamRef{pool: p, rec: rec}, nil
		}
		rec.waiters++
		ready := rec.ready
		p.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			p.leave(rec)
			return nil, ctx.Err()
		}

		p.mu.Lock()
		rec.waiters--
		if rec.err != nil {
			p.mu.Unlock()
			return nil, rec.err
		}
		if p.contains(rec) {
			rec.numReferences++
			p.mu.Unlock()
			return &StreamRef{pool: p, rec: rec}, nil
		}
		// stopped again before we got to it, start over
		p.mu.Unlock()
	}
}

// leave drops a waiter that gave up, stopping the stream if it settled with
// nobody left to claim it.
func (p *Pool) leave(rec *record) {
	p.mu.Lock()
	rec.waiters--
	idle := rec.stream != nil && rec.waiters == 0 && rec.numReferences == 0 && p.contains(rec)
	if idle {
		p.remove(rec)
	}
	p.mu.Unlock()
	if idle {
		p.stop(rec)
	}
}

func (p *Pool) request(rec *record) {
	p.log.Debugf("requesting media with constraints %+v", rec.constraints)
	stream, err := p.engine.GetUserMedia(p.ctx, rec.constraints)
	if err == nil && stream == nil {
		err = fmt.Errorf("engine returned no stream: %w", ErrDevice)
	}

	p.mu.Lock()
	if !p.contains(rec) {
		if err == nil {
			defer stream.Stop()
		}
		err = ErrPoolClosed
	}
	if err != nil {
		p.log.Warnf("media request failed: %v", err)
		rec.err = err
		p.remove(rec)
		close(rec.ready)
		p.mu.Unlock()
		return
	}
	rec.stream = stream
	close(rec.ready)
	if rec.waiters > 0 {
		p.mu.Unlock()
		return
	}
	p.log.Debugf("stream %s settled with no one waiting", stream.ID())
	p.remove(rec)
	p.mu.Unlock()
	p.stop(rec)
}

// Release drops one reference. The stream is stopped, removed and EventStop
// fired when the last reference goes. Releasing nil or an already released
// ref does nothing. It reports whether the stream was stopped.
func (p *Pool) Release(ref *StreamRef) bool {
	if ref == nil || ref.pool != p || !ref.released.SetToIf(false, true) {
		return false
	}

	p.mu.Lock()
	rec := ref.rec
	if !p.contains(rec) || rec.numReferences == 0 {
		p.mu.Unlock()
		return false
	}
	rec.numReferences--
	if rec.numReferences > 0 || rec.waiters > 0 {
		p.log.Debugf("stream %s still has %d references, %d waiters", rec.stream.ID(), rec.numReferences, rec.waiters)
		p.mu.Unlock()
		return false
	}
	p.remove(rec)
	p.mu.Unlock()

	p.stop(rec)
	return true
}

// NumReferences reports the live reference count of ref's stream.
func (p *Pool) NumReferences(ref *StreamRef) int {
	if ref == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.contains(ref.rec) {
		return 0
	}
	return ref.rec.numReferences
}

// Len is the number of live streams.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, rec := range p.records {
		if rec.stream != nil {
			n++
		}
	}
	return n
}

// Close stops every live stream regardless of references and fails pending
// and later acquisitions with ErrPoolClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cancel()
	var live []*record
	for _, rec := range p.records {
		if rec.stream != nil {
			live = append(live, rec)
		}
	}
	p.records = p.records[:0]
	p.mu.Unlock()

	for _, rec := range live {
		p.stop(rec)
	}
}

func (p *Pool) stop(rec *record) {
	p.log.Infof("stopping stream %s", rec.stream.ID())
	rec.stream.Stop()
	p.hub.Fire(EventStop, event.Event{Data: StopEvent{
		StreamID:    rec.stream.ID(),
		Constraints: rec.constraints,
	}})
}

func (p *Pool) find(c Constraints) *record {
	for _, rec := range p.records {
		if rec.constraints == c {
			return rec
		}
	}
	return nil
}

func (p *Pool) contains(rec *record) bool {
	for _, r := range p.records {
		if r == rec {
			return true
		}
	}
	return false
}

func (p *Pool) remove(rec *record) {
	for i, r := range p.records {
		if r == rec {
			p.records = append(p.records[:i], p.records[i+1:]...)
			return
		}
	}
}
