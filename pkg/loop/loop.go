// Package loop provides the serial executor every session of a client runs on.
//
// Post never runs two tasks at once. A Post made while the loop is idle drains
// the queue on the calling goroutine before returning; a Post made while
// another goroutine (or the current task) is draining only enqueues.
package loop

import (
	"runtime/debug"
	"sync"

	"github.com/gammazero/deque"
	"github.com/ghettovoice/gosip/log"
	"github.com/tevino/abool"
)

type Loop struct {
	mu      sync.Mutex
	queue   deque.Deque
	running bool
	closed  abool.AtomicBool
	log     log.Logger
}

func New(logger log.Logger) *Loop {
	return &Loop{log: logger}
}

// Post schedules fn. Tasks posted after Close are dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil || l.closed.IsSet() {
		return
	}
	l.mu.Lock()
	l.queue.PushBack(fn)
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	for l.queue.Len() > 0 && !l.closed.IsSet() {
		task := l.queue.PopFront().(func())
		l.mu.Unlock()
		l.run(task)
		l.mu.Lock()
	}
	l.running = false
	l.mu.Unlock()
}

func (l *Loop) run(task func()) {
	defer func() {
		if r := recover(); r != nil && l.log != nil {
			l.log.Errorf("loop task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	task()
}

// Pending reports how many tasks wait to run.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Len()
}

// Close drops queued tasks and refuses new ones.
func (l *Loop) Close() {
	if !l.closed.SetToIf(false, true) {
		return
	}
	l.mu.Lock()
	for l.queue.Len() > 0 {
		l.queue.PopFront()
	}
	l.mu.Unlock()
}

func (l *Loop) Closed() bool {
	return l.closed.IsSet()
}
