// Package event provides listen/ignore/fire semantics shared by the client,
// its sessions and the media pool.
//
// Listeners of one Fire are scheduled in registration order. When the hub has
// an Executor each listener runs as its own executor task, after the task that
// fired the event has finished; without one listeners run inline.
package event

import (
	"fmt"
	"sync"

	"github.com/ghettovoice/gosip/log"
)

// Event is delivered to listeners. Name and Target are filled by Fire.
type Event struct {
	Name   string
	Target interface{}
	Reason string
	Err    error
	Data   interface{}
}

type Listener func(e Event)

type ListenerID uint64

// Executor schedules a task. loop.Loop satisfies it.
type Executor interface {
	Post(fn func())
}

type entry struct {
	id   ListenerID
	fn   Listener
	once bool
}

type Hub struct {
	mu        sync.Mutex
	target    interface{}
	exec      Executor
	listeners map[string][]*entry
	nextID    ListenerID
	log       log.Logger
}

func NewHub(target interface{}, exec Executor, logger log.Logger) *Hub {
	return &Hub{
		target:    target,
		exec:      exec,
		listeners: make(map[string][]*entry),
		log:       logger,
	}
}

// Listen registers fn for name and returns an id usable with Ignore.
func (h *Hub) Listen(name string, fn Listener) ListenerID {
	return h.add(name, fn, false)
}

// Once registers fn for the next firing of name only.
func (h *Hub) Once(name string, fn Listener) ListenerID {
	return h.add(name, fn, true)
}

func (h *Hub) add(name string, fn Listener, once bool) ListenerID {
	if name == "" || fn == nil {
		if h.log != nil {
			h.log.Errorf("invalid request to add event listener to %q", name)
		}
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.listeners[name] = append(h.listeners[name], &entry{id: h.nextID, fn: fn, once: once})
	return h.nextID
}

// Ignore removes one listener.
func (h *Hub) Ignore(name string, id ListenerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.listeners[name]
	for i, e := range list {
		if e.id == id {
			h.listeners[name] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// IgnoreAll removes every listener of name, or of every event when name is empty.
func (h *Hub) IgnoreAll(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if name == "" {
		h.listeners = make(map[string][]*entry)
		return
	}
	delete(h.listeners, name)
}

func (h *Hub) HasListeners(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[name]) > 0
}

// Fire schedules every listener of name with e and returns how many were scheduled.
func (h *Hub) Fire(name string, e Event) int {
	if name == "" {
		return 0
	}
	e.Name = name
	if e.Target == nil {
		e.Target = h.target
	}

	h.mu.Lock()
	list := h.listeners[name]
	snapshot := make([]Listener, 0, len(list))
	kept := list[:0:0]
	for _, en := range list {
		snapshot = append(snapshot, en.fn)
		if !en.once {
			kept = append(kept, en)
		}
	}
	if len(kept) != len(list) {
		h.listeners[name] = kept
	}
	h.mu.Unlock()

	for _, fn := range snapshot {
		fn := fn
		deliver := func() { h.call(fn, e) }
		if h.exec != nil {
			h.exec.Post(deliver)
		} else {
			deliver()
		}
	}
	if h.log != nil {
		h.log.Debugf("fired %s, %d listeners", name, len(snapshot))
	}
	return len(snapshot)
}

func (h *Hub) call(fn Listener, e Event) {
	defer func() {
		if r := recover(); r != nil && h.log != nil {
			h.log.Errorf("listener for %s panicked: %v", e.Name, fmt.Sprint(r))
		}
	}()
	fn(e)
}
