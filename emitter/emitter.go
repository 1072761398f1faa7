// Package emitter provides the named-event boundary between a player-like
// emitter and the telemetry trackers. Handlers run synchronously on the
// emitting goroutine, in registration order.
package emitter

import (
	"sync"

	playsight "github.com/playsight/go-playsight"
)

type Handler func(payload any)

type Emitter struct {
	log playsight.Logger

	// handlersLock is only contended when the API surface inspects an
	// emitter while the ingress goroutine dispatches; the trackers
	// themselves are single-threaded.
	handlersLock sync.Mutex
	handlers     map[string][]*Subscription
	nextId       uint64
}

// Subscription is a handle to a registered handler. Cancel is idempotent.
type Subscription struct {
	e     *Emitter
	id    uint64
	event string
	fn    Handler
	once  bool
}

func (s *Subscription) Cancel() {
	s.e.remove(s.event, s.id)
}

func NewEmitter(log playsight.Logger) *Emitter {
	return &Emitter{log: log, handlers: map[string][]*Subscription{}}
}

// On registers fn for every firing of event.
func (e *Emitter) On(event string, fn Handler) *Subscription {
	return e.add(event, fn, false)
}

// Once registers fn for the first firing of event only; the subscription
// cancels itself before fn runs.
func (e *Emitter) Once(event string, fn Handler) *Subscription {
	return e.add(event, fn, true)
}

func (e *Emitter) add(event string, fn Handler, once bool) *Subscription {
	e.handlersLock.Lock()
	defer e.handlersLock.Unlock()

	e.nextId++
	sub := &Subscription{e: e, id: e.nextId, event: event, fn: fn, once: once}
	e.handlers[event] = append(e.handlers[event], sub)
	return sub
}

func (e *Emitter) remove(event string, id uint64) {
	e.handlersLock.Lock()
	defer e.handlersLock.Unlock()

	subs := e.handlers[event]
	for i, sub := range subs {
		if sub.id == id {
			e.handlers[event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit invokes every handler registered for event. Handlers registered or
// cancelled by a running handler do not affect the current dispatch.
func (e *Emitter) Emit(event string, payload any) {
	e.handlersLock.Lock()
	subs := make([]*Subscription, len(e.handlers[event]))
	copy(subs, e.handlers[event])
	e.handlersLock.Unlock()

	for _, sub := range subs {
		if sub.once {
			sub.Cancel()
		}
		sub.fn(payload)
	}
}

// RemoveAll drops every handler, for teardown.
func (e *Emitter) RemoveAll() {
	e.handlersLock.Lock()
	defer e.handlersLock.Unlock()

	e.handlers = map[string][]*Subscription{}
}

// HandlerCount reports how many handlers are registered for event. Used by
// tests to verify symmetric detach.
func (e *Emitter) HandlerCount(event string) int {
	e.handlersLock.Lock()
	defer e.handlersLock.Unlock()

	return len(e.handlers[event])
}
