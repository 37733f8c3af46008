package resilience

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonwraymond/opsguard/observe"
)

// Event is a named orchestrator lifecycle event.
type Event string

const (
	EventCircuitOpened      Event = "circuit-opened"
	EventCircuitClosed      Event = "circuit-closed"
	EventRetryExhausted     Event = "retry-exhausted"
	EventQueueOverflow      Event = "queue-overflow"
	EventFallbackTriggered  Event = "fallback-triggered"
	EventRecoverySuccessful Event = "recovery-successful"
)

// EventPayload accompanies an emitted event.
type EventPayload struct {
	// Event is the event kind.
	Event Event

	// Name is the endpoint the event concerns, when applicable.
	Name string

	// Err is the error that triggered the event, when applicable.
	Err error
}

// Handler receives events. Handlers run synchronously, in registration
// order, on the goroutine that triggered the event.
type Handler func(EventPayload)

type subscription struct {
	id      int
	handler Handler
}

// emitter is a synchronous publish/subscribe fan-out. A panicking handler
// is isolated and logged; it never interrupts the call that emitted.
type emitter struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Event][]subscription
	logger observe.Logger
}

func newEmitter(logger observe.Logger) *emitter {
	return &emitter{
		subs:   make(map[Event][]subscription),
		logger: logger,
	}
}

func (e *emitter) subscribe(event Event, h Handler) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	e.subs[event] = append(e.subs[event], subscription{id: e.nextID, handler: h})
	return e.nextID
}

func (e *emitter) unsubscribe(event Event, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.subs[event]
	for i, s := range subs {
		if s.id == id {
			e.subs[event] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (e *emitter) emit(payload EventPayload) {
	e.mu.RLock()
	subs := make([]subscription, len(e.subs[payload.Event]))
	copy(subs, e.subs[payload.Event])
	e.mu.RUnlock()

	for _, s := range subs {
		e.deliver(s, payload)
	}
}

func (e *emitter) deliver(s subscription, payload EventPayload) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(context.Background(), "event handler panicked",
				observe.Field{Key: "event", Value: string(payload.Event)},
				observe.Field{Key: "panic", Value: fmt.Sprint(r)},
			)
		}
	}()
	s.handler(payload)
}
