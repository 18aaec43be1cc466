package agent

import "sync"

// EventName enumerates the payment lifecycle events an agent client emits
// during its payment sub-flow (§4.3).
type EventName string

const (
	EventPaymentStarted EventName = "payment_started"
	EventPaymentSuccess EventName = "payment_success"
	EventPaymentFailed  EventName = "payment_failed"
)

// Listener receives an event payload. Panics/errors from listeners must
// never interrupt the payment flow (§5 "Event delivery").
type Listener func(payload map[string]interface{})

// Emitter is a keyed table of listener slices, guarded by a mutex so
// registration from one goroutine and emission from another don't race,
// even though the surrounding client itself is documented single-owner.
type Emitter struct {
	mu        sync.Mutex
	listeners map[EventName][]Listener
}

// NewEmitter creates an empty event emitter.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[EventName][]Listener)}
}

// On registers a listener for name.
func (e *Emitter) On(name EventName, l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[name] = append(e.listeners[name], l)
}

// Emit runs every listener for name synchronously, swallowing panics so a
// broken listener cannot abort the payment flow.
func (e *Emitter) Emit(name EventName, payload map[string]interface{}) {
	e.mu.Lock()
	listeners := append([]Listener(nil), e.listeners[name]...)
	e.mu.Unlock()

	for _, l := range listeners {
		safeInvoke(l, payload)
	}
}

func safeInvoke(l Listener, payload map[string]interface{}) {
	defer func() { _ = recover() }()
	l(payload)
}
