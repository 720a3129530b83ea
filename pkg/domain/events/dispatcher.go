package events

import (
	"context"
	"fmt"
	"sync"
)

// HandlerFunc handles one push-channel envelope.
type HandlerFunc func(ctx context.Context, env Envelope) error

// HandlerRegistration binds a named handler to event names.
type HandlerRegistration struct {
	Events  []string
	Handler HandlerFunc
	Name    string // For logging
}

// Dispatcher routes envelopes to the handlers registered for their event name.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	// ContinueOnError runs every handler even if an earlier one fails.
	ContinueOnError bool
}

type namedHandler struct {
	name    string
	handler HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]namedHandler),
	}
}

// Register adds a handler for the registration's events.
func (d *Dispatcher) Register(reg HandlerRegistration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	nh := namedHandler{name: reg.Name, handler: reg.Handler}
	for _, ev := range reg.Events {
		d.handlers[ev] = append(d.handlers[ev], nh)
	}
}

// On is shorthand for registering a single handler.
func (d *Dispatcher) On(name string, handler HandlerFunc, events ...string) {
	d.Register(HandlerRegistration{Name: name, Handler: handler, Events: events})
}

// OnAny registers a handler for every event ("*").
func (d *Dispatcher) OnAny(name string, handler HandlerFunc) {
	d.On(name, handler, "*")
}

// Dispatch calls the handlers for env.Event followed by wildcard handlers.
// Handlers run outside the registry lock so they may register further handlers.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) error {
	d.mu.RLock()
	handlers := make([]namedHandler, 0, len(d.handlers[env.Event])+len(d.handlers["*"]))
	handlers = append(handlers, d.handlers[env.Event]...)
	handlers = append(handlers, d.handlers["*"]...)
	continueOnError := d.ContinueOnError
	d.mu.RUnlock()

	var errs []error
	for _, nh := range handlers {
		if err := nh.handler(ctx, env); err != nil {
			herr := fmt.Errorf("handler %s failed for event %s: %w", nh.name, env.Event, err)
			if !continueOnError {
				return herr
			}
			errs = append(errs, herr)
		}
	}
	if len(errs) > 0 {
		return &DispatchError{Errors: errs}
	}
	return nil
}

// DispatchError collects handler failures when ContinueOnError is set.
type DispatchError struct {
	Errors []error
}

func (e *DispatchError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("multiple dispatch errors (%d)", len(e.Errors))
}

// Unwrap returns the first error for errors.Is/As support.
func (e *DispatchError) Unwrap() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}
