package events

import (
	"fmt"
	"sync"

	"github.com/felixgeelhaar/statekit"
)

// Connection states of the push channel. Untyped so they convert to
// statekit.StateID.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateReconnecting = "reconnecting"
)

// Connection lifecycle events.
const (
	EventDial    = "dial"
	EventOpened  = "opened"
	EventDropped = "dropped"
	EventFailed  = "failed"
	EventClose   = "close"
)

type connContext struct{}

// ConnectionMachine tracks the push channel lifecycle:
// disconnected → connecting → connected → reconnecting → connected, and any
// state → disconnected on close. It is safe for concurrent use.
type ConnectionMachine struct {
	mu          sync.Mutex
	interpreter *statekit.Interpreter[connContext]
	everOpened  bool
}

func NewConnectionMachine() (*ConnectionMachine, error) {
	builder := statekit.NewMachine[connContext]("push-connection").
		WithInitial(statekit.StateID(StateDisconnected)).
		WithContext(connContext{})

	builder.State(StateDisconnected).
		On(EventDial).Target(StateConnecting).
		Done()

	builder.State(StateConnecting).
		On(EventOpened).Target(StateConnected).
		On(EventFailed).Target(StateReconnecting).
		On(EventClose).Target(StateDisconnected).
		Done()

	builder.State(StateConnected).
		On(EventDropped).Target(StateReconnecting).
		On(EventClose).Target(StateDisconnected).
		Done()

	builder.State(StateReconnecting).
		On(EventOpened).Target(StateConnected).
		On(EventClose).Target(StateDisconnected).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()
	return &ConnectionMachine{interpreter: interpreter}, nil
}

// Fire sends event and returns the resulting state. Events that are not valid
// in the current state return an error and leave the state unchanged.
func (m *ConnectionMachine) Fire(event string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := string(m.interpreter.State().Value)
	m.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	after := string(m.interpreter.State().Value)
	if before == after {
		return after, fmt.Errorf("event %q is not allowed while %s", event, before)
	}
	if after == StateConnected {
		m.everOpened = true
	}
	return after, nil
}

func (m *ConnectionMachine) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.interpreter.State().Value)
}

// Connected reports whether events are currently deliverable.
func (m *ConnectionMachine) Connected() bool {
	return m.Current() == StateConnected
}

// Opened reports whether the channel has ever reached the connected state,
// which distinguishes a reconnect from the first connect.
func (m *ConnectionMachine) Opened() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.everOpened
}
