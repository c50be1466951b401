package ws2mongo

import (
	"sync"
)

// ConnectionState is the lifecycle position of the Manager's transport connection.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateOpen
	StateErrored
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// StateEvent describes one transition. Err is set when the transition was caused by a failure.
type StateEvent struct {
	Old ConnectionState
	New ConnectionState
	Err error
}

type StateListener func(StateEvent)

// stateEmitter fans transitions out to registered listeners. Listeners run synchronously
// on the goroutine that changed the state, in registration order.
type stateEmitter struct {
	listeners []StateListener
	lock      sync.RWMutex
}

func newStateEmitter() *stateEmitter {
	return &stateEmitter{}
}

// On registers a new listener.
func (e *stateEmitter) On(listener StateListener) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.listeners = append(e.listeners, listener)
}

func (e *stateEmitter) Emit(ev StateEvent) {
	e.lock.RLock()
	listeners := e.listeners
	e.lock.RUnlock()

	for _, listener := range listeners {
		listener(ev)
	}
}
