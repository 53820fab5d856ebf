package client

import (
	"fmt"
	"sync"
	"time"
)

// ConnectionState is a session's position in the broker handshake and
// data-plane lifecycle.
type ConnectionState int

const (
	// Closed indicates no active connection and no socket.
	Closed ConnectionState = iota
	// RendezvousPending indicates the client-info exchange with the
	// broker's rendezvous port is in flight.
	RendezvousPending
	// LoginPending indicates the open-database request to the assigned
	// worker port is in flight.
	LoginPending
	// Idle indicates a live session with no data-plane operation in
	// flight.
	Idle
	// QueryPending indicates a data-plane operation is in flight.
	QueryPending
	// Closing indicates close-database is in flight and open query
	// handles are being torn down.
	Closing
)

// String returns the state's name.
func (cs ConnectionState) String() string {
	switch cs {
	case Closed:
		return "Closed"
	case RendezvousPending:
		return "RendezvousPending"
	case LoginPending:
		return "LoginPending"
	case Idle:
		return "Idle"
	case QueryPending:
		return "QueryPending"
	case Closing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// StateTransition records one state change with enough context to explain
// it after the fact.
//
// Standard Metadata Keys (conventions, not enforced):
//   - reason: string - "user_initiated" | "error" | "server_closed"
//   - remoteAddr: string - broker address for this session
type StateTransition struct {
	From      ConnectionState
	To        ConnectionState
	Timestamp time.Time
	Error     error
	Duration  time.Duration
	Metadata  map[string]interface{}
}

// StateChangeHandler is called on every legal state transition.
type StateChangeHandler func(transition StateTransition)

// StateManager enforces the session state machine's legal transitions and
// notifies registered handlers of every change.
type StateManager struct {
	current        ConnectionState
	lastTransition time.Time
	handlers       []StateChangeHandler
	mu             sync.RWMutex
}

// NewStateManager creates a state manager starting in Closed.
func NewStateManager() *StateManager {
	return &StateManager{
		current:        Closed,
		lastTransition: time.Now(),
		handlers:       make([]StateChangeHandler, 0),
	}
}

// TransitionTo attempts to move to newState. Returns an error if the
// transition is illegal; the current state is left unchanged in that case.
//
// Legal transitions (spec.md §4.3):
//   - Closed → RendezvousPending
//   - RendezvousPending → LoginPending
//   - RendezvousPending → Closed (rendezvous failed)
//   - LoginPending → Idle
//   - LoginPending → Closed (login failed)
//   - Idle → QueryPending
//   - QueryPending → Idle
//   - Idle → Closing
//   - QueryPending → Closing
//   - Closing → Closed
//   - any state → Closed (socket error)
func (sm *StateManager) TransitionTo(newState ConnectionState, err error, metadata map[string]interface{}) error {
	sm.mu.Lock()

	if !sm.isLegalTransition(sm.current, newState, err) {
		from := sm.current
		sm.mu.Unlock()
		return fmt.Errorf("illegal state transition: %s -> %s", from, newState)
	}

	now := time.Now()
	transition := StateTransition{
		From:      sm.current,
		To:        newState,
		Timestamp: now,
		Error:     err,
		Duration:  now.Sub(sm.lastTransition),
		Metadata:  metadata,
	}

	sm.current = newState
	sm.lastTransition = now

	handlers := make([]StateChangeHandler, len(sm.handlers))
	copy(handlers, sm.handlers)
	sm.mu.Unlock()

	for _, handler := range handlers {
		handler(transition)
	}
	return nil
}

func (sm *StateManager) isLegalTransition(from, to ConnectionState, err error) bool {
	// A socket error collapses any state directly to Closed.
	if err != nil && to == Closed {
		return true
	}
	switch from {
	case Closed:
		return to == RendezvousPending
	case RendezvousPending:
		return to == LoginPending || to == Closed
	case LoginPending:
		return to == Idle || to == Closed
	case Idle:
		return to == QueryPending || to == Closing
	case QueryPending:
		return to == Idle || to == Closing
	case Closing:
		return to == Closed
	default:
		return false
	}
}

// OnStateChange registers a handler invoked on every legal transition, in
// registration order.
func (sm *StateManager) OnStateChange(handler StateChangeHandler) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.handlers = append(sm.handlers, handler)
}

// GetState returns the current state.
func (sm *StateManager) GetState() ConnectionState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// IsBusy reports whether the session is mid-handshake or mid-operation —
// the states in which the serialization discipline rejects or enqueues
// further work.
func (sm *StateManager) IsBusy() bool {
	switch sm.GetState() {
	case RendezvousPending, LoginPending, QueryPending, Closing:
		return true
	default:
		return false
	}
}
