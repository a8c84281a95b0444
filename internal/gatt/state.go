package gatt

import (
	"fmt"
	"log/slog"
	"sync"
)

// State is a session lifecycle state.
type State int

const (
	Connecting State = iota
	Enumerating
	Ready
	Closing
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Enumerating:
		return "enumerating"
	case Ready:
		return "ready"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Closed || s == Failed
}

// transitions lists the allowed successor states.
var transitions = map[State][]State{
	Connecting:  {Enumerating, Failed},
	Enumerating: {Ready, Closing, Failed},
	Ready:       {Closing, Failed},
	Closing:     {Closed, Failed},
}

// Observer is notified after every accepted transition.
type Observer func(from, to State)

// Machine tracks a session's state. It is safe for concurrent use.
type Machine struct {
	mu       sync.Mutex
	state    State
	history  []State
	observer Observer
}

// NewMachine returns a machine in the Connecting state.
func NewMachine(observer Observer) *Machine {
	return &Machine{
		state:    Connecting,
		history:  []State{Connecting},
		observer: observer,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns every state entered, starting with Connecting.
func (m *Machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, len(m.history))
	copy(out, m.history)
	return out
}

// Transition moves to next or returns ErrInvalidTransition.
func (m *Machine) Transition(next State) error {
	m.mu.Lock()
	from := m.state
	if !allowed(from, next) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
	}
	m.state = next
	m.history = append(m.history, next)
	obs := m.observer
	m.mu.Unlock()

	slog.Debug("[GATT] state", "from", from, "to", next)
	if obs != nil {
		obs(from, next)
	}
	return nil
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
