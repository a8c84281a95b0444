package gatt

import (
	"errors"
	"reflect"
	"testing"
)

func TestMachineHappyPath(t *testing.T) {
	var seen [][2]State
	m := NewMachine(func(from, to State) { seen = append(seen, [2]State{from, to}) })

	for _, s := range []State{Enumerating, Ready, Closing, Closed} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition(%s) error = %v", s, err)
		}
	}

	want := []State{Connecting, Enumerating, Ready, Closing, Closed}
	if got := m.History(); !reflect.DeepEqual(got, want) {
		t.Errorf("History() = %v, want %v", got, want)
	}
	if len(seen) != 4 || seen[0] != [2]State{Connecting, Enumerating} {
		t.Errorf("observer saw %v", seen)
	}
	if !m.State().Terminal() {
		t.Error("Closed should be terminal")
	}
}

func TestMachineRejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []State
		bad  State
	}{
		{"skip enumeration", nil, Ready},
		{"ready before connect", nil, Closing},
		{"back to connecting", []State{Enumerating}, Connecting},
		{"leave closed", []State{Enumerating, Ready, Closing, Closed}, Ready},
		{"leave failed", []State{Failed}, Closing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(nil)
			for _, s := range tt.path {
				if err := m.Transition(s); err != nil {
					t.Fatalf("Transition(%s) error = %v", s, err)
				}
			}
			before := m.State()
			if err := m.Transition(tt.bad); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Transition(%s) error = %v, want ErrInvalidTransition", tt.bad, err)
			}
			if m.State() != before {
				t.Errorf("state changed to %s after rejected transition", m.State())
			}
		})
	}
}

func TestStateString(t *testing.T) {
	if Ready.String() != "ready" || Failed.String() != "failed" {
		t.Errorf("unexpected state names: %s %s", Ready, Failed)
	}
	if got := State(42).String(); got != "state(42)" {
		t.Errorf("State(42).String() = %q", got)
	}
}
