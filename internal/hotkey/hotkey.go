// Package hotkey provides global hotkeys using gohook: one combo toggles
// enforcement on and off, another ends the session.
package hotkey

import (
	"fmt"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
)

// EventType identifies which combo fired.
type EventType int

const (
	// EventPause signals the pause combo was pressed.
	EventPause EventType = iota
	// EventStop signals the stop combo was pressed.
	EventStop
)

func (t EventType) String() string {
	switch t {
	case EventPause:
		return "pause"
	case EventStop:
		return "stop"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// Listener manages the global hotkeys and emits events.
type Listener struct {
	pauseKeys []string
	stopKeys  []string
	ch        chan Event
	done      chan struct{}
	once      sync.Once
}

// NewListener creates a Listener. Key names are lowercased gohook names
// (e.g., ["ctrl", "shift", "p"]). An empty combo is not registered.
func NewListener(pauseKeys, stopKeys []string) *Listener {
	return &Listener{
		pauseKeys: Normalize(pauseKeys),
		stopKeys:  Normalize(stopKeys),
		ch:        make(chan Event, 16),
		done:      make(chan struct{}),
	}
}

// Normalize lowercases and trims key names, dropping empty entries.
func Normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Validate checks that a combo has at least one key and no repeats.
func Validate(keys []string) error {
	keys = Normalize(keys)
	if len(keys) == 0 {
		return fmt.Errorf("hotkey: empty key combo")
	}
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			return fmt.Errorf("hotkey: key %q repeated in combo", k)
		}
		seen[k] = true
	}
	return nil
}

// Events returns the channel that receives hotkey events.
// The channel is closed when Stop is called.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start begins listening for the global hotkeys.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	if len(l.pauseKeys) > 0 {
		hook.Register(hook.KeyDown, l.pauseKeys, func(hook.Event) { l.emit(EventPause) })
	}
	if len(l.stopKeys) > 0 {
		hook.Register(hook.KeyDown, l.stopKeys, func(hook.Event) { l.emit(EventStop) })
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

func (l *Listener) emit(t EventType) {
	select {
	case l.ch <- Event{Type: t}:
	default: // don't block if channel is full
	}
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
