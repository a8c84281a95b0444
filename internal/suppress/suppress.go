// Package suppress interrupts the rider's game while power is below target,
// using robotgo to send a neutral keystroke to the active application.
package suppress

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-vgo/robotgo"
)

// Methods accepted by New.
const (
	MethodTap  = "tap"  // tap the key on every failing tick
	MethodHold = "hold" // hold the key down while failing
	MethodNone = "none" // log only
)

// DefaultKey is tapped or held when no key is configured.
const DefaultKey = "space"

// Suppressor is the input-suppression collaborator. Neither method returns
// an error; failures are logged.
type Suppressor interface {
	Suppress()
	Restore()
}

// Keyboard is the subset of robotgo used to press keys.
type Keyboard interface {
	KeyTap(key string) error
	KeyToggle(key, direction string) error
}

type robotKeyboard struct{}

func (robotKeyboard) KeyTap(key string) error { return robotgo.KeyTap(key) }

func (robotKeyboard) KeyToggle(key, direction string) error {
	return robotgo.KeyToggle(key, direction)
}

// New returns the suppressor for method, pressing key on the real keyboard.
func New(method, key string) (Suppressor, error) {
	return NewWithKeyboard(method, key, robotKeyboard{})
}

// NewWithKeyboard is New with an explicit keyboard.
func NewWithKeyboard(method, key string, kb Keyboard) (Suppressor, error) {
	if key == "" {
		key = DefaultKey
	}
	switch method {
	case MethodTap, "":
		return &Tapper{kb: kb, key: key}, nil
	case MethodHold:
		return &Holder{kb: kb, key: key}, nil
	case MethodNone:
		return Logger{}, nil
	default:
		return nil, fmt.Errorf("suppress: unknown method %q (want %s, %s or %s)", method, MethodTap, MethodHold, MethodNone)
	}
}

// Tapper taps a key once per Suppress call.
type Tapper struct {
	kb  Keyboard
	key string
}

func (t *Tapper) Suppress() {
	if err := t.kb.KeyTap(t.key); err != nil {
		slog.Warn("[SUPPRESS] key tap failed", "key", t.key, "error", err)
		return
	}
	slog.Debug("[SUPPRESS] key tapped", "key", t.key)
}

// Restore is a no-op: a tap leaves nothing pressed.
func (t *Tapper) Restore() {}

// Holder presses a key on the first Suppress and releases it on Restore.
type Holder struct {
	kb  Keyboard
	key string

	mu   sync.Mutex
	down bool
}

func (h *Holder) Suppress() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.down {
		return
	}
	if err := h.kb.KeyToggle(h.key, "down"); err != nil {
		slog.Warn("[SUPPRESS] key down failed", "key", h.key, "error", err)
		return
	}
	h.down = true
	slog.Debug("[SUPPRESS] key held", "key", h.key)
}

func (h *Holder) Restore() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.down {
		return
	}
	if err := h.kb.KeyToggle(h.key, "up"); err != nil {
		slog.Warn("[SUPPRESS] key up failed", "key", h.key, "error", err)
		return
	}
	h.down = false
	slog.Debug("[SUPPRESS] key released", "key", h.key)
}

// Logger only logs.
type Logger struct{}

func (Logger) Suppress() { slog.Info("[SUPPRESS] below target") }
func (Logger) Restore()  { slog.Info("[SUPPRESS] target met") }

// Compile-time interface satisfaction checks.
var (
	_ Suppressor = (*Tapper)(nil)
	_ Suppressor = (*Holder)(nil)
	_ Suppressor = Logger{}
)
