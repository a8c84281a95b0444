// Package power tracks the rider's power output and decides whether it meets
// the configured target. Trackers are fed from BLE notification callbacks and
// read from the session poll loop, so every tracker is safe for concurrent use.
package power

import (
	"fmt"
	"sync"
)

// Sample is a single decoded power reading.
type Sample struct {
	Watts uint16
}

// Snapshot is a point-in-time view of a tracker, used for status logging.
type Snapshot struct {
	Current   uint16  // last recorded reading
	Effective float64 // variant-specific effective power
	Samples   uint64  // readings recorded so far
	Target    uint16
}

// Tracker accumulates samples and compares the effective power to a target.
type Tracker interface {
	// Record stores a new sample.
	Record(s Sample)
	// EffectivePower returns the variant-specific derived power.
	EffectivePower() float64
	// MeetsTarget reports whether EffectivePower() >= Target().
	MeetsTarget() bool
	// Target returns the configured target in watts.
	Target() uint16
	// Snapshot returns the current state under a single lock acquisition.
	Snapshot() Snapshot
}

// Mode selects a tracker variant.
type Mode string

const (
	ModeRaw      Mode = "raw"
	ModeAverage  Mode = "average"
	ModeBaseline Mode = "baseline"
)

// NewTracker builds the tracker for mode with the given target in watts.
func NewTracker(mode Mode, target uint16) (Tracker, error) {
	switch mode {
	case ModeRaw:
		return NewRawTracker(target), nil
	case ModeAverage:
		return NewAverageTracker(target), nil
	case ModeBaseline:
		return NewBaselineTracker(target), nil
	default:
		return nil, fmt.Errorf("power: unknown tracker mode %q", mode)
	}
}

// RawTracker reports the most recent reading verbatim.
type RawTracker struct {
	target uint16

	mu      sync.Mutex
	current uint16
	count   uint64
}

// NewRawTracker creates a RawTracker.
func NewRawTracker(target uint16) *RawTracker {
	return &RawTracker{target: target}
}

func (t *RawTracker) Record(s Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = s.Watts
	t.count++
}

func (t *RawTracker) EffectivePower() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.current)
}

func (t *RawTracker) MeetsTarget() bool {
	return t.EffectivePower() >= float64(t.target)
}

func (t *RawTracker) Target() uint16 { return t.target }

func (t *RawTracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Current:   t.current,
		Effective: float64(t.current),
		Samples:   t.count,
		Target:    t.target,
	}
}

// AverageTracker reports the running average of every reading in the session.
type AverageTracker struct {
	target uint16

	mu      sync.Mutex
	current uint16
	sum     uint64
	count   uint64
}

// NewAverageTracker creates an AverageTracker.
func NewAverageTracker(target uint16) *AverageTracker {
	return &AverageTracker{target: target}
}

func (t *AverageTracker) Record(s Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = s.Watts
	t.sum += uint64(s.Watts)
	t.count++
}

func (t *AverageTracker) EffectivePower() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.average()
}

// average returns 0 before the first sample (caller must hold mu).
func (t *AverageTracker) average() float64 {
	if t.count == 0 {
		return 0
	}
	return float64(t.sum) / float64(t.count)
}

func (t *AverageTracker) MeetsTarget() bool {
	return t.EffectivePower() >= float64(t.target)
}

func (t *AverageTracker) Target() uint16 { return t.target }

func (t *AverageTracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Current:   t.current,
		Effective: t.average(),
		Samples:   t.count,
		Target:    t.target,
	}
}

// BaselineTracker learns a zero offset from the first non-zero reading and
// reports power above it. The floor only ever moves down: a reading below the
// floor becomes the new floor and reports zero.
type BaselineTracker struct {
	target uint16

	mu       sync.Mutex
	current  uint16
	floor    uint16
	floorSet bool
	count    uint64
}

// NewBaselineTracker creates a BaselineTracker.
func NewBaselineTracker(target uint16) *BaselineTracker {
	return &BaselineTracker{target: target}
}

func (t *BaselineTracker) Record(s Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = s.Watts
	t.count++
	switch {
	case !t.floorSet && s.Watts != 0:
		t.floor = s.Watts
		t.floorSet = true
	case t.floorSet && s.Watts < t.floor:
		t.floor = s.Watts
	}
}

func (t *BaselineTracker) EffectivePower() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.effective()
}

// effective clamps the floor and returns current-floor (caller must hold mu).
func (t *BaselineTracker) effective() float64 {
	if t.current < t.floor {
		t.floor = t.current
		return 0
	}
	return float64(t.current - t.floor)
}

func (t *BaselineTracker) MeetsTarget() bool {
	return t.EffectivePower() >= float64(t.target)
}

func (t *BaselineTracker) Target() uint16 { return t.target }

// Floor returns the learned baseline.
func (t *BaselineTracker) Floor() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.floor
}

func (t *BaselineTracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Current:   t.current,
		Effective: t.effective(),
		Samples:   t.count,
		Target:    t.target,
	}
}

// Compile-time interface checks.
var (
	_ Tracker = (*RawTracker)(nil)
	_ Tracker = (*AverageTracker)(nil)
	_ Tracker = (*BaselineTracker)(nil)
)
