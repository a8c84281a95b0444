// Package session drives one connection to a trainer: connect, enumerate,
// subscribe, enforce the power target and tear down.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/motivator/internal/ble"
	"github.com/chaz8081/motivator/internal/gatt"
	"github.com/chaz8081/motivator/internal/power"
	"github.com/chaz8081/motivator/internal/trainer"
)

var (
	// ErrUnsupportedTrainer is returned when no registered plugin matches the
	// device's advertised services. The transport is not touched.
	ErrUnsupportedTrainer = errors.New("session: unsupported trainer")
	// ErrConnectionFailed is returned when the link cannot be established.
	ErrConnectionFailed = errors.New("session: connection failed")
	// ErrDisconnected is reported in Result.LoopErr when the link drops.
	ErrDisconnected = errors.New("session: device disconnected")
)

// Suppressor blocks and unblocks the rider's input.
type Suppressor interface {
	Suppress()
	Restore()
}

// Alerter signals the rider that power just dropped below target.
type Alerter interface {
	Alert()
}

// Result summarises a session.
type Result struct {
	Device  ble.Device
	Plugin  string
	Model   *gatt.Model
	Final   gatt.State
	History []gatt.State

	Subscribed    int
	Notifications uint64
	Decoded       uint64
	DecodeErrors  uint64
	Ticks         uint64
	Suppressions  uint64

	// LoopErr is why the poll loop ended early: ErrDisconnected or a
	// recovered panic. Nil for a requested stop.
	LoopErr error
	// TeardownErrs collects unsubscribe and disconnect failures.
	TeardownErrs []error
}

// Controller runs sessions against a single tracker and suppressor.
type Controller struct {
	registry   *trainer.Registry
	tracker    power.Tracker
	suppressor Suppressor
	opts       options

	stop     chan struct{}
	stopOnce sync.Once
	paused   atomic.Bool
}

// counters accumulate the traffic of a single ConnectAndRun call.
type counters struct {
	notifications atomic.Uint64
	decoded       atomic.Uint64
	decodeErrors  atomic.Uint64
	ticks         atomic.Uint64
	suppressions  atomic.Uint64
}

// New returns a controller. It panics if a collaborator is nil.
func New(registry *trainer.Registry, tracker power.Tracker, suppressor Suppressor, opts ...Option) *Controller {
	if registry == nil || tracker == nil || suppressor == nil {
		panic("session: nil registry, tracker or suppressor")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Controller{
		registry:   registry,
		tracker:    tracker,
		suppressor: suppressor,
		opts:       o,
		stop:       make(chan struct{}),
	}
}

// Stop ends the running session. A stopped controller cannot be restarted.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// SetPaused suspends or resumes target enforcement.
func (c *Controller) SetPaused(paused bool) {
	if c.paused.Swap(paused) != paused {
		slog.Info("[SESSION] enforcement", "paused", paused)
	}
}

// TogglePause flips the pause flag and returns the new value.
func (c *Controller) TogglePause() bool {
	for {
		old := c.paused.Load()
		if c.paused.CompareAndSwap(old, !old) {
			slog.Info("[SESSION] enforcement", "paused", !old)
			return !old
		}
	}
}

// Paused reports whether enforcement is suspended.
func (c *Controller) Paused() bool {
	return c.paused.Load()
}

// ConnectAndRun binds a plugin to device, connects, subscribes to every
// notifiable characteristic and enforces the power target until ctx is done,
// Stop is called or the link drops. Teardown always runs once the connection
// is up. Session-start failures are returned as errors; the Result is also
// returned whenever a connection was attempted.
func (c *Controller) ConnectAndRun(ctx context.Context, adapter ble.Adapter, device ble.Device) (*Result, error) {
	plugin, ok := c.registry.Match(device.UUIDs)
	if !ok {
		return nil, fmt.Errorf("%w: %s advertises %v", ErrUnsupportedTrainer, device, device.UUIDs)
	}
	slog.Info("[SESSION] trainer bound", "device", device.String(), "plugin", plugin.Name,
		"primary", device.PrimaryUUID(), "matched", plugin.UUID)

	machine := gatt.NewMachine(c.opts.observer)
	stats := &counters{}
	res := &Result{Device: device, Plugin: plugin.Name}
	defer func() {
		res.Final = machine.State()
		res.History = machine.History()
		res.Notifications = stats.notifications.Load()
		res.Decoded = stats.decoded.Load()
		res.DecodeErrors = stats.decodeErrors.Load()
		res.Ticks = stats.ticks.Load()
		res.Suppressions = stats.suppressions.Load()
	}()

	conn, err := c.connect(ctx, adapter, device.Address)
	if err != nil {
		enter(machine, gatt.Failed)
		return res, err
	}

	lost := make(chan struct{})
	var lostOnce sync.Once
	conn.OnDisconnect(func() {
		lostOnce.Do(func() { close(lost) })
	})

	enter(machine, gatt.Enumerating)
	model, err := gatt.Enumerate(ctx, conn)
	if err != nil {
		enter(machine, gatt.Failed)
		if derr := conn.Disconnect(); derr != nil {
			slog.Warn("[SESSION] disconnect after failed enumeration", "error", derr)
		}
		return res, fmt.Errorf("session: %w", err)
	}
	res.Model = model
	if c.opts.dump != nil {
		if err := model.Dump(c.opts.dump); err != nil {
			slog.Warn("[SESSION] dump GATT tree", "error", err)
		}
	}

	subscribed := c.subscribe(conn, model, plugin, stats)
	res.Subscribed = len(subscribed)
	if len(subscribed) == 0 {
		slog.Warn("[SESSION] no characteristics subscribed; power will stay at zero")
	}

	var failing bool
	if err := machine.Transition(gatt.Ready); err != nil {
		res.LoopErr = err
	} else {
		slog.Info("[SESSION] listening for notifications", "target", c.tracker.Target())
		res.LoopErr = c.poll(ctx, lost, &failing, stats)
	}

	res.TeardownErrs = c.teardown(conn, machine, subscribed, failing)
	return res, nil
}

func (c *Controller) connect(ctx context.Context, adapter ble.Adapter, address string) (ble.Connection, error) {
	connectCtx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	slog.Info("[SESSION] connecting", "address", address, "timeout", c.opts.timeout)
	conn, err := adapter.Connect(connectCtx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, address, err)
	}
	if !conn.IsConnected() {
		if err := conn.Disconnect(); err != nil {
			slog.Debug("[SESSION] disconnect stale link", "error", err)
		}
		return nil, fmt.Errorf("%w: %s: link not up after connect", ErrConnectionFailed, address)
	}
	return conn, nil
}

func (c *Controller) subscribe(conn ble.Connection, model *gatt.Model, plugin trainer.Plugin, stats *counters) []gatt.Binding {
	var subscribed []gatt.Binding
	for _, b := range model.Notifiable() {
		carries := plugin.Carries(b.Service.UUID, b.Characteristic.UUID)
		label := b.String()
		h := c.handler(plugin, label, carries, stats)
		if err := gatt.Subscribe(conn, b, h); err != nil {
			slog.Warn("[SESSION] could not enable notifications", "char", label, "error", err)
			continue
		}
		slog.Info("[SESSION] notifications enabled", "service", b.Service.Description,
			"char", b.Characteristic.UUID, "power", carries)
		subscribed = append(subscribed, b)
	}
	return subscribed
}

// handler returns the notification callback for one characteristic. Only
// characteristics that carry power for the bound plugin are decoded.
func (c *Controller) handler(plugin trainer.Plugin, label string, carries bool, stats *counters) ble.NotificationHandler {
	return func(data []byte) {
		defer func() {
			if r := recover(); r != nil {
				stats.decodeErrors.Add(1)
				slog.Error("[SESSION] notification handler panic", "char", label, "panic", r)
			}
		}()

		stats.notifications.Add(1)
		slog.Debug("[SESSION] notification", "char", label, "data", fmt.Sprintf("% x", data))
		if !carries {
			return
		}

		sample, err := plugin.Decode(data)
		if err != nil {
			stats.decodeErrors.Add(1)
			slog.Debug("[SESSION] decode failed", "char", label, "len", len(data), "error", err)
			return
		}
		c.tracker.Record(sample)
		stats.decoded.Add(1)
		slog.Debug("[SESSION] power", "watts", sample.Watts, "effective", c.tracker.EffectivePower())
	}
}

// poll evaluates the target on every tick. failing tracks whether the last
// evaluated tick was below target; it is owned by the calling goroutine.
func (c *Controller) poll(ctx context.Context, lost <-chan struct{}, failing *bool, stats *counters) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[SESSION] poll loop panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("session: poll loop panic: %v", r)
		}
	}()

	ticker := time.NewTicker(c.opts.pollInterval)
	defer ticker.Stop()

	var status <-chan time.Time
	if c.opts.statusInterval > 0 {
		st := time.NewTicker(c.opts.statusInterval)
		defer st.Stop()
		status = st.C
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("[SESSION] context done, stopping")
			return nil
		case <-c.stop:
			slog.Info("[SESSION] stop requested")
			return nil
		case <-lost:
			slog.Warn("[SESSION] device disconnected")
			return ErrDisconnected
		case <-status:
			c.logStatus()
		case <-ticker.C:
			c.tick(failing, stats)
		}
	}
}

func (c *Controller) tick(failing *bool, stats *counters) {
	stats.ticks.Add(1)

	if c.paused.Load() {
		if *failing {
			*failing = false
			c.suppressor.Restore()
		}
		return
	}

	if c.tracker.MeetsTarget() {
		if *failing {
			*failing = false
			slog.Info("[SESSION] target met", "effective", c.tracker.EffectivePower(), "target", c.tracker.Target())
			c.suppressor.Restore()
		}
		return
	}

	if !*failing {
		*failing = true
		slog.Info("[SESSION] below target", "effective", c.tracker.EffectivePower(), "target", c.tracker.Target())
		if c.opts.alerter != nil {
			c.opts.alerter.Alert()
		}
	}
	stats.suppressions.Add(1)
	c.suppressor.Suppress()
}

func (c *Controller) logStatus() {
	s := c.tracker.Snapshot()
	slog.Info("[SESSION] status",
		"current", s.Current,
		"effective", fmt.Sprintf("%.1f", s.Effective),
		"target", s.Target,
		"samples", s.Samples,
		"paused", c.paused.Load())
}

// teardown unsubscribes each subscribed characteristic exactly once, releases
// suppression if still active and disconnects. Errors are logged and returned
// but never stop the sequence.
func (c *Controller) teardown(conn ble.Connection, machine *gatt.Machine, subscribed []gatt.Binding, failing bool) []error {
	enter(machine, gatt.Closing)
	slog.Info("[SESSION] stopping notifications", "count", len(subscribed))

	var errs []error
	for _, b := range subscribed {
		if err := gatt.Unsubscribe(conn, b); err != nil {
			slog.Warn("[SESSION] unsubscribe failed", "error", err)
			errs = append(errs, err)
		}
	}

	if failing {
		c.suppressor.Restore()
	}

	if err := conn.Disconnect(); err != nil {
		slog.Warn("[SESSION] disconnect failed", "error", err)
		errs = append(errs, fmt.Errorf("session: disconnect: %w", err))
	}
	enter(machine, gatt.Closed)
	slog.Info("[SESSION] clean exit")
	return errs
}

// enter performs a transition the controller's own sequencing guarantees is
// valid; a rejection is logged.
func enter(m *gatt.Machine, s gatt.State) {
	if err := m.Transition(s); err != nil {
		slog.Error("[SESSION] state machine", "error", err)
	}
}
