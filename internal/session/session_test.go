package session

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/motivator/internal/ble"
	"github.com/chaz8081/motivator/internal/ble/bletest"
	"github.com/chaz8081/motivator/internal/gatt"
	"github.com/chaz8081/motivator/internal/power"
	"github.com/chaz8081/motivator/internal/trainer"
)

const (
	cyclingPower = "00001818-0000-1000-8000-00805f9b34fb"
	cpMeasure    = "00002a63-0000-1000-8000-00805f9b34fb"
	heartRate    = "0000180d-0000-1000-8000-00805f9b34fb"
	hrMeasure    = "00002a37-0000-1000-8000-00805f9b34fb"
)

var kickrFrame = []byte{0x14, 0x00, 0x00, 0x00, 0x3A, 0x85, 0xEA, 0x01, 0x00, 0x00, 0xEC, 0x4B}

type fakeSuppressor struct {
	mu         sync.Mutex
	suppresses int
	restores   int
}

func (s *fakeSuppressor) Suppress() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppresses++
}

func (s *fakeSuppressor) Restore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restores++
}

func (s *fakeSuppressor) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppresses, s.restores
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts int
}

func (a *fakeAlerter) Alert() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts++
}

func (a *fakeAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alerts
}

// panicTracker panics on the first target evaluation.
type panicTracker struct {
	power.Tracker
}

func (panicTracker) MeetsTarget() bool { panic("tracker exploded") }

func kickrDevice() ble.Device {
	return ble.Device{Name: "KICKR SNAP", Address: "AA:BB:CC:DD:EE:FF", UUIDs: []string{trainer.KickrSnapUUID}}
}

func trainerTree() []ble.ServiceInfo {
	return []ble.ServiceInfo{
		{
			UUID: cyclingPower, Description: "Cycling Power",
			Characteristics: []ble.CharacteristicInfo{
				{UUID: cpMeasure, Description: "Cycling Power Measurement", Properties: ble.PropNotify},
			},
		},
		{
			UUID: heartRate, Description: "Heart Rate",
			Characteristics: []ble.CharacteristicInfo{
				{UUID: hrMeasure, Description: "Heart Rate Measurement", Properties: ble.PropNotify},
			},
		},
	}
}

func newRegistry(t *testing.T) *trainer.Registry {
	t.Helper()
	r, err := trainer.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry() error = %v", err)
	}
	return r
}

func newTracker(t *testing.T, target uint16) power.Tracker {
	t.Helper()
	tr, err := power.NewTracker(power.ModeRaw, target)
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	return tr
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

type run struct {
	res  *Result
	err  error
	done chan struct{}
}

func start(ctx context.Context, c *Controller, adapter ble.Adapter, device ble.Device) *run {
	r := &run{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		r.res, r.err = c.ConnectAndRun(ctx, adapter, device)
	}()
	return r
}

func (r *run) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("ConnectAndRun() did not return")
	}
}

func assertCleanTeardown(t *testing.T, res *Result, conn *bletest.Connection) {
	t.Helper()
	want := []gatt.State{gatt.Connecting, gatt.Enumerating, gatt.Ready, gatt.Closing, gatt.Closed}
	if !reflect.DeepEqual(res.History, want) {
		t.Errorf("History = %v, want %v", res.History, want)
	}
	if n := conn.Unsubscribes(cyclingPower, cpMeasure); n != 1 {
		t.Errorf("power characteristic unsubscribed %d times, want 1", n)
	}
	if !conn.Disconnected() {
		t.Error("connection was not disconnected")
	}
	events := conn.Events()
	if events[len(events)-1] != "disconnect" {
		t.Errorf("last transport call = %q, want disconnect after unsubscribes", events[len(events)-1])
	}
}

func TestConnectAndRunUnsupportedTrainer(t *testing.T) {
	adapter := &bletest.Adapter{Conn: bletest.NewConnection(trainerTree())}
	c := New(newRegistry(t), newTracker(t, 100), &fakeSuppressor{})

	device := ble.Device{Address: "11:22:33:44:55:66", UUIDs: []string{"180d"}}
	res, err := c.ConnectAndRun(context.Background(), adapter, device)
	if !errors.Is(err, ErrUnsupportedTrainer) {
		t.Fatalf("ConnectAndRun() error = %v, want ErrUnsupportedTrainer", err)
	}
	if res != nil {
		t.Error("Result should be nil when no plugin matches")
	}
	if len(adapter.Connects()) != 0 {
		t.Error("transport should not be touched for an unsupported trainer")
	}
}

func TestConnectAndRunConnectionFailures(t *testing.T) {
	tests := []struct {
		name    string
		adapter func() *bletest.Adapter
		wantIs  error
	}{
		{
			name: "connect error",
			adapter: func() *bletest.Adapter {
				return &bletest.Adapter{ConnectErr: errors.New("le-connection-abort-by-local")}
			},
		},
		{
			name: "link not up",
			adapter: func() *bletest.Adapter {
				conn := bletest.NewConnection(trainerTree())
				conn.NotConnected = true
				return &bletest.Adapter{Conn: conn}
			},
		},
		{
			name:    "timeout",
			adapter: func() *bletest.Adapter { return &bletest.Adapter{BlockConnect: true} },
			wantIs:  context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sup := &fakeSuppressor{}
			c := New(newRegistry(t), newTracker(t, 100), sup, WithTimeout(20*time.Millisecond))

			res, err := c.ConnectAndRun(context.Background(), tt.adapter(), kickrDevice())
			if !errors.Is(err, ErrConnectionFailed) {
				t.Fatalf("ConnectAndRun() error = %v, want ErrConnectionFailed", err)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("ConnectAndRun() error = %v, want it to wrap %v", err, tt.wantIs)
			}
			if res.Final != gatt.Failed {
				t.Errorf("Final = %s, want failed", res.Final)
			}
			for _, s := range res.History {
				if s == gatt.Ready {
					t.Error("session reached Ready without a live link")
				}
			}
			if s, _ := sup.counts(); s != 0 {
				t.Errorf("Suppress() called %d times before the session was ready", s)
			}
		})
	}
}

func TestConnectAndRunEnumerationFailure(t *testing.T) {
	conn := bletest.NewConnection(nil)
	conn.ServicesErr = errors.New("att timeout")
	c := New(newRegistry(t), newTracker(t, 100), &fakeSuppressor{})

	res, err := c.ConnectAndRun(context.Background(), &bletest.Adapter{Conn: conn}, kickrDevice())
	if err == nil {
		t.Fatal("ConnectAndRun() should fail when services cannot be listed")
	}
	if res.Final != gatt.Failed {
		t.Errorf("Final = %s, want failed", res.Final)
	}
	if !conn.Disconnected() {
		t.Error("link should be released after failed enumeration")
	}
}

func TestSessionDecodesPowerAndEnforcesTarget(t *testing.T) {
	conn := bletest.NewConnection(trainerTree())
	sup := &fakeSuppressor{}
	alert := &fakeAlerter{}
	tracker := newTracker(t, 100)
	c := New(newRegistry(t), tracker, sup,
		WithPollInterval(2*time.Millisecond), WithStatusInterval(0), WithAlerter(alert))

	r := start(context.Background(), c, &bletest.Adapter{Conn: conn}, kickrDevice())
	waitFor(t, "subscription", func() bool { return conn.Subscribed(cyclingPower, cpMeasure) })

	// No power yet: every tick suppresses, one alert on entering the failing state.
	waitFor(t, "suppression", func() bool { s, _ := sup.counts(); return s >= 3 })
	if alert.count() != 1 {
		t.Errorf("alerts = %d, want 1", alert.count())
	}

	// Non-power characteristic is delivered but never decoded.
	conn.Notify(heartRate, hrMeasure, kickrFrame)
	// Short frames are dropped without touching the tracker.
	conn.Notify(cyclingPower, cpMeasure, kickrFrame[:6])
	if got := tracker.EffectivePower(); got != 0 {
		t.Errorf("EffectivePower() after dropped frames = %v, want 0", got)
	}

	conn.Notify(cyclingPower, cpMeasure, kickrFrame)
	if got := tracker.EffectivePower(); got != 490 {
		t.Errorf("EffectivePower() = %v, want 490", got)
	}
	waitFor(t, "restore", func() bool { _, r := sup.counts(); return r >= 1 })

	c.Stop()
	r.wait(t)
	if r.err != nil {
		t.Fatalf("ConnectAndRun() error = %v", r.err)
	}

	res := r.res
	if res.Plugin != "Wahoo KICKR SNAP" {
		t.Errorf("Plugin = %q", res.Plugin)
	}
	if res.Subscribed != 2 {
		t.Errorf("Subscribed = %d, want 2", res.Subscribed)
	}
	if res.Notifications != 3 || res.Decoded != 1 || res.DecodeErrors != 1 {
		t.Errorf("notifications/decoded/errors = %d/%d/%d, want 3/1/1",
			res.Notifications, res.Decoded, res.DecodeErrors)
	}
	if res.LoopErr != nil {
		t.Errorf("LoopErr = %v, want nil for a requested stop", res.LoopErr)
	}
	if res.Suppressions == 0 || res.Ticks < res.Suppressions {
		t.Errorf("Ticks = %d, Suppressions = %d", res.Ticks, res.Suppressions)
	}
	if n := conn.Unsubscribes(heartRate, hrMeasure); n != 1 {
		t.Errorf("heart rate unsubscribed %d times, want 1", n)
	}
	if _, restores := sup.counts(); restores != 1 {
		t.Errorf("Restore() called %d times, want 1 (passing at teardown)", restores)
	}
	assertCleanTeardown(t, res, conn)
}

func TestSessionRestoresOnTeardownWhileFailing(t *testing.T) {
	conn := bletest.NewConnection(trainerTree())
	sup := &fakeSuppressor{}
	c := New(newRegistry(t), newTracker(t, 100), sup, WithPollInterval(2*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	r := start(ctx, c, &bletest.Adapter{Conn: conn}, kickrDevice())
	waitFor(t, "suppression", func() bool { s, _ := sup.counts(); return s >= 1 })

	cancel()
	r.wait(t)
	if r.err != nil {
		t.Fatalf("ConnectAndRun() error = %v", r.err)
	}
	if _, restores := sup.counts(); restores != 1 {
		t.Errorf("Restore() called %d times, want 1", restores)
	}
	assertCleanTeardown(t, r.res, conn)
}

func TestSessionTeardownAfterLoopPanic(t *testing.T) {
	conn := bletest.NewConnection(trainerTree())
	tracker := panicTracker{newTracker(t, 100)}
	c := New(newRegistry(t), tracker, &fakeSuppressor{}, WithPollInterval(2*time.Millisecond))

	r := start(context.Background(), c, &bletest.Adapter{Conn: conn}, kickrDevice())
	r.wait(t)

	if r.err != nil {
		t.Fatalf("ConnectAndRun() error = %v", r.err)
	}
	if r.res.LoopErr == nil {
		t.Error("LoopErr should carry the recovered panic")
	}
	assertCleanTeardown(t, r.res, conn)
}

func TestSessionEndsOnDisconnect(t *testing.T) {
	conn := bletest.NewConnection(trainerTree())
	c := New(newRegistry(t), newTracker(t, 0), &fakeSuppressor{}, WithPollInterval(2*time.Millisecond))

	r := start(context.Background(), c, &bletest.Adapter{Conn: conn}, kickrDevice())
	waitFor(t, "subscription", func() bool { return conn.Subscribed(cyclingPower, cpMeasure) })

	conn.SimulateDisconnect()
	r.wait(t)
	if !errors.Is(r.res.LoopErr, ErrDisconnected) {
		t.Errorf("LoopErr = %v, want ErrDisconnected", r.res.LoopErr)
	}
	if r.res.Final != gatt.Closed {
		t.Errorf("Final = %s, want closed", r.res.Final)
	}
}

func TestSessionResultCountsOnlyItsOwnTraffic(t *testing.T) {
	tracker := newTracker(t, 0)
	c := New(newRegistry(t), tracker, &fakeSuppressor{}, WithPollInterval(2*time.Millisecond), WithStatusInterval(0))

	first := bletest.NewConnection(trainerTree())
	r := start(context.Background(), c, &bletest.Adapter{Conn: first}, kickrDevice())
	waitFor(t, "first subscription", func() bool { return first.Subscribed(cyclingPower, cpMeasure) })
	for i := 0; i < 5; i++ {
		first.Notify(cyclingPower, cpMeasure, kickrFrame)
	}
	first.SimulateDisconnect()
	r.wait(t)
	if r.res.Notifications != 5 || r.res.Decoded != 5 {
		t.Fatalf("first session notifications/decoded = %d/%d, want 5/5", r.res.Notifications, r.res.Decoded)
	}

	second := bletest.NewConnection(trainerTree())
	r = start(context.Background(), c, &bletest.Adapter{Conn: second}, kickrDevice())
	waitFor(t, "second subscription", func() bool { return second.Subscribed(cyclingPower, cpMeasure) })
	second.Notify(cyclingPower, cpMeasure, kickrFrame)
	c.Stop()
	r.wait(t)

	if r.err != nil {
		t.Fatalf("second ConnectAndRun() error = %v", r.err)
	}
	if r.res.Notifications != 1 || r.res.Decoded != 1 || r.res.DecodeErrors != 0 {
		t.Errorf("second session notifications/decoded/errors = %d/%d/%d, want 1/1/0",
			r.res.Notifications, r.res.Decoded, r.res.DecodeErrors)
	}
	if r.res.LoopErr != nil {
		t.Errorf("second session LoopErr = %v, want nil", r.res.LoopErr)
	}
}

func TestSessionBindsSupportedUUIDBehindPrimary(t *testing.T) {
	conn := bletest.NewConnection(trainerTree())
	c := New(newRegistry(t), newTracker(t, 0), &fakeSuppressor{}, WithPollInterval(2*time.Millisecond))

	device := kickrDevice()
	device.UUIDs = []string{heartRate, trainer.KickrSnapUUID}
	if device.PrimaryUUID() != heartRate {
		t.Fatalf("PrimaryUUID() = %q, want heart rate first", device.PrimaryUUID())
	}

	r := start(context.Background(), c, &bletest.Adapter{Conn: conn}, device)
	waitFor(t, "subscription", func() bool { return conn.Subscribed(cyclingPower, cpMeasure) })
	c.Stop()
	r.wait(t)

	if r.err != nil {
		t.Fatalf("ConnectAndRun() error = %v", r.err)
	}
	if r.res.Plugin != "Wahoo KICKR SNAP" {
		t.Errorf("Plugin = %q, want the KICKR SNAP plugin", r.res.Plugin)
	}
}

func TestSessionSubscribeAndUnsubscribeFailures(t *testing.T) {
	conn := bletest.NewConnection(trainerTree())
	conn.SubscribeErrs[bletest.Key(heartRate, hrMeasure)] = errors.New("write not permitted")
	conn.UnsubscribeErrs[bletest.Key(cyclingPower, cpMeasure)] = errors.New("not connected")
	c := New(newRegistry(t), newTracker(t, 0), &fakeSuppressor{}, WithPollInterval(2*time.Millisecond))

	r := start(context.Background(), c, &bletest.Adapter{Conn: conn}, kickrDevice())
	waitFor(t, "subscription", func() bool { return conn.Subscribed(cyclingPower, cpMeasure) })
	c.Stop()
	r.wait(t)

	if r.res.Subscribed != 1 {
		t.Errorf("Subscribed = %d, want 1", r.res.Subscribed)
	}
	if n := conn.Unsubscribes(heartRate, hrMeasure); n != 0 {
		t.Errorf("unsubscribed a characteristic that was never subscribed (%d calls)", n)
	}
	if len(r.res.TeardownErrs) != 1 || !errors.Is(r.res.TeardownErrs[0], gatt.ErrUnsubscriptionFailed) {
		t.Errorf("TeardownErrs = %v, want one ErrUnsubscriptionFailed", r.res.TeardownErrs)
	}
	assertCleanTeardown(t, r.res, conn)
}

func TestSessionPausedSkipsEnforcement(t *testing.T) {
	conn := bletest.NewConnection(trainerTree())
	sup := &fakeSuppressor{}
	c := New(newRegistry(t), newTracker(t, 100), sup, WithPollInterval(2*time.Millisecond))
	c.SetPaused(true)

	r := start(context.Background(), c, &bletest.Adapter{Conn: conn}, kickrDevice())
	waitFor(t, "subscription", func() bool { return conn.Subscribed(cyclingPower, cpMeasure) })
	time.Sleep(20 * time.Millisecond)
	c.Stop()
	r.wait(t)

	if s, _ := sup.counts(); s != 0 {
		t.Errorf("Suppress() called %d times while paused", s)
	}
	if r.res.Ticks == 0 {
		t.Error("poll loop should keep ticking while paused")
	}
}

func TestTogglePause(t *testing.T) {
	c := New(newRegistry(t), newTracker(t, 100), &fakeSuppressor{})
	if !c.TogglePause() || !c.Paused() {
		t.Error("first TogglePause() should pause")
	}
	if c.TogglePause() || c.Paused() {
		t.Error("second TogglePause() should resume")
	}
}

func TestNewPanicsOnNilCollaborator(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New() with nil suppressor should panic")
		}
	}()
	New(newRegistry(t), newTracker(t, 1), nil)
}
