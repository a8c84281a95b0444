// Command motivator connects to a smart trainer over BLE and taps a key in
// the foreground application whenever the rider's power drops below target.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/chaz8081/motivator/internal/alert"
	"github.com/chaz8081/motivator/internal/ble"
	"github.com/chaz8081/motivator/internal/bugreport"
	"github.com/chaz8081/motivator/internal/config"
	"github.com/chaz8081/motivator/internal/hotkey"
	"github.com/chaz8081/motivator/internal/power"
	"github.com/chaz8081/motivator/internal/session"
	"github.com/chaz8081/motivator/internal/suppress"
	"github.com/chaz8081/motivator/internal/trainer"
)

// flags holds command-line overrides of the config file.
type flags struct {
	configPath  string
	power       uint
	average     uint
	baseline    uint
	timeout     time.Duration
	device      string
	writeConfig bool
	debug       bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to config file (default: ~/.config/motivator/config.yaml)")
	flag.UintVar(&f.power, "power", 0, "target power in watts, compared against the latest reading")
	flag.UintVar(&f.average, "average", 0, "target average power in watts over the session")
	flag.UintVar(&f.baseline, "baseline", 0, "target power in watts above the lowest non-zero reading")
	flag.DurationVar(&f.timeout, "timeout", 0, "connection timeout (default from config, 10s)")
	flag.StringVar(&f.device, "device", "", "trainer address; skips the device picker")
	flag.BoolVar(&f.writeConfig, "write-config", false, "write the default config file and exit")
	flag.BoolVar(&f.debug, "debug", false, "debug logging and GATT tree dump")
	flag.Parse()
	return f
}

func main() {
	f := parseFlags()

	if f.writeConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			log.Printf("Config already exists at %s", config.DefaultConfigPath())
		} else {
			log.Printf("Default config written to %s", path)
		}
		return
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := applyFlags(cfg, f); err != nil {
		log.Fatalf("flags: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := runGuarded(ctx, cfg, f.debug)
	stop()
	// Exit directly to avoid gohook's C cleanup crash.
	os.Exit(code)
}

// runGuarded runs the session and converts failures into an exit code,
// writing a bug report for anything unexpected.
func runGuarded(ctx context.Context, cfg *config.Config, dump bool) (code int) {
	info := map[string]string{
		"backend": cfg.BLE.Backend,
		"target":  fmt.Sprintf("%s %dW", cfg.Target.Mode, cfg.Target.Watts),
	}

	defer func() {
		if r := recover(); r != nil {
			report(cfg.BugReport, bugreport.Report{Panic: r, Stack: debug.Stack(), Context: info})
			code = 1
		}
	}()

	err := run(ctx, cfg, dump, info)
	switch {
	case ctx.Err() != nil:
		log.Println("Interrupted, goodbye!")
		return 0
	case errors.Is(err, session.ErrDisconnected):
		log.Printf("Trainer disconnected: %v", err)
		return 1
	case errors.Is(err, session.ErrUnsupportedTrainer), errors.Is(err, errNoDevice):
		log.Printf("%v", err)
		return 1
	case err != nil:
		report(cfg.BugReport, bugreport.Report{Err: err, Context: info})
		return 1
	}
	log.Println("Goodbye!")
	return 0
}

func report(path string, r bugreport.Report) {
	if r.Err != nil {
		log.Printf("Exception: %v", r.Err)
	} else {
		log.Printf("Exception: %v", r.Panic)
	}
	if err := bugreport.Write(path, r); err != nil {
		log.Printf("ERROR: could not write bug report: %v", err)
		return
	}
	log.Printf("See %s for more error information.", path)
}

func run(ctx context.Context, cfg *config.Config, dump bool, info map[string]string) error {
	registry, err := trainer.NewDefaultRegistry()
	if err != nil {
		return fmt.Errorf("trainer registry: %w", err)
	}

	tracker, err := power.NewTracker(power.Mode(cfg.Target.Mode), cfg.Target.Watts)
	if err != nil {
		return err
	}

	suppressor, err := suppress.New(cfg.Suppress.Method, cfg.Suppress.Key)
	if err != nil {
		return err
	}
	log.Printf("Suppressor ready (method: %s, key: %s)", cfg.Suppress.Method, cfg.Suppress.Key)

	adapter, closeAdapter := newAdapter(cfg.BLE)
	defer closeAdapter()

	device, err := selectDevice(ctx, adapter, registry, cfg.BLE)
	if err != nil {
		return err
	}
	info["device"] = device.String()

	opts := []session.Option{
		session.WithTimeout(cfg.BLE.ConnectTimeout),
		session.WithPollInterval(cfg.BLE.PollInterval),
		session.WithStatusInterval(cfg.BLE.StatusInterval),
	}
	if dump {
		opts = append(opts, session.WithDump(os.Stdout))
	}
	if cfg.Alert.Enabled {
		player, err := newAlertPlayer(cfg.Alert)
		if err != nil {
			log.Printf("WARNING: audible alert disabled: %v", err)
		} else {
			defer player.Close()
			opts = append(opts, session.WithAlerter(player))
		}
	}

	controller := session.New(registry, tracker, suppressor, opts...)

	if cfg.Hotkey.Enabled {
		listener := hotkey.NewListener(cfg.Hotkey.PauseKeys, cfg.Hotkey.StopKeys)
		go listener.Start()
		defer listener.Stop()
		go handleHotkeys(listener, controller)
		log.Printf("Hotkeys ready (pause: %s, stop: %s)",
			strings.Join(cfg.Hotkey.PauseKeys, "+"), strings.Join(cfg.Hotkey.StopKeys, "+"))
	}

	log.Printf("Connecting to %s...", device)
	res, err := controller.ConnectAndRun(ctx, adapter, device)
	if res != nil {
		info["plugin"] = res.Plugin
		info["state"] = res.Final.String()
	}
	if err != nil {
		return err
	}

	log.Printf("Session ended: %d notifications, %d power readings, %d dropped, %d suppressions, final power %.0fW",
		res.Notifications, res.Decoded, res.DecodeErrors, res.Suppressions, tracker.EffectivePower())
	for _, e := range res.TeardownErrs {
		log.Printf("WARNING: %v", e)
	}
	return res.LoopErr
}

func handleHotkeys(listener *hotkey.Listener, controller *session.Controller) {
	for ev := range listener.Events() {
		switch ev.Type {
		case hotkey.EventPause:
			if controller.TogglePause() {
				log.Println("Paused. Play freely!")
			} else {
				log.Println("Resumed. Keep pedalling!")
			}
		case hotkey.EventStop:
			log.Println("Stop hotkey pressed")
			controller.Stop()
		}
	}
}

func newAdapter(cfg config.BLEConfig) (ble.Adapter, func()) {
	if cfg.Backend == "goble" {
		a := ble.NewGoBLEAdapter(cfg.AdapterID)
		return a, func() {
			if err := a.Close(); err != nil {
				slog.Warn("[BLE] close adapter", "error", err)
			}
		}
	}
	return ble.NewTinyGoAdapter(), func() {}
}

func newAlertPlayer(cfg config.AlertConfig) (*alert.Player, error) {
	var clip alert.Clip
	var err error
	if cfg.Sound != "" {
		clip, err = alert.LoadWAV(cfg.Sound, cfg.Volume)
	} else {
		clip, err = alert.Tone(cfg.Frequency, cfg.Duration, cfg.Volume, alert.DefaultSampleRate)
	}
	if err != nil {
		return nil, err
	}
	return alert.NewPlayer(clip)
}

// applyFlags overrides config values with command-line flags.
func applyFlags(cfg *config.Config, f flags) error {
	set := 0
	for _, t := range []struct {
		watts uint
		mode  string
	}{
		{f.power, "raw"},
		{f.average, "average"},
		{f.baseline, "baseline"},
	} {
		if t.watts == 0 {
			continue
		}
		if t.watts > 0xFFFF {
			return fmt.Errorf("target %dW out of range", t.watts)
		}
		set++
		cfg.Target.Mode = t.mode
		cfg.Target.Watts = uint16(t.watts)
	}
	if set > 1 {
		return errors.New("only one of -power, -average or -baseline may be given")
	}

	if f.timeout > 0 {
		cfg.BLE.ConnectTimeout = f.timeout
	}
	if f.device != "" {
		cfg.BLE.Device = f.device
	}
	if f.debug {
		cfg.LogLevel = "debug"
	}
	return nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== motivator ===")
	fmt.Printf("  Target:   %dW (%s)\n", cfg.Target.Watts, cfg.Target.Mode)
	fmt.Printf("  Backend:  %s\n", cfg.BLE.Backend)
	fmt.Printf("  Suppress: %s (%s)\n", cfg.Suppress.Method, cfg.Suppress.Key)
	fmt.Printf("  Alert:    %v\n", cfg.Alert.Enabled)
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("=================")
}
