package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Target    TargetConfig   `yaml:"target"`
	BLE       BLEConfig      `yaml:"ble"`
	Suppress  SuppressConfig `yaml:"suppress"`
	Alert     AlertConfig    `yaml:"alert"`
	Hotkey    HotkeyConfig   `yaml:"hotkey"`
	LogLevel  string         `yaml:"log_level"`
	BugReport string         `yaml:"bug_report"`
}

// TargetConfig selects the power tracker and its target.
type TargetConfig struct {
	Mode  string `yaml:"mode"` // "raw", "average" or "baseline"
	Watts uint16 `yaml:"watts"`
}

// BLEConfig holds transport and session timing settings.
type BLEConfig struct {
	Backend        string        `yaml:"backend"`    // "tinygo" or "goble"
	AdapterID      int           `yaml:"adapter_id"` // HCI index, goble backend only
	Device         string        `yaml:"device"`     // address to connect to without prompting
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ScanDuration   time.Duration `yaml:"scan_duration"`
	StatusInterval time.Duration `yaml:"status_interval"`
}

// SuppressConfig holds input suppression settings.
type SuppressConfig struct {
	Method string `yaml:"method"` // "tap", "hold" or "none"
	Key    string `yaml:"key"`
}

// AlertConfig holds the audible alert settings.
type AlertConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Sound     string        `yaml:"sound"` // optional WAV file; a tone is generated when empty
	Frequency float64       `yaml:"frequency"`
	Duration  time.Duration `yaml:"duration"`
	Volume    float64       `yaml:"volume"`
}

// HotkeyConfig holds the global hotkey settings.
type HotkeyConfig struct {
	Enabled   bool     `yaml:"enabled"`
	PauseKeys []string `yaml:"pause_keys"`
	StopKeys  []string `yaml:"stop_keys"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "motivator")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Target: TargetConfig{
			Mode:  "raw",
			Watts: 150,
		},
		BLE: BLEConfig{
			Backend:        "tinygo",
			ConnectTimeout: 10 * time.Second,
			PollInterval:   100 * time.Millisecond,
			ScanDuration:   5 * time.Second,
			StatusInterval: 5 * time.Second,
		},
		Suppress: SuppressConfig{
			Method: "tap",
			Key:    "space",
		},
		Alert: AlertConfig{
			Enabled:   true,
			Frequency: 880,
			Duration:  250 * time.Millisecond,
			Volume:    0.3,
		},
		Hotkey: HotkeyConfig{
			Enabled:   true,
			PauseKeys: []string{"ctrl", "shift", "p"},
			StopKeys:  []string{"ctrl", "shift", "q"},
		},
		LogLevel:  "info",
		BugReport: filepath.Join(home, "motivator_bugreport.txt"),
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in file paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.BugReport = expandTilde(cfg.BugReport)
	cfg.Alert.Sound = expandTilde(cfg.Alert.Sound)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.Target.Mode {
	case "raw", "average", "baseline":
	default:
		return fmt.Errorf("target.mode must be raw, average, or baseline, got %q", c.Target.Mode)
	}

	if c.Target.Watts == 0 {
		return fmt.Errorf("target.watts must be > 0")
	}

	switch c.BLE.Backend {
	case "tinygo", "goble":
	default:
		return fmt.Errorf("ble.backend must be \"tinygo\" or \"goble\", got %q", c.BLE.Backend)
	}

	if c.BLE.AdapterID < 0 {
		return fmt.Errorf("ble.adapter_id must be >= 0")
	}
	if c.BLE.ConnectTimeout <= 0 {
		return fmt.Errorf("ble.connect_timeout must be > 0")
	}
	if c.BLE.PollInterval <= 0 {
		return fmt.Errorf("ble.poll_interval must be > 0")
	}
	if c.BLE.ScanDuration <= 0 {
		return fmt.Errorf("ble.scan_duration must be > 0")
	}
	if c.BLE.StatusInterval < 0 {
		return fmt.Errorf("ble.status_interval must be >= 0")
	}

	switch c.Suppress.Method {
	case "tap", "hold":
		if c.Suppress.Key == "" {
			return fmt.Errorf("suppress.key must not be empty for method %q", c.Suppress.Method)
		}
	case "none":
	default:
		return fmt.Errorf("suppress.method must be tap, hold, or none, got %q", c.Suppress.Method)
	}

	if c.Alert.Enabled {
		if c.Alert.Sound == "" && c.Alert.Frequency <= 0 {
			return fmt.Errorf("alert.frequency must be > 0")
		}
		if c.Alert.Sound == "" && c.Alert.Duration <= 0 {
			return fmt.Errorf("alert.duration must be > 0")
		}
		if c.Alert.Volume < 0 || c.Alert.Volume > 1 {
			return fmt.Errorf("alert.volume must be between 0 and 1, got %v", c.Alert.Volume)
		}
	}

	if c.Hotkey.Enabled && len(c.Hotkey.PauseKeys) == 0 && len(c.Hotkey.StopKeys) == 0 {
		return fmt.Errorf("hotkey.pause_keys or hotkey.stop_keys must be set when hotkeys are enabled")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

const defaultHeader = `# motivator configuration
#
# target.mode: raw (last reading), average (session average) or baseline
# (power above the lowest non-zero reading seen).
# suppress.method: tap (tap key while below target), hold (hold key down)
# or none (log only).
# ble.backend: tinygo (default) or goble (Linux only, full GATT profile).

`

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there. It returns the path written, or "" if a config already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ParseLogLevel maps a log_level string to a slog.Level. Unknown values
// map to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
