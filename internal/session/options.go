package session

import (
	"io"
	"time"

	"github.com/chaz8081/motivator/internal/gatt"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultStatusInterval = 5 * time.Second
)

type options struct {
	timeout        time.Duration
	pollInterval   time.Duration
	statusInterval time.Duration
	alerter        Alerter
	observer       gatt.Observer
	dump           io.Writer
}

func defaultOptions() options {
	return options{
		timeout:        DefaultTimeout,
		pollInterval:   DefaultPollInterval,
		statusInterval: DefaultStatusInterval,
	}
}

// Option configures a Controller.
type Option func(*options)

// WithTimeout bounds the connection attempt. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithPollInterval sets how often the target is evaluated.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithStatusInterval sets how often power is logged. Zero disables it.
func WithStatusInterval(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.statusInterval = d
		}
	}
}

// WithAlerter plays a as the rider drops below target.
func WithAlerter(a Alerter) Option {
	return func(o *options) { o.alerter = a }
}

// WithObserver receives every session state transition.
func WithObserver(obs gatt.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithDump writes the enumerated GATT tree to w once the session is ready.
func WithDump(w io.Writer) Option {
	return func(o *options) { o.dump = w }
}
