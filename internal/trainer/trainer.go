// Package trainer decodes trainer notification payloads into power samples and
// keeps the registry that maps an advertised service UUID to its decoder.
package trainer

import (
	"errors"
	"fmt"

	"github.com/chaz8081/motivator/internal/ble"
	"github.com/chaz8081/motivator/internal/power"
)

var (
	// ErrInsufficientData is returned when a frame is shorter than the decoder's layout.
	ErrInsufficientData = errors.New("trainer: insufficient data")
	// ErrMalformedFrame is returned when a frame has the right length but cannot be decoded.
	ErrMalformedFrame = errors.New("trainer: malformed frame")
	// ErrNoPower is returned for well-formed frames that carry no power reading.
	ErrNoPower = errors.New("trainer: frame carries no power field")
	// ErrDuplicateTrainer is returned when registering a UUID twice.
	ErrDuplicateTrainer = errors.New("trainer: duplicate trainer UUID")
)

// Decoder turns a raw notification payload into a power sample.
// Implementations must not retain data after returning.
type Decoder interface {
	Decode(data []byte) (power.Sample, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(data []byte) (power.Sample, error)

func (f DecoderFunc) Decode(data []byte) (power.Sample, error) { return f(data) }

// Plugin binds a trainer's advertised service UUID to a decoder.
type Plugin struct {
	Name    string
	UUID    string // advertised service UUID, the registry key
	Decoder Decoder

	// PowerService and PowerCharacteristic optionally restrict which
	// notifications are fed to the decoder. Empty means "any".
	PowerService        string
	PowerCharacteristic string
}

// Decode runs the plugin's decoder. A decoder that panics on a frame yields
// ErrMalformedFrame instead of taking down the notification goroutine.
func (p Plugin) Decode(data []byte) (s power.Sample, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = power.Sample{}, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, p.Name, r)
		}
	}()
	return p.Decoder.Decode(data)
}

// Carries reports whether a notification from charUUID, owned by serviceUUID,
// should be decoded as power.
func (p Plugin) Carries(serviceUUID, charUUID string) bool {
	if p.PowerService != "" && !ble.SameUUID(p.PowerService, serviceUUID) {
		return false
	}
	if p.PowerCharacteristic != "" && !ble.SameUUID(p.PowerCharacteristic, charUUID) {
		return false
	}
	return true
}
