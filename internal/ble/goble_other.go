//go:build !linux

package ble

import (
	"errors"

	goble "github.com/go-ble/ble"
)

// ErrBackendUnsupported is returned when the go-ble backend is selected on a
// platform where it has no HCI access.
var ErrBackendUnsupported = errors.New("ble: go-ble backend is only supported on linux")

func newGoBLEDevice(int) (goble.Device, error) {
	return nil, ErrBackendUnsupported
}
