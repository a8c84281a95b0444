package ble

import (
	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

func newGoBLEDevice(adapterID int) (goble.Device, error) {
	device, err := linux.NewDevice(goble.OptDeviceID(adapterID))
	if err != nil {
		return nil, err
	}
	return device, nil
}
