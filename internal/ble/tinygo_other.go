//go:build !darwin

package ble

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

// parseAddress parses a MAC address such as "AA:BB:CC:DD:EE:FF".
func parseAddress(address string) (bluetooth.Address, error) {
	mac, err := bluetooth.ParseMAC(address)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("ble: parse MAC address %q: %w", address, err)
	}
	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}
