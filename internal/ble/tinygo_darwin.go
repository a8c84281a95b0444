package ble

import "tinygo.org/x/bluetooth"

// parseAddress parses a CoreBluetooth peripheral UUID.
func parseAddress(address string) (bluetooth.Address, error) {
	var addr bluetooth.Address
	addr.Set(address)
	return addr, nil
}
