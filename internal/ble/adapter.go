// Package ble abstracts the Bluetooth Low Energy transport used to talk to
// smart trainers: scanning, connecting, walking the GATT tree, reading
// values and streaming notifications. Two backends are provided, one on
// tinygo.org/x/bluetooth and one on github.com/go-ble/ble.
package ble

import (
	"context"
	"strings"
)

// Device is a peripheral seen while scanning. It is a snapshot and is never
// updated after the scan that produced it.
type Device struct {
	Name    string
	Address string
	RSSI    int
	// UUIDs holds the advertised service UUIDs in advertisement order.
	UUIDs []string
	// ManufacturerData is keyed by Bluetooth SIG company identifier.
	ManufacturerData map[uint16][]byte
}

// PrimaryUUID returns the first advertised service UUID, or "".
func (d Device) PrimaryUUID() string {
	if len(d.UUIDs) == 0 {
		return ""
	}
	return d.UUIDs[0]
}

// String returns a human readable label for pickers and logs.
func (d Device) String() string {
	name := d.Name
	if name == "" {
		name = "(unnamed)"
	}
	return name + " [" + d.Address + "]"
}

// Property is the set of operations a characteristic supports.
type Property uint8

const (
	PropRead Property = 1 << iota
	PropWrite
	PropNotify
	PropIndicate
)

// String renders the property set like "read,notify".
func (p Property) String() string {
	var parts []string
	if p&PropRead != 0 {
		parts = append(parts, "read")
	}
	if p&PropWrite != 0 {
		parts = append(parts, "write")
	}
	if p&PropNotify != 0 {
		parts = append(parts, "notify")
	}
	if p&PropIndicate != 0 {
		parts = append(parts, "indicate")
	}
	return strings.Join(parts, ",")
}

// DescriptorInfo describes a remote descriptor.
type DescriptorInfo struct {
	UUID   string
	Handle uint16
}

// CharacteristicInfo describes a remote characteristic.
type CharacteristicInfo struct {
	UUID        string
	Description string
	Properties  Property
	Descriptors []DescriptorInfo
}

// ServiceInfo describes a remote service and its characteristics.
type ServiceInfo struct {
	UUID            string
	Description     string
	Characteristics []CharacteristicInfo
}

// NotificationHandler receives the payload of a single notification. It runs
// on a transport goroutine and must not block.
type NotificationHandler func(data []byte)

// Connection represents an active connection to a peripheral. Characteristics
// are addressed by (service UUID, characteristic UUID).
type Connection interface {
	// IsConnected reports whether the link is still up.
	IsConnected() bool
	// Services discovers the full service/characteristic/descriptor tree.
	Services() ([]ServiceInfo, error)
	// ReadCharacteristic reads the current value of a characteristic.
	ReadCharacteristic(serviceUUID, charUUID string) ([]byte, error)
	// ReadDescriptor reads a descriptor of a characteristic by handle.
	ReadDescriptor(serviceUUID, charUUID string, handle uint16) ([]byte, error)
	// Subscribe enables notifications on a characteristic.
	Subscribe(serviceUUID, charUUID string, h NotificationHandler) error
	// Unsubscribe disables notifications on a characteristic.
	Unsubscribe(serviceUUID, charUUID string) error
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the link drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan reports peripherals until ctx is done. candidates lists service
	// UUIDs of interest; backends that cannot enumerate advertised UUIDs
	// test each candidate for membership instead.
	Scan(ctx context.Context, candidates []string) ([]Device, error)
	// Connect establishes a connection, honouring ctx's deadline.
	Connect(ctx context.Context, address string) (Connection, error)
}
