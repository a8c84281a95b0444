package ble

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	goble "github.com/go-ble/ble"
)

// GoBLEAdapter wraps github.com/go-ble/ble. Unlike the tinygo backend it
// discovers the full profile, including characteristic properties and
// descriptors, and reports every advertised service UUID while scanning.
type GoBLEAdapter struct {
	adapterID int

	mu     sync.Mutex
	device goble.Device
}

// NewGoBLEAdapter creates an adapter bound to HCI device adapterID
// (0 for hci0). The device is opened by Enable.
func NewGoBLEAdapter(adapterID int) *GoBLEAdapter {
	return &GoBLEAdapter{adapterID: adapterID}
}

func (a *GoBLEAdapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device != nil {
		slog.Debug("[BLE] reusing existing go-ble device")
		return nil
	}
	device, err := newGoBLEDevice(a.adapterID)
	if err != nil {
		return fmt.Errorf("ble: enable device hci%d: %w", a.adapterID, err)
	}
	a.device = device
	return nil
}

// Close releases the HCI device.
func (a *GoBLEAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device == nil {
		return nil
	}
	device := a.device
	a.device = nil
	return device.Stop()
}

func (a *GoBLEAdapter) dev() (goble.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device == nil {
		return nil, errors.New("ble: adapter not enabled")
	}
	return a.device, nil
}

// Scan reports every advertiser seen until ctx is done. candidates is unused:
// go-ble exposes the advertised service list directly.
func (a *GoBLEAdapter) Scan(ctx context.Context, _ []string) ([]Device, error) {
	device, err := a.dev()
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var devices []Device
	seen := make(map[string]bool)

	err = device.Scan(ctx, false, func(adv goble.Advertisement) {
		addr := adv.Addr().String()
		mu.Lock()
		defer mu.Unlock()
		if seen[addr] {
			return
		}
		seen[addr] = true

		uuids := make([]string, 0, len(adv.Services()))
		for _, u := range adv.Services() {
			uuids = append(uuids, u.String())
		}

		devices = append(devices, Device{
			Name:             adv.LocalName(),
			Address:          addr,
			RSSI:             adv.RSSI(),
			UUIDs:            uuids,
			ManufacturerData: splitManufacturerData(adv.ManufacturerData()),
		})
	})
	// Scan only returns once ctx is done; a cancelled or expired ctx is the
	// normal end of a scan window.
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return devices, nil
}

// splitManufacturerData splits the raw AD payload into its little-endian
// company identifier and the vendor bytes.
func splitManufacturerData(raw []byte) map[uint16][]byte {
	if len(raw) < 2 {
		return nil
	}
	return map[uint16][]byte{
		binary.LittleEndian.Uint16(raw[:2]): append([]byte(nil), raw[2:]...),
	}
}

func (a *GoBLEAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	device, err := a.dev()
	if err != nil {
		return nil, err
	}

	client, err := device.Dial(ctx, goble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("ble: connect to %s: %w", address, err)
	}

	conn := &goBLEConnection{client: client, done: make(chan struct{})}
	conn.connected.Store(true)
	go conn.watch()
	return conn, nil
}

// Compile-time check that GoBLEAdapter implements Adapter.
var _ Adapter = (*GoBLEAdapter)(nil)

type goBLEConnection struct {
	client    goble.Client
	connected atomic.Bool
	done      chan struct{}

	mu           sync.Mutex
	profile      *goble.Profile
	disconnectCb func()
}

// watch waits for the link to drop and fires the disconnect callback.
func (c *goBLEConnection) watch() {
	select {
	case <-c.client.Disconnected():
	case <-c.done:
		return
	}
	if !c.connected.Swap(false) {
		return
	}
	slog.Info("[BLE] device disconnected", "address", c.client.Addr().String())
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *goBLEConnection) IsConnected() bool {
	return c.connected.Load()
}

func (c *goBLEConnection) Services() ([]ServiceInfo, error) {
	profile, err := c.client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("ble: discover profile: %w", err)
	}

	c.mu.Lock()
	c.profile = profile
	c.mu.Unlock()

	infos := make([]ServiceInfo, 0, len(profile.Services))
	for _, s := range profile.Services {
		svcUUID := s.UUID.String()
		info := ServiceInfo{UUID: svcUUID, Description: Describe(svcUUID)}
		for _, ch := range s.Characteristics {
			charUUID := ch.UUID.String()
			ci := CharacteristicInfo{
				UUID:        charUUID,
				Description: Describe(charUUID),
				Properties:  propertiesFromGoBLE(ch.Property),
			}
			for _, d := range ch.Descriptors {
				ci.Descriptors = append(ci.Descriptors, DescriptorInfo{UUID: d.UUID.String(), Handle: d.Handle})
			}
			info.Characteristics = append(info.Characteristics, ci)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func propertiesFromGoBLE(p goble.Property) Property {
	var out Property
	if p&goble.CharRead != 0 {
		out |= PropRead
	}
	if p&(goble.CharWrite|goble.CharWriteNR) != 0 {
		out |= PropWrite
	}
	if p&goble.CharNotify != 0 {
		out |= PropNotify
	}
	if p&goble.CharIndicate != 0 {
		out |= PropIndicate
	}
	return out
}

func (c *goBLEConnection) characteristic(serviceUUID, charUUID string) (*goble.Characteristic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.profile == nil {
		return nil, errors.New("ble: profile not discovered")
	}
	for _, s := range c.profile.Services {
		if !SameUUID(s.UUID.String(), serviceUUID) {
			continue
		}
		for _, ch := range s.Characteristics {
			if SameUUID(ch.UUID.String(), charUUID) {
				return ch, nil
			}
		}
	}
	return nil, fmt.Errorf("ble: characteristic %s/%s not discovered", serviceUUID, charUUID)
}

func (c *goBLEConnection) ReadCharacteristic(serviceUUID, charUUID string) ([]byte, error) {
	ch, err := c.characteristic(serviceUUID, charUUID)
	if err != nil {
		return nil, err
	}
	data, err := c.client.ReadCharacteristic(ch)
	if err != nil {
		return nil, fmt.Errorf("ble: read %s: %w", charUUID, err)
	}
	return data, nil
}

func (c *goBLEConnection) ReadDescriptor(serviceUUID, charUUID string, handle uint16) ([]byte, error) {
	ch, err := c.characteristic(serviceUUID, charUUID)
	if err != nil {
		return nil, err
	}
	for _, d := range ch.Descriptors {
		if d.Handle != handle {
			continue
		}
		data, err := c.client.ReadDescriptor(d)
		if err != nil {
			return nil, fmt.Errorf("ble: read descriptor 0x%04x of %s: %w", handle, charUUID, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("ble: descriptor 0x%04x of %s not discovered", handle, charUUID)
}

func (c *goBLEConnection) Subscribe(serviceUUID, charUUID string, h NotificationHandler) error {
	ch, err := c.characteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	// Prefer notifications; fall back to indications for characteristics
	// that only indicate.
	indicate := ch.Property&goble.CharNotify == 0 && ch.Property&goble.CharIndicate != 0
	if err := c.client.Subscribe(ch, indicate, func(data []byte) { h(data) }); err != nil {
		return fmt.Errorf("ble: subscribe %s: %w", charUUID, err)
	}
	return nil
}

func (c *goBLEConnection) Unsubscribe(serviceUUID, charUUID string) error {
	ch, err := c.characteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	indicate := ch.Property&goble.CharNotify == 0 && ch.Property&goble.CharIndicate != 0
	if err := c.client.Unsubscribe(ch, indicate); err != nil {
		return fmt.Errorf("ble: unsubscribe %s: %w", charUUID, err)
	}
	return nil
}

func (c *goBLEConnection) Disconnect() error {
	if c.connected.Swap(false) {
		close(c.done)
	}
	if err := c.client.CancelConnection(); err != nil {
		return fmt.Errorf("ble: disconnect: %w", err)
	}
	return nil
}

func (c *goBLEConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}
