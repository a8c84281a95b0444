package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tinygo.org/x/bluetooth"
)

// readBufferSize bounds a single characteristic read (ATT max value length).
const readBufferSize = 512

// TinyGoAdapter wraps tinygo-org/bluetooth. On macOS device addresses are
// CoreBluetooth UUIDs rather than MAC addresses; the Address field of Device
// stores whichever form the platform uses.
//
// tinygo/bluetooth does not expose characteristic properties or descriptors
// on every platform, so every characteristic is reported as readable and
// notifiable and reads or subscriptions that the peripheral rejects surface
// as per-node errors.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects the connections map.
	mu          sync.Mutex
	connections map[string]*tinyGoConnection // keyed by address
}

// NewTinyGoAdapter creates a BLE adapter on the platform default radio.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*tinyGoConnection),
	}
}

func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// tinygo/bluetooth reports link changes through a single adapter-level
	// handler; route disconnects to the matching connection.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := device.Address.String()
		a.mu.Lock()
		conn, ok := a.connections[addr]
		delete(a.connections, addr)
		a.mu.Unlock()
		if ok {
			conn.markDisconnected()
		}
	})

	return nil
}

func (a *TinyGoAdapter) Scan(ctx context.Context, candidates []string) ([]Device, error) {
	uuids := make([]bluetooth.UUID, 0, len(candidates))
	for _, c := range candidates {
		id, err := CanonicalUUID(c)
		if err != nil {
			return nil, err
		}
		u, err := bluetooth.ParseUUID(id)
		if err != nil {
			return nil, fmt.Errorf("ble: parse service UUID: %w", err)
		}
		uuids = append(uuids, u)
	}

	var mu sync.Mutex
	var devices []Device
	seen := make(map[string]bool)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if err := a.adapter.StopScan(); err != nil {
				slog.Debug("[BLE] stop scan", "error", err)
			}
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		addr := result.Address.String()
		mu.Lock()
		defer mu.Unlock()
		if seen[addr] {
			return
		}
		seen[addr] = true

		var advertised []string
		for _, u := range uuids {
			if result.HasServiceUUID(u) {
				advertised = append(advertised, u.String())
			}
		}

		var mfr map[uint16][]byte
		for _, el := range result.ManufacturerData() {
			if mfr == nil {
				mfr = make(map[uint16][]byte)
			}
			mfr[el.CompanyID] = append([]byte(nil), el.Data...)
		}

		devices = append(devices, Device{
			Name:             result.LocalName(),
			Address:          addr,
			RSSI:             int(result.RSSI),
			UUIDs:            advertised,
			ManufacturerData: mfr,
		})
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return devices, nil
}

func (a *TinyGoAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}

	params := bluetooth.ConnectionParams{}
	if deadline, ok := ctx.Deadline(); ok {
		params.ConnectionTimeout = bluetooth.NewDuration(time.Until(deadline))
	}

	// tinygo/bluetooth's Connect cannot be cancelled; wrap it so that ctx
	// cancellation still returns promptly.
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, params)
		ch <- connectResult{device, err}
	}()

	device, err := awaitConnect(ctx, ch, func(late bluetooth.Device) {
		slog.Warn("[BLE] dropping connection that completed after cancel", "address", address)
		if err := late.Disconnect(); err != nil {
			slog.Warn("[BLE] disconnect late connection", "address", address, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("ble: connect to %s: %w", address, err)
	}
	conn := &tinyGoConnection{
		device: &device,
		chars:  make(map[charKey]bluetooth.DeviceCharacteristic),
	}
	conn.connected.Store(true)

	a.mu.Lock()
	a.connections[device.Address.String()] = conn
	a.mu.Unlock()

	return conn, nil
}

type connectResult struct {
	device bluetooth.Device
	err    error
}

// awaitConnect waits for a pending connect or for ctx. A connection that
// completes after ctx is done is passed to release.
func awaitConnect(ctx context.Context, ch <-chan connectResult, release func(bluetooth.Device)) (bluetooth.Device, error) {
	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				release(r.device)
			}
		}()
		return bluetooth.Device{}, ctx.Err()
	case r := <-ch:
		return r.device, r.err
	}
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

// charKey addresses a characteristic within its service.
type charKey struct {
	service string
	char    string
}

func newCharKey(serviceUUID, charUUID string) charKey {
	s, err := CanonicalUUID(serviceUUID)
	if err != nil {
		s = serviceUUID
	}
	c, err := CanonicalUUID(charUUID)
	if err != nil {
		c = charUUID
	}
	return charKey{service: s, char: c}
}

type tinyGoConnection struct {
	device    *bluetooth.Device
	connected atomic.Bool

	mu           sync.Mutex
	chars        map[charKey]bluetooth.DeviceCharacteristic
	disconnectCb func()
}

func (c *tinyGoConnection) IsConnected() bool {
	return c.connected.Load()
}

func (c *tinyGoConnection) markDisconnected() {
	if !c.connected.Swap(false) {
		return
	}
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *tinyGoConnection) Services() ([]ServiceInfo, error) {
	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	infos := make([]ServiceInfo, 0, len(svcs))
	for _, svc := range svcs {
		svcUUID := svc.UUID().String()
		info := ServiceInfo{UUID: svcUUID, Description: Describe(svcUUID)}

		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics of %s: %w", svcUUID, err)
		}
		for _, ch := range chars {
			charUUID := ch.UUID().String()
			c.chars[newCharKey(svcUUID, charUUID)] = ch
			info.Characteristics = append(info.Characteristics, CharacteristicInfo{
				UUID:        charUUID,
				Description: Describe(charUUID),
				Properties:  PropRead | PropNotify,
			})
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (c *tinyGoConnection) characteristic(serviceUUID, charUUID string) (bluetooth.DeviceCharacteristic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chars[newCharKey(serviceUUID, charUUID)]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("ble: characteristic %s/%s not discovered", serviceUUID, charUUID)
	}
	return ch, nil
}

func (c *tinyGoConnection) ReadCharacteristic(serviceUUID, charUUID string) ([]byte, error) {
	ch, err := c.characteristic(serviceUUID, charUUID)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, readBufferSize)
	n, err := ch.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("ble: read %s: %w", charUUID, err)
	}
	return buf[:n], nil
}

func (c *tinyGoConnection) ReadDescriptor(_, charUUID string, handle uint16) ([]byte, error) {
	return nil, fmt.Errorf("ble: read descriptor 0x%04x of %s: not supported by tinygo backend", handle, charUUID)
}

func (c *tinyGoConnection) Subscribe(serviceUUID, charUUID string, h NotificationHandler) error {
	ch, err := c.characteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	return ch.EnableNotifications(func(buf []byte) {
		h(buf)
	})
}

func (c *tinyGoConnection) Unsubscribe(serviceUUID, charUUID string) error {
	ch, err := c.characteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	// A nil callback disables notifications.
	return ch.EnableNotifications(nil)
}

func (c *tinyGoConnection) Disconnect() error {
	c.connected.Store(false)
	return c.device.Disconnect()
}

func (c *tinyGoConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}
