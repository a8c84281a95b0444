// Package bletest provides in-memory ble.Adapter and ble.Connection fakes that
// model a peripheral's GATT tree, for tests of packages built on internal/ble.
package bletest

import (
	"context"
	"fmt"
	"sync"

	"github.com/chaz8081/motivator/internal/ble"
)

// Key addresses a characteristic as "service|characteristic" using canonical
// UUIDs.
func Key(serviceUUID, charUUID string) string {
	return ble.MustCanonicalUUID(serviceUUID) + "|" + ble.MustCanonicalUUID(charUUID)
}

// Connection simulates a connected peripheral. Exported fields configure the
// fake before use; the methods record what the code under test did.
type Connection struct {
	// Tree is returned by Services.
	Tree []ble.ServiceInfo
	// ServicesErr makes Services fail.
	ServicesErr error
	// Values holds readable characteristic values keyed by Key.
	Values map[string][]byte
	// ReadErrs makes ReadCharacteristic fail for the given keys.
	ReadErrs map[string]error
	// DescriptorValues holds descriptor values keyed by handle.
	DescriptorValues map[uint16][]byte
	// SubscribeErrs makes Subscribe fail for the given keys.
	SubscribeErrs map[string]error
	// UnsubscribeErrs makes Unsubscribe fail for the given keys.
	UnsubscribeErrs map[string]error
	// NotConnected makes IsConnected report false from the start.
	NotConnected bool

	mu           sync.Mutex
	handlers     map[string]ble.NotificationHandler
	unsubscribed map[string]int
	events       []string
	disconnected bool
	disconnectCb func()
}

// NewConnection returns a connection exposing tree.
func NewConnection(tree []ble.ServiceInfo) *Connection {
	return &Connection{
		Tree:             tree,
		Values:           make(map[string][]byte),
		ReadErrs:         make(map[string]error),
		DescriptorValues: make(map[uint16][]byte),
		SubscribeErrs:    make(map[string]error),
		UnsubscribeErrs:  make(map[string]error),
	}
}

func (c *Connection) record(event string) {
	c.events = append(c.events, event)
}

func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.NotConnected && !c.disconnected
}

func (c *Connection) Services() ([]ble.ServiceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("services")
	if c.ServicesErr != nil {
		return nil, c.ServicesErr
	}
	return c.Tree, nil
}

func (c *Connection) ReadCharacteristic(serviceUUID, charUUID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := Key(serviceUUID, charUUID)
	c.record("read " + k)
	if err := c.ReadErrs[k]; err != nil {
		return nil, err
	}
	v, ok := c.Values[k]
	if !ok {
		return nil, fmt.Errorf("bletest: no value for %s", k)
	}
	return v, nil
}

func (c *Connection) ReadDescriptor(_, _ string, handle uint16) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(fmt.Sprintf("read descriptor 0x%04x", handle))
	v, ok := c.DescriptorValues[handle]
	if !ok {
		return nil, fmt.Errorf("bletest: no descriptor 0x%04x", handle)
	}
	return v, nil
}

func (c *Connection) Subscribe(serviceUUID, charUUID string, h ble.NotificationHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := Key(serviceUUID, charUUID)
	c.record("subscribe " + k)
	if err := c.SubscribeErrs[k]; err != nil {
		return err
	}
	if c.handlers == nil {
		c.handlers = make(map[string]ble.NotificationHandler)
	}
	c.handlers[k] = h
	return nil
}

func (c *Connection) Unsubscribe(serviceUUID, charUUID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := Key(serviceUUID, charUUID)
	c.record("unsubscribe " + k)
	if c.unsubscribed == nil {
		c.unsubscribed = make(map[string]int)
	}
	c.unsubscribed[k]++
	delete(c.handlers, k)
	return c.UnsubscribeErrs[k]
}

func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("disconnect")
	c.disconnected = true
	return nil
}

func (c *Connection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// Notify delivers data to the handler subscribed on the characteristic and
// reports whether one was subscribed.
func (c *Connection) Notify(serviceUUID, charUUID string, data []byte) bool {
	c.mu.Lock()
	h := c.handlers[Key(serviceUUID, charUUID)]
	c.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// SimulateDisconnect drops the link and fires the disconnect callback.
func (c *Connection) SimulateDisconnect() {
	c.mu.Lock()
	c.disconnected = true
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Subscribed reports whether a handler is currently registered for the
// characteristic.
func (c *Connection) Subscribed(serviceUUID, charUUID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[Key(serviceUUID, charUUID)] != nil
}

// Unsubscribes returns how many times Unsubscribe was called for the
// characteristic.
func (c *Connection) Unsubscribes(serviceUUID, charUUID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsubscribed[Key(serviceUUID, charUUID)]
}

// Disconnected reports whether Disconnect was called.
func (c *Connection) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// Events returns the ordered call log.
func (c *Connection) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	copy(out, c.events)
	return out
}

var _ ble.Connection = (*Connection)(nil)

// Adapter simulates the BLE adapter.
type Adapter struct {
	// Devices is returned by Scan.
	Devices []ble.Device
	// Conn is returned by Connect.
	Conn *Connection
	// EnableErr, ScanErr and ConnectErr make the matching call fail.
	EnableErr  error
	ScanErr    error
	ConnectErr error
	// BlockConnect makes Connect wait for ctx to be done.
	BlockConnect bool
	// BlockScan makes Scan wait for ctx to be done before returning Devices.
	BlockScan bool

	mu         sync.Mutex
	enabled    int
	connects   []string
	candidates []string
}

func (a *Adapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled++
	return a.EnableErr
}

func (a *Adapter) Scan(ctx context.Context, candidates []string) ([]ble.Device, error) {
	a.mu.Lock()
	a.candidates = candidates
	a.mu.Unlock()
	if a.BlockScan {
		<-ctx.Done()
	}
	if a.ScanErr != nil {
		return nil, a.ScanErr
	}
	return a.Devices, nil
}

func (a *Adapter) Connect(ctx context.Context, address string) (ble.Connection, error) {
	a.mu.Lock()
	a.connects = append(a.connects, address)
	a.mu.Unlock()
	if a.BlockConnect {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if a.ConnectErr != nil {
		return nil, a.ConnectErr
	}
	return a.Conn, nil
}

// Connects returns the addresses passed to Connect, in order.
func (a *Adapter) Connects() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.connects))
	copy(out, a.connects)
	return out
}

// Enabled returns how many times Enable was called.
func (a *Adapter) Enabled() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Candidates returns the candidate UUIDs passed to the last Scan.
func (a *Adapter) Candidates() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.candidates
}

var _ ble.Adapter = (*Adapter)(nil)
