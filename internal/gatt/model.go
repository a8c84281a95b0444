// Package gatt holds the in-memory model of a connected peripheral's GATT
// tree and the state machine a session moves through.
package gatt

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chaz8081/motivator/internal/ble"
)

var (
	// ErrSubscriptionFailed wraps transport errors when enabling notifications.
	ErrSubscriptionFailed = errors.New("gatt: subscription failed")
	// ErrUnsubscriptionFailed wraps transport errors when disabling notifications.
	ErrUnsubscriptionFailed = errors.New("gatt: unsubscription failed")
	// ErrInvalidTransition is returned when a state change is not allowed.
	ErrInvalidTransition = errors.New("gatt: invalid state transition")
)

// Descriptor is a characteristic descriptor. Value is nil when the read
// failed; Err then holds the reason.
type Descriptor struct {
	UUID   string
	Handle uint16
	Value  []byte
	Err    error
}

// Characteristic is a service characteristic with its initial value.
type Characteristic struct {
	UUID        string
	Description string
	Properties  ble.Property
	Descriptors []Descriptor
	Value       []byte
	Err         error
}

func (c *Characteristic) Readable() bool   { return c.Properties&ble.PropRead != 0 }
func (c *Characteristic) Writable() bool   { return c.Properties&ble.PropWrite != 0 }
func (c *Characteristic) Notifiable() bool { return c.Properties&ble.PropNotify != 0 }

// Service is a primary service. Characteristic UUIDs are unique within it.
type Service struct {
	UUID            string
	Description     string
	Characteristics []Characteristic
}

// Characteristic returns the characteristic with the given UUID.
func (s *Service) Characteristic(uuid string) (*Characteristic, bool) {
	for i := range s.Characteristics {
		if ble.SameUUID(s.Characteristics[i].UUID, uuid) {
			return &s.Characteristics[i], true
		}
	}
	return nil, false
}

// Model is the enumerated GATT tree of one connection, in discovery order.
type Model struct {
	Services []Service
}

// ServiceFor returns the service owning charUUID. If several services carry
// the same characteristic UUID the first one wins.
func (m *Model) ServiceFor(charUUID string) (*Service, bool) {
	for i := range m.Services {
		if _, ok := m.Services[i].Characteristic(charUUID); ok {
			return &m.Services[i], true
		}
	}
	return nil, false
}

// Binding names a characteristic together with its owning service.
type Binding struct {
	Service        *Service
	Characteristic *Characteristic
}

func (b Binding) String() string {
	return b.Service.Description + "/" + b.Characteristic.UUID
}

// Notifiable returns every characteristic that supports notifications.
func (m *Model) Notifiable() []Binding {
	var out []Binding
	for i := range m.Services {
		svc := &m.Services[i]
		for j := range svc.Characteristics {
			if svc.Characteristics[j].Notifiable() {
				out = append(out, Binding{Service: svc, Characteristic: &svc.Characteristics[j]})
			}
		}
	}
	return out
}

// Dump writes a human readable rendering of the tree to w.
func (m *Model) Dump(w io.Writer) error {
	var b strings.Builder
	for _, svc := range m.Services {
		fmt.Fprintf(&b, "[Service] %s: %s\n", svc.UUID, svc.Description)
		for _, ch := range svc.Characteristics {
			fmt.Fprintf(&b, "\t[Char] %s: (%s) | Name: %s, Value: %s\n",
				ch.UUID, ch.Properties, ch.Description, formatValue(ch.Value, ch.Err))
			for _, d := range ch.Descriptors {
				fmt.Fprintf(&b, "\t\t[Descriptor] %s: (Handle: %d) | Value: %s\n",
					d.UUID, d.Handle, formatValue(d.Value, d.Err))
			}
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func formatValue(v []byte, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case v == nil:
		return "-"
	default:
		return fmt.Sprintf("% x", v)
	}
}
