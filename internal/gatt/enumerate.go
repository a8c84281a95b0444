package gatt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chaz8081/motivator/internal/ble"
)

// Enumerate builds the GATT model of conn. Only a failure to list services is
// fatal; characteristic and descriptor read errors are stored on the node and
// enumeration carries on. Values are read only for readable characteristics.
func Enumerate(ctx context.Context, conn ble.Connection) (*Model, error) {
	infos, err := conn.Services()
	if err != nil {
		return nil, fmt.Errorf("gatt: list services: %w", err)
	}

	m := &Model{Services: make([]Service, 0, len(infos))}
	for _, si := range infos {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("gatt: enumerate: %w", err)
		}

		svc := Service{UUID: si.UUID, Description: si.Description}
		for _, ci := range si.Characteristics {
			if _, dup := svc.Characteristic(ci.UUID); dup {
				slog.Warn("[GATT] duplicate characteristic ignored", "service", si.UUID, "char", ci.UUID)
				continue
			}
			svc.Characteristics = append(svc.Characteristics, readCharacteristic(conn, si.UUID, ci))
		}
		m.Services = append(m.Services, svc)
		slog.Debug("[GATT] service enumerated", "uuid", si.UUID, "description", si.Description,
			"characteristics", len(svc.Characteristics))
	}
	return m, nil
}

func readCharacteristic(conn ble.Connection, serviceUUID string, ci ble.CharacteristicInfo) Characteristic {
	ch := Characteristic{
		UUID:        ci.UUID,
		Description: ci.Description,
		Properties:  ci.Properties,
	}

	if ch.Readable() {
		v, err := conn.ReadCharacteristic(serviceUUID, ci.UUID)
		if err != nil {
			ch.Err = fmt.Errorf("gatt: read characteristic %s: %w", ci.UUID, err)
			slog.Debug("[GATT] read failed", "char", ci.UUID, "error", err)
		} else {
			ch.Value = v
		}
	}

	for _, di := range ci.Descriptors {
		d := Descriptor{UUID: di.UUID, Handle: di.Handle}
		v, err := conn.ReadDescriptor(serviceUUID, ci.UUID, di.Handle)
		if err != nil {
			d.Err = fmt.Errorf("gatt: read descriptor %s: %w", di.UUID, err)
			slog.Debug("[GATT] descriptor read failed", "descriptor", di.UUID, "error", err)
		} else {
			d.Value = v
		}
		ch.Descriptors = append(ch.Descriptors, d)
	}
	return ch
}
