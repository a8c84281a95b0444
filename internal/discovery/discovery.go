// Package discovery finds nearby trainers that a registered plugin can decode.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/motivator/internal/ble"
	"github.com/chaz8081/motivator/internal/trainer"
)

// Scan enables the adapter and scans for duration. candidates are the
// service UUIDs of interest, passed to backends that probe rather than list
// advertised services. The result is deduplicated by address, keeps the first
// sighting of each device, and holds only canonical UUIDs.
func Scan(ctx context.Context, adapter ble.Adapter, duration time.Duration, candidates []string) ([]ble.Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("discovery: enable adapter: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	slog.Debug("[DISCOVERY] scanning", "duration", duration, "candidates", len(candidates))
	found, err := adapter.Scan(scanCtx, candidates)
	if err != nil {
		return nil, fmt.Errorf("discovery: scan: %w", err)
	}

	seen := make(map[string]bool, len(found))
	devices := make([]ble.Device, 0, len(found))
	for _, d := range found {
		if seen[d.Address] {
			continue
		}
		seen[d.Address] = true
		d.UUIDs = canonicalUUIDs(d.UUIDs)
		devices = append(devices, d)
		slog.Debug("[DISCOVERY] found device", "name", d.Name, "address", d.Address, "rssi", d.RSSI, "uuids", d.UUIDs)
	}
	return devices, nil
}

func canonicalUUIDs(uuids []string) []string {
	out := make([]string, 0, len(uuids))
	for _, u := range uuids {
		id, err := ble.CanonicalUUID(u)
		if err != nil {
			slog.Debug("[DISCOVERY] dropping unparsable UUID", "uuid", u)
			continue
		}
		out = append(out, id)
	}
	return out
}

// Filter returns the devices advertising at least one UUID the registry
// supports, in input order. The input slice is not modified.
func Filter(devices []ble.Device, registry *trainer.Registry) []ble.Device {
	out := make([]ble.Device, 0, len(devices))
	for _, d := range devices {
		if _, ok := registry.Match(d.UUIDs); ok {
			out = append(out, d)
			continue
		}
		slog.Debug("[DISCOVERY] device not supported", "name", d.Name, "address", d.Address)
	}
	return out
}

// Candidates returns the UUIDs of every registered plugin, in registration order.
func Candidates(registry *trainer.Registry) []string {
	plugins := registry.Plugins()
	out := make([]string, len(plugins))
	for i, p := range plugins {
		out[i] = p.UUID
	}
	return out
}

// FindSupported scans and filters in one step.
func FindSupported(ctx context.Context, adapter ble.Adapter, duration time.Duration, registry *trainer.Registry) ([]ble.Device, error) {
	devices, err := Scan(ctx, adapter, duration, Candidates(registry))
	if err != nil {
		return nil, err
	}
	return Filter(devices, registry), nil
}
