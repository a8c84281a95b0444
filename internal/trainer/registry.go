package trainer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/chaz8081/motivator/internal/ble"
)

// Registry maps advertised service UUIDs to trainer plugins. It is populated
// at start-up and read concurrently by discovery and session binding.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin       // registration order
	byUUID  map[string]int // canonical UUID -> index into plugins
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byUUID: make(map[string]int)}
}

// Register adds p. The canonical UUID is the dedup key: registering a second
// plugin for the same UUID fails with ErrDuplicateTrainer regardless of the
// decoder implementation.
func (r *Registry) Register(p Plugin) error {
	if p.Decoder == nil {
		return fmt.Errorf("trainer: plugin %q has no decoder", p.Name)
	}
	id, err := ble.CanonicalUUID(p.UUID)
	if err != nil {
		return fmt.Errorf("trainer: register %q: %w", p.Name, err)
	}
	p.UUID = id

	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.byUUID[id]; ok {
		return fmt.Errorf("%w: %s already bound to %q", ErrDuplicateTrainer, id, r.plugins[i].Name)
	}
	r.byUUID[id] = len(r.plugins)
	r.plugins = append(r.plugins, p)

	slog.Debug("[TRAINER] registered plugin", "name", p.Name, "uuid", id)
	return nil
}

// Lookup returns the plugin registered for uuid.
func (r *Registry) Lookup(uuid string) (Plugin, bool) {
	id, err := ble.CanonicalUUID(uuid)
	if err != nil {
		return Plugin{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byUUID[id]
	if !ok {
		return Plugin{}, false
	}
	return r.plugins[i], true
}

// IsSupported reports whether a plugin is registered for uuid.
func (r *Registry) IsSupported(uuid string) bool {
	_, ok := r.Lookup(uuid)
	return ok
}

// Match returns the first-registered plugin whose UUID appears in uuids.
// When a device advertises several supported UUIDs, registration order
// decides, not advertisement order.
func (r *Registry) Match(uuids []string) (Plugin, bool) {
	advertised := make(map[string]bool, len(uuids))
	for _, u := range uuids {
		if id, err := ble.CanonicalUUID(u); err == nil {
			advertised[id] = true
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plugins {
		if advertised[p.UUID] {
			return p, true
		}
	}
	return Plugin{}, false
}

// Plugins returns the registered plugins in registration order.
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}
