package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps case-insensitive adapter names to values, usually constructors.
type Registry[C any] struct {
	kind string

	mu      sync.RWMutex
	entries map[string]C
}

// New allocates a registry; kind labels error messages (e.g. "executor").
func New[C any](kind string) *Registry[C] {
	return &Registry[C]{kind: kind, entries: make(map[string]C)}
}

// Register adds a value by name. Registering the same name twice fails.
func (r *Registry[C]) Register(name string, value C) error {
	key := normalize(name)
	if key == "" {
		return fmt.Errorf("registry: %s name required", r.kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("registry: %s %s already registered", r.kind, name)
	}
	r.entries[key] = value
	return nil
}

// Get fetches a value by name.
func (r *Registry[C]) Get(name string) (C, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.entries[normalize(name)]
	return value, ok
}

// Names returns the sorted registered keys.
func (r *Registry[C]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
