// Package environment holds the set of backend environments a dispatch may fan out to.
package environment

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/opsorch/opsorch-multiquery/schema"
)

// Registry stores environments in insertion order. Content is replaced wholesale by its
// owner (config load, hot reload); readers work on snapshots.
type Registry struct {
	mu   sync.RWMutex
	envs []schema.Environment
}

// NewRegistry builds a registry from envs after validating them.
func NewRegistry(envs []schema.Environment) (*Registry, error) {
	r := &Registry{}
	if err := r.Replace(envs); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace atomically swaps the registry content. An invalid set leaves the current content untouched.
func (r *Registry) Replace(envs []schema.Environment) error {
	if err := Validate(envs); err != nil {
		return err
	}
	cp := make([]schema.Environment, len(envs))
	copy(cp, envs)

	r.mu.Lock()
	r.envs = cp
	r.mu.Unlock()
	return nil
}

// Snapshot returns an immutable copy of the current content.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cp := make([]schema.Environment, len(r.envs))
	copy(cp, r.envs)
	return Snapshot{envs: cp}
}

// Validate checks the registry invariants: non-empty unique ids and at most one default.
// Every violation is reported.
func Validate(envs []schema.Environment) error {
	var result *multierror.Error
	seen := make(map[string]int, len(envs))
	var defaults []string
	for i, env := range envs {
		if strings.TrimSpace(env.ID) == "" {
			result = multierror.Append(result, fmt.Errorf("environment #%d: id is required", i))
			continue
		}
		if prev, dup := seen[env.ID]; dup {
			result = multierror.Append(result, fmt.Errorf("environment #%d: duplicate id %q (first at #%d)", i, env.ID, prev))
			continue
		}
		seen[env.ID] = i
		if env.IsDefault {
			defaults = append(defaults, env.ID)
		}
	}
	if len(defaults) > 1 {
		result = multierror.Append(result, fmt.Errorf("at most one default environment allowed, got %s", strings.Join(defaults, ", ")))
	}
	return result.ErrorOrNil()
}

// Snapshot is a read-only view of the registry taken at one instant.
type Snapshot struct {
	envs []schema.Environment
}

// Len returns the number of environments.
func (s Snapshot) Len() int { return len(s.envs) }

// ListEnvironments returns every environment in insertion order.
func (s Snapshot) ListEnvironments() []schema.Environment {
	out := make([]schema.Environment, len(s.envs))
	copy(out, s.envs)
	return out
}

// ListActive returns the active environments, preserving relative order.
func (s Snapshot) ListActive() []schema.Environment {
	out := make([]schema.Environment, 0, len(s.envs))
	for _, env := range s.envs {
		if env.IsActive {
			out = append(out, env)
		}
	}
	return out
}

// Resolve matches ids against the snapshot. Matched environments come back in registry
// order; ids that match nothing are returned in request order. Duplicate ids collapse.
func (s Snapshot) Resolve(ids []string) (matched []schema.Environment, missing []string) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	found := make(map[string]bool, len(ids))
	for _, env := range s.envs {
		if wanted[env.ID] {
			matched = append(matched, env)
			found[env.ID] = true
		}
	}
	reported := make(map[string]bool)
	for _, id := range ids {
		if !found[id] && !reported[id] {
			missing = append(missing, id)
			reported[id] = true
		}
	}
	return matched, missing
}

// Get returns the environment with the given id.
func (s Snapshot) Get(id string) (schema.Environment, bool) {
	for _, env := range s.envs {
		if env.ID == id {
			return env, true
		}
	}
	return schema.Environment{}, false
}

// GetDefault returns the default environment, if one is flagged.
func (s Snapshot) GetDefault() (schema.Environment, bool) {
	for _, env := range s.envs {
		if env.IsDefault {
			return env, true
		}
	}
	return schema.Environment{}, false
}
