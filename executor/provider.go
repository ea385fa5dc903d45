// Package executor defines the adapter that runs one query against one environment.
package executor

import (
	"context"

	"github.com/opsorch/opsorch-multiquery/registry"
	"github.com/opsorch/opsorch-multiquery/schema"
)

// Executor runs a query against a single environment. The per-call timeout arrives as the
// context deadline. Failures should be orcherr.OpsOrchError values carrying one of the
// orcherr executor codes; anything else is classified as a backend error.
type Executor interface {
	Execute(ctx context.Context, env schema.Environment, query string, tr schema.TimeRange) (schema.RowSet, error)
}

// Func adapts a plain function to Executor.
type Func func(ctx context.Context, env schema.Environment, query string, tr schema.TimeRange) (schema.RowSet, error)

// Execute implements Executor.
func (f Func) Execute(ctx context.Context, env schema.Environment, query string, tr schema.TimeRange) (schema.RowSet, error) {
	return f(ctx, env, query, tr)
}

// ProviderConstructor builds an executor from decoded configuration.
type ProviderConstructor func(config map[string]any) (Executor, error)

var providers = registry.New[ProviderConstructor]("executor")

// RegisterProvider registers an executor adapter.
func RegisterProvider(name string, constructor ProviderConstructor) error {
	return providers.Register(name, constructor)
}

// LookupProvider returns a registered adapter constructor by name.
func LookupProvider(name string) (ProviderConstructor, bool) {
	return providers.Get(name)
}

// Providers returns registered adapter names.
func Providers() []string {
	return providers.Names()
}
