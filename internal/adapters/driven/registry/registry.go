// Package registry provides the constructed adapter registry. It is an
// explicit object passed into the orchestrator, never a module-level
// singleton, so tests substitute fakes freely.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/biolit-labs/harvest-cli/internal/core/domain"
	"github.com/biolit-labs/harvest-cli/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.AdapterRegistry = (*Registry)(nil)

// Registry maps source names to adapter builders. Each Get constructs a
// fresh adapter bound to the caller's context, so concurrent runs never
// share adapter state.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]driven.AdapterBuilder
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{builders: make(map[string]driven.AdapterBuilder)}
}

// Register adds an adapter builder for the given source name. A second
// registration for the same name replaces the first.
func (r *Registry) Register(source string, builder driven.AdapterBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[source] = builder
}

// Get constructs an adapter for the given source bound to actx.
func (r *Registry) Get(ctx context.Context, source string, actx driven.AdapterContext) (driven.Adapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	builder, ok := r.builders[source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("source %q: %w", source, domain.ErrUnsupportedType)
	}

	adapter, err := builder(actx)
	if err != nil {
		return nil, fmt.Errorf("building adapter for %q: %w", source, err)
	}
	return adapter, nil
}

// SupportedSources returns all registered source names, sorted.
func (r *Registry) SupportedSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]string, 0, len(r.builders))
	for name := range r.builders {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	return sources
}
