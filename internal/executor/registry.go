package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/quarry/internal/errs"
)

// Well-known connection parameters.
const (
	ParamPath = "path" // database file
	ParamDir  = "dir"  // directory of flat files
	ParamDSN  = "dsn"  // driver connection string
)

// Params are backend-specific connection parameters.
type Params map[string]string

// Get returns the parameter, or "".
func (p Params) Get(key string) string {
	return p[key]
}

// Require returns the parameter or an INVALID_ARGUMENT error naming it.
func (p Params) Require(backend, key string) (string, error) {
	v := p[key]
	if v == "" {
		return "", errs.InvalidArgument("backend %s needs parameter %q", backend, key)
	}
	return v, nil
}

// Factory creates an executor from connection parameters.
type Factory func(ctx context.Context, params Params) (Executor, error)

// Registry maps backend identifiers to executor factories.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Identifiers may only be registered once.
func (r *Registry) Register(backend string, f Factory) error {
	if backend == "" || f == nil {
		return errs.InvalidArgument("backend registration needs an identifier and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[backend]; dup {
		return errs.InvalidArgument("backend %q already registered", backend)
	}
	r.factories[backend] = f
	return nil
}

// Open creates an executor for the registered backend.
func (r *Registry) Open(ctx context.Context, backend string, params Params) (Executor, error) {
	r.mu.RLock()
	f, ok := r.factories[backend]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.InvalidArgument("unknown backend %q (have %v)", backend, r.Backends())
	}
	ex, err := f(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", backend, err)
	}
	return ex, nil
}

// Backends returns the registered identifiers in sorted order.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
