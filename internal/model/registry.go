package model

import (
	"sync"

	"github.com/roach88/quarry/internal/errs"
)

// Registry is an append-only set of model types, kept for introspection
// (listing models for tooling). It has no effect on query execution.
type Registry struct {
	mu     sync.RWMutex
	models []*Schema
	byName map[string]*Schema
}

// DefaultRegistry holds every model created with Define.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Schema)}
}

// Register appends a schema. Names are unique within a registry.
func (r *Registry) Register(s *Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[s.name]; dup {
		return errs.InvalidArgument("model %s is already registered", s.name)
	}
	r.byName[s.name] = s
	r.models = append(r.models, s)
	return nil
}

// Define builds a schema and registers it.
func (r *Registry) Define(name string, props ...Property) (*Schema, error) {
	s, err := New(name, props...)
	if err != nil {
		return nil, err
	}
	if err := r.Register(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Lookup returns the registered schema with the given name.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// Models returns the registered schemas in registration order.
func (r *Registry) Models() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Schema, len(r.models))
	copy(out, r.models)
	return out
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Define builds a schema and registers it in DefaultRegistry. It panics on
// an invalid description or a duplicate name, since model definitions are
// static program data.
func Define(name string, props ...Property) *Schema {
	s, err := DefaultRegistry.Define(name, props...)
	if err != nil {
		panic(err)
	}
	return s
}

// Lookup returns a model from DefaultRegistry.
func Lookup(name string) (*Schema, bool) {
	return DefaultRegistry.Lookup(name)
}

// Models returns every model in DefaultRegistry.
func Models() []*Schema {
	return DefaultRegistry.Models()
}
