package remote

import (
	"fmt"
	"sync"
)

// Factory builds a configured remote of one backend type from a
// profile.
type Factory interface {
	// Type names the backend, e.g. "sql" or "proxy".
	Type() string
	Build(profile Profile) (Remote, error)
}

// NewFactory adapts a build function to the Factory interface.
func NewFactory(typ string, build func(profile Profile) (Remote, error)) Factory {
	return factoryFunc{typ: typ, build: build}
}

type factoryFunc struct {
	typ   string
	build func(profile Profile) (Remote, error)
}

func (f factoryFunc) Type() string { return f.typ }

func (f factoryFunc) Build(profile Profile) (Remote, error) { return f.build(profile) }

// FactoryRegistry maps backend type names to factories. Configuration
// loading resolves each profile through it at startup.
type FactoryRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewFactoryRegistry returns an empty registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]Factory)}
}

// Register adds a factory. Registering the same type twice is a
// configuration error.
func (r *FactoryRegistry) Register(factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[factory.Type()]; ok {
		return fmt.Errorf("remote factory %q already registered", factory.Type())
	}
	r.factories[factory.Type()] = factory
	return nil
}

// Build constructs a remote of the named type from a profile.
func (r *FactoryRegistry) Build(typ string, profile Profile) (Remote, error) {
	r.mu.RLock()
	factory, ok := r.factories[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown remote type %q", typ)
	}
	return factory.Build(profile)
}
