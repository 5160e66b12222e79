package provider

import (
	"context"
	"sync"
)

// Registry holds all registered source adapters keyed by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[Name]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[Name]Provider),
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns an adapter by name, or nil if not registered.
func (r *Registry) Get(name Name) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// All returns all registered adapters in a stable order.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Provider
	for _, name := range AllNames() {
		if p, ok := r.providers[name]; ok {
			result = append(result, p)
		}
	}
	return result
}

// Enabled returns the registered adapters that report themselves enabled.
func (r *Registry) Enabled(ctx context.Context) []Provider {
	var result []Provider
	for _, p := range r.All() {
		if p.Enabled(ctx) {
			result = append(result, p)
		}
	}
	return result
}
