package transform

import (
	"fmt"
	"sync"
)

// Registry is a thread-safe, priority-ordered set of backend adapters.
// Registration order is priority order; the first registered adapter is
// the default unless SetDefault changes it.
type Registry struct {
	adapters        map[string]Adapter
	order           []string
	defaultProvider string
	mu              sync.RWMutex
}

// NewRegistry creates a registry populated with adapters in priority order.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter. Re-registering a name replaces the adapter but
// keeps its priority.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := a.Name()
	if _, exists := r.adapters[name]; !exists {
		r.order = append(r.order, name)
	}
	r.adapters[name] = a
	if r.defaultProvider == "" {
		r.defaultProvider = name
	}
}

// Get retrieves an adapter by name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Default returns the default adapter.
func (r *Registry) Default() (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultProvider == "" {
		return nil, fmt.Errorf("no default provider set")
	}
	a, ok := r.adapters[r.defaultProvider]
	if !ok {
		return nil, fmt.Errorf("default provider %q not found in registry", r.defaultProvider)
	}
	return a, nil
}

// DefaultName returns the default adapter name.
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultProvider
}

// SetDefault designates a registered adapter as the default.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[name]; !ok {
		return fmt.Errorf("provider %q not registered", name)
	}
	r.defaultProvider = name
	return nil
}

// List returns adapter names in priority order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Ordered returns adapters in priority order with preferred moved to the
// front. An unknown preferred name falls back to the default.
func (r *Registry) Ordered(preferred string) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.adapters[preferred]; !ok {
		preferred = r.defaultProvider
	}
	out := make([]Adapter, 0, len(r.order))
	if a, ok := r.adapters[preferred]; ok {
		out = append(out, a)
	}
	for _, name := range r.order {
		if name == preferred {
			continue
		}
		out = append(out, r.adapters[name])
	}
	return out
}

// Unregister removes an adapter. If it was the default, the next adapter
// in priority order becomes the default.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[name]; !ok {
		return
	}
	delete(r.adapters, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.defaultProvider == name {
		r.defaultProvider = ""
		if len(r.order) > 0 {
			r.defaultProvider = r.order[0]
		}
	}
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
