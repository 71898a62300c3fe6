package netfs

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps URL schemes to protocol factories. The built-in schemes
// are installed by NewDefaultRegistry; more can be added with Register.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs f for scheme, replacing any previous factory.
func (r *Registry) Register(scheme string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(scheme)] = f
}

// Lookup returns the factory for scheme.
func (r *Registry) Lookup(scheme string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[strings.ToLower(scheme)]
	if !ok {
		return nil, fmt.Errorf("unsupported scheme %q", scheme)
	}
	return f, nil
}

// Schemes lists the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for s := range r.factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
