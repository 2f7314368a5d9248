package tools

import (
	"fmt"
	"sort"
	"sync"
)

func cloneEndpoint(e *Endpoint) Endpoint {
	c := *e
	if e.Categories != nil {
		c.Categories = append([]string(nil), e.Categories...)
	}
	return c
}

// Registry manages known tool endpoints.
type Registry struct {
	endpoints map[string]*Endpoint
	mu        sync.RWMutex
}

// NewRegistry creates an empty endpoint registry.
func NewRegistry() *Registry {
	return &Registry{
		endpoints: make(map[string]*Endpoint),
	}
}

// Register adds or replaces an endpoint.
func (r *Registry) Register(e Endpoint) error {
	if e.Name == "" {
		return fmt.Errorf("endpoint name cannot be empty")
	}
	if e.URL == "" {
		return fmt.Errorf("endpoint %q: url cannot be empty", e.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[e.Name] = &e
	return nil
}

// Get retrieves an endpoint by name.
func (r *Registry) Get(name string) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.endpoints[name]
	if !ok {
		return nil, false
	}
	c := cloneEndpoint(e)
	return &c, true
}

// List returns all endpoints sorted by priority (desc).
func (r *Registry) List() []Endpoint {
	return r.collect(func(*Endpoint) bool { return true })
}

// GetEnabled returns only enabled endpoints, highest priority first.
func (r *Registry) GetEnabled() []Endpoint {
	return r.collect(func(e *Endpoint) bool { return e.Enabled })
}

func (r *Registry) collect(keep func(*Endpoint) bool) []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Endpoint, 0, len(r.endpoints))
	for _, e := range r.endpoints {
		if keep(e) {
			out = append(out, cloneEndpoint(e))
		}
	}
	sortByPriority(out)
	return out
}

// Enable enables an endpoint.
func (r *Registry) Enable(name string) error {
	return r.setEnabled(name, true)
}

// Disable disables an endpoint.
func (r *Registry) Disable(name string) error {
	return r.setEnabled(name, false)
}

func (r *Registry) setEnabled(name string, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.endpoints[name]
	if !ok {
		return fmt.Errorf("endpoint %q not found", name)
	}
	e.Enabled = on
	return nil
}

// Count returns the number of registered endpoints.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}

// Ties break by name so selections are stable.
func sortByPriority(es []Endpoint) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].Priority != es[j].Priority {
			return es[i].Priority > es[j].Priority
		}
		return es[i].Name < es[j].Name
	})
}
