package registry

import (
	"sort"
	"sync"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
)

// EndpointRegistry is the lookup of outgoing endpoints by name.
type EndpointRegistry struct {
	mu        sync.RWMutex
	endpoints map[string]*domain.Endpoint
}

// NewEndpointRegistry creates an empty EndpointRegistry.
func NewEndpointRegistry() *EndpointRegistry {
	return &EndpointRegistry{endpoints: make(map[string]*domain.Endpoint)}
}

// Replace swaps the registry contents.
func (r *EndpointRegistry) Replace(endpoints []*domain.Endpoint) {
	next := make(map[string]*domain.Endpoint, len(endpoints))
	for _, e := range endpoints {
		next[e.Name] = e
	}

	r.mu.Lock()
	r.endpoints = next
	r.mu.Unlock()
}

// Put adds or replaces one endpoint.
func (r *EndpointRegistry) Put(endpoint *domain.Endpoint) {
	r.mu.Lock()
	r.endpoints[endpoint.Name] = endpoint
	r.mu.Unlock()
}

// Get returns the endpoint registered under name.
func (r *EndpointRegistry) Get(name string) (*domain.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.endpoints[name]
	if !ok {
		return nil, domain.ErrEndpointNotFound
	}
	return e, nil
}

// Subscribers returns the endpoints subscribed to eventType ordered by name.
func (r *EndpointRegistry) Subscribers(eventType string) []*domain.Endpoint {
	r.mu.RLock()
	var out []*domain.Endpoint
	for _, e := range r.endpoints {
		if e.Subscribes(eventType) {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// List returns all endpoints ordered by name.
func (r *EndpointRegistry) List() []*domain.Endpoint {
	r.mu.RLock()
	out := make([]*domain.Endpoint, 0, len(r.endpoints))
	for _, e := range r.endpoints {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
