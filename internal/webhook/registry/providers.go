// Package registry holds the in-memory lookups the gateway consults on every request: providers
// by name, handler bindings by (provider, event type) and outgoing endpoints by name. Registries
// are built once at startup and injected; none of them is global.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
)

// ProviderLister loads the persisted providers.
type ProviderLister interface {
	ListAll(ctx context.Context) ([]*domain.Provider, error)
}

// ProviderRegistry is a read-mostly provider lookup by name.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]*domain.Provider
}

// NewProviderRegistry creates an empty ProviderRegistry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]*domain.Provider)}
}

// Load replaces the registry contents with the providers returned by lister.
func (r *ProviderRegistry) Load(ctx context.Context, lister ProviderLister) error {
	providers, err := lister.ListAll(ctx)
	if err != nil {
		return err
	}
	r.Replace(providers)
	return nil
}

// Replace swaps the registry contents.
func (r *ProviderRegistry) Replace(providers []*domain.Provider) {
	next := make(map[string]*domain.Provider, len(providers))
	for _, p := range providers {
		cp := *p
		next[p.Name] = &cp
	}

	r.mu.Lock()
	r.providers = next
	r.mu.Unlock()
}

// Put adds or replaces one provider.
func (r *ProviderRegistry) Put(provider *domain.Provider) {
	cp := *provider

	r.mu.Lock()
	r.providers[provider.Name] = &cp
	r.mu.Unlock()
}

// Get returns a copy of the provider registered under name.
func (r *ProviderRegistry) Get(name string) (*domain.Provider, error) {
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	cp := *p
	return &cp, nil
}

// List returns copies of all providers ordered by name.
func (r *ProviderRegistry) List() []*domain.Provider {
	r.mu.RLock()
	providers := make([]*domain.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		cp := *p
		providers = append(providers, &cp)
	}
	r.mu.RUnlock()

	sort.Slice(providers, func(i, j int) bool {
		return providers[i].Name < providers[j].Name
	})
	return providers
}
