package services

import (
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
	"github.com/custodia-labs/syncengine/internal/core/ports/driving"
)

// Ensure ProviderRegistry implements the interface.
var _ driving.ProviderRegistry = (*ProviderRegistry)(nil)

// ProviderRegistry maps provider tags to their adapters.
type ProviderRegistry struct {
	mu       sync.RWMutex
	adapters map[domain.ProviderType]driven.ProviderAdapter
}

// NewProviderRegistry creates a registry holding the given adapters.
func NewProviderRegistry(adapters ...driven.ProviderAdapter) *ProviderRegistry {
	r := &ProviderRegistry{
		adapters: make(map[domain.ProviderType]driven.ProviderAdapter),
	}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an adapter.
func (r *ProviderRegistry) Register(adapter driven.ProviderAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Type()] = adapter
}

// Get returns the adapter for a provider.
func (r *ProviderRegistry) Get(provider domain.ProviderType) (driven.ProviderAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.adapters[provider]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, provider)
}

// Providers returns registered provider tags in sorted order.
func (r *ProviderRegistry) Providers() []domain.ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := make([]domain.ProviderType, 0, len(r.adapters))
	for p := range r.adapters {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}
