package driving

import (
	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
)

// ProviderRegistry resolves provider adapters by tag.
type ProviderRegistry interface {
	// Get returns the adapter for a provider.
	// Returns domain.ErrUnsupportedType if the provider is not registered.
	Get(provider domain.ProviderType) (driven.ProviderAdapter, error)

	// Providers returns the registered provider tags in sorted order.
	Providers() []domain.ProviderType
}
