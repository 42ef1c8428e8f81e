// Package builtin builds the engine's provider adapters from configuration.
package builtin

import (
	"fmt"
	"sort"

	"github.com/custodia-labs/syncengine/internal/connectors"
	"github.com/custodia-labs/syncengine/internal/connectors/fitbit"
	"github.com/custodia-labs/syncengine/internal/connectors/github"
	"github.com/custodia-labs/syncengine/internal/connectors/googlecalendar"
	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// Factory creates an adapter from its configuration.
type Factory func(cfg connectors.Config) driven.ProviderAdapter

var factories = map[domain.ProviderType]Factory{
	domain.ProviderFitbit: func(cfg connectors.Config) driven.ProviderAdapter {
		return fitbit.New(cfg)
	},
	domain.ProviderGoogleCalendar: func(cfg connectors.Config) driven.ProviderAdapter {
		return googlecalendar.New(cfg)
	},
	domain.ProviderGitHub: func(cfg connectors.Config) driven.ProviderAdapter {
		return github.New(cfg)
	},
}

// Providers returns the built-in provider tags in sorted order.
func Providers() []domain.ProviderType {
	out := make([]domain.ProviderType, 0, len(factories))
	for p := range factories {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Build creates an adapter for every configured provider. Providers without
// a client id are skipped with a warning; unknown providers are an error.
func Build(configs map[domain.ProviderType]connectors.Config) ([]driven.ProviderAdapter, error) {
	providers := make([]domain.ProviderType, 0, len(configs))
	for p := range configs {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })

	adapters := make([]driven.ProviderAdapter, 0, len(providers))
	for _, p := range providers {
		factory, ok := factories[p]
		if !ok {
			return nil, fmt.Errorf("provider %q: %w", p, domain.ErrUnsupportedType)
		}
		cfg := configs[p]
		if cfg.ClientID == "" {
			logger.Warn("provider %s has no client_id configured, not registering it", p)
			continue
		}
		adapters = append(adapters, factory(cfg))
	}
	return adapters, nil
}
