package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
	"github.com/custodia-labs/syncengine/internal/core/ports/driving"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// Ensure WebhookGateway implements the interface.
var _ driving.WebhookGateway = (*WebhookGateway)(nil)

// WebhookGateway verifies provider callbacks and enqueues webhook syncs.
// It only reads connections; all writes happen in the sync run.
type WebhookGateway struct {
	registry    driving.ProviderRegistry
	connections driven.ConnectionStore
	queue       driving.SyncQueue
}

// NewWebhookGateway creates a webhook gateway.
func NewWebhookGateway(
	registry driving.ProviderRegistry,
	connections driven.ConnectionStore,
	queue driving.SyncQueue,
) *WebhookGateway {
	return &WebhookGateway{
		registry:    registry,
		connections: connections,
		queue:       queue,
	}
}

// Handle verifies the callback and enqueues a sync per affected connection.
func (g *WebhookGateway) Handle(
	ctx context.Context,
	provider domain.ProviderType,
	headers http.Header,
	body []byte,
) (int, error) {
	adapter, err := g.registry.Get(provider)
	if err != nil {
		return 0, err
	}

	if !adapter.VerifyWebhook(headers, body) {
		logger.Security("webhook signature rejected", "provider", string(provider), "bytes", len(body))
		return 0, &domain.SignatureError{Provider: provider, Reason: "signature verification failed"}
	}

	events, err := adapter.ParseWebhookEvent(headers, body)
	if err != nil {
		return 0, fmt.Errorf("parse %s webhook: %w: %w", provider, domain.ErrInvalidInput, err)
	}

	seen := make(map[string]bool)
	enqueued := 0
	for _, event := range events {
		ids, err := g.resolve(ctx, provider, event)
		if err != nil {
			logger.Warn("route %s webhook: %v", provider, err)
			continue
		}
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			if g.queue.Enqueue(id, domain.TriggerWebhook) {
				enqueued++
			}
		}
	}

	logger.Debug("%s webhook: %d events, %d syncs enqueued", provider, len(events), enqueued)
	return enqueued, nil
}

// resolve maps an event to syncable connection IDs.
func (g *WebhookGateway) resolve(ctx context.Context, provider domain.ProviderType, event domain.WebhookEvent) ([]string, error) {
	if event.ConnectionID != "" {
		conn, err := g.connections.Get(ctx, event.ConnectionID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if conn.Provider != provider || !conn.Syncable() {
			return nil, nil
		}
		if event.ExternalAccountID != "" && conn.ExternalAccountID != "" && conn.ExternalAccountID != event.ExternalAccountID {
			return nil, nil
		}
		return []string{conn.ID}, nil
	}

	if event.ExternalAccountID == "" {
		return nil, nil
	}
	conns, err := g.connections.FindByExternalAccount(ctx, provider, event.ExternalAccountID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		if c.Syncable() {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

// VerifySubscription answers a provider's webhook endpoint challenge.
// Providers without a challenge protocol always fail verification.
func (g *WebhookGateway) VerifySubscription(_ context.Context, provider domain.ProviderType, query url.Values) (bool, error) {
	adapter, err := g.registry.Get(provider)
	if err != nil {
		return false, err
	}
	verifier, ok := adapter.(driven.SubscriptionVerifier)
	if !ok {
		return false, nil
	}
	valid := verifier.VerifySubscription(query)
	if !valid {
		logger.Security("webhook subscription challenge rejected", "provider", string(provider))
	}
	return valid, nil
}
