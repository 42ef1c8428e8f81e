package driving

import (
	"context"
	"net/http"
	"net/url"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// WebhookGateway turns verified provider callbacks into queued syncs.
// It never writes canonical data.
type WebhookGateway interface {
	// Handle verifies and routes a callback. Returns *domain.SignatureError
	// when verification fails. Returns the number of syncs enqueued.
	Handle(ctx context.Context, provider domain.ProviderType, headers http.Header, body []byte) (int, error)

	// VerifySubscription answers a provider's endpoint verification challenge.
	VerifySubscription(ctx context.Context, provider domain.ProviderType, query url.Values) (bool, error)
}
