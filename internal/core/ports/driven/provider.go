package driven

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// ProviderAdapter encapsulates everything specific to one external provider.
// The sync and auth services never branch on provider identity; they only
// call through this interface.
//
// Errors from network calls should be *domain.ProviderError so callers can
// decide between retry, refresh, reschedule and abort.
type ProviderAdapter interface {
	// Type returns the provider tag.
	Type() domain.ProviderType

	// DefaultScopes returns the scopes requested when none are configured.
	DefaultScopes() []string

	// DefaultLookback is the sync window used for a connection's first sync.
	DefaultLookback() time.Duration

	// AuthorizationURL builds the provider consent URL.
	AuthorizationURL(req domain.AuthorizationRequest) string

	// ExchangeCode trades an authorization code for a token pair.
	// codeVerifier is the PKCE verifier matching the challenge sent earlier.
	ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*domain.TokenPair, error)

	// Refresh obtains a new access token. A *domain.ProviderError of kind
	// permanent or unauthorized means the refresh token is no longer valid.
	Refresh(ctx context.Context, token *domain.TokenPair) (*domain.TokenPair, error)

	// Revoke invalidates the grant at the provider.
	Revoke(ctx context.Context, token *domain.TokenPair) error

	// Fetch returns one page of records changed since the given time,
	// in ascending timestamp order. An empty cursor starts a new fetch;
	// a page with an empty NextCursor is the last one.
	Fetch(ctx context.Context, token *domain.TokenPair, since time.Time, cursor string) (*domain.RecordPage, error)

	// MapToCanonical converts a fetched record into a canonical draft.
	MapToCanonical(record domain.ExternalRecord) (*domain.CanonicalDraft, error)

	// VerifyWebhook checks the provider signature of an inbound callback.
	VerifyWebhook(headers http.Header, body []byte) bool

	// ParseWebhookEvent extracts routing hints from a verified callback.
	// An empty slice means the callback carries nothing to sync.
	ParseWebhookEvent(headers http.Header, body []byte) ([]domain.WebhookEvent, error)
}

// SubscriptionVerifier is implemented by adapters whose providers probe the
// webhook endpoint with a GET challenge before delivering events.
type SubscriptionVerifier interface {
	// VerifySubscription returns true if the challenge query is valid.
	VerifySubscription(query url.Values) bool
}
