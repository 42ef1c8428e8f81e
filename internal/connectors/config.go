package connectors

import (
	"net/http"
	"time"
)

// DefaultTimeout bounds each provider API call made by the adapters.
const DefaultTimeout = 30 * time.Second

// Config is the per-provider configuration of a built-in adapter.
type Config struct {
	// ClientID and ClientSecret are the OAuth app credentials.
	ClientID     string
	ClientSecret string

	// Scopes override the adapter's default scopes.
	Scopes []string

	// WebhookSecret verifies inbound callbacks. Providers that sign with
	// the client secret ignore it.
	WebhookSecret string

	// VerificationCode answers subscriber verification challenges.
	VerificationCode string

	// Endpoint overrides, used for tests and self-hosted deployments.
	AuthURL    string
	TokenURL   string
	RevokeURL  string
	APIBaseURL string

	// HTTPClient is used for API calls. Defaults to a client with DefaultTimeout.
	HTTPClient *http.Client

	// RequestsPerSecond and Burst configure the client-side limiter.
	// Zero values use the adapter's defaults.
	RequestsPerSecond float64
	Burst             int
}

// Client returns the configured HTTP client or a default one.
func (c Config) Client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: DefaultTimeout}
}

// Or returns value, or fallback when value is empty.
func Or(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
