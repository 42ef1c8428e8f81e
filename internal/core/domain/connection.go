package domain

import (
	"fmt"
	"time"
)

// ProviderType identifies an external data provider.
type ProviderType string

const (
	// ProviderFitbit is the Fitbit Web API.
	ProviderFitbit ProviderType = "fitbit"
	// ProviderGoogleCalendar is the Google Calendar API.
	ProviderGoogleCalendar ProviderType = "google-calendar"
	// ProviderGitHub is the GitHub REST API.
	ProviderGitHub ProviderType = "github"
)

// ConnectionStatus is the token lifecycle state of a Connection.
type ConnectionStatus string

const (
	// StatusPending means state was issued but the callback has not arrived.
	// Connections are never persisted in this state; it describes the handshake.
	StatusPending ConnectionStatus = "pending"
	// StatusActive means the connection holds usable tokens.
	StatusActive ConnectionStatus = "active"
	// StatusExpired means the access token is stale but can be refreshed.
	StatusExpired ConnectionStatus = "expired"
	// StatusError means a recoverable failure happened (e.g. provider outage).
	StatusError ConnectionStatus = "error"
	// StatusRevoked is terminal: the user disconnected or the grant is gone.
	StatusRevoked ConnectionStatus = "revoked"
)

// IsTerminal reports whether the status requires user reauthorization.
func (s ConnectionStatus) IsTerminal() bool {
	return s == StatusRevoked
}

// Connection is a user's stored authorization to one external provider.
// At most one non-revoked Connection exists per (user, provider).
type Connection struct {
	// ID is the unique identifier (UUID).
	ID string

	// UserID is the owning user.
	UserID string

	// Provider identifies the external service.
	Provider ProviderType

	// ExternalAccountID is the provider's id for the connected account.
	// Webhooks use it to route events to a connection.
	ExternalAccountID string

	// CredentialsID is the Token Vault handle for the sealed token pair.
	CredentialsID string

	// Scopes are the granted OAuth scopes.
	Scopes []string

	// ExpiresAt is when the current access token expires.
	ExpiresAt time.Time

	// Status is the lifecycle state.
	Status ConnectionStatus

	// StatusReason explains the last non-active transition.
	StatusReason string

	// LastSyncAt is the resume watermark: the timestamp of the last record
	// successfully processed. Zero until the first record is processed.
	LastSyncAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Syncable reports whether the connection may be selected for sync.
func (c *Connection) Syncable() bool {
	return c.Status != StatusRevoked && c.Status != StatusPending
}

// String returns a log-safe description of the connection.
func (c *Connection) String() string {
	return fmt.Sprintf("%s/%s (%s)", c.Provider, c.ID, c.Status)
}

// AuthState is the server-side record of an in-flight authorization.
// It is single-use and time-boxed.
type AuthState struct {
	// State is the opaque token sent to the provider and echoed back.
	State string

	// UserID is the user who began the authorization.
	UserID string

	// Provider is the provider being authorized.
	Provider ProviderType

	// CodeVerifier is the PKCE verifier paired with the challenge in the URL.
	CodeVerifier string

	// RedirectURI is the callback URL registered with the provider.
	RedirectURI string

	// Scopes are the scopes requested.
	Scopes []string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the state is past its deadline at now.
func (s *AuthState) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
