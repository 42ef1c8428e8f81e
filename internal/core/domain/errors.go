package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown provider.
	ErrUnsupportedType = errors.New("unsupported provider")

	// ErrSyncInProgress indicates another run holds the connection lease.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrLeaseLost indicates a run no longer holds its connection lease.
	ErrLeaseLost = errors.New("sync lease lost")

	// ErrConnectionRevoked indicates the connection is revoked and cannot sync.
	ErrConnectionRevoked = errors.New("connection revoked")

	// Authentication Errors.

	// ErrStateInvalid indicates the OAuth state is unknown, consumed, or expired.
	ErrStateInvalid = errors.New("invalid or expired authorization state")

	// ErrReauthorizationRequired indicates the user must reconnect the provider.
	ErrReauthorizationRequired = errors.New("reauthorization required")

	// ErrNoCredentials indicates the connection has no stored credentials.
	ErrNoCredentials = errors.New("no credentials stored")

	// Configuration Errors.

	// ErrMissingSecretKey indicates the Secret Store has no key material.
	// This is the only error that is fatal at startup.
	ErrMissingSecretKey = errors.New("secret store key not configured")
)

// AuthError fails an authorization attempt. No Connection is created.
type AuthError struct {
	Provider ProviderType
	Reason   string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authorize %s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("authorize %s: %s", e.Provider, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TokenRefreshError reports a failed refresh. Terminal failures leave the
// connection revoked; transient ones leave it in error and are retried later.
type TokenRefreshError struct {
	ConnectionID string
	Terminal     bool
	Err          error
}

func (e *TokenRefreshError) Error() string {
	kind := "transient"
	if e.Terminal {
		kind = "terminal"
	}
	return fmt.Sprintf("token refresh for %s failed (%s): %v", e.ConnectionID, kind, e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }

// ProviderErrorKind classifies provider failures for retry decisions.
type ProviderErrorKind int

const (
	// ProviderTransient covers timeouts and 5xx; retried with backoff.
	ProviderTransient ProviderErrorKind = iota
	// ProviderPermanent covers errors retrying cannot fix (e.g. 403 scope revoked).
	ProviderPermanent
	// ProviderUnauthorized is a 401; one token refresh is attempted.
	ProviderUnauthorized
	// ProviderRateLimited is a 429 or quota error; the run is rescheduled.
	ProviderRateLimited
)

func (k ProviderErrorKind) String() string {
	switch k {
	case ProviderTransient:
		return "transient"
	case ProviderPermanent:
		return "permanent"
	case ProviderUnauthorized:
		return "unauthorized"
	case ProviderRateLimited:
		return "rate-limited"
	default:
		return "unknown"
	}
}

// ProviderError is an error returned by a Provider Adapter call.
type ProviderError struct {
	Provider   ProviderType
	Kind       ProviderErrorKind
	StatusCode int
	// RetryAfter is the provider-requested pause for rate-limited errors.
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError builds a ProviderError.
func NewProviderError(provider ProviderType, kind ProviderErrorKind, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, StatusCode: status, Err: err}
}

// SignatureError rejects a webhook. It never causes a sync.
type SignatureError struct {
	Provider ProviderType
	Reason   string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("webhook signature rejected for %s: %s", e.Provider, e.Reason)
}

func providerKind(err error) (ProviderErrorKind, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind, true
	}
	return 0, false
}

// IsTransient returns true if the error is a retryable provider failure.
func IsTransient(err error) bool {
	kind, ok := providerKind(err)
	return ok && kind == ProviderTransient
}

// IsPermanent returns true if the error is a non-retryable provider failure.
func IsPermanent(err error) bool {
	kind, ok := providerKind(err)
	return ok && kind == ProviderPermanent
}

// IsUnauthorized returns true if the provider rejected the access token.
func IsUnauthorized(err error) bool {
	kind, ok := providerKind(err)
	return ok && kind == ProviderUnauthorized
}

// IsRateLimited returns true if the provider throttled the request.
func IsRateLimited(err error) bool {
	kind, ok := providerKind(err)
	return ok && kind == ProviderRateLimited
}

// RetryAfter returns the provider-requested pause, or zero.
func RetryAfter(err error) time.Duration {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.RetryAfter
	}
	return 0
}

// IsTerminalRefresh returns true if a refresh failed irrecoverably.
func IsTerminalRefresh(err error) bool {
	var rerr *TokenRefreshError
	return errors.As(err, &rerr) && rerr.Terminal
}
