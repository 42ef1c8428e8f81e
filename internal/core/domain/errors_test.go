package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrAlreadyExists", ErrAlreadyExists},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrUnsupportedType", ErrUnsupportedType},
		{"ErrSyncInProgress", ErrSyncInProgress},
		{"ErrConnectionRevoked", ErrConnectionRevoked},
		{"ErrStateInvalid", ErrStateInvalid},
		{"ErrReauthorizationRequired", ErrReauthorizationRequired},
		{"ErrNoCredentials", ErrNoCredentials},
		{"ErrMissingSecretKey", ErrMissingSecretKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestAuthError_Unwrap(t *testing.T) {
	err := &AuthError{Provider: ProviderFitbit, Reason: "state rejected", Err: ErrStateInvalid}

	assert.ErrorIs(t, err, ErrStateInvalid)
	assert.Contains(t, err.Error(), "fitbit")
	assert.Contains(t, err.Error(), "state rejected")

	var authErr *AuthError
	wrapped := fmt.Errorf("callback: %w", err)
	assert.True(t, errors.As(wrapped, &authErr))
}

func TestTokenRefreshError_Terminal(t *testing.T) {
	terminal := &TokenRefreshError{ConnectionID: "c1", Terminal: true, Err: ErrReauthorizationRequired}
	transient := &TokenRefreshError{ConnectionID: "c1", Err: errors.New("502")}

	assert.True(t, IsTerminalRefresh(terminal))
	assert.True(t, IsTerminalRefresh(fmt.Errorf("sync: %w", terminal)))
	assert.False(t, IsTerminalRefresh(transient))
	assert.ErrorIs(t, terminal, ErrReauthorizationRequired)
	assert.Contains(t, terminal.Error(), "terminal")
	assert.Contains(t, transient.Error(), "transient")
}

func TestProviderError_Classification(t *testing.T) {
	tests := []struct {
		kind         ProviderErrorKind
		transient    bool
		permanent    bool
		unauthorized bool
		rateLimited  bool
	}{
		{ProviderTransient, true, false, false, false},
		{ProviderPermanent, false, true, false, false},
		{ProviderUnauthorized, false, false, true, false},
		{ProviderRateLimited, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := fmt.Errorf("fetch page: %w", NewProviderError(ProviderFitbit, tt.kind, 0, errors.New("boom")))
			assert.Equal(t, tt.transient, IsTransient(err))
			assert.Equal(t, tt.permanent, IsPermanent(err))
			assert.Equal(t, tt.unauthorized, IsUnauthorized(err))
			assert.Equal(t, tt.rateLimited, IsRateLimited(err))
		})
	}
}

func TestProviderError_NotProviderError(t *testing.T) {
	err := errors.New("plain")
	assert.False(t, IsTransient(err))
	assert.False(t, IsPermanent(err))
	assert.Equal(t, time.Duration(0), RetryAfter(err))
}

func TestRetryAfter(t *testing.T) {
	perr := NewProviderError(ProviderGitHub, ProviderRateLimited, 429, errors.New("slow down"))
	perr.RetryAfter = 30 * time.Second

	assert.Equal(t, 30*time.Second, RetryAfter(fmt.Errorf("wrapped: %w", perr)))
	assert.Contains(t, perr.Error(), "status 429")
}

func TestSignatureError(t *testing.T) {
	err := &SignatureError{Provider: ProviderGitHub, Reason: "missing header"}
	assert.Contains(t, err.Error(), "missing header")
}
