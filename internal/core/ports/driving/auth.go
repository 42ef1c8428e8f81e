package driving

import (
	"context"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// AuthManager drives the OAuth handshake and the token lifecycle.
type AuthManager interface {
	// BeginAuthorization issues a single-use state for the user and returns
	// the provider consent URL. No connection is created.
	BeginAuthorization(ctx context.Context, provider domain.ProviderType, userID string) (string, error)

	// CompleteAuthorization consumes the state, exchanges the code and
	// stores the resulting connection as active. Fails with *domain.AuthError
	// if the state is unknown, expired or already consumed.
	CompleteAuthorization(ctx context.Context, provider domain.ProviderType, code, state string) (*domain.Connection, error)

	// EnsureFreshToken returns a usable token pair for the connection,
	// refreshing it when expired. Fails with *domain.TokenRefreshError.
	EnsureFreshToken(ctx context.Context, conn *domain.Connection) (*domain.TokenPair, error)

	// ForceRefresh refreshes regardless of the recorded expiry. Used after
	// the provider rejected an access token.
	ForceRefresh(ctx context.Context, conn *domain.Connection) (*domain.TokenPair, error)

	// Revoke disconnects the connection. The provider call is best-effort.
	Revoke(ctx context.Context, conn *domain.Connection) error
}
