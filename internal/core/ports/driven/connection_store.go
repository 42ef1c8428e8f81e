package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// ConnectionStore persists connections.
type ConnectionStore interface {
	// Save creates or updates a connection by ID. A stored revoked
	// connection keeps its status and reason, and its watermark never moves
	// backwards.
	Save(ctx context.Context, conn *domain.Connection) error

	// Get retrieves a connection by ID.
	// Returns domain.ErrNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.Connection, error)

	// FindActive returns the non-revoked connection for (user, provider).
	// Returns domain.ErrNotFound if there is none.
	FindActive(ctx context.Context, userID string, provider domain.ProviderType) (*domain.Connection, error)

	// FindByExternalAccount returns non-revoked connections linked to a
	// provider account. Used to route webhooks.
	FindByExternalAccount(ctx context.Context, provider domain.ProviderType, accountID string) ([]domain.Connection, error)

	// ListByUser returns all of a user's connections, including revoked ones.
	ListByUser(ctx context.Context, userID string) ([]domain.Connection, error)

	// ListSyncableUsers returns the IDs of users owning at least one
	// non-revoked connection.
	ListSyncableUsers(ctx context.Context) ([]string, error)

	// UpdateLastSync advances the resume watermark. It never moves it backwards.
	UpdateLastSync(ctx context.Context, id string, lastSyncAt time.Time) error

	// UpdateStatus sets the lifecycle status and its reason. Revoked is
	// terminal: any other status on a revoked connection returns
	// domain.ErrConnectionRevoked.
	UpdateStatus(ctx context.Context, id string, status domain.ConnectionStatus, reason string) error
}
