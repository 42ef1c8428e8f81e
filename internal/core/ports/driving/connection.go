package driving

import (
	"context"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// ConnectionService exposes read access to connections and their history.
type ConnectionService interface {
	// Get retrieves a connection owned by the user.
	// Returns domain.ErrNotFound if it does not exist or belongs to someone else.
	Get(ctx context.Context, userID, connectionID string) (*domain.Connection, error)

	// List returns the user's connections.
	List(ctx context.Context, userID string) ([]domain.Connection, error)

	// History returns recent sync results for a connection, newest first.
	History(ctx context.Context, connectionID string, limit int) ([]domain.SyncResult, error)
}
