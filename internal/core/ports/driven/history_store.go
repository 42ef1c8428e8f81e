package driven

import (
	"context"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// HistoryStore is the append-only sync history.
type HistoryStore interface {
	// Append writes one result. Results are never modified afterwards.
	Append(ctx context.Context, result *domain.SyncResult) error

	// List returns a connection's most recent results, newest first.
	List(ctx context.Context, connectionID string, limit int) ([]domain.SyncResult, error)
}
