package driven

import (
	"context"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// Notifier informs users about sync outcomes. Formatting is the notifier's
// concern; delivery failures are logged by callers and never fail a sync.
type Notifier interface {
	// SyncCompleted reports a finished run.
	SyncCompleted(ctx context.Context, conn *domain.Connection, result *domain.SyncResult) error

	// ReconnectRequired prompts the user to authorize the provider again.
	ReconnectRequired(ctx context.Context, conn *domain.Connection, reason string) error
}
