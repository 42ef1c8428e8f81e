package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// SyncManager runs the reconciliation algorithm for connections.
type SyncManager interface {
	// SyncConnection runs one sync for a connection. A run that cannot take
	// the lease returns a result with status skipped-in-progress.
	SyncConnection(ctx context.Context, connectionID string, trigger domain.SyncTrigger) (*domain.SyncResult, error)

	// SyncAllForUser syncs every non-revoked connection of a user.
	// Failures are isolated per connection.
	SyncAllForUser(ctx context.Context, userID string, trigger domain.SyncTrigger) ([]domain.SyncResult, error)

	// Status returns the live status of a connection's sync.
	Status(ctx context.Context, connectionID string) (*SyncStatus, error)
}

// SyncQueue accepts asynchronous sync requests.
type SyncQueue interface {
	// Enqueue schedules a sync. Returns false if the connection is already
	// queued or the queue is full.
	Enqueue(connectionID string, trigger domain.SyncTrigger) bool

	// EnqueueAfter schedules a sync once delay has elapsed.
	EnqueueAfter(connectionID string, trigger domain.SyncTrigger, delay time.Duration)
}

// SyncStatus represents the current state of a sync operation.
type SyncStatus struct {
	// ConnectionID identifies the connection.
	ConnectionID string

	// Running indicates if sync is currently in progress.
	Running bool

	// Trigger is what started the running sync.
	Trigger domain.SyncTrigger

	// RecordsProcessed is the count of records handled without error.
	RecordsProcessed int

	// ErrorCount is the number of records that failed.
	ErrorCount int

	// LastSyncAt is the connection's resume watermark.
	LastSyncAt time.Time
}
