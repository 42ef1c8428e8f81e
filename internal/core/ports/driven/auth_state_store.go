package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// AuthStateStore persists in-flight authorization states.
type AuthStateStore interface {
	// Save stores a new state.
	Save(ctx context.Context, state *domain.AuthState) error

	// Consume atomically fetches and deletes a state. Concurrent consumers
	// of the same state see it at most once; the rest get domain.ErrNotFound.
	Consume(ctx context.Context, state string) (*domain.AuthState, error)

	// PurgeExpired deletes states that expired before now.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
