package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// EntityStore is the narrow contract onto the canonical entity repositories.
// The engine does not own their schema.
type EntityStore interface {
	// FindInSlot returns an entity of the given type whose start time lies
	// within window of at, or nil when the slot is free.
	FindInSlot(ctx context.Context, userID, entityType string, at time.Time, window time.Duration) (*domain.CanonicalEntity, error)

	// Upsert creates a synced entity when entityID is empty, or updates the
	// referenced one. Returns the entity ID.
	Upsert(ctx context.Context, entityID string, draft *domain.CanonicalDraft) (string, error)
}
