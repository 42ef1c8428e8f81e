package driven

import (
	"context"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// MappingStore persists external record mappings.
// Rows are unique on (connection, external id, entity type).
type MappingStore interface {
	// Get returns the mapping for a key.
	// Returns domain.ErrNotFound if none exists.
	Get(ctx context.Context, key domain.MappingKey) (*domain.RecordMapping, error)

	// Upsert creates or replaces the mapping for its key.
	Upsert(ctx context.Context, mapping *domain.RecordMapping) error

	// Count returns the number of mappings owned by a connection.
	Count(ctx context.Context, connectionID string) (int, error)
}
