package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
)

// mappingStore implements driven.MappingStore.
type mappingStore struct {
	store *Store
}

var _ driven.MappingStore = (*mappingStore)(nil)

// Get returns the mapping for a key.
func (s *mappingStore) Get(ctx context.Context, key domain.MappingKey) (*domain.RecordMapping, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT connection_id, external_id, entity_type, entity_id, snapshot, fingerprint, last_synced_at
		FROM record_mappings
		WHERE connection_id = ? AND external_id = ? AND entity_type = ?
	`, key.ConnectionID, key.ExternalID, key.EntityType)

	var m domain.RecordMapping
	var entityID sql.NullString
	var syncedAt string
	if err := row.Scan(&m.ConnectionID, &m.ExternalID, &m.EntityType, &entityID,
		&m.Snapshot, &m.Fingerprint, &syncedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning mapping: %w", err)
	}
	m.EntityID = entityID.String
	m.LastSyncedAt = parseTime(syncedAt)
	return &m, nil
}

// Upsert creates or replaces the mapping for its key.
func (s *mappingStore) Upsert(ctx context.Context, m *domain.RecordMapping) error {
	if m == nil || m.ConnectionID == "" || m.ExternalID == "" {
		return domain.ErrInvalidInput
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO record_mappings
			(connection_id, external_id, entity_type, entity_id, snapshot, fingerprint, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(connection_id, external_id, entity_type) DO UPDATE SET
			entity_id = excluded.entity_id,
			snapshot = excluded.snapshot,
			fingerprint = excluded.fingerprint,
			last_synced_at = excluded.last_synced_at
	`, m.ConnectionID, m.ExternalID, m.EntityType, nullString(m.EntityID),
		m.Snapshot, m.Fingerprint, formatTime(m.LastSyncedAt))
	if err != nil {
		return fmt.Errorf("saving mapping: %w", err)
	}
	return nil
}

// Count returns the number of mappings owned by a connection.
func (s *mappingStore) Count(ctx context.Context, connectionID string) (int, error) {
	var n int
	err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM record_mappings WHERE connection_id = ?", connectionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting mappings: %w", err)
	}
	return n, nil
}
