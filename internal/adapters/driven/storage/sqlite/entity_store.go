package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
)

// EntityStore keeps canonical entities in the engine's own database. Hosts
// that own their entity repositories wire their own driven.EntityStore.
type EntityStore struct {
	store *Store
}

var _ driven.EntityStore = (*EntityStore)(nil)

const entityColumns = `id, user_id, entity_type, origin, provider, title, start_at, end_at,
	attributes, created_at, updated_at`

// FindInSlot returns the entity occupying the slot, preferring manual entries.
func (s *EntityStore) FindInSlot(
	ctx context.Context,
	userID, entityType string,
	at time.Time,
	window time.Duration,
) (*domain.CanonicalEntity, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+entityColumns+` FROM canonical_entities
		WHERE user_id = ? AND entity_type = ? AND start_at BETWEEN ? AND ?
		ORDER BY CASE origin WHEN ? THEN 0 ELSE 1 END, start_at
		LIMIT 1
	`, userID, entityType, formatTime(at.Add(-window)), formatTime(at.Add(window)), string(domain.OriginManual))

	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entity, err
}

// Upsert creates a synced entity when entityID is empty or unknown,
// otherwise updates it.
func (s *EntityStore) Upsert(ctx context.Context, entityID string, draft *domain.CanonicalDraft) (string, error) {
	if draft == nil {
		return "", domain.ErrInvalidInput
	}
	attrs, err := json.Marshal(draft.Attributes)
	if err != nil {
		return "", fmt.Errorf("marshalling attributes: %w", err)
	}
	if entityID == "" {
		entityID = uuid.NewString()
	}
	now := formatTime(time.Now())

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO canonical_entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entity_type = excluded.entity_type,
			provider = excluded.provider,
			title = excluded.title,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			attributes = excluded.attributes,
			updated_at = excluded.updated_at
	`, entityID, draft.UserID, draft.EntityType, string(domain.OriginSynced), nullString(string(draft.Provider)),
		nullString(draft.Title), formatTime(draft.StartAt), formatNullableTime(draft.EndAt),
		string(attrs), now, now)
	if err != nil {
		return "", fmt.Errorf("saving entity: %w", err)
	}
	return entityID, nil
}

// Put inserts an entity with its origin as given. Used to record manual entries.
func (s *EntityStore) Put(ctx context.Context, e *domain.CanonicalEntity) error {
	if e == nil || e.UserID == "" {
		return domain.ErrInvalidInput
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return fmt.Errorf("marshalling attributes: %w", err)
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	_, err = s.store.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO canonical_entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.EntityType, string(e.Origin), nullString(string(e.Provider)), nullString(e.Title),
		formatTime(e.StartAt), formatNullableTime(e.EndAt), string(attrs), formatTime(e.CreatedAt), formatTime(now))
	if err != nil {
		return fmt.Errorf("saving entity: %w", err)
	}
	return nil
}

// Get returns an entity by ID.
func (s *EntityStore) Get(ctx context.Context, id string) (*domain.CanonicalEntity, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM canonical_entities WHERE id = ?`, id)
	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return entity, err
}

func scanEntity(row rowScanner) (*domain.CanonicalEntity, error) {
	var e domain.CanonicalEntity
	var origin, startAt, createdAt, updatedAt string
	var provider, title, endAt, attrs sql.NullString

	if err := row.Scan(&e.ID, &e.UserID, &e.EntityType, &origin, &provider, &title,
		&startAt, &endAt, &attrs, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning entity: %w", err)
	}
	if attrs.Valid && attrs.String != jsonNull {
		if err := json.Unmarshal([]byte(attrs.String), &e.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshalling attributes: %w", err)
		}
	}
	e.Origin = domain.EntityOrigin(origin)
	e.Provider = domain.ProviderType(provider.String)
	e.Title = title.String
	e.StartAt = parseTime(startAt)
	e.EndAt = parseNullableTime(endAt)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}
