package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
)

// Ensure EntityStore implements the interface.
var _ driven.EntityStore = (*EntityStore)(nil)

// EntityStore is an in-memory canonical entity repository.
type EntityStore struct {
	mu       sync.RWMutex
	entities map[string]domain.CanonicalEntity
}

// NewEntityStore creates a new in-memory entity store.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		entities: make(map[string]domain.CanonicalEntity),
	}
}

// Put inserts an entity as-is. Used to seed manual entries.
func (s *EntityStore) Put(entity domain.CanonicalEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	s.entities[entity.ID] = entity
}

// Get returns an entity by ID.
func (s *EntityStore) Get(id string) (domain.CanonicalEntity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok
}

// Count returns the number of stored entities.
func (s *EntityStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// List returns a user's entities ordered by start time.
func (s *EntityStore) List(userID string) []domain.CanonicalEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CanonicalEntity
	for _, e := range s.entities {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

// FindInSlot returns the entity occupying the slot, preferring manual entries.
func (s *EntityStore) FindInSlot(
	_ context.Context,
	userID, entityType string,
	at time.Time,
	window time.Duration,
) (*domain.CanonicalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *domain.CanonicalEntity
	for _, e := range s.entities {
		if e.UserID != userID || e.EntityType != entityType {
			continue
		}
		diff := e.StartAt.Sub(at)
		if diff < 0 {
			diff = -diff
		}
		if diff > window {
			continue
		}
		e := e
		if e.Origin == domain.OriginManual {
			return &e, nil
		}
		if found == nil {
			found = &e
		}
	}
	return found, nil
}

// Upsert creates or updates a synced entity.
func (s *EntityStore) Upsert(_ context.Context, entityID string, draft *domain.CanonicalDraft) (string, error) {
	if draft == nil {
		return "", domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	entity, ok := s.entities[entityID]
	if entityID == "" || !ok {
		entity = domain.CanonicalEntity{ID: uuid.NewString(), Origin: domain.OriginSynced, CreatedAt: now}
	}
	entity.UserID = draft.UserID
	entity.EntityType = draft.EntityType
	entity.Provider = draft.Provider
	entity.Title = draft.Title
	entity.StartAt = draft.StartAt
	entity.EndAt = draft.EndAt
	entity.Attributes = draft.Attributes
	entity.UpdatedAt = now
	s.entities[entity.ID] = entity
	return entity.ID, nil
}
