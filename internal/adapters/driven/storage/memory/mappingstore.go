package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
)

// Ensure MappingStore implements the interface.
var _ driven.MappingStore = (*MappingStore)(nil)

// MappingStore is an in-memory implementation of driven.MappingStore.
type MappingStore struct {
	mu       sync.RWMutex
	mappings map[domain.MappingKey]domain.RecordMapping
}

// NewMappingStore creates a new in-memory mapping store.
func NewMappingStore() *MappingStore {
	return &MappingStore{
		mappings: make(map[domain.MappingKey]domain.RecordMapping),
	}
}

// Get returns the mapping for a key.
func (s *MappingStore) Get(_ context.Context, key domain.MappingKey) (*domain.RecordMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	m.Snapshot = append([]byte(nil), m.Snapshot...)
	return &m, nil
}

// Upsert creates or replaces a mapping.
func (s *MappingStore) Upsert(_ context.Context, mapping *domain.RecordMapping) error {
	if mapping == nil || mapping.ConnectionID == "" || mapping.ExternalID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *mapping
	m.Snapshot = append([]byte(nil), mapping.Snapshot...)
	s.mappings[m.Key()] = m
	return nil
}

// Count returns the number of mappings for a connection.
func (s *MappingStore) Count(_ context.Context, connectionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for key := range s.mappings {
		if key.ConnectionID == connectionID {
			n++
		}
	}
	return n, nil
}
