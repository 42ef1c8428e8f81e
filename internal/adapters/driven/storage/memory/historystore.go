package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
)

// Ensure HistoryStore implements the interface.
var _ driven.HistoryStore = (*HistoryStore)(nil)

// HistoryStore is an in-memory implementation of driven.HistoryStore.
type HistoryStore struct {
	mu      sync.RWMutex
	results map[string][]domain.SyncResult
}

// NewHistoryStore creates a new in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		results: make(map[string][]domain.SyncResult),
	}
}

// Append records a sync result.
func (s *HistoryStore) Append(_ context.Context, result *domain.SyncResult) error {
	if result == nil || result.ConnectionID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.ConnectionID] = append(s.results[result.ConnectionID], *result)
	return nil
}

// List returns the most recent results for a connection, newest first.
// A non-positive limit returns everything.
func (s *HistoryStore) List(_ context.Context, connectionID string, limit int) ([]domain.SyncResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.results[connectionID]
	n := len(all)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.SyncResult, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
