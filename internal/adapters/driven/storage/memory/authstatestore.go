package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
)

// Ensure AuthStateStore implements the interface.
var _ driven.AuthStateStore = (*AuthStateStore)(nil)

// AuthStateStore is an in-memory implementation of driven.AuthStateStore.
type AuthStateStore struct {
	mu     sync.Mutex
	states map[string]domain.AuthState
}

// NewAuthStateStore creates a new in-memory authorization state store.
func NewAuthStateStore() *AuthStateStore {
	return &AuthStateStore{
		states: make(map[string]domain.AuthState),
	}
}

// Save stores a state. An existing state with the same value is an error.
func (s *AuthStateStore) Save(_ context.Context, state *domain.AuthState) error {
	if state == nil || state.State == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.states[state.State]; exists {
		return domain.ErrAlreadyExists
	}
	s.states[state.State] = *state
	return nil
}

// Consume removes and returns a state.
func (s *AuthStateStore) Consume(_ context.Context, state string) (*domain.AuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[state]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(s.states, state)
	return &st, nil
}

// PurgeExpired removes states that expired before now.
func (s *AuthStateStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for key, st := range s.states {
		if st.Expired(now) {
			delete(s.states, key)
			purged++
		}
	}
	return purged, nil
}
