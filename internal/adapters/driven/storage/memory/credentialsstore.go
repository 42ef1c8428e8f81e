package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
)

// Ensure CredentialsStore implements the interface.
var _ driven.CredentialsStore = (*CredentialsStore)(nil)

// CredentialsStore is an in-memory implementation of driven.CredentialsStore.
type CredentialsStore struct {
	mu    sync.RWMutex
	creds map[string]domain.SealedCredentials
}

// NewCredentialsStore creates a new in-memory credentials store.
func NewCredentialsStore() *CredentialsStore {
	return &CredentialsStore{
		creds: make(map[string]domain.SealedCredentials),
	}
}

// Save stores or updates sealed credentials.
func (s *CredentialsStore) Save(_ context.Context, creds *domain.SealedCredentials) error {
	if creds == nil || creds.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *creds
	c.Ciphertext = append([]byte(nil), creds.Ciphertext...)
	s.creds[c.ID] = c
	return nil
}

// Get retrieves sealed credentials by ID.
func (s *CredentialsStore) Get(_ context.Context, id string) (*domain.SealedCredentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c.Ciphertext = append([]byte(nil), c.Ciphertext...)
	return &c, nil
}

// List returns all sealed credentials ordered by ID.
func (s *CredentialsStore) List(_ context.Context) ([]domain.SealedCredentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.SealedCredentials, 0, len(s.creds))
	for _, c := range s.creds {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Delete removes credentials by ID.
func (s *CredentialsStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, id)
	return nil
}
