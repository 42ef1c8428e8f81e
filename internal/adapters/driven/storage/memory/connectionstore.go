package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
)

// Ensure ConnectionStore implements the interface.
var _ driven.ConnectionStore = (*ConnectionStore)(nil)

// ConnectionStore is an in-memory implementation of driven.ConnectionStore.
type ConnectionStore struct {
	mu          sync.RWMutex
	connections map[string]domain.Connection
}

// NewConnectionStore creates a new in-memory connection store.
func NewConnectionStore() *ConnectionStore {
	return &ConnectionStore{
		connections: make(map[string]domain.Connection),
	}
}

// Save stores or updates a connection. A revoked connection stays revoked
// and the watermark keeps its larger value.
func (s *ConnectionStore) Save(_ context.Context, conn *domain.Connection) error {
	if conn == nil || conn.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyConnection(*conn)
	if existing, ok := s.connections[conn.ID]; ok {
		if existing.Status == domain.StatusRevoked {
			stored.Status = existing.Status
			stored.StatusReason = existing.StatusReason
		}
		if existing.LastSyncAt.After(stored.LastSyncAt) {
			stored.LastSyncAt = existing.LastSyncAt
		}
	}
	for id, existing := range s.connections {
		if id != stored.ID && existing.UserID == stored.UserID && existing.Provider == stored.Provider &&
			existing.Status != domain.StatusRevoked && stored.Status != domain.StatusRevoked {
			return domain.ErrAlreadyExists
		}
	}
	s.connections[stored.ID] = stored
	return nil
}

// Get retrieves a connection by ID.
func (s *ConnectionStore) Get(_ context.Context, id string) (*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := copyConnection(conn)
	return &out, nil
}

// FindActive returns the non-revoked connection for a user and provider.
func (s *ConnectionStore) FindActive(_ context.Context, userID string, provider domain.ProviderType) (*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, conn := range s.connections {
		if conn.UserID == userID && conn.Provider == provider && conn.Status != domain.StatusRevoked {
			out := copyConnection(conn)
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

// FindByExternalAccount returns non-revoked connections for a provider account.
func (s *ConnectionStore) FindByExternalAccount(
	_ context.Context,
	provider domain.ProviderType,
	accountID string,
) ([]domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Connection
	for _, conn := range s.connections {
		if conn.Provider == provider && conn.ExternalAccountID == accountID && conn.Status != domain.StatusRevoked {
			result = append(result, copyConnection(conn))
		}
	}
	sortConnections(result)
	return result, nil
}

// ListByUser returns all connections for a user.
func (s *ConnectionStore) ListByUser(_ context.Context, userID string) ([]domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Connection
	for _, conn := range s.connections {
		if conn.UserID == userID {
			result = append(result, copyConnection(conn))
		}
	}
	sortConnections(result)
	return result, nil
}

// ListSyncableUsers returns users with at least one non-revoked connection.
func (s *ConnectionStore) ListSyncableUsers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var users []string
	for _, conn := range s.connections {
		if conn.Syncable() && !seen[conn.UserID] {
			seen[conn.UserID] = true
			users = append(users, conn.UserID)
		}
	}
	sort.Strings(users)
	return users, nil
}

// UpdateLastSync advances the watermark. Older values are ignored.
func (s *ConnectionStore) UpdateLastSync(_ context.Context, id string, lastSyncAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[id]
	if !ok {
		return domain.ErrNotFound
	}
	if lastSyncAt.After(conn.LastSyncAt) {
		conn.LastSyncAt = lastSyncAt
		conn.UpdatedAt = time.Now()
		s.connections[id] = conn
	}
	return nil
}

// UpdateStatus sets the connection status.
func (s *ConnectionStore) UpdateStatus(_ context.Context, id string, status domain.ConnectionStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[id]
	if !ok {
		return domain.ErrNotFound
	}
	if conn.Status == domain.StatusRevoked && status != domain.StatusRevoked {
		return domain.ErrConnectionRevoked
	}
	conn.Status = status
	conn.StatusReason = reason
	conn.UpdatedAt = time.Now()
	s.connections[id] = conn
	return nil
}

func copyConnection(conn domain.Connection) domain.Connection {
	if conn.Scopes != nil {
		conn.Scopes = append([]string(nil), conn.Scopes...)
	}
	return conn
}

func sortConnections(conns []domain.Connection) {
	sort.Slice(conns, func(i, j int) bool {
		if conns[i].CreatedAt.Equal(conns[j].CreatedAt) {
			return conns[i].ID < conns[j].ID
		}
		return conns[i].CreatedAt.Before(conns[j].CreatedAt)
	})
}
