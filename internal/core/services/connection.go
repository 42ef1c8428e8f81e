package services

import (
	"context"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
	"github.com/custodia-labs/syncengine/internal/core/ports/driving"
)

// Ensure ConnectionService implements the interface.
var _ driving.ConnectionService = (*ConnectionService)(nil)

// ConnectionService exposes connections and their history to the API.
type ConnectionService struct {
	connections driven.ConnectionStore
	history     driven.HistoryStore
}

// NewConnectionService creates a new connection service.
func NewConnectionService(connections driven.ConnectionStore, history driven.HistoryStore) *ConnectionService {
	return &ConnectionService{
		connections: connections,
		history:     history,
	}
}

// Get retrieves a connection owned by userID. An empty userID skips the
// ownership check (operator access from the CLI).
func (s *ConnectionService) Get(ctx context.Context, userID, connectionID string) (*domain.Connection, error) {
	conn, err := s.connections.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if userID != "" && conn.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return conn, nil
}

// List returns a user's connections.
func (s *ConnectionService) List(ctx context.Context, userID string) ([]domain.Connection, error) {
	if userID == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.connections.ListByUser(ctx, userID)
}

// History returns recent sync results for a connection.
func (s *ConnectionService) History(ctx context.Context, connectionID string, limit int) ([]domain.SyncResult, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.history.List(ctx, connectionID, limit)
}
