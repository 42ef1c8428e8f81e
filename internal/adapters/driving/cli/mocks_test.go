package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driving"
)

// mockSyncManager implements driving.SyncManager for testing.
type mockSyncManager struct {
	err     error
	results []domain.SyncResult
	calls   []string
}

func (m *mockSyncManager) SyncConnection(_ context.Context, id string, trigger domain.SyncTrigger) (*domain.SyncResult, error) {
	m.calls = append(m.calls, id+":"+string(trigger))
	if m.err != nil {
		return nil, m.err
	}
	return &domain.SyncResult{
		ConnectionID: id,
		Trigger:      trigger,
		Status:       domain.SyncSuccess,
		Counts:       domain.SyncCounts{Fetched: 5, Created: 2, Skipped: 3},
	}, nil
}

func (m *mockSyncManager) SyncAllForUser(_ context.Context, userID string, _ domain.SyncTrigger) ([]domain.SyncResult, error) {
	m.calls = append(m.calls, "user:"+userID)
	return m.results, m.err
}

func (m *mockSyncManager) Status(_ context.Context, _ string) (*driving.SyncStatus, error) {
	return nil, nil
}

// mockConnectionService implements driving.ConnectionService for testing.
type mockConnectionService struct {
	conns   []domain.Connection
	history []domain.SyncResult
}

func (m *mockConnectionService) Get(_ context.Context, _, id string) (*domain.Connection, error) {
	for i := range m.conns {
		if m.conns[i].ID == id {
			return &m.conns[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockConnectionService) List(_ context.Context, userID string) ([]domain.Connection, error) {
	var out []domain.Connection
	for _, c := range m.conns {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockConnectionService) History(_ context.Context, _ string, limit int) ([]domain.SyncResult, error) {
	if limit < len(m.history) {
		return m.history[:limit], nil
	}
	return m.history, nil
}

// mockAuthManager implements driving.AuthManager for testing.
type mockAuthManager struct {
	revoked []string
}

func (m *mockAuthManager) BeginAuthorization(context.Context, domain.ProviderType, string) (string, error) {
	return "", errors.New("not used")
}

func (m *mockAuthManager) CompleteAuthorization(context.Context, domain.ProviderType, string, string) (*domain.Connection, error) {
	return nil, errors.New("not used")
}

func (m *mockAuthManager) EnsureFreshToken(context.Context, *domain.Connection) (*domain.TokenPair, error) {
	return nil, errors.New("not used")
}

func (m *mockAuthManager) ForceRefresh(context.Context, *domain.Connection) (*domain.TokenPair, error) {
	return nil, errors.New("not used")
}

func (m *mockAuthManager) Revoke(_ context.Context, conn *domain.Connection) error {
	m.revoked = append(m.revoked, conn.ID)
	return nil
}

type mockRotator struct{}

func (mockRotator) Rotate(context.Context) (string, int, error) { return "k-2", 3, nil }

type mockIssuer struct{}

func (mockIssuer) Sign(user domain.User) (string, time.Time, error) {
	return "signed." + user.ID, time.Now().Add(time.Hour), nil
}

// setupRuntime installs a runtime backed by mocks and resets flag state.
func setupRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt := &Runtime{
		Auth:        &mockAuthManager{},
		Connections: &mockConnectionService{},
		Sync:        &mockSyncManager{},
		Secrets:     mockRotator{},
		Tokens:      mockIssuer{},
	}
	old := current
	current = rt
	t.Cleanup(func() {
		current = old
		syncUser, connectionsUser, tokenUser, tokenEmail = "", "", "", ""
		historyLimit = 20
		configPath, configForce = "", false
	})
	return rt
}

// execute runs the root command with args and returns combined output.
func execute(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}
