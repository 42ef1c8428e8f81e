package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

func TestConnectionStore_SaveAndGet(t *testing.T) {
	store := NewConnectionStore()
	ctx := context.Background()

	conn := &domain.Connection{
		ID:       "c1",
		UserID:   "u1",
		Provider: domain.ProviderFitbit,
		Scopes:   []string{"activity"},
		Status:   domain.StatusActive,
	}
	require.NoError(t, store.Save(ctx, conn))

	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	// Mutating the returned copy must not change the stored row
	got.Scopes[0] = "changed"
	again, _ := store.Get(ctx, "c1")
	assert.Equal(t, "activity", again.Scopes[0])
}

func TestConnectionStore_Get_NotFound(t *testing.T) {
	store := NewConnectionStore()
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConnectionStore_OneActivePerUserProvider(t *testing.T) {
	store := NewConnectionStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Connection{ID: "c1", UserID: "u1", Provider: domain.ProviderFitbit, Status: domain.StatusActive}))
	err := store.Save(ctx, &domain.Connection{ID: "c2", UserID: "u1", Provider: domain.ProviderFitbit, Status: domain.StatusActive})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// After revoking the first, a new connection is allowed
	require.NoError(t, store.UpdateStatus(ctx, "c1", domain.StatusRevoked, "disconnected"))
	require.NoError(t, store.Save(ctx, &domain.Connection{ID: "c2", UserID: "u1", Provider: domain.ProviderFitbit, Status: domain.StatusActive}))

	active, err := store.FindActive(ctx, "u1", domain.ProviderFitbit)
	require.NoError(t, err)
	assert.Equal(t, "c2", active.ID)
}

func TestConnectionStore_UpdateLastSync_NeverMovesBackwards(t *testing.T) {
	store := NewConnectionStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &domain.Connection{ID: "c1", UserID: "u1", Status: domain.StatusActive}))

	t1 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateLastSync(ctx, "c1", t1))
	require.NoError(t, store.UpdateLastSync(ctx, "c1", t1.Add(-time.Hour)))

	got, _ := store.Get(ctx, "c1")
	assert.Equal(t, t1, got.LastSyncAt)
}

func TestConnectionStore_SaveKeepsLaterWatermark(t *testing.T) {
	store := NewConnectionStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &domain.Connection{ID: "c1", UserID: "u1", Status: domain.StatusActive}))

	t1 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateLastSync(ctx, "c1", t1))

	stale := &domain.Connection{ID: "c1", UserID: "u1", Status: domain.StatusActive, LastSyncAt: t1.Add(-time.Hour)}
	require.NoError(t, store.Save(ctx, stale))

	got, _ := store.Get(ctx, "c1")
	assert.Equal(t, t1, got.LastSyncAt)
}

func TestConnectionStore_RevokedIsTerminal(t *testing.T) {
	store := NewConnectionStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &domain.Connection{ID: "c1", UserID: "u1", Provider: domain.ProviderFitbit, Status: domain.StatusError}))
	require.NoError(t, store.UpdateStatus(ctx, "c1", domain.StatusRevoked, "disconnected"))

	err := store.UpdateStatus(ctx, "c1", domain.StatusActive, "")
	assert.ErrorIs(t, err, domain.ErrConnectionRevoked)

	// A stale copy saved over it does not bring it back
	require.NoError(t, store.Save(ctx, &domain.Connection{ID: "c1", UserID: "u1", Provider: domain.ProviderFitbit, Status: domain.StatusActive}))

	got, _ := store.Get(ctx, "c1")
	assert.Equal(t, domain.StatusRevoked, got.Status)
	assert.Equal(t, "disconnected", got.StatusReason)
	assert.False(t, got.Syncable())
	require.NoError(t, store.UpdateStatus(ctx, "c1", domain.StatusRevoked, "again"))
}

func TestConnectionStore_ListSyncableUsers(t *testing.T) {
	store := NewConnectionStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Connection{ID: "c1", UserID: "u1", Provider: domain.ProviderFitbit, Status: domain.StatusActive}))
	require.NoError(t, store.Save(ctx, &domain.Connection{ID: "c2", UserID: "u2", Provider: domain.ProviderFitbit, Status: domain.StatusRevoked}))
	require.NoError(t, store.Save(ctx, &domain.Connection{ID: "c3", UserID: "u3", Provider: domain.ProviderGitHub, Status: domain.StatusError}))

	users, err := store.ListSyncableUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, users)
}

func TestConnectionStore_FindByExternalAccount(t *testing.T) {
	store := NewConnectionStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Connection{
		ID: "c1", UserID: "u1", Provider: domain.ProviderFitbit, ExternalAccountID: "ABC", Status: domain.StatusActive,
	}))
	require.NoError(t, store.Save(ctx, &domain.Connection{
		ID: "c2", UserID: "u2", Provider: domain.ProviderGitHub, ExternalAccountID: "ABC", Status: domain.StatusActive,
	}))

	conns, err := store.FindByExternalAccount(ctx, domain.ProviderFitbit, "ABC")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "c1", conns[0].ID)
}
