package cli

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

func TestSyncCmd_Use(t *testing.T) {
	assert.Equal(t, "sync [connection-id]", syncCmd.Use)
}

func TestSyncCmd_Short(t *testing.T) {
	assert.Equal(t, "Synchronise connections now", syncCmd.Short)
}

func TestSyncCmd_RequiresTarget(t *testing.T) {
	setupRuntime(t)

	_, err := execute("sync")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection ID or --user")
}

func TestSyncCmd_ExecutesWithConnectionID(t *testing.T) {
	rt := setupRuntime(t)

	out, err := execute("sync", "conn-456")

	require.NoError(t, err)
	assert.Contains(t, out, "Synchronising connection: conn-456")
	assert.Contains(t, out, "Sync success: fetched 5, created 2")
	assert.Equal(t, []string{"conn-456:manual"}, rt.Sync.(*mockSyncManager).calls)
}

func TestSyncCmd_ExecutesForUser(t *testing.T) {
	rt := setupRuntime(t)
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	rt.Sync.(*mockSyncManager).results = []domain.SyncResult{
		{ConnectionID: "conn-a", Status: domain.SyncSuccess, Counts: domain.SyncCounts{Fetched: 7}, StartedAt: start, EndedAt: start.Add(1500 * time.Millisecond)},
		{ConnectionID: "conn-b", Status: domain.SyncFailed, StartedAt: start, EndedAt: start},
	}

	out, err := execute("sync", "--user", "user-1")

	require.NoError(t, err)
	assert.Contains(t, out, "Synchronising all connections of user-1")
	assert.Contains(t, out, "conn-a")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "failed")
}

func TestSyncCmd_UserWithoutConnections(t *testing.T) {
	setupRuntime(t)

	out, err := execute("sync", "--user", "nobody")

	require.NoError(t, err)
	assert.Contains(t, out, "No syncable connections.")
}

func TestSyncCmd_ServiceError(t *testing.T) {
	rt := setupRuntime(t)
	rt.Sync.(*mockSyncManager).err = errors.New("boom")

	_, err := execute("sync", "conn-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync failed")
}

func TestSyncCmd_NotConfigured(t *testing.T) {
	old, oldBootstrap := current, bootstrap
	current, bootstrap = nil, nil
	defer func() { current, bootstrap = old, oldBootstrap }()

	_, err := execute("sync", "conn-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine not configured")
}
