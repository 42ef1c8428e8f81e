package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

func TestConnectionService_GetChecksOwner(t *testing.T) {
	h := newEngineHarness(t)
	svc := NewConnectionService(h.connections, h.history)
	h.connect(t, "c1", "u1", "trackerx", day0)

	conn, err := svc.Get(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", conn.ID)

	_, err = svc.Get(context.Background(), "u2", "c1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Operator access
	_, err = svc.Get(context.Background(), "", "c1")
	assert.NoError(t, err)
}

func TestConnectionService_List(t *testing.T) {
	h := newEngineHarness(t)
	svc := NewConnectionService(h.connections, h.history)
	h.registry.Register(newMockAdapter("othery"))
	h.connect(t, "c1", "u1", "trackerx", day0)
	h.connect(t, "c2", "u1", "othery", day0)
	h.connect(t, "c3", "u2", "trackerx", day0)

	conns, err := svc.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, conns, 2)

	_, err = svc.List(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConnectionService_History(t *testing.T) {
	h := newEngineHarness(t)
	svc := NewConnectionService(h.connections, h.history)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, h.history.Append(ctx, &domain.SyncResult{
			ID:           fmt.Sprintf("r%d", i),
			ConnectionID: "c1",
			Status:       domain.SyncSuccess,
			StartedAt:    day0.Add(time.Duration(i) * time.Minute),
		}))
	}

	results, err := svc.History(ctx, "c1", 0)
	require.NoError(t, err)
	assert.Len(t, results, 20)
	assert.Equal(t, "r24", results[0].ID, "newest first")

	results, err = svc.History(ctx, "c1", 5)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}
