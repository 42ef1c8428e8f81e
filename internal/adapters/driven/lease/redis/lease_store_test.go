package redis

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupLeaseStore connects to the Redis named by SYNCENGINE_TEST_REDIS_ADDR.
// Tests are skipped when it is unset.
func setupLeaseStore(t *testing.T) *LeaseStore {
	t.Helper()
	addr := os.Getenv("SYNCENGINE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SYNCENGINE_TEST_REDIS_ADDR not set")
	}
	db, _ := strconv.Atoi(os.Getenv("SYNCENGINE_TEST_REDIS_DB"))

	client, err := Connect(context.Background(), addr, "", db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewLeaseStore(client, "syncengine-test:"+uuid.NewString()+":")
}

func TestNewLeaseStore_DefaultPrefix(t *testing.T) {
	s := NewLeaseStore(nil, "")
	assert.Equal(t, DefaultPrefix+"conn-1", s.key("conn-1"))

	s = NewLeaseStore(nil, "custom:")
	assert.Equal(t, "custom:conn-1", s.key("conn-1"))
}

func TestLeaseStore_AcquireExclusive(t *testing.T) {
	s := setupLeaseStore(t)
	ctx := context.Background()

	ok, err := s.Acquire(ctx, "conn-1", "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Acquire(ctx, "conn-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Acquire(ctx, "conn-2", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "leases are per connection")
}

func TestLeaseStore_ReleaseOnlyByHolder(t *testing.T) {
	s := setupLeaseStore(t)
	ctx := context.Background()

	ok, err := s.Acquire(ctx, "conn-1", "worker-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Release(ctx, "conn-1", "worker-b"))
	holder, err := s.Holder(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "worker-a", holder)

	require.NoError(t, s.Release(ctx, "conn-1", "worker-a"))
	holder, err = s.Holder(ctx, "conn-1")
	require.NoError(t, err)
	assert.Empty(t, holder)

	ok, err = s.Acquire(ctx, "conn-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLeaseStore_ExpiredLeaseIsFree(t *testing.T) {
	s := setupLeaseStore(t)
	ctx := context.Background()

	ok, err := s.Acquire(ctx, "conn-1", "crashed", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		ok, err := s.Acquire(ctx, "conn-1", "worker-b", time.Minute)
		return err == nil && ok
	}, 2*time.Second, 25*time.Millisecond)
}
