package connectors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

func TestRateLimiter_Defaults(t *testing.T) {
	r := NewRateLimiter(0, 0)
	assert.Equal(t, 10, r.limiter.Burst())
	assert.InDelta(t, 5.0, float64(r.limiter.Limit()), 0.001)
}

func TestRateLimiter_WaitAllowsBurst(t *testing.T) {
	r := NewRateLimiter(1, 3)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	r := NewRateLimiter(0.001, 1)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, r.Wait(ctx))
}

func TestRateLimiter_Backoff(t *testing.T) {
	r := NewRateLimiter(100, 10)
	assert.Zero(t, r.Paused())

	r.Backoff(30 * time.Second)
	err := r.Wait(context.Background())

	var paused *PausedError
	require.ErrorAs(t, err, &paused)
	assert.InDelta(t, 30, paused.RetryAfter.Seconds(), 1)

	// A shorter backoff never shortens an existing pause.
	r.Backoff(time.Second)
	assert.InDelta(t, 30, r.Paused().Seconds(), 1)
}

func TestRateLimiter_BackoffDefault(t *testing.T) {
	r := NewRateLimiter(100, 10)
	r.Backoff(0)
	assert.InDelta(t, DefaultBackoff.Seconds(), r.Paused().Seconds(), 1)
}

func TestWaitError(t *testing.T) {
	err := WaitError(domain.ProviderFitbit, &PausedError{RetryAfter: 10 * time.Second})
	assert.True(t, domain.IsRateLimited(err))
	assert.Equal(t, 10*time.Second, domain.RetryAfter(err))

	assert.ErrorIs(t, WaitError(domain.ProviderFitbit, context.Canceled), context.Canceled)

	other := errors.New("boom")
	assert.Equal(t, other, WaitError(domain.ProviderFitbit, other))
}
