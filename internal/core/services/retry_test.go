package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, time.Second, p.Delay(-1))
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("connection reset")))
	assert.True(t, retryable(domain.NewProviderError(domain.ProviderFitbit, domain.ProviderTransient, 503, errors.New("x"))))
	assert.False(t, retryable(domain.NewProviderError(domain.ProviderFitbit, domain.ProviderPermanent, 403, errors.New("x"))))
	assert.False(t, retryable(domain.NewProviderError(domain.ProviderFitbit, domain.ProviderUnauthorized, 401, errors.New("x"))))
	assert.False(t, retryable(domain.NewProviderError(domain.ProviderFitbit, domain.ProviderRateLimited, 429, errors.New("x"))))
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	require.NoError(t, clock.Sleep(context.Background(), time.Second))
	clock.Advance(time.Minute)

	assert.Equal(t, start.Add(time.Minute+time.Second), clock.Now())
	assert.Equal(t, []time.Duration{time.Second}, clock.Sleeps())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, clock.Sleep(ctx, time.Second), context.Canceled)
}

func TestSystemClock_SleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := SystemClock{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
