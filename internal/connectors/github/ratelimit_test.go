package github

import (
	"context"
	"testing"
	"time"

	gh "github.com/google/go-github/v80/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

func TestRateLimiter_Defaults(t *testing.T) {
	r := NewRateLimiter(0, 0)

	assert.Equal(t, GitHubRateLimit, r.Remaining())
	assert.Equal(t, GitHubRateLimit, r.Limit())
	assert.True(t, r.ResetTime().IsZero())
	assert.NoError(t, r.Wait(context.Background()))
}

func TestRateLimiter_Update(t *testing.T) {
	r := NewRateLimiter(100, 10)
	reset := time.Now().Add(10 * time.Minute).Truncate(time.Second)

	r.Update(&gh.Response{Rate: gh.Rate{Limit: 5000, Remaining: 1234, Reset: gh.Timestamp{Time: reset}}})

	assert.Equal(t, 1234, r.Remaining())
	assert.Equal(t, 5000, r.Limit())
	assert.True(t, r.ResetTime().Equal(reset))

	r.Update(nil)
	r.Update(&gh.Response{})
	assert.Equal(t, 1234, r.Remaining(), "responses without rate headers are ignored")
}

func TestRateLimiter_WaitBelowBuffer(t *testing.T) {
	r := NewRateLimiter(100, 10)
	r.Update(&gh.Response{Rate: gh.Rate{Limit: 5000, Remaining: MinBuffer - 1, Reset: gh.Timestamp{Time: time.Now().Add(time.Minute)}}})

	err := r.Wait(context.Background())

	require.Error(t, err)
	assert.True(t, domain.IsRateLimited(err))
	assert.InDelta(t, time.Minute.Seconds(), domain.RetryAfter(err).Seconds(), 2)
}

func TestRateLimiter_WaitAfterReset(t *testing.T) {
	r := NewRateLimiter(100, 10)
	r.Update(&gh.Response{Rate: gh.Rate{Limit: 5000, Remaining: 0, Reset: gh.Timestamp{Time: time.Now().Add(-time.Second)}}})

	assert.NoError(t, r.Wait(context.Background()))
}

func TestRateLimiter_WaitCancelled(t *testing.T) {
	r := NewRateLimiter(0.001, 1)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, r.Wait(ctx))
}

func TestLimiters_PerKey(t *testing.T) {
	l := newLimiters(1, 1)

	assert.Same(t, l.get("a"), l.get("a"))
	assert.NotSame(t, l.get("a"), l.get("b"))
	assert.NotEqual(t, tokenKey("one"), tokenKey("two"))
}
