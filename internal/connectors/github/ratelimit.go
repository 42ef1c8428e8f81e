package github

import (
	"context"
	"errors"
	"sync"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

const (
	// GitHubRateLimit is the authenticated rate limit (5000/hour).
	GitHubRateLimit = 5000

	// ProactiveRate is the proactive throttle rate (~1.2 req/sec = 4320/hr).
	ProactiveRate = 1.2

	// MinBuffer is the minimum remaining requests before deferring to the reset.
	MinBuffer = 100
)

// RateLimiter implements dual-strategy rate limiting for one GitHub token.
type RateLimiter struct {
	mu        sync.Mutex
	remaining int           // From API response
	limit     int           // From API response
	resetTime time.Time     // From API response
	bucket    *rate.Limiter // Proactive throttling
	minBuffer int           // Reserve requests
}

// NewRateLimiter creates a rate limiter. A non-positive rps uses ProactiveRate.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = ProactiveRate
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		remaining: GitHubRateLimit, // Assume full quota initially
		limit:     GitHubRateLimit,
		bucket:    rate.NewLimiter(rate.Limit(rps), burst),
		minBuffer: MinBuffer,
	}
}

// Wait blocks on the token bucket, then fails fast with a rate-limited
// error when the reported quota is nearly spent and has not reset yet.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.bucket.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	remaining := r.remaining
	resetTime := r.resetTime
	r.mu.Unlock()

	if remaining < r.minBuffer && time.Now().Before(resetTime) {
		perr := domain.NewProviderError(domain.ProviderGitHub, domain.ProviderRateLimited, 0,
			errors.New("quota nearly exhausted"))
		perr.RetryAfter = time.Until(resetTime)
		return perr
	}
	return nil
}

// Update records the quota reported with a response.
func (r *RateLimiter) Update(resp *gh.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = resp.Rate.Remaining
	r.limit = resp.Rate.Limit
	r.resetTime = resp.Rate.Reset.Time
}

// Remaining returns the current remaining requests.
func (r *RateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining
}

// Limit returns the rate limit.
func (r *RateLimiter) Limit() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limit
}

// ResetTime returns the rate limit reset time.
func (r *RateLimiter) ResetTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resetTime
}

// limiters holds one RateLimiter per token, since GitHub meters tokens
// independently.
type limiters struct {
	mu    sync.Mutex
	rps   float64
	burst int
	byKey map[string]*RateLimiter
}

func newLimiters(rps float64, burst int) *limiters {
	return &limiters{rps: rps, burst: burst, byKey: map[string]*RateLimiter{}}
}

func (l *limiters) get(key string) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl, ok := l.byKey[key]
	if !ok {
		rl = NewRateLimiter(l.rps, l.burst)
		l.byKey[key] = rl
	}
	return rl
}
