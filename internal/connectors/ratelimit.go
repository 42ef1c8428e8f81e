package connectors

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// DefaultBackoff is the pause after a 429 that carried no Retry-After.
const DefaultBackoff = 60 * time.Second

// RateLimiter throttles outbound provider calls with a token bucket and
// honours provider-requested pauses after throttling responses.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// NewRateLimiter creates a limiter. Non-positive values fall back to
// 5 requests per second with a burst of 10.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wait blocks until a request may be sent. It returns early with the
// remaining pause when the provider asked us to back off, so the sync can
// reschedule instead of holding a worker.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if pause := r.Paused(); pause > 0 {
		return &PausedError{RetryAfter: pause}
	}
	return r.limiter.Wait(ctx)
}

// Backoff records a throttling response. Zero uses DefaultBackoff.
func (r *RateLimiter) Backoff(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = DefaultBackoff
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if until := time.Now().Add(retryAfter); until.After(r.retryAt) {
		r.retryAt = until
	}
}

// Paused returns how long the provider still wants us to wait.
func (r *RateLimiter) Paused() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := time.Until(r.retryAt); d > 0 {
		return d
	}
	return 0
}

// PausedError reports that calls are paused after a throttling response.
type PausedError struct {
	RetryAfter time.Duration
}

func (e *PausedError) Error() string {
	return "provider rate limit pause in effect for " + e.RetryAfter.Round(time.Second).String()
}

// WaitError converts a Wait failure for the sync engine: a pause becomes a
// rate-limited ProviderError, anything else is returned unchanged.
func WaitError(provider domain.ProviderType, err error) error {
	var paused *PausedError
	if errors.As(err, &paused) {
		perr := domain.NewProviderError(provider, domain.ProviderRateLimited, 0, err)
		perr.RetryAfter = paused.RetryAfter
		return perr
	}
	return err
}
