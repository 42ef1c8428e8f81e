package services

import (
	"time"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// RetryPolicy controls page-level retries of transient provider failures.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the delay before the first retry. It doubles each retry.
	BaseDelay time.Duration
}

// DefaultRetryPolicy retries three times after 1s, 2s and 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}
}

// Delay returns the backoff before retry number retry (zero based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	return p.BaseDelay << uint(retry)
}

// retryable reports whether a fetch error may succeed on a plain retry.
// Errors the adapter did not classify are treated as transient network failures.
func retryable(err error) bool {
	return !domain.IsPermanent(err) && !domain.IsUnauthorized(err) && !domain.IsRateLimited(err)
}
