package driven

import (
	"context"
	"time"
)

// LeaseStore provides per-connection exclusivity with expiry, shared by every
// worker process that points at the same backend.
type LeaseStore interface {
	// Acquire takes the lease if it is free or expired.
	// Returns false, nil if another holder owns an unexpired lease.
	Acquire(ctx context.Context, connectionID, holder string, ttl time.Duration) (bool, error)

	// Renew extends the lease to ttl from now if holder still owns it and it
	// has not expired. Returns false, nil once the lease is lost.
	Renew(ctx context.Context, connectionID, holder string, ttl time.Duration) (bool, error)

	// Release drops the lease if holder still owns it.
	Release(ctx context.Context, connectionID, holder string) error
}
