package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
)

// leaseStore implements driven.LeaseStore on a single table. SQLite
// serialises writers, so the conditional upsert is atomic.
type leaseStore struct {
	store *Store
}

var _ driven.LeaseStore = (*leaseStore)(nil)

// Acquire takes the lease if it is free, expired, or already held by holder.
func (s *leaseStore) Acquire(ctx context.Context, connectionID, holder string, ttl time.Duration) (bool, error) {
	now := time.Now()
	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_leases (connection_id, holder, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(connection_id) DO UPDATE SET
			holder = excluded.holder,
			expires_at = excluded.expires_at
		WHERE sync_leases.expires_at <= ? OR sync_leases.holder = excluded.holder
	`, connectionID, holder, formatTime(now.Add(ttl)), formatTime(now))
	if err != nil {
		return false, fmt.Errorf("acquiring lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquiring lease: %w", err)
	}
	return n > 0, nil
}

// Renew extends the lease if holder still owns it and it has not expired.
func (s *leaseStore) Renew(ctx context.Context, connectionID, holder string, ttl time.Duration) (bool, error) {
	now := time.Now()
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE sync_leases SET expires_at = ?
		WHERE connection_id = ? AND holder = ? AND expires_at > ?
	`, formatTime(now.Add(ttl)), connectionID, holder, formatTime(now))
	if err != nil {
		return false, fmt.Errorf("renewing lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("renewing lease: %w", err)
	}
	return n > 0, nil
}

// Release drops the lease if holder still owns it.
func (s *leaseStore) Release(ctx context.Context, connectionID, holder string) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM sync_leases WHERE connection_id = ? AND holder = ?", connectionID, holder)
	if err != nil {
		return fmt.Errorf("releasing lease: %w", err)
	}
	return nil
}
