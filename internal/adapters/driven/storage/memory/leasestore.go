package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
)

// Ensure LeaseStore implements the interface.
var _ driven.LeaseStore = (*LeaseStore)(nil)

// LeaseStore is an in-process implementation of driven.LeaseStore.
type LeaseStore struct {
	mu     sync.Mutex
	leases map[string]domain.Lease
	now    func() time.Time
}

// NewLeaseStore creates a new in-memory lease store.
func NewLeaseStore() *LeaseStore {
	return &LeaseStore{
		leases: make(map[string]domain.Lease),
		now:    time.Now,
	}
}

// WithClock overrides the time source used to expire leases.
func (s *LeaseStore) WithClock(now func() time.Time) *LeaseStore {
	s.now = now
	return s
}

// Acquire takes the lease if it is free or expired.
func (s *LeaseStore) Acquire(_ context.Context, connectionID, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if lease, ok := s.leases[connectionID]; ok && lease.Holder != holder && now.Before(lease.ExpiresAt) {
		return false, nil
	}
	s.leases[connectionID] = domain.Lease{ConnectionID: connectionID, Holder: holder, ExpiresAt: now.Add(ttl)}
	return true, nil
}

// Renew extends an unexpired lease owned by holder.
func (s *LeaseStore) Renew(_ context.Context, connectionID, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	lease, ok := s.leases[connectionID]
	if !ok || lease.Holder != holder || !now.Before(lease.ExpiresAt) {
		return false, nil
	}
	lease.ExpiresAt = now.Add(ttl)
	s.leases[connectionID] = lease
	return true, nil
}

// Release drops the lease if holder owns it.
func (s *LeaseStore) Release(_ context.Context, connectionID, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lease, ok := s.leases[connectionID]; ok && lease.Holder == holder {
		delete(s.leases, connectionID)
	}
	return nil
}
