// Package redis provides a LeaseStore backed by Redis, for deployments
// where several worker processes sync the same connections.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.LeaseStore = (*LeaseStore)(nil)

// DefaultPrefix namespaces lease keys.
const DefaultPrefix = "syncengine:lease:"

// Lua sources for the holder-checked operations.
const (
	releaseSource = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`
	renewSource = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`
)

var (
	// releaseScript deletes the key only if the caller still holds it.
	releaseScript = goredis.NewScript(releaseSource)

	// renewScript moves the expiry only if the caller still holds the key.
	renewScript = goredis.NewScript(renewSource)
)

// LeaseStore implements driven.LeaseStore with SET NX PX.
type LeaseStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewLeaseStore creates a lease store. An empty prefix uses DefaultPrefix.
func NewLeaseStore(client goredis.UniversalClient, prefix string) *LeaseStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &LeaseStore{client: client, prefix: prefix}
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func (s *LeaseStore) key(connectionID string) string {
	return s.prefix + connectionID
}

// Acquire takes the lease if no unexpired lease exists. Expiry is enforced
// by Redis, so a crashed holder frees the key after ttl.
func (s *LeaseStore) Acquire(ctx context.Context, connectionID, holder string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(connectionID), holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", connectionID, err)
	}
	return ok, nil
}

// Renew extends the lease if holder still owns it. An expired key is gone,
// so a lapsed holder cannot renew.
func (s *LeaseStore) Renew(ctx context.Context, connectionID, holder string, ttl time.Duration) (bool, error) {
	n, err := renewScript.Run(ctx, s.client, []string{s.key(connectionID)}, holder, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("renew lease %s: %w", connectionID, err)
	}
	return n == 1, nil
}

// Release drops the lease if holder still owns it.
func (s *LeaseStore) Release(ctx context.Context, connectionID, holder string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.key(connectionID)}, holder).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", connectionID, err)
	}
	return nil
}

// Holder returns the current holder of a lease, or "" if it is free.
func (s *LeaseStore) Holder(ctx context.Context, connectionID string) (string, error) {
	holder, err := s.client.Get(ctx, s.key(connectionID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get lease %s: %w", connectionID, err)
	}
	return holder, nil
}
