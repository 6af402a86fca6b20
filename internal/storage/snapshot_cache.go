package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wallet-scanner/internal/logging"
	"github.com/wallet-scanner/internal/types"
)

// SnapshotCache stores recently assembled wallet snapshots so that repeated
// lookups within the TTL skip the full aggregation run. A cache outage never
// fails a request: misses and errors alike fall through to the engine.
type SnapshotCache struct {
	redis *RedisCache
	ttl   time.Duration
	log   *logging.Logger
}

// NewSnapshotCache creates a snapshot cache with the given TTL.
func NewSnapshotCache(redis *RedisCache, ttl time.Duration, log *logging.Logger) *SnapshotCache {
	return &SnapshotCache{
		redis: redis,
		ttl:   ttl,
		log:   log,
	}
}

func snapshotKey(address string) string {
	return fmt.Sprintf("snapshot:%s", address)
}

// Get returns the cached snapshot for an address, or nil on miss.
func (c *SnapshotCache) Get(ctx context.Context, address string) *types.WalletSnapshot {
	raw, err := c.redis.Get(ctx, snapshotKey(address))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).WithField("address", address).Warn("snapshot cache read failed")
		}
		return nil
	}

	var snapshot types.WalletSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		c.log.WithError(err).WithField("address", address).Warn("discarding undecodable cached snapshot")
		_ = c.redis.Del(ctx, snapshotKey(address))
		return nil
	}
	return &snapshot
}

// Put stores a snapshot under the configured TTL.
func (c *SnapshotCache) Put(ctx context.Context, snapshot *types.WalletSnapshot) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		c.log.WithError(err).WithField("address", snapshot.Address).Warn("snapshot serialization failed")
		return
	}
	if err := c.redis.Set(ctx, snapshotKey(snapshot.Address), raw, c.ttl); err != nil {
		c.log.WithError(err).WithField("address", snapshot.Address).Warn("snapshot cache write failed")
	}
}

// Invalidate drops the cached snapshot for an address.
func (c *SnapshotCache) Invalidate(ctx context.Context, address string) {
	if err := c.redis.Del(ctx, snapshotKey(address)); err != nil {
		c.log.WithError(err).WithField("address", address).Warn("snapshot cache invalidation failed")
	}
}
