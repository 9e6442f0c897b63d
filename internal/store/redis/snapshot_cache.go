package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gosuda/clinaudit/internal/domain"
)

// KeyValueAPI is the subset of *redis.Client used by SnapshotCache.
type KeyValueAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// SnapshotCache keeps recently resolved actor snapshots so the recorder does
// not hit the user directory on every event.
type SnapshotCache struct {
	client KeyValueAPI
	ttl    time.Duration
}

// NewSnapshotCache wraps an existing client. Entries expire after ttl.
func NewSnapshotCache(client KeyValueAPI, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

// SnapshotCache shares the PubSub connection.
func (ps *PubSub) SnapshotCache(ttl time.Duration) *SnapshotCache {
	return NewSnapshotCache(ps.client, ttl)
}

// SnapshotKey returns the cache key for an actor.
func SnapshotKey(actorID string) string {
	return "actor-snapshot:" + actorID
}

// Get returns the cached snapshot, or nil on a miss.
func (c *SnapshotCache) Get(ctx context.Context, actorID string) (*domain.ActorSnapshot, error) {
	data, err := c.client.Get(ctx, SnapshotKey(actorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis.SnapshotCache.Get: %w", err)
	}

	var snap domain.ActorSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("redis.SnapshotCache.Get: unmarshal: %w", err)
	}
	return &snap, nil
}

func (c *SnapshotCache) Set(ctx context.Context, actorID string, snap *domain.ActorSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis.SnapshotCache.Set: marshal: %w", err)
	}
	if err := c.client.Set(ctx, SnapshotKey(actorID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis.SnapshotCache.Set: %w", err)
	}
	return nil
}
