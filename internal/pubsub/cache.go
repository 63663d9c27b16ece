package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agenttrace/agenttrace/internal/apperrors"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "agenttrace:cache:"

// Cache wraps a Redis client as a small TTL cache for expensive aggregate
// queries, mirroring the upstream metrics-snapshot cache that sits in
// front of the metrics_summary query: recomputing p50/p95/p99 latency on
// every request is wasteful when the window barely moves between calls.
type Cache struct {
	client *redis.Client
}

// NewCache wraps client for snapshot caching.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// SetSnapshot stores v as JSON under key with the given time-to-live.
func (c *Cache) SetSnapshot(ctx context.Context, key string, v any, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return apperrors.NewPubSubError("cache-marshal", err)
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+key, payload, ttl).Err(); err != nil {
		return apperrors.NewPubSubError("cache-set", err)
	}
	return nil
}

// GetSnapshot reads key into out, returning (false, nil) on a cache miss.
func (c *Cache) GetSnapshot(ctx context.Context, key string, out any) (bool, error) {
	payload, err := c.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewPubSubError("cache-get", err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, apperrors.NewPubSubError("cache-unmarshal", err)
	}
	return true, nil
}
