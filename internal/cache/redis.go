package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces pipeline keys inside a shared Redis.
const DefaultRedisPrefix = "logpipe:"

// RedisCache stores entries in Redis. Expiry is enforced by Redis itself,
// so no sweep is needed.
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

// NewRedisCache wraps a Redis client.
func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Has(ctx context.Context, key string) bool {
	n, err := c.client.Exists(ctx, c.prefix+key).Result()
	if err != nil {
		slog.Debug("Redis cache EXISTS failed", "key", key, "error", err)
		return false
	}
	return n > 0
}

func (c *RedisCache) Get(ctx context.Context, key string, def []byte) []byte {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return def
	}
	if err != nil {
		slog.Debug("Redis cache GET failed", "key", key, "error", err)
		return def
	}
	return data
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if ttl < 0 {
		ttl = NoExpiration
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		slog.Debug("Redis cache SET failed", "key", key, "error", err)
		return false
	}
	return true
}
