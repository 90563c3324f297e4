// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/trackdhq/trackd/internal/log"
)

// RedisCache is the Redis-backed implementation of Cache. Failures degrade
// to cache misses; the storage driver remains the source of truth.
type RedisCache struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		logger: log.WithComponent("cache"),
	}
}

func cacheKey(ns, key string) string {
	return ns + ":" + key
}

// Get retrieves a value; any Redis failure reads as a miss.
func (c *RedisCache) Get(ctx context.Context, ns, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, cacheKey(ns, key)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("ns", ns).Str("key", key).Msg("redis get failed")
		return nil, false
	}
	return val, true
}

// Set stores a value with TTL.
func (c *RedisCache) Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, cacheKey(ns, key), value, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("ns", ns).Str("key", key).Msg("redis set failed")
	}
}

// Delete invalidates one key.
func (c *RedisCache) Delete(ctx context.Context, ns, key string) {
	if err := c.client.Del(ctx, cacheKey(ns, key)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("ns", ns).Str("key", key).Msg("redis delete failed")
	}
}

// NewRedisClient builds the process-wide Redis client.
func NewRedisClient(host, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         host,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}
