package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	"github.com/fhuszti/picsee-preprocessor/internal/port"
)

// RedisIndex keeps fingerprint -> location entries in Redis, so duplicates are
// caught across sessions and api replicas until the entries expire.
type RedisIndex struct {
	client *redis.Client
	ttl    time.Duration
}

// compile-time check: *RedisIndex must satisfy port.UploadIndex
var _ port.UploadIndex = (*RedisIndex)(nil)

func NewRedisIndex(addr, password string, ttl time.Duration) *RedisIndex {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	return &RedisIndex{client: rdb, ttl: ttl}
}

func (c *RedisIndex) Lookup(ctx context.Context, fingerprint string) (string, bool, error) {
	logger.Debugf(ctx, "looking up uploaded file %q...", fingerprint)

	val, err := c.client.Get(ctx, getCacheKey(fingerprint)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil // cache miss
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}
	return val, true, nil
}

func (c *RedisIndex) Remember(ctx context.Context, fingerprint, location string) error {
	logger.Debugf(ctx, "remembering uploaded file %q for %s...", fingerprint, c.ttl)

	if err := c.client.Set(ctx, getCacheKey(fingerprint), location, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisIndex) Forget(ctx context.Context, fingerprint string) error {
	logger.Debugf(ctx, "forgetting uploaded file %q...", fingerprint)

	if err := c.client.Del(ctx, getCacheKey(fingerprint)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func (c *RedisIndex) Close() error {
	return c.client.Close()
}

func getCacheKey(fingerprint string) string {
	return "uploaded:" + fingerprint
}
