package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter is a CounterStore backed by a shared Redis instance.
// INCR and EXPIRE NX are sent in one transactional pipeline so a
// concurrent burst against the same key cannot lose increments or
// apply an expiry from a stale window.
type RedisCounter struct {
	rdb *redis.Client
}

// NewRedisCounter creates a Redis-backed counter store.
func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// NX: only the increment that creates the key starts the window,
	// keeping a hard window boundary instead of a sliding one.
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("counter pipeline: %w", err)
	}
	return incr.Val(), nil
}

func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
