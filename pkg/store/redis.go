package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter implements Counter on a redis instance. INCR is atomic and
// the TTL is attached only when the key has none yet, so concurrent
// submissions from the same submitter cannot extend each other's window or
// lose increments.
type RedisCounter struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCounter wraps an existing client. The prefix namespaces keys so
// strikes and rate-limit counters can share one redis database.
func NewRedisCounter(rdb *redis.Client, prefix string) *RedisCounter {
	return &RedisCounter{rdb: rdb, prefix: prefix}
}

func (c *RedisCounter) key(k string) string { return c.prefix + ":" + k }

func (c *RedisCounter) Get(ctx context.Context, key string) (int, error) {
	n, err := c.rdb.Get(ctx, c.key(key)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (c *RedisCounter) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int, error) {
	k := c.key(key)
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (c *RedisCounter) Clear(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.key(key)).Err()
}
