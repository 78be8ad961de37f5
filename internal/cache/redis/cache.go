// Package redis backs SeenCache and QuotaCounter with Redis so several replicas share state.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// commander is the subset of go-redis used here; *goredis.Client satisfies it.
type commander interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	IncrBy(ctx context.Context, key string, value int64) *goredis.IntCmd
	DecrBy(ctx context.Context, key string, decrement int64) *goredis.IntCmd
	ExpireAt(ctx context.Context, key string, tm time.Time) *goredis.BoolCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

// Options configures the Redis connection.
type Options struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

// Cache stores dedupe markers and budget counters in Redis.
type Cache struct {
	client commander
	prefix string
}

// New dials Redis and verifies connectivity.
func New(ctx context.Context, opts Options) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newWithClient(client, opts.KeyPrefix), nil
}

func newWithClient(client commander, prefix string) *Cache {
	if prefix == "" {
		prefix = "leadwatch:"
	}
	return &Cache{client: client, prefix: prefix}
}

// MarkSeen sets key with SETNX and reports whether it was absent.
func (c *Cache) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.prefix+"seen:"+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Forget deletes the dedupe marker for key.
func (c *Cache) Forget(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+"seen:"+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Increment adds n to the counter and pins its expiry when first created.
func (c *Cache) Increment(ctx context.Context, key string, n int, expireAt time.Time) (int, error) {
	full := c.prefix + "quota:" + key
	total, err := c.client.IncrBy(ctx, full, int64(n)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incrby: %w", err)
	}
	if total == int64(n) && !expireAt.IsZero() {
		if err := c.client.ExpireAt(ctx, full, expireAt).Err(); err != nil {
			// A counter without a TTL would never reset; undo the increment.
			if derr := c.client.DecrBy(context.WithoutCancel(ctx), full, int64(n)).Err(); derr != nil {
				err = errors.Join(err, fmt.Errorf("redis decrby: %w", derr))
			}
			return 0, fmt.Errorf("redis expireat: %w", err)
		}
	}
	return int(total), nil
}

// Decrement subtracts n from the counter.
func (c *Cache) Decrement(ctx context.Context, key string, n int) error {
	if err := c.client.DecrBy(ctx, c.prefix+"quota:"+key, int64(n)).Err(); err != nil {
		return fmt.Errorf("redis decrby: %w", err)
	}
	return nil
}

// Ping checks connectivity for readiness probes.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
