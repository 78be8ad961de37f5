package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	values    map[string]int64
	expiries  map[string]time.Time
	ttls      map[string]time.Duration
	failWith  error
	expireErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values:   make(map[string]int64),
		expiries: make(map[string]time.Time),
		ttls:     make(map[string]time.Duration),
	}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ interface{}, ttl time.Duration) *goredis.BoolCmd {
	if f.failWith != nil {
		return goredis.NewBoolResult(false, f.failWith)
	}
	if _, ok := f.values[key]; ok {
		return goredis.NewBoolResult(false, nil)
	}
	f.values[key] = 1
	f.ttls[key] = ttl
	return goredis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *goredis.IntCmd {
	if f.failWith != nil {
		return goredis.NewIntResult(0, f.failWith)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return goredis.NewIntResult(n, nil)
}

func (f *fakeRedis) IncrBy(_ context.Context, key string, v int64) *goredis.IntCmd {
	if f.failWith != nil {
		return goredis.NewIntResult(0, f.failWith)
	}
	f.values[key] += v
	return goredis.NewIntResult(f.values[key], nil)
}

func (f *fakeRedis) DecrBy(_ context.Context, key string, v int64) *goredis.IntCmd {
	f.values[key] -= v
	return goredis.NewIntResult(f.values[key], nil)
}

func (f *fakeRedis) ExpireAt(_ context.Context, key string, tm time.Time) *goredis.BoolCmd {
	if f.expireErr != nil {
		return goredis.NewBoolResult(false, f.expireErr)
	}
	f.expiries[key] = tm
	return goredis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Ping(context.Context) *goredis.StatusCmd {
	return goredis.NewStatusResult("PONG", f.failWith)
}

func (f *fakeRedis) Close() error { return nil }

func TestMarkSeen(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	c := newWithClient(fake, "")
	ctx := context.Background()

	fresh, err := c.MarkSeen(ctx, "acme:abc", 48*time.Hour)
	require.NoError(t, err)
	require.True(t, fresh)
	require.Equal(t, 48*time.Hour, fake.ttls["leadwatch:seen:acme:abc"])

	fresh, err = c.MarkSeen(ctx, "acme:abc", 48*time.Hour)
	require.NoError(t, err)
	require.False(t, fresh)
}

func TestIncrementSetsExpiryOnce(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	c := newWithClient(fake, "lw:")
	ctx := context.Background()
	midnight := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	total, err := c.Increment(ctx, "acme:llm:2025-01-01", 1, midnight)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, midnight, fake.expiries["lw:quota:acme:llm:2025-01-01"])

	delete(fake.expiries, "lw:quota:acme:llm:2025-01-01")
	total, err = c.Increment(ctx, "acme:llm:2025-01-01", 1, midnight)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.NotContains(t, fake.expiries, "lw:quota:acme:llm:2025-01-01")

	require.NoError(t, c.Decrement(ctx, "acme:llm:2025-01-01", 1))
	require.Equal(t, int64(1), fake.values["lw:quota:acme:llm:2025-01-01"])
}

func TestIncrementRollsBackWhenExpiryFails(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	fake.expireErr = errors.New("i/o timeout")
	c := newWithClient(fake, "lw:")
	midnight := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := c.Increment(context.Background(), "acme:search:2025-01-01", 3, midnight)
	require.ErrorContains(t, err, "redis expireat")
	require.Zero(t, fake.values["lw:quota:acme:search:2025-01-01"])
	require.NotContains(t, fake.expiries, "lw:quota:acme:search:2025-01-01")

	fake.expireErr = nil
	total, err := c.Increment(context.Background(), "acme:search:2025-01-01", 1, midnight)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, midnight, fake.expiries["lw:quota:acme:search:2025-01-01"])
}

func TestErrorsAreWrapped(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	fake.failWith = errors.New("connection refused")
	c := newWithClient(fake, "")

	_, err := c.MarkSeen(context.Background(), "k", time.Minute)
	require.ErrorContains(t, err, "redis setnx")
	_, err = c.Increment(context.Background(), "k", 1, time.Time{})
	require.ErrorContains(t, err, "redis incrby")
	require.ErrorContains(t, c.Ping(context.Background()), "redis ping")
}

func TestForget(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	c := newWithClient(fake, "lw:")
	ctx := context.Background()

	fresh, err := c.MarkSeen(ctx, "k1|fp", time.Hour)
	require.NoError(t, err)
	require.True(t, fresh)

	require.NoError(t, c.Forget(ctx, "k1|fp"))
	_, ok := fake.values["lw:seen:k1|fp"]
	require.False(t, ok)

	fresh, err = c.MarkSeen(ctx, "k1|fp", time.Hour)
	require.NoError(t, err)
	require.True(t, fresh)

	fake.failWith = errors.New("down")
	require.Error(t, c.Forget(ctx, "k1|fp"))
}
