package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func TestMarkSeenExpires(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(clock)
	ctx := context.Background()

	fresh, err := c.MarkSeen(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.True(t, fresh)

	fresh, err = c.MarkSeen(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.False(t, fresh)

	clock.now = clock.now.Add(time.Hour)
	fresh, err = c.MarkSeen(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.True(t, fresh)
}

func TestIncrementWindow(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)}
	c := New(clock)
	ctx := context.Background()
	midnight := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	total, err := c.Increment(ctx, "q", 2, midnight)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	total, err = c.Increment(ctx, "q", 3, midnight)
	require.NoError(t, err)
	require.Equal(t, 5, total)

	require.NoError(t, c.Decrement(ctx, "q", 1))
	total, err = c.Increment(ctx, "q", 0, midnight)
	require.NoError(t, err)
	require.Equal(t, 4, total)

	clock.now = midnight
	total, err = c.Increment(ctx, "q", 1, midnight.Add(24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, 1, c.Len())
}

func TestForget(t *testing.T) {
	t.Parallel()

	c := New(&fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})
	ctx := context.Background()

	fresh, err := c.MarkSeen(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.True(t, fresh)
	require.NoError(t, c.Forget(ctx, "k"))
	fresh, err = c.MarkSeen(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.True(t, fresh)
}
