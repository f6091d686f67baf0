package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	return NewFromClient(redis.NewClient(&redis.Options{Addr: s.Addr()})), s
}

func TestGetSet(t *testing.T) {
	c, s := newTestClient(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	val, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", val)

	s.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCheckRateLimit(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		exceeded, _, err := c.CheckRateLimit(ctx, "acct-1", 3)
		require.NoError(t, err)
		require.False(t, exceeded, "request %d should pass", i+1)
	}

	exceeded, remaining, err := c.CheckRateLimit(ctx, "acct-1", 3)
	require.NoError(t, err)
	require.True(t, exceeded)
	require.Equal(t, 0, remaining)

	// Another account has its own window.
	exceeded, _, err = c.CheckRateLimit(ctx, "acct-2", 3)
	require.NoError(t, err)
	require.False(t, exceeded)
}

func TestNextIndexCycles(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	for _, want := range []int{0, 1, 2, 0, 1} {
		idx, err := c.NextIndex(ctx, "google:*", 3)
		require.NoError(t, err)
		require.Equal(t, want, idx)
	}

	_, err := c.NextIndex(ctx, "google:*", 0)
	require.Error(t, err)
}

func TestNextIndexIndependentKeys(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	idx, err := c.NextIndex(ctx, "google:*", 2)
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	idx, err = c.NextIndex(ctx, "groq:*", 2)
	require.NoError(t, err)
	require.Equal(t, 0, idx)
}
