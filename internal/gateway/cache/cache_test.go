package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/GTFB/forlifely-sub004/internal/shared/redisstore"
)

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("gemini-2.5-flash", "hi")
	b := Fingerprint("gemini-2.5-flash", "hi")
	require.Equal(t, a, b)

	require.NotEqual(t, a, Fingerprint("gemini-2.5-pro", "hi"), "model is part of the key")
	require.NotEqual(t, a, Fingerprint("gemini-2.5-flash", "hello"))
}

func TestMemoryBackend(t *testing.T) {
	c := New(nil, time.Minute, true)
	ctx := context.Background()
	fp := Fingerprint("gemini-2.5-flash", "hi")

	_, err := c.Get(ctx, fp)
	require.ErrorIs(t, err, ErrMiss)

	entry := &Entry{RequestID: "req_1", Model: "gemini-2.5-flash", Content: "hello"}
	require.NoError(t, c.Set(ctx, fp, entry))

	got, err := c.Get(ctx, fp)
	require.NoError(t, err)
	require.Equal(t, entry, got)
}

func TestRedisBackend(t *testing.T) {
	s := miniredis.RunT(t)
	rc := redisstore.NewFromClient(redis.NewClient(&redis.Options{Addr: s.Addr()}))
	c := New(rc, time.Minute, true)
	ctx := context.Background()
	fp := Fingerprint("gemini-2.5-flash", "hi")

	_, err := c.Get(ctx, fp)
	require.ErrorIs(t, err, ErrMiss)

	entry := &Entry{RequestID: "req_1", Model: "gemini-2.5-flash", Content: "hello"}
	require.NoError(t, c.Set(ctx, fp, entry))

	got, err := c.Get(ctx, fp)
	require.NoError(t, err)
	require.Equal(t, entry, got)

	// Entries expire after the fixed TTL.
	s.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, fp)
	require.ErrorIs(t, err, ErrMiss)
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	c := New(nil, time.Minute, false)
	ctx := context.Background()
	fp := Fingerprint("m", "x")

	require.NoError(t, c.Set(ctx, fp, &Entry{Content: "v"}))
	_, err := c.Get(ctx, fp)
	require.ErrorIs(t, err, ErrMiss)
}
