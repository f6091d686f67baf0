package limiter

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/GTFB/forlifely-sub004/internal/shared/models"
	"github.com/GTFB/forlifely-sub004/internal/shared/redisstore"
)

func TestCheckBudget(t *testing.T) {
	g := New(nil, 60)

	require.NoError(t, g.CheckBudget(&models.CallerAccount{MonthlyBudgetUSD: 10, UsageUSD: 5}))
	require.ErrorIs(t, g.CheckBudget(&models.CallerAccount{MonthlyBudgetUSD: 10, UsageUSD: 10}), ErrBudgetExceeded)
	require.ErrorIs(t, g.CheckBudget(&models.CallerAccount{MonthlyBudgetUSD: 10, UsageUSD: 12}), ErrBudgetExceeded)
}

func TestCheckRateThreshold(t *testing.T) {
	s := miniredis.RunT(t)
	rc := redisstore.NewFromClient(redis.NewClient(&redis.Options{Addr: s.Addr()}))
	g := New(rc, 60)
	ctx := context.Background()

	acct := &models.CallerAccount{ID: "acct-1", RateLimitPerMinute: 3}

	for i := 0; i < 3; i++ {
		require.NoError(t, g.CheckRate(ctx, acct), "request %d within the window must pass", i+1)
	}
	require.ErrorIs(t, g.CheckRate(ctx, acct), ErrRateLimited, "request threshold+1 must be rejected")
}

func TestCheckRateUsesDefaultLimit(t *testing.T) {
	s := miniredis.RunT(t)
	rc := redisstore.NewFromClient(redis.NewClient(&redis.Options{Addr: s.Addr()}))
	g := New(rc, 2)
	ctx := context.Background()

	acct := &models.CallerAccount{ID: "acct-2"}

	require.NoError(t, g.CheckRate(ctx, acct))
	require.NoError(t, g.CheckRate(ctx, acct))
	require.ErrorIs(t, g.CheckRate(ctx, acct), ErrRateLimited)
}

func TestCheckRateWithoutRedisAllows(t *testing.T) {
	g := New(nil, 1)
	acct := &models.CallerAccount{ID: "acct-3", RateLimitPerMinute: 1}

	for i := 0; i < 5; i++ {
		require.NoError(t, g.CheckRate(context.Background(), acct))
	}
}
