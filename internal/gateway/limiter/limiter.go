package limiter

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/GTFB/forlifely-sub004/internal/shared/models"
	"github.com/GTFB/forlifely-sub004/internal/shared/redisstore"
)

var (
	// ErrBudgetExceeded means cumulative usage has reached the monthly
	// ceiling. Surfaced as 402.
	ErrBudgetExceeded = errors.New("monthly budget exceeded")
	// ErrRateLimited means the per-minute window is full. Surfaced as 429.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Guard enforces the per-caller budget ceiling and the per-minute request
// window. Both checks are read-then-act without transactional isolation,
// so concurrent requests can transiently overshoot; accepted looseness.
type Guard struct {
	redis        *redisstore.Client
	defaultLimit int
}

// New creates a guard. redis may be nil, in which case rate limiting is
// disabled (budget checks still apply).
func New(redis *redisstore.Client, defaultLimit int) *Guard {
	return &Guard{redis: redis, defaultLimit: defaultLimit}
}

// CheckBudget rejects callers whose usage has reached their monthly budget.
func (g *Guard) CheckBudget(acct *models.CallerAccount) error {
	if acct.BudgetExhausted() {
		return ErrBudgetExceeded
	}
	return nil
}

// CheckRate counts this request against the caller's one-minute window.
// Counter store failures fail open: a degraded Redis must not take the
// gateway down with it.
func (g *Guard) CheckRate(ctx context.Context, acct *models.CallerAccount) error {
	if g.redis == nil {
		return nil
	}

	limit := acct.RateLimitPerMinute
	if limit <= 0 {
		limit = g.defaultLimit
	}

	exceeded, _, err := g.redis.CheckRateLimit(ctx, acct.ID, limit)
	if err != nil {
		log.Warn().Err(err).Str("account", acct.ID).Msg("rate limit check failed, allowing request")
		return nil
	}
	if exceeded {
		return ErrRateLimited
	}
	return nil
}
