package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/stadium-tickets/internal/adapters/redis"
)

const keyPrefix = "rl:"

// RateLimiter is a fixed-window counter over redis. Fail-open: if redis
// is unreachable the request is admitted, reservation correctness never
// depends on the limiter.
type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

// Allow reports whether the caller identified by key is under rate for
// the current window. The INCR and EXPIRE run in one pipeline; the
// window restarts when the key expires, so a burst can straddle two
// windows and briefly see up to 2x rate. Acceptable for an abuse
// backstop in front of the real per-seat checks.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	fullKey := keyPrefix + key

	pipe := rl.redis.Client().Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, period)

	if _, err := pipe.Exec(ctx); err != nil {
		return true
	}

	return incr.Val() <= int64(rate)
}
