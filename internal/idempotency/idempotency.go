package idempotency

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/stadium-tickets/internal/adapters/redis"
)

// Idempotency replays the stored response for a repeated reservation
// POST instead of re-running the claim.
type Idempotency struct {
	redis *redisadapter.Idempotency
	ttl   time.Duration
}

func NewIdempotency(redis *redisadapter.Idempotency, ttl time.Duration) *Idempotency {
	return &Idempotency{redis: redis, ttl: ttl}
}

type Response struct {
	Status int
	Result []byte
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	stored, err := i.redis.Get(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}
	return &Response{Status: stored.Status, Result: stored.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	return i.redis.Set(ctx, key, redisadapter.IdempResponse{
		Status: resp.Status,
		Result: resp.Result,
	}, i.ttl)
}
