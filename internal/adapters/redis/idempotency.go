package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempPrefix = "idemp:"

// Idempotency stores replayed responses for reservation POSTs keyed by
// the client's Idempotency-Key header. An expired key simply means the
// claim runs again, and the store-level checks make the rerun safe.
type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

type IdempResponse struct {
	Status int             `json:"status"`
	Result json.RawMessage `json:"result"`
}

// Get returns the stored response for key, or nil when the key is
// absent or expired.
func (i *Idempotency) Get(ctx context.Context, key string) (*IdempResponse, error) {
	val, err := i.client.Get(ctx, idempPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp IdempResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp IdempResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.client.Set(ctx, idempPrefix+key, data, ttl).Err()
}
