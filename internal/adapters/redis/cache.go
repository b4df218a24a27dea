package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// AcquireSeatLock is a fast-path filter in front of the database claim:
// under a burst on one seat only the SetNX winner reaches the store.
// The relational store stays the authority; a missing or expired key
// never admits a claim on its own.
func (c *Cache) AcquireSeatLock(ctx context.Context, matchID, seatID, userID string, ttl time.Duration) (bool, error) {
	key := "seat:" + matchID + ":" + seatID
	res := c.client.SetNX(ctx, key, userID, ttl)
	return res.Val(), res.Err()
}

// ReleaseSeatLock drops the fast-path key after a failed claim or a
// cancellation so the seat is immediately claimable again.
func (c *Cache) ReleaseSeatLock(ctx context.Context, matchID, seatID string) error {
	return c.client.Del(ctx, "seat:"+matchID+":"+seatID).Err()
}
