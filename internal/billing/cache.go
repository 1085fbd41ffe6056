package billing

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// BalanceCache memoises computed balances in Redis for a short TTL.
// Balances are a function of wall-clock time, so a bounded staleness is
// acceptable and saves the per-request ledger walk. A nil cache or client
// degrades to calling the loader directly.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBalanceCache instantiates the cache helper.
func NewBalanceCache(client *redis.Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl}
}

func balanceCacheKey(key Key) string {
	return "billing:balance:" + key.String()
}

// Fetch returns the cached balance for the key or computes and stores it.
func (c *BalanceCache) Fetch(ctx context.Context, key Key, loader func(context.Context) (float64, error)) (float64, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	raw, err := c.client.Get(ctx, balanceCacheKey(key)).Result()
	if err == nil {
		if cached, parseErr := strconv.ParseFloat(raw, 64); parseErr == nil {
			return cached, nil
		}
	} else if err != redis.Nil {
		return 0, err
	}
	balance, err := loader(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.client.Set(ctx, balanceCacheKey(key), strconv.FormatFloat(balance, 'f', -1, 64), c.ttl).Err(); err != nil {
		return 0, err
	}
	return balance, nil
}

// Invalidate drops the cached balance for the key, used after a plan
// transition so the next read reflects the new period immediately.
func (c *BalanceCache) Invalidate(ctx context.Context, key Key) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, balanceCacheKey(key)).Err()
}
