package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSupplyTTL = 5 * time.Minute

// SupplyCache caches a mint's total ui supply for a short window, backed by
// Redis. Key format: supply:<mint>
type SupplyCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSupplyCache creates a SupplyCache wrapping the given Redis client.
// A non-positive ttl falls back to the default window.
func NewSupplyCache(client *redis.Client, ttl time.Duration) *SupplyCache {
	if ttl <= 0 {
		ttl = defaultSupplyTTL
	}
	return &SupplyCache{client: client, ttl: ttl}
}

// Get returns the cached supply for mint and whether a fresh value was found.
func (c *SupplyCache) Get(ctx context.Context, mint string) (float64, bool, error) {
	raw, err := c.client.Get(ctx, c.key(mint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("supply cache get: %w", err)
	}

	supply, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		// A corrupt entry is treated as a miss; it will be overwritten.
		return 0, false, nil
	}
	return supply, true, nil
}

// Set stores the supply for mint, expiring after the configured window.
func (c *SupplyCache) Set(ctx context.Context, mint string, supply float64) error {
	value := strconv.FormatFloat(supply, 'f', -1, 64)
	return c.client.Set(ctx, c.key(mint), value, c.ttl).Err()
}

func (c *SupplyCache) key(mint string) string {
	return "supply:" + mint
}
