package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAllocator keeps counters in redis so every instance of the service
// hands out numbers from the same sequence. Keys expire after a day; the
// date in the key makes stale reads harmless even if expiry lags.
type RedisAllocator struct {
	client *redis.Client
}

func NewRedisAllocator(client *redis.Client) *RedisAllocator {
	return &RedisAllocator{client: client}
}

func (a *RedisAllocator) Next(ctx context.Context, branchID, prefix string, day time.Time) (int64, error) {
	key := dayKey(branchID, prefix, day)
	if err := a.client.SetNX(ctx, key, seedValue, 24*time.Hour).Err(); err != nil {
		return 0, fmt.Errorf("seed sequence %s: %w", key, err)
	}
	n, err := a.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment sequence %s: %w", key, err)
	}
	return n, nil
}
