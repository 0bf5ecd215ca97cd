package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter implements RateLimiter with fixed windows in Redis so
// limits hold across server instances.
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		prefix: "ratelimit",
	}
}

func (rl *RedisRateLimiter) redisKey(key string, limit int, window time.Duration) string {
	return fmt.Sprintf("%s:%s:%d:%s", rl.prefix, key, limit, window.String())
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	redisKey := rl.redisKey(key, limit, window)

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	return incr.Val() <= int64(limit), nil
}

func (rl *RedisRateLimiter) GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	count, err := rl.client.Get(ctx, rl.redisKey(key, limit, window)).Int()
	if err != nil {
		if err == redis.Nil {
			return limit, nil
		}
		return 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (rl *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	iter := rl.client.Scan(ctx, 0, fmt.Sprintf("%s:%s:*", rl.prefix, key), 0).Iterator()
	for iter.Next(ctx) {
		if err := rl.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete rate limit key: %w", err)
		}
	}
	return iter.Err()
}
