// Package ratelimit caps how often an identity may request a new OTP.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filegate/internal/common"
	"github.com/redis/go-redis/v9"
)

const otpRateLimitPrefix = "otp_rate_limit:"

// Limiter admits or refuses one OTP request for a key.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// RedisLimiter is a fixed-window counter per key. The window starts with the
// first request and lasts window.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: int64(limit), window: window}
}

// Allow returns common.ErrRateLimited once key exceeds the limit in the
// current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	k := otpRateLimitPrefix + key

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("rate limit incr: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return fmt.Errorf("rate limit expire: %w", err)
		}
	}

	if count > l.limit {
		return common.ErrRateLimited
	}
	return nil
}

// Nop admits everything. Used when no Redis is configured.
type Nop struct{}

func (Nop) Allow(context.Context, string) error { return nil }

// NewRedisClient connects to addr and checks it answers PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
