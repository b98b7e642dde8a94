// Package ratelimit provides a Redis-backed fixed-window request limiter
// for the HTTP API. Counters live in Redis so limits hold across instances.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Config carries one limiter's window parameters.
type Config struct {
	Limit  int64
	Window time.Duration
}

// Result reports the outcome of a limit check.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter counts requests per key in fixed windows.
type Limiter struct {
	redis  *redis.Client
	cfg    Config
	logger *zap.Logger
}

// NewLimiter creates a limiter over the given Redis client
func NewLimiter(redis *redis.Client, cfg Config, logger *zap.Logger) *Limiter {
	return &Limiter{
		redis:  redis,
		cfg:    cfg,
		logger: logger,
	}
}

// Allow counts one request against the key's current window. When Redis is
// unreachable the request is allowed; availability wins over strictness
// here, the balance-moving operations have their own guards.
func (l *Limiter) Allow(ctx context.Context, key string) (*Result, error) {
	window := time.Now().Unix() / int64(l.cfg.Window.Seconds())
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, window)

	count, err := l.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		l.logger.Warn("rate limit check failed, allowing request",
			zap.String("key", key), zap.Error(err))
		return &Result{Allowed: true, Remaining: l.cfg.Limit}, nil
	}
	if count == 1 {
		l.redis.Expire(ctx, redisKey, l.cfg.Window)
	}

	if count > l.cfg.Limit {
		reset := time.Unix((window+1)*int64(l.cfg.Window.Seconds()), 0)
		return &Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: time.Until(reset),
		}, nil
	}

	return &Result{Allowed: true, Remaining: l.cfg.Limit - count}, nil
}
