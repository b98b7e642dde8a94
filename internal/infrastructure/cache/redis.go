// Package cache wraps Redis behind the small surface the service needs:
// JSON get/set/del for the rate cache, plus raw client access for the
// rate limiter's INCR-based counters.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/custody-service/custody_service/internal/infrastructure/config"
)

// RedisClient is the cache surface exposed to services. Values round-trip
// through JSON.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Del(ctx context.Context, key string) error
	Client() *redis.Client
	Close() error
}

type redisClient struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisClient connects to Redis and verifies the connection before
// returning. A service that cannot reach its cache should fail at startup,
// not on the first quote.
func NewRedisClient(cfg *config.RedisConfig, logger *zap.Logger) (RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("connected to redis",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
	)

	return &redisClient{client: rdb, logger: logger}, nil
}

func (r *redisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// Get unmarshals the cached value into dest. A miss is an error so callers
// fall through to their backing store.
func (r *redisClient) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return fmt.Errorf("key %q not found: %w", key, err)
	}
	if err != nil {
		return fmt.Errorf("failed to get key %q: %w", key, err)
	}
	return json.Unmarshal([]byte(val), dest)
}

func (r *redisClient) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Client exposes the underlying go-redis client for callers that need
// operations beyond the JSON surface, like the rate limiter.
func (r *redisClient) Client() *redis.Client {
	return r.client
}

func (r *redisClient) Close() error {
	return r.client.Close()
}
