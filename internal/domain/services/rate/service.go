// Package rate serves asset prices for the OTC desk. Reads go through a
// short Redis cache so quote bursts do not hammer the rates table.
package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/custody-service/custody_service/internal/domain/entities"
	"github.com/custody-service/custody_service/internal/infrastructure/cache"
	"github.com/custody-service/custody_service/pkg/logger"
)

const cacheTTL = 30 * time.Second

// Repository is the persistence the rate service needs.
type Repository interface {
	Get(ctx context.Context, asset string) (*entities.Rate, error)
	Upsert(ctx context.Context, asset string, price decimal.Decimal) error
}

type Service struct {
	repo   Repository
	cache  cache.RedisClient
	logger *logger.Logger
}

func NewService(repo Repository, cache cache.RedisClient, logger *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

func cacheKey(asset string) string {
	return fmt.Sprintf("rate:%s", asset)
}

// Current returns the latest price for an asset, from cache when fresh
func (s *Service) Current(ctx context.Context, asset string) (*entities.Rate, error) {
	var cached entities.Rate
	if err := s.cache.Get(ctx, cacheKey(asset), &cached); err == nil {
		return &cached, nil
	}

	rate, err := s.repo.Get(ctx, asset)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cacheKey(asset), rate, cacheTTL); err != nil {
		s.logger.Warn("failed to cache rate", "asset", asset, "error", err)
	}

	return rate, nil
}

// Update stores a new price and invalidates the cache
func (s *Service) Update(ctx context.Context, asset string, price decimal.Decimal) error {
	if price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("price must be positive")
	}

	if err := s.repo.Upsert(ctx, asset, price); err != nil {
		return err
	}

	if err := s.cache.Del(ctx, cacheKey(asset)); err != nil {
		s.logger.Warn("failed to invalidate rate cache", "asset", asset, "error", err)
	}

	s.logger.Info("rate updated", "asset", asset, "price", price.String())
	return nil
}
