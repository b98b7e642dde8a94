package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
)

// RateRepository persists asset prices. Rates never participate in
// ledger transactions, so reads go straight to the pool.
type RateRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewRateRepository creates a new rate repository
func NewRateRepository(db *sql.DB, logger *zap.Logger) *RateRepository {
	return &RateRepository{
		db:     sqlx.NewDb(db, "postgres"),
		logger: logger,
	}
}

// Get retrieves the current price for an asset
func (r *RateRepository) Get(ctx context.Context, asset string) (*entities.Rate, error) {
	query := `SELECT asset, price, updated_at FROM rates WHERE asset = $1`

	rate := &entities.Rate{}
	if err := r.db.GetContext(ctx, rate, query, asset); err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("rate")
		}
		return nil, fmt.Errorf("failed to get rate: %w", err)
	}

	return rate, nil
}

// Upsert stores the current price for an asset
func (r *RateRepository) Upsert(ctx context.Context, asset string, price decimal.Decimal) error {
	query := `
		INSERT INTO rates (asset, price, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset)
		DO UPDATE SET price = EXCLUDED.price, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, asset, price, time.Now()); err != nil {
		r.logger.Error("failed to upsert rate",
			zap.Error(err),
			zap.String("asset", asset),
			zap.String("price", price.String()),
		)
		return fmt.Errorf("failed to upsert rate: %w", err)
	}

	return nil
}
