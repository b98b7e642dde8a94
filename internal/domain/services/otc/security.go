package otc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
)

// AccountReader loads accounts for gate checks.
type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error)
}

// OrderHistory answers volume and failure questions about past orders.
type OrderHistory interface {
	SumFiatVolumeSince(ctx context.Context, userID uuid.UUID, since time.Time) (decimal.Decimal, error)
	CountFailedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
}

// GateConfig carries the desk's per-user limits.
type GateConfig struct {
	MaxSingleOrderFiat decimal.Decimal
	MaxDailyVolumeFiat decimal.Decimal
	MaxFailedPerHour   int
}

// Gate enforces the security requirements every OTC order must pass:
// verified identity, active second factor, and the desk's volume and
// failure limits.
type Gate struct {
	accounts AccountReader
	orders   OrderHistory
	cfg      GateConfig
}

func NewGate(accounts AccountReader, orders OrderHistory, cfg GateConfig) *Gate {
	return &Gate{
		accounts: accounts,
		orders:   orders,
		cfg:      cfg,
	}
}

// Check validates an order of the given fiat value against every gate.
// The first failing gate decides the returned error.
func (g *Gate) Check(ctx context.Context, userID uuid.UUID, fiatAmount decimal.Decimal) error {
	account, err := g.accounts.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !account.TwoFAEnabled || account.KYCStatus != entities.KYCStatusApproved {
		return domainerrors.ErrSecurityRequirements
	}

	if fiatAmount.GreaterThan(g.cfg.MaxSingleOrderFiat) {
		return domainerrors.ErrOrderLimitExceeded
	}

	now := time.Now()

	failed, err := g.orders.CountFailedSince(ctx, userID, now.Add(-time.Hour))
	if err != nil {
		return err
	}
	if failed >= g.cfg.MaxFailedPerHour {
		return domainerrors.ErrRateLimit
	}

	volume, err := g.orders.SumFiatVolumeSince(ctx, userID, now.Add(-24*time.Hour))
	if err != nil {
		return err
	}
	if volume.Add(fiatAmount).GreaterThan(g.cfg.MaxDailyVolumeFiat) {
		return domainerrors.ErrOrderLimitExceeded
	}

	return nil
}
