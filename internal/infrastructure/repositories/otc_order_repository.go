package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
)

// OtcOrderRepository persists OTC orders. Status transitions are guarded
// updates so two workers racing over the same order cannot both win.
type OtcOrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOtcOrderRepository creates a new OTC order repository
func NewOtcOrderRepository(db *sql.DB, logger *zap.Logger) *OtcOrderRepository {
	return &OtcOrderRepository{
		db:     db,
		logger: logger,
	}
}

const orderColumns = `id, user_id, order_type, status, amount, price, fiat_amount,
		fiat_currency, network, is_pre_order, fiat_deposited, expires_at, created_at, updated_at`

// Create stores a new order
func (r *OtcOrderRepository) Create(ctx context.Context, order *entities.OtcOrder) error {
	query := `
		INSERT INTO otc_orders (id, user_id, order_type, status, amount, price,
			fiat_amount, fiat_currency, network, is_pre_order, fiat_deposited,
			expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	now := time.Now()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err := exec(ctx, r.db).ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.Type,
		order.Status,
		order.Amount,
		order.Price,
		order.FiatAmount,
		order.FiatCurrency,
		order.Network,
		order.IsPreOrder,
		order.FiatDeposited,
		order.ExpiresAt,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create otc order",
			zap.Error(err),
			zap.String("user_id", order.UserID.String()),
		)
		return fmt.Errorf("failed to create otc order: %w", err)
	}

	return nil
}

func scanOrder(scan func(dest ...interface{}) error) (*entities.OtcOrder, error) {
	order := &entities.OtcOrder{}
	err := scan(
		&order.ID,
		&order.UserID,
		&order.Type,
		&order.Status,
		&order.Amount,
		&order.Price,
		&order.FiatAmount,
		&order.FiatCurrency,
		&order.Network,
		&order.IsPreOrder,
		&order.FiatDeposited,
		&order.ExpiresAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetByID retrieves an order by id
func (r *OtcOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.OtcOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM otc_orders WHERE id = $1`

	order, err := scanOrder(exec(ctx, r.db).QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("order")
		}
		return nil, fmt.Errorf("failed to get otc order: %w", err)
	}

	return order, nil
}

// UpdateStatus transitions an order from one status to another. The update
// is guarded on the current status; a lost race returns
// ErrInvalidOrderState.
func (r *OtcOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.OtcOrderStatus) error {
	query := `UPDATE otc_orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`

	result, err := exec(ctx, r.db).ExecContext(ctx, query, id, from, to, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update otc order status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domainerrors.ErrInvalidOrderState
	}

	return nil
}

// MarkFiatDeposited records that a pre-order's locked fiat has been settled
// into the exchange reserve. Guarded so settlement happens once.
func (r *OtcOrderRepository) MarkFiatDeposited(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE otc_orders
		SET fiat_deposited = TRUE, updated_at = $2
		WHERE id = $1 AND fiat_deposited = FALSE
	`

	result, err := exec(ctx, r.db).ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark fiat deposited: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domainerrors.ErrInvalidOrderState
	}

	return nil
}

// UpdateFill records the execution price and recomputed fiat amount when a
// pre-order matches.
func (r *OtcOrderRepository) UpdateFill(ctx context.Context, id uuid.UUID, price, fiatAmount decimal.Decimal) error {
	query := `UPDATE otc_orders SET price = $2, fiat_amount = $3, updated_at = $4 WHERE id = $1`

	result, err := exec(ctx, r.db).ExecContext(ctx, query, id, price, fiatAmount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update otc order fill: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domainerrors.NotFoundError("order")
	}

	return nil
}

// ListByUser returns a user's orders, newest first
func (r *OtcOrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*entities.OtcOrder, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + orderColumns + `
		FROM otc_orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := exec(ctx, r.db).QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list otc orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// ListProcessingPreOrders returns open pre-orders awaiting a price match
func (r *OtcOrderRepository) ListProcessingPreOrders(ctx context.Context) ([]*entities.OtcOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM otc_orders
		WHERE is_pre_order = TRUE AND status = $1
		ORDER BY created_at ASC
	`

	rows, err := exec(ctx, r.db).QueryContext(ctx, query, entities.OtcOrderStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing pre-orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// ListExpired returns open pre-orders whose expiry has passed
func (r *OtcOrderRepository) ListExpired(ctx context.Context, now time.Time) ([]*entities.OtcOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM otc_orders
		WHERE is_pre_order = TRUE
			AND status IN ($1, $2)
			AND expires_at IS NOT NULL AND expires_at < $3
		ORDER BY expires_at ASC
	`

	rows, err := exec(ctx, r.db).QueryContext(ctx, query,
		entities.OtcOrderStatusPending, entities.OtcOrderStatusProcessing, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired pre-orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// SumFiatVolumeSince returns the fiat volume a user has placed in
// non-terminal-failure orders since a point in time. Cancelled and failed
// orders do not count against the daily cap.
func (r *OtcOrderRepository) SumFiatVolumeSince(ctx context.Context, userID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(fiat_amount), 0)
		FROM otc_orders
		WHERE user_id = $1 AND created_at >= $2 AND status NOT IN ($3, $4)
	`

	var total decimal.Decimal
	err := exec(ctx, r.db).QueryRowContext(ctx, query, userID, since,
		entities.OtcOrderStatusCancelled, entities.OtcOrderStatusFailed).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum fiat volume: %w", err)
	}

	return total, nil
}

// CountFailedSince returns how many of a user's orders have failed since a
// point in time, for the failed-order rate limit.
func (r *OtcOrderRepository) CountFailedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM otc_orders
		WHERE user_id = $1 AND updated_at >= $2 AND status = $3
	`

	var count int
	err := exec(ctx, r.db).QueryRowContext(ctx, query, userID, since, entities.OtcOrderStatusFailed).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed orders: %w", err)
	}

	return count, nil
}

func collectOrders(rows *sql.Rows) ([]*entities.OtcOrder, error) {
	var orders []*entities.OtcOrder
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan otc order: %w", err)
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}
