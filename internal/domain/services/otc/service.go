// Package otc implements the over-the-counter desk: spread-adjusted
// quoting, instant settlement against the exchange reserve, and pre-orders
// that lock fiat until the market reaches the requested price or the order
// expires.
package otc

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
	"github.com/custody-service/custody_service/pkg/logger"
)

// OrderStore persists orders.
type OrderStore interface {
	Create(ctx context.Context, order *entities.OtcOrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.OtcOrder, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.OtcOrderStatus) error
	MarkFiatDeposited(ctx context.Context, id uuid.UUID) error
	UpdateFill(ctx context.Context, id uuid.UUID, price, fiatAmount decimal.Decimal) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*entities.OtcOrder, error)
	ListProcessingPreOrders(ctx context.Context) ([]*entities.OtcOrder, error)
	ListExpired(ctx context.Context, now time.Time) ([]*entities.OtcOrder, error)
}

// BalanceStore moves user balances.
type BalanceStore interface {
	CreditBalance(ctx context.Context, accountID uuid.UUID, network entities.Network, amount decimal.Decimal) error
	DebitBalanceIfSufficient(ctx context.Context, accountID uuid.UUID, network entities.Network, amount decimal.Decimal) error
	CreditFiat(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error
	DebitFiatIfSufficient(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error
	LockFiat(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error
	UnlockFiat(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error
	SettleLockedFiat(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error
}

// ReserveStore moves the exchange reserve the desk trades against.
type ReserveStore interface {
	GetNetwork(ctx context.Context, walletType entities.MasterWalletType, network entities.Network) (*entities.MasterWalletNetwork, error)
	CreditBalance(ctx context.Context, networkID uuid.UUID, amount decimal.Decimal) error
	DebitBalanceIfSufficient(ctx context.Context, networkID uuid.UUID, amount decimal.Decimal) error
	CreditFiat(ctx context.Context, walletType entities.MasterWalletType, amount decimal.Decimal) error
	DebitFiatIfSufficient(ctx context.Context, walletType entities.MasterWalletType, amount decimal.Decimal) error
}

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Config carries the desk's trading parameters.
type Config struct {
	MinOrderAmount    decimal.Decimal
	MaxOrderAmount    decimal.Decimal
	SlippageTolerance decimal.Decimal // fraction, 0.01 for 1%
	MatchTolerance    decimal.Decimal // fraction, 0.001 for 0.1%
	PreOrderExpiry    time.Duration
	FiatCurrency      string
}

type Service struct {
	orders   OrderStore
	balances BalanceStore
	reserve  ReserveStore
	pricer   *Pricer
	gate     *Gate
	txm      TxRunner
	cfg      Config
	validate *validator.Validate
	logger   *logger.Logger
}

func NewService(
	orders OrderStore,
	balances BalanceStore,
	reserve ReserveStore,
	pricer *Pricer,
	gate *Gate,
	txm TxRunner,
	cfg Config,
	logger *logger.Logger,
) *Service {
	return &Service{
		orders:   orders,
		balances: balances,
		reserve:  reserve,
		pricer:   pricer,
		gate:     gate,
		txm:      txm,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
	}
}

// Quote prices an amount for one order direction
func (s *Service) Quote(ctx context.Context, orderType entities.OtcOrderType, amount decimal.Decimal) (*entities.PriceQuote, error) {
	if err := orderType.Validate(); err != nil {
		return nil, domainerrors.ValidationError("type", err.Error())
	}
	if err := s.checkAmount(amount); err != nil {
		return nil, err
	}
	return s.pricer.Quote(ctx, orderType, amount, s.cfg.FiatCurrency)
}

// PlaceOrderRequest is a request to place an OTC order. Price is the price
// the caller quoted; placement fails when the market has drifted past the
// slippage tolerance since then.
type PlaceOrderRequest struct {
	UserID   uuid.UUID            `validate:"required"`
	Type     entities.OtcOrderType `validate:"required,oneof=BUY SELL"`
	Network  entities.Network      `validate:"required"`
	Amount   decimal.Decimal
	Price    decimal.Decimal
	PreOrder bool
}

// PlaceOrder validates, gates and executes an order. Instant orders settle
// synchronously; pre-orders lock the fiat and wait for a price match.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*entities.OtcOrder, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domainerrors.ValidationError("request", err.Error())
	}
	if err := req.Network.Validate(); err != nil {
		return nil, domainerrors.ErrUnsupportedNetwork
	}
	if err := s.checkAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.PreOrder && req.Type != entities.OtcOrderTypeBuy {
		return nil, domainerrors.ValidationError("type", "pre-orders must be buy orders")
	}

	current, err := s.pricer.Price(ctx, req.Type)
	if err != nil {
		return nil, err
	}
	if req.Price.IsZero() || !WithinTolerance(req.Price, current, s.cfg.SlippageTolerance) {
		return nil, domainerrors.ErrQuoteExpired
	}

	fiatAmount := req.Amount.Mul(current)
	if err := s.gate.Check(ctx, req.UserID, fiatAmount); err != nil {
		return nil, err
	}

	if req.PreOrder {
		// A pre-order asking for the current price has nothing to wait
		// for; it settles right away, same as the scheduler would on the
		// next price tick.
		if WithinTolerance(req.Price, current, s.cfg.MatchTolerance) {
			return s.placeInstantOrder(ctx, req, current, fiatAmount)
		}
		return s.placePreOrder(ctx, req, fiatAmount)
	}
	return s.placeInstantOrder(ctx, req, current, fiatAmount)
}

func (s *Service) placeInstantOrder(ctx context.Context, req PlaceOrderRequest, price, fiatAmount decimal.Decimal) (*entities.OtcOrder, error) {
	order := &entities.OtcOrder{
		UserID:       req.UserID,
		Type:         req.Type,
		Status:       entities.OtcOrderStatusPending,
		Amount:       req.Amount,
		Price:        price,
		FiatAmount:   fiatAmount,
		FiatCurrency: s.cfg.FiatCurrency,
		Network:      req.Network,
		IsPreOrder:   req.PreOrder,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	if err := s.settleInstant(ctx, order); err != nil {
		if errors.Is(err, domainerrors.ErrInsufficientBalance) {
			if ferr := s.orders.UpdateStatus(ctx, order.ID, entities.OtcOrderStatusPending, entities.OtcOrderStatusFailed); ferr != nil {
				s.logger.Error("failed to mark order failed", "order_id", order.ID.String(), "error", ferr)
			}
			order.Status = entities.OtcOrderStatusFailed
		}
		return order, err
	}

	order.Status = entities.OtcOrderStatusCompleted
	s.logger.Info("instant order settled",
		"order_id", order.ID.String(),
		"user_id", order.UserID.String(),
		"type", string(order.Type),
		"amount", order.Amount.String(),
		"price", order.Price.String(),
	)
	return order, nil
}

// placePreOrder locks the fiat and parks the order until the market
// reaches the requested price or the order expires. The lock and the order
// row commit together.
func (s *Service) placePreOrder(ctx context.Context, req PlaceOrderRequest, fiatAmount decimal.Decimal) (*entities.OtcOrder, error) {
	expires := time.Now().Add(s.cfg.PreOrderExpiry)
	order := &entities.OtcOrder{
		UserID:       req.UserID,
		Type:         req.Type,
		Status:       entities.OtcOrderStatusProcessing,
		Amount:       req.Amount,
		Price:        req.Price,
		FiatAmount:   fiatAmount,
		FiatCurrency: s.cfg.FiatCurrency,
		Network:      req.Network,
		IsPreOrder:   true,
		ExpiresAt:    &expires,
	}

	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.balances.LockFiat(txCtx, req.UserID, fiatAmount); err != nil {
			return err
		}
		return s.orders.Create(txCtx, order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("pre-order placed",
		"order_id", order.ID.String(),
		"user_id", order.UserID.String(),
		"amount", order.Amount.String(),
		"price", order.Price.String(),
		"expires_at", expires.Format(time.RFC3339),
	)
	return order, nil
}

// CancelOrder cancels an order on the owner's behalf. Pre-orders refund
// their locked fiat; a pre-order whose fiat already settled can no longer
// be cancelled.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return domainerrors.NotFoundError("order")
	}
	if !order.CanCancel() {
		return domainerrors.ErrInvalidOrderState
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.UpdateStatus(txCtx, order.ID, order.Status, entities.OtcOrderStatusCancelled); err != nil {
			return err
		}
		if order.IsPreOrder {
			return s.balances.UnlockFiat(txCtx, order.UserID, order.FiatAmount)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("order cancelled",
		"order_id", order.ID.String(),
		"user_id", userID.String(),
	)
	return nil
}

// GetOrder returns one of the user's orders
func (s *Service) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*entities.OtcOrder, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domainerrors.NotFoundError("order")
	}
	return order, nil
}

// ListOrders returns the user's orders, newest first
func (s *Service) ListOrders(ctx context.Context, userID uuid.UUID, limit int) ([]*entities.OtcOrder, error) {
	return s.orders.ListByUser(ctx, userID, limit)
}

func (s *Service) checkAmount(amount decimal.Decimal) error {
	if amount.LessThan(s.cfg.MinOrderAmount) || amount.GreaterThan(s.cfg.MaxOrderAmount) {
		return domainerrors.ValidationError("amount", "amount outside tradable range")
	}
	return nil
}
