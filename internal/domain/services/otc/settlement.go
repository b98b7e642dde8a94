package otc

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
)

// settleInstant executes every leg of an instant order in one transaction:
// the user's fiat and asset legs and the mirrored reserve legs. Any
// insufficient balance rolls the whole settlement back.
func (s *Service) settleInstant(ctx context.Context, order *entities.OtcOrder) error {
	reserveNet, err := s.reserve.GetNetwork(ctx, entities.MasterWalletTypeMaster, order.Network)
	if err != nil {
		return err
	}

	return s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.UpdateStatus(txCtx, order.ID, entities.OtcOrderStatusPending, entities.OtcOrderStatusCompleted); err != nil {
			return err
		}

		if order.Type == entities.OtcOrderTypeBuy {
			// User pays fiat, reserve hands over the asset.
			if err := s.balances.DebitFiatIfSufficient(txCtx, order.UserID, order.FiatAmount); err != nil {
				return err
			}
			if err := s.reserve.DebitBalanceIfSufficient(txCtx, reserveNet.ID, order.Amount); err != nil {
				return err
			}
			if err := s.balances.CreditBalance(txCtx, order.UserID, order.Network, order.Amount); err != nil {
				return err
			}
			return s.reserve.CreditFiat(txCtx, entities.MasterWalletTypeMaster, order.FiatAmount)
		}

		// User hands over the asset, reserve pays fiat.
		if err := s.balances.DebitBalanceIfSufficient(txCtx, order.UserID, order.Network, order.Amount); err != nil {
			return err
		}
		if err := s.reserve.DebitFiatIfSufficient(txCtx, entities.MasterWalletTypeMaster, order.FiatAmount); err != nil {
			return err
		}
		if err := s.balances.CreditFiat(txCtx, order.UserID, order.FiatAmount); err != nil {
			return err
		}
		return s.reserve.CreditBalance(txCtx, reserveNet.ID, order.Amount)
	})
}

// ProcessPreOrders walks the open pre-orders and fills every one whose
// requested price the market has reached. Orders are isolated: one failing
// settlement logs and moves on.
func (s *Service) ProcessPreOrders(ctx context.Context) error {
	orders, err := s.orders.ListProcessingPreOrders(ctx)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}

	current, err := s.pricer.Price(ctx, entities.OtcOrderTypeBuy)
	if err != nil {
		return err
	}

	for _, order := range orders {
		if order.IsExpired(time.Now()) {
			continue // the expiry sweep owns this order
		}
		if !WithinTolerance(order.Price, current, s.cfg.MatchTolerance) {
			continue
		}

		if err := s.settlePreOrder(ctx, order, current); err != nil {
			if errors.Is(err, domainerrors.ErrInvalidOrderState) {
				continue // lost the race to another worker
			}
			s.logger.Error("pre-order settlement failed",
				"order_id", order.ID.String(),
				"error", err,
			)
		}
	}

	return nil
}

// settlePreOrder fills one matched pre-order. The locked fiat settles into
// the reserve, the asset credits in full, and the execution price is
// recorded on the order.
func (s *Service) settlePreOrder(ctx context.Context, order *entities.OtcOrder, executionPrice decimal.Decimal) error {
	reserveNet, err := s.reserve.GetNetwork(ctx, entities.MasterWalletTypeMaster, order.Network)
	if err != nil {
		return err
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.UpdateStatus(txCtx, order.ID, entities.OtcOrderStatusProcessing, entities.OtcOrderStatusCompleted); err != nil {
			return err
		}
		if err := s.orders.UpdateFill(txCtx, order.ID, executionPrice, order.FiatAmount); err != nil {
			return err
		}
		if err := s.orders.MarkFiatDeposited(txCtx, order.ID); err != nil {
			return err
		}
		if err := s.balances.SettleLockedFiat(txCtx, order.UserID, order.FiatAmount); err != nil {
			return err
		}
		if err := s.reserve.DebitBalanceIfSufficient(txCtx, reserveNet.ID, order.Amount); err != nil {
			return err
		}
		if err := s.balances.CreditBalance(txCtx, order.UserID, order.Network, order.Amount); err != nil {
			return err
		}
		return s.reserve.CreditFiat(txCtx, entities.MasterWalletTypeMaster, order.FiatAmount)
	})
	if err != nil {
		return err
	}

	s.logger.Info("pre-order filled",
		"order_id", order.ID.String(),
		"user_id", order.UserID.String(),
		"amount", order.Amount.String(),
		"price", order.Price.String(),
	)
	return nil
}

// ExpireOrders cancels every pre-order past its expiry and returns the
// locked fiat. Runs from the scheduler once a minute.
func (s *Service) ExpireOrders(ctx context.Context) error {
	expired, err := s.orders.ListExpired(ctx, time.Now())
	if err != nil {
		return err
	}

	for _, order := range expired {
		err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
			if err := s.orders.UpdateStatus(txCtx, order.ID, order.Status, entities.OtcOrderStatusCancelled); err != nil {
				return err
			}
			if !order.FiatDeposited {
				return s.balances.UnlockFiat(txCtx, order.UserID, order.FiatAmount)
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, domainerrors.ErrInvalidOrderState) {
				continue // settled or cancelled while we were iterating
			}
			s.logger.Error("failed to expire pre-order",
				"order_id", order.ID.String(),
				"error", err,
			)
			continue
		}

		s.logger.Info("pre-order expired",
			"order_id", order.ID.String(),
			"user_id", order.UserID.String(),
			"amount", order.FiatAmount.String(),
		)
	}

	return nil
}
