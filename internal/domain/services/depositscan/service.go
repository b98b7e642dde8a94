// Package depositscan detects inbound token transfers to custodial
// addresses and credits the owning accounts. Crediting is idempotent on the
// chain transaction hash, so overlapping scan windows and worker restarts
// never double-credit.
package depositscan

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
	"github.com/custody-service/custody_service/internal/domain/services/chain"
	"github.com/custody-service/custody_service/pkg/logger"
	"github.com/custody-service/custody_service/pkg/metrics"
)

// LedgerStore records deposits.
type LedgerStore interface {
	Insert(ctx context.Context, entry *entities.LedgerEntry) error
}

// BalanceStore credits wallet balances.
type BalanceStore interface {
	CreditBalance(ctx context.Context, accountID uuid.UUID, network entities.Network, amount decimal.Decimal) error
}

// MasterBalanceStore credits the master wallet's per-network balance for
// deposits sent straight to a treasury address.
type MasterBalanceStore interface {
	CreditBalance(ctx context.Context, networkID uuid.UUID, amount decimal.Decimal) error
}

// CursorStore persists the scan cursor.
type CursorStore interface {
	Get(ctx context.Context, network entities.Network) (*entities.ScanCursor, error)
	Advance(ctx context.Context, network entities.Network, position int64) error
}

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	chains        *chain.Registry
	cache         *AddressCache
	ledger        LedgerStore
	balance       BalanceStore
	masterBalance MasterBalanceStore
	cursors       CursorStore
	txm           TxRunner
	token         map[entities.Network]string
	logger        *logger.Logger
}

func NewService(
	chains *chain.Registry,
	cache *AddressCache,
	ledger LedgerStore,
	balance BalanceStore,
	masterBalance MasterBalanceStore,
	cursors CursorStore,
	txm TxRunner,
	tokenContracts map[entities.Network]string,
	logger *logger.Logger,
) *Service {
	return &Service{
		chains:        chains,
		cache:         cache,
		ledger:        ledger,
		balance:       balance,
		masterBalance: masterBalance,
		cursors:       cursors,
		txm:           txm,
		token:         tokenContracts,
		logger:        logger,
	}
}

// Scan runs one deposit detection cycle for a network: compute the window,
// fetch transfer events, credit matching deposits, then advance the cursor.
// The cursor only moves once every event in the window has been handled, so
// a failed cycle replays the same window next time.
func (s *Service) Scan(ctx context.Context, network entities.Network) error {
	client, err := s.chains.Get(network)
	if err != nil {
		return err
	}

	cursor, err := s.cursors.Get(ctx, network)
	if err != nil {
		return err
	}

	start, end, err := client.ScanRange(ctx, cursor.LastScanBlock)
	if err != nil {
		return err
	}
	if end <= start {
		return nil
	}

	events, err := client.TransferEvents(ctx, start, end)
	if err != nil {
		return err
	}

	credited := 0
	for _, ev := range events {
		owner, ok, err := s.cache.Lookup(ctx, network, ev.To)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if err := s.credit(ctx, network, owner, ev); err != nil {
			return err
		}
		credited++
	}

	if err := s.cursors.Advance(ctx, network, end); err != nil {
		return err
	}

	if credited > 0 {
		s.logger.Info("deposit scan cycle complete",
			"network", string(network),
			"start", start,
			"end", end,
			"events", len(events),
			"credited", credited,
		)
	}

	return nil
}

// credit records the deposit and credits its owner in one transaction.
// Deposits straight to a master address credit the master wallet instead
// of a user balance. A replayed event hits the unique tx_id index and is
// dropped without touching any balance.
func (s *Service) credit(ctx context.Context, network entities.Network, owner Owner, ev chain.TransferEvent) error {
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		entry := &entities.LedgerEntry{
			TxID:         ev.TxHash,
			FromAddress:  ev.From,
			ToAddress:    ev.To,
			Amount:       ev.Amount,
			Network:      network,
			Type:         entities.TransactionTypeDeposit,
			Status:       entities.TransactionStatusSuccess,
			TokenAddress: s.token[network],
		}
		if err := s.ledger.Insert(txCtx, entry); err != nil {
			return err
		}
		if owner.IsMaster() {
			return s.masterBalance.CreditBalance(txCtx, owner.MasterID, ev.Amount)
		}
		return s.balance.CreditBalance(txCtx, owner.AccountID, network, ev.Amount)
	})
	if errors.Is(err, domainerrors.ErrDuplicateTransaction) {
		return nil
	}
	if err != nil {
		s.logger.Error("failed to credit deposit",
			"network", string(network),
			"tx_hash", ev.TxHash,
			"error", err,
		)
		return err
	}

	metrics.DepositsCreditedTotal.WithLabelValues(string(network)).Inc()
	if owner.IsMaster() {
		s.logger.Info("deposit credited to master wallet",
			"network", string(network),
			"tx_hash", ev.TxHash,
			"amount", ev.Amount.String(),
		)
		return nil
	}
	s.logger.Info("deposit credited",
		"network", string(network),
		"tx_hash", ev.TxHash,
		"account_id", owner.AccountID.String(),
		"amount", ev.Amount.String(),
	)
	return nil
}
