// Package transaction handles balance-moving operations requested by
// account holders: withdrawals to external addresses, internal transfers
// between custodial addresses, and fiat deposits.
package transaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
	"github.com/custody-service/custody_service/internal/domain/services/chain"
	"github.com/custody-service/custody_service/pkg/crypto"
	"github.com/custody-service/custody_service/pkg/logger"
)

// AccountStore is the account and balance persistence the service needs.
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error)
	GetByWalletAddress(ctx context.Context, network entities.Network, address string) (*entities.Account, error)
	GetWallet(ctx context.Context, accountID uuid.UUID, network entities.Network) (*entities.Wallet, error)
	CreditBalance(ctx context.Context, accountID uuid.UUID, network entities.Network, amount decimal.Decimal) error
	DebitBalanceIfSufficient(ctx context.Context, accountID uuid.UUID, network entities.Network, amount decimal.Decimal) error
	CreditFiat(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error
}

// MasterWalletStore resolves the broadcasting wallet.
type MasterWalletStore interface {
	GetNetwork(ctx context.Context, walletType entities.MasterWalletType, network entities.Network) (*entities.MasterWalletNetwork, error)
	DebitBalanceIfSufficient(ctx context.Context, networkID uuid.UUID, amount decimal.Decimal) error
}

// LedgerStore records and updates ledger entries.
type LedgerStore interface {
	Insert(ctx context.Context, entry *entities.LedgerEntry) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status entities.TransactionStatus, txID string) error
	ListByAddress(ctx context.Context, network entities.Network, address string, limit int) ([]*entities.LedgerEntry, error)
}

// TwoFAVerifier checks TOTP codes.
type TwoFAVerifier interface {
	Verify(ctx context.Context, accountID uuid.UUID, code string) error
}

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Config carries the withdrawal fee schedule.
type Config struct {
	FeePercent decimal.Decimal
}

type Service struct {
	accounts      AccountStore
	masterWallets MasterWalletStore
	ledger        LedgerStore
	chains        *chain.Registry
	twofa         TwoFAVerifier
	txm           TxRunner
	cfg           Config
	encryptionKey string
	breaker       *gobreaker.CircuitBreaker
	logger        *logger.Logger
}

func NewService(
	accounts AccountStore,
	masterWallets MasterWalletStore,
	ledger LedgerStore,
	chains *chain.Registry,
	twofa TwoFAVerifier,
	txm TxRunner,
	cfg Config,
	encryptionKey string,
	log *logger.Logger,
) *Service {
	st := gobreaker.Settings{
		Name:        "WithdrawalBroadcast",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state changed",
				"name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Service{
		accounts:      accounts,
		masterWallets: masterWallets,
		ledger:        ledger,
		chains:        chains,
		twofa:         twofa,
		txm:           txm,
		cfg:           cfg,
		encryptionKey: encryptionKey,
		breaker:       gobreaker.NewCircuitBreaker(st),
		logger:        log,
	}
}

// WithdrawResult reports the outcome of a withdrawal request.
type WithdrawResult struct {
	EntryID uuid.UUID       `json:"entry_id"`
	TxHash  string          `json:"tx_hash"`
	Amount  decimal.Decimal `json:"amount"`
	Fee     decimal.Decimal `json:"fee"`
	Net     decimal.Decimal `json:"net"`
}

// Withdraw moves funds from an account to an external address. The debit
// and a PROCESS ledger entry commit before the broadcast is attempted; a
// failed broadcast is compensated with a credit and a REJECTED entry. A
// crash between the two phases leaves a PROCESS entry behind, which is the
// marker operations replays from.
func (s *Service) Withdraw(ctx context.Context, accountID uuid.UUID, network entities.Network, toAddress string, amount decimal.Decimal, twoFACode string) (*WithdrawResult, error) {
	if err := network.Validate(); err != nil {
		return nil, domainerrors.ErrUnsupportedNetwork
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, domainerrors.ValidationError("amount", "amount must be positive")
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.HasProfile() {
		return nil, domainerrors.ErrProfileIncomplete
	}
	if account.TwoFAEnabled {
		if twoFACode == "" {
			return nil, domainerrors.ErrTwoFARequired
		}
		if err := s.twofa.Verify(ctx, accountID, twoFACode); err != nil {
			return nil, err
		}
	}

	wallet, err := s.accounts.GetWallet(ctx, accountID, network)
	if err != nil {
		return nil, err
	}

	fee := amount.Mul(s.cfg.FeePercent).Div(decimal.NewFromInt(100))
	net := amount.Sub(fee)
	if net.LessThanOrEqual(decimal.Zero) {
		return nil, domainerrors.ValidationError("amount", "amount does not cover the fee")
	}

	master, err := s.masterWallets.GetNetwork(ctx, entities.MasterWalletTypeMaster, network)
	if err != nil {
		return nil, err
	}

	client, err := s.chains.Get(network)
	if err != nil {
		return nil, err
	}

	// The master wallet's ledger balance is a claim, not proof of funds on
	// chain. An EVM token transfer past the sender's balance still mines
	// and reverts, so an unfunded master would debit the user with no
	// payout. Check what the address actually holds before reserving.
	onChain, err := client.TokenBalance(ctx, master.Address)
	if err != nil {
		return nil, err
	}
	if onChain.LessThan(amount) {
		s.logger.Warn("withdrawal rejected, master wallet underfunded on chain",
			"network", string(network),
			"on_chain", onChain.String(),
			"requested", amount.String(),
		)
		return nil, domainerrors.ErrMasterWalletUnfunded
	}

	// Reserve the funds first. The PROCESS entry and the debit commit
	// together, so the balance can never pay out twice.
	entry := &entities.LedgerEntry{
		TxID:        uuid.NewString(),
		FromAddress: wallet.Address,
		ToAddress:   toAddress,
		Amount:      amount,
		Network:     network,
		Type:        entities.TransactionTypeWithdraw,
		Status:      entities.TransactionStatusProcess,
	}
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.accounts.DebitBalanceIfSufficient(txCtx, accountID, network, amount); err != nil {
			return err
		}
		return s.ledger.Insert(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	txHash, err := s.broadcast(ctx, client, master, toAddress, net)
	if err != nil {
		s.compensate(ctx, accountID, network, amount, entry.ID)
		return nil, err
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ledger.UpdateStatus(txCtx, entry.ID, entities.TransactionStatusSuccess, txHash); err != nil {
			return err
		}
		return s.masterWallets.DebitBalanceIfSufficient(txCtx, master.ID, net)
	})
	if err != nil {
		// The payout is on chain; only the book-keeping failed.
		s.logger.Error("withdrawal broadcast succeeded but ledger update failed",
			"entry_id", entry.ID.String(),
			"tx_hash", txHash,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("withdrawal complete",
		"account_id", accountID.String(),
		"network", string(network),
		"amount", amount.String(),
		"fee", fee.String(),
		"tx_hash", txHash,
	)

	return &WithdrawResult{
		EntryID: entry.ID,
		TxHash:  txHash,
		Amount:  amount,
		Fee:     fee,
		Net:     net,
	}, nil
}

func (s *Service) broadcast(ctx context.Context, client chain.Client, master *entities.MasterWalletNetwork, toAddress string, net decimal.Decimal) (string, error) {
	key, err := crypto.Decrypt(master.PrivateKeyEncrypted, s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt master wallet key: %w", err)
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return client.SendToken(ctx, key, toAddress, net)
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}

// compensate returns reserved funds after a failed broadcast
func (s *Service) compensate(ctx context.Context, accountID uuid.UUID, network entities.Network, amount decimal.Decimal, entryID uuid.UUID) {
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.accounts.CreditBalance(txCtx, accountID, network, amount); err != nil {
			return err
		}
		return s.ledger.UpdateStatus(txCtx, entryID, entities.TransactionStatusRejected, "")
	})
	if err != nil {
		// The PROCESS entry stays behind as the recovery marker.
		s.logger.Error("withdrawal compensation failed",
			"entry_id", entryID.String(),
			"account_id", accountID.String(),
			"amount", amount.String(),
			"error", err,
		)
		return
	}

	s.logger.Warn("withdrawal rejected and funds returned",
		"entry_id", entryID.String(),
		"account_id", accountID.String(),
		"amount", amount.String(),
	)
}

// Transfer moves funds between two custodial accounts without touching the
// chain. Both balance legs and the ledger entry commit atomically.
func (s *Service) Transfer(ctx context.Context, senderID uuid.UUID, network entities.Network, toAddress string, amount decimal.Decimal) (*entities.LedgerEntry, error) {
	if err := network.Validate(); err != nil {
		return nil, domainerrors.ErrUnsupportedNetwork
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, domainerrors.ValidationError("amount", "amount must be positive")
	}

	wallet, err := s.accounts.GetWallet(ctx, senderID, network)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(wallet.Address, toAddress) {
		return nil, domainerrors.ErrSelfTransfer
	}

	receiver, err := s.accounts.GetByWalletAddress(ctx, network, toAddress)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			return nil, domainerrors.ErrReceiverNotFound
		}
		return nil, err
	}

	entry := &entities.LedgerEntry{
		TxID:        uuid.NewString(),
		FromAddress: wallet.Address,
		ToAddress:   toAddress,
		Amount:      amount,
		Network:     network,
		Type:        entities.TransactionTypeTransfer,
		Status:      entities.TransactionStatusSuccess,
	}
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.accounts.DebitBalanceIfSufficient(txCtx, senderID, network, amount); err != nil {
			return err
		}
		if err := s.accounts.CreditBalance(txCtx, receiver.ID, network, amount); err != nil {
			return err
		}
		return s.ledger.Insert(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("internal transfer complete",
		"sender_id", senderID.String(),
		"receiver_id", receiver.ID.String(),
		"network", string(network),
		"amount", amount.String(),
	)
	return entry, nil
}

// FiatDeposit credits an account's fiat balance and records the movement
func (s *Service) FiatDeposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*entities.LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, domainerrors.ValidationError("amount", "amount must be positive")
	}

	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	entry := &entities.LedgerEntry{
		TxID:      uuid.NewString(),
		ToAddress: accountID.String(),
		Amount:    amount,
		Type:      entities.TransactionTypeFiatDeposit,
		Status:    entities.TransactionStatusSuccess,
	}
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.accounts.CreditFiat(txCtx, accountID, amount); err != nil {
			return err
		}
		return s.ledger.Insert(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("fiat deposit credited",
		"account_id", accountID.String(),
		"amount", amount.String(),
	)
	return entry, nil
}

// History returns the ledger entries touching an account's custodial
// address on one network.
func (s *Service) History(ctx context.Context, accountID uuid.UUID, network entities.Network, limit int) ([]*entities.LedgerEntry, error) {
	wallet, err := s.accounts.GetWallet(ctx, accountID, network)
	if err != nil {
		return nil, err
	}
	return s.ledger.ListByAddress(ctx, network, wallet.Address, limit)
}
