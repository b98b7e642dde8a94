// Package sweep consolidates funds from custodial deposit addresses into
// the master wallet. Account balances are untouched, since the accounts'
// claims on the custody pool do not change when the pool is rearranged;
// each sweep lands as a SWEEP ledger entry and a master wallet credit.
package sweep

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/custody-service/custody_service/internal/domain/entities"
	"github.com/custody-service/custody_service/internal/domain/services/chain"
	"github.com/custody-service/custody_service/pkg/crypto"
	"github.com/custody-service/custody_service/pkg/logger"
)

// WalletStore lists sweep candidates.
type WalletStore interface {
	ListWalletsWithMinBalance(ctx context.Context, network entities.Network, min decimal.Decimal) ([]*entities.Wallet, error)
}

// MasterWalletStore resolves the master wallet and tracks what lands on it.
type MasterWalletStore interface {
	GetNetwork(ctx context.Context, walletType entities.MasterWalletType, network entities.Network) (*entities.MasterWalletNetwork, error)
	CreditBalance(ctx context.Context, networkID uuid.UUID, amount decimal.Decimal) error
}

// LedgerStore records swept movements.
type LedgerStore interface {
	Insert(ctx context.Context, entry *entities.LedgerEntry) error
}

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Config carries the sweep thresholds.
type Config struct {
	MinCollect decimal.Decimal
	// MaxFeeNative caps the native fee per network; a sweep costing more
	// is skipped until fees recover.
	MaxFeeNative map[entities.Network]decimal.Decimal
}

type Service struct {
	chains        *chain.Registry
	wallets       WalletStore
	masterWallets MasterWalletStore
	ledger        LedgerStore
	txm           TxRunner
	cfg           Config
	encryptionKey string
	logger        *logger.Logger
}

func NewService(
	chains *chain.Registry,
	wallets WalletStore,
	masterWallets MasterWalletStore,
	ledger LedgerStore,
	txm TxRunner,
	cfg Config,
	encryptionKey string,
	logger *logger.Logger,
) *Service {
	return &Service{
		chains:        chains,
		wallets:       wallets,
		masterWallets: masterWallets,
		ledger:        ledger,
		txm:           txm,
		cfg:           cfg,
		encryptionKey: encryptionKey,
		logger:        logger,
	}
}

// Collect runs one sweep cycle for a network. Each candidate wallet is
// handled independently; one failing wallet never blocks the rest, it just
// stays a candidate for the next cycle.
func (s *Service) Collect(ctx context.Context, network entities.Network) error {
	client, err := s.chains.Get(network)
	if err != nil {
		return err
	}

	master, err := s.masterWallets.GetNetwork(ctx, entities.MasterWalletTypeMaster, network)
	if err != nil {
		return err
	}

	candidates, err := s.wallets.ListWalletsWithMinBalance(ctx, network, s.cfg.MinCollect)
	if err != nil {
		return err
	}

	for _, wallet := range candidates {
		if err := s.sweepWallet(ctx, client, master, wallet); err != nil {
			s.logger.Error("sweep failed for wallet",
				"network", string(network),
				"address", wallet.Address,
				"error", err,
			)
		}
	}

	return nil
}

func (s *Service) sweepWallet(ctx context.Context, client chain.Client, master *entities.MasterWalletNetwork, wallet *entities.Wallet) error {
	// The ledger balance is a claim, not proof of funds on this address;
	// sweep what is actually on chain.
	onChain, err := client.TokenBalance(ctx, wallet.Address)
	if err != nil {
		return err
	}
	if onChain.LessThan(s.cfg.MinCollect) {
		return nil
	}

	fee, err := client.EstimateTokenFee(ctx)
	if err != nil {
		return err
	}
	if limit, ok := s.cfg.MaxFeeNative[wallet.Network]; ok && fee.GreaterThan(limit) {
		s.logger.Warn("sweep skipped, fee above cap",
			"network", string(wallet.Network),
			"address", wallet.Address,
			"fee", fee.String(),
			"cap", limit.String(),
		)
		return nil
	}

	if err := s.ensureGas(ctx, client, master, wallet, fee); err != nil {
		return err
	}

	key, err := crypto.Decrypt(wallet.PrivateKeyEncrypted, s.encryptionKey)
	if err != nil {
		return err
	}

	txHash, err := client.SendToken(ctx, key, master.Address, onChain)
	if err != nil {
		return err
	}

	// The credit and the SWEEP entry commit together; the entry's tx hash
	// hits the unique tx_id index if a sweep ever replays.
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		entry := &entities.LedgerEntry{
			TxID:        txHash,
			FromAddress: wallet.Address,
			ToAddress:   master.Address,
			Amount:      onChain,
			Network:     wallet.Network,
			Type:        entities.TransactionTypeSweep,
			Status:      entities.TransactionStatusSuccess,
		}
		if err := s.ledger.Insert(txCtx, entry); err != nil {
			return err
		}
		return s.masterWallets.CreditBalance(txCtx, master.ID, onChain)
	})
	if err != nil {
		// The coins moved; only the book-keeping failed. Surface it loudly.
		s.logger.Error("swept funds not recorded on master wallet",
			"network", string(wallet.Network),
			"tx_hash", txHash,
			"amount", onChain.String(),
			"error", err,
		)
		return err
	}

	s.logger.Info("wallet swept",
		"network", string(wallet.Network),
		"address", wallet.Address,
		"amount", onChain.String(),
		"tx_hash", txHash,
	)
	return nil
}

// ensureGas tops the deposit address up from the master wallet when its
// native balance cannot pay the sweep fee.
func (s *Service) ensureGas(ctx context.Context, client chain.Client, master *entities.MasterWalletNetwork, wallet *entities.Wallet, fee decimal.Decimal) error {
	native, err := client.NativeBalance(ctx, wallet.Address)
	if err != nil {
		return err
	}
	if native.GreaterThanOrEqual(fee) {
		return nil
	}

	masterKey, err := crypto.Decrypt(master.PrivateKeyEncrypted, s.encryptionKey)
	if err != nil {
		return err
	}

	topUp := fee.Sub(native)
	txHash, err := client.SendNative(ctx, masterKey, wallet.Address, topUp)
	if err != nil {
		return err
	}

	s.logger.Info("gas topped up for sweep",
		"network", string(wallet.Network),
		"address", wallet.Address,
		"amount", topUp.String(),
		"tx_hash", txHash,
	)
	return nil
}
