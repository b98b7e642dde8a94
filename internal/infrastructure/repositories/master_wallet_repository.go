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

// MasterWalletRepository persists the exchange-operated wallets and their
// per-network addresses.
type MasterWalletRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMasterWalletRepository creates a new master wallet repository
func NewMasterWalletRepository(db *sql.DB, logger *zap.Logger) *MasterWalletRepository {
	return &MasterWalletRepository{
		db:     db,
		logger: logger,
	}
}

// GetByType retrieves the active wallet of one type
func (r *MasterWalletRepository) GetByType(ctx context.Context, walletType entities.MasterWalletType) (*entities.MasterWallet, error) {
	query := `
		SELECT id, wallet_type, fiat, created_at, updated_at
		FROM master_wallets
		WHERE wallet_type = $1
	`

	wallet := &entities.MasterWallet{}
	err := exec(ctx, r.db).QueryRowContext(ctx, query, walletType).Scan(
		&wallet.ID,
		&wallet.WalletType,
		&wallet.Fiat,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("master wallet")
		}
		return nil, fmt.Errorf("failed to get master wallet: %w", err)
	}

	return wallet, nil
}

// GetNetwork retrieves a wallet's address and signing key on one network
func (r *MasterWalletRepository) GetNetwork(ctx context.Context, walletType entities.MasterWalletType, network entities.Network) (*entities.MasterWalletNetwork, error) {
	query := `
		SELECT n.id, n.wallet_id, n.network, n.address, n.private_key_encrypted,
			n.balance, n.created_at, n.updated_at
		FROM master_wallet_networks n
		JOIN master_wallets w ON w.id = n.wallet_id
		WHERE w.wallet_type = $1 AND n.network = $2
	`

	mwn := &entities.MasterWalletNetwork{}
	err := exec(ctx, r.db).QueryRowContext(ctx, query, walletType, network).Scan(
		&mwn.ID,
		&mwn.WalletID,
		&mwn.Network,
		&mwn.Address,
		&mwn.PrivateKeyEncrypted,
		&mwn.Balance,
		&mwn.CreatedAt,
		&mwn.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("master wallet network")
		}
		r.logger.Error("failed to get master wallet network",
			zap.Error(err),
			zap.String("wallet_type", string(walletType)),
			zap.String("network", string(network)),
		)
		return nil, fmt.Errorf("failed to get master wallet network: %w", err)
	}

	return mwn, nil
}

// ListNetworkAddresses returns every master wallet address on a network
// together with its master_wallet_networks row id, for deposit scanning.
func (r *MasterWalletRepository) ListNetworkAddresses(ctx context.Context, network entities.Network) (map[string]uuid.UUID, error) {
	query := `SELECT lower(address), id FROM master_wallet_networks WHERE network = $1`

	rows, err := exec(ctx, r.db).QueryContext(ctx, query, network)
	if err != nil {
		return nil, fmt.Errorf("failed to list master wallet addresses: %w", err)
	}
	defer rows.Close()

	addresses := make(map[string]uuid.UUID)
	for rows.Next() {
		var address string
		var networkID uuid.UUID
		if err := rows.Scan(&address, &networkID); err != nil {
			return nil, fmt.Errorf("failed to scan master wallet address: %w", err)
		}
		addresses[address] = networkID
	}

	return addresses, rows.Err()
}

// CreditBalance adds amount to the wallet's ledger balance on one network.
// Used when swept funds land on the master address.
func (r *MasterWalletRepository) CreditBalance(ctx context.Context, networkID uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE master_wallet_networks
		SET balance = balance + $2, updated_at = $3
		WHERE id = $1
	`

	result, err := exec(ctx, r.db).ExecContext(ctx, query, networkID, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to credit master wallet balance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domainerrors.NotFoundError("master wallet network")
	}

	return nil
}

// DebitBalanceIfSufficient subtracts amount from the wallet's ledger balance
// on one network, guarded on sufficiency.
func (r *MasterWalletRepository) DebitBalanceIfSufficient(ctx context.Context, networkID uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE master_wallet_networks
		SET balance = balance - $2, updated_at = $3
		WHERE id = $1 AND balance >= $2
	`

	result, err := exec(ctx, r.db).ExecContext(ctx, query, networkID, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to debit master wallet balance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domainerrors.ErrInsufficientBalance
	}

	return nil
}

// CreditFiat adds amount to the wallet's fiat reserve
func (r *MasterWalletRepository) CreditFiat(ctx context.Context, walletType entities.MasterWalletType, amount decimal.Decimal) error {
	query := `
		UPDATE master_wallets
		SET fiat = fiat + $2, updated_at = $3
		WHERE wallet_type = $1
	`

	result, err := exec(ctx, r.db).ExecContext(ctx, query, walletType, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to credit master wallet fiat: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domainerrors.NotFoundError("master wallet")
	}

	return nil
}

// DebitFiatIfSufficient subtracts amount from the wallet's fiat reserve,
// guarded on sufficiency.
func (r *MasterWalletRepository) DebitFiatIfSufficient(ctx context.Context, walletType entities.MasterWalletType, amount decimal.Decimal) error {
	query := `
		UPDATE master_wallets
		SET fiat = fiat - $2, updated_at = $3
		WHERE wallet_type = $1 AND fiat >= $2
	`

	result, err := exec(ctx, r.db).ExecContext(ctx, query, walletType, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to debit master wallet fiat: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domainerrors.ErrInsufficientBalance
	}

	return nil
}
