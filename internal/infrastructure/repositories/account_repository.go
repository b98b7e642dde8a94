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

// AccountRepository handles account and custodial wallet persistence.
// All balance mutations are single conditional statements so concurrent
// writers serialize on the row lock and can never drive a balance negative.
type AccountRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sql.DB, logger *zap.Logger) *AccountRepository {
	return &AccountRepository{
		db:     db,
		logger: logger,
	}
}

const accountColumns = `id, email, name, fiat_balance, locked_fiat, two_fa_enabled,
		two_fa_secret_encrypted, kyc_status, created_at, updated_at, deleted_at`

func scanAccount(row *sql.Row) (*entities.Account, error) {
	account := &entities.Account{}
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.Fiat,
		&account.LockedFiat,
		&account.TwoFAEnabled,
		&account.TwoFASecretEncrypted,
		&account.KYCStatus,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetByID retrieves an account by its id
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 AND deleted_at IS NULL`

	account, err := scanAccount(exec(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("account")
		}
		r.logger.Error("failed to get account",
			zap.Error(err),
			zap.String("account_id", id.String()),
		)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetByWalletAddress resolves the account owning a custodial address on
// the given network.
func (r *AccountRepository) GetByWalletAddress(ctx context.Context, network entities.Network, address string) (*entities.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts a
		JOIN wallets w ON w.account_id = a.id
		WHERE w.network = $1 AND lower(w.address) = lower($2) AND a.deleted_at IS NULL
	`

	account, err := scanAccount(exec(ctx, r.db).QueryRowContext(ctx, query, network, address))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("account")
		}
		return nil, fmt.Errorf("failed to resolve account by address: %w", err)
	}

	return account, nil
}

// GetWallet retrieves an account's custodial wallet on one network
func (r *AccountRepository) GetWallet(ctx context.Context, accountID uuid.UUID, network entities.Network) (*entities.Wallet, error) {
	query := `
		SELECT id, account_id, network, address, private_key_encrypted, balance, created_at, updated_at
		FROM wallets
		WHERE account_id = $1 AND network = $2
	`

	wallet := &entities.Wallet{}
	err := exec(ctx, r.db).QueryRowContext(ctx, query, accountID, network).Scan(
		&wallet.ID,
		&wallet.AccountID,
		&wallet.Network,
		&wallet.Address,
		&wallet.PrivateKeyEncrypted,
		&wallet.Balance,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("wallet")
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return wallet, nil
}

// ListWalletAddresses returns every custodial deposit address on a network
// together with its owning account id.
func (r *AccountRepository) ListWalletAddresses(ctx context.Context, network entities.Network) (map[string]uuid.UUID, error) {
	query := `SELECT lower(address), account_id FROM wallets WHERE network = $1`

	rows, err := exec(ctx, r.db).QueryContext(ctx, query, network)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet addresses: %w", err)
	}
	defer rows.Close()

	addresses := make(map[string]uuid.UUID)
	for rows.Next() {
		var address string
		var accountID uuid.UUID
		if err := rows.Scan(&address, &accountID); err != nil {
			return nil, fmt.Errorf("failed to scan wallet address: %w", err)
		}
		addresses[address] = accountID
	}

	return addresses, rows.Err()
}

// ListWalletsWithMinBalance returns wallets on a network holding at least
// the given ledger balance, for sweep candidate selection.
func (r *AccountRepository) ListWalletsWithMinBalance(ctx context.Context, network entities.Network, min decimal.Decimal) ([]*entities.Wallet, error) {
	query := `
		SELECT id, account_id, network, address, private_key_encrypted, balance, created_at, updated_at
		FROM wallets
		WHERE network = $1 AND balance >= $2
		ORDER BY balance DESC
	`

	rows, err := exec(ctx, r.db).QueryContext(ctx, query, network, min)
	if err != nil {
		return nil, fmt.Errorf("failed to list sweep candidates: %w", err)
	}
	defer rows.Close()

	var wallets []*entities.Wallet
	for rows.Next() {
		wallet := &entities.Wallet{}
		if err := rows.Scan(
			&wallet.ID,
			&wallet.AccountID,
			&wallet.Network,
			&wallet.Address,
			&wallet.PrivateKeyEncrypted,
			&wallet.Balance,
			&wallet.CreatedAt,
			&wallet.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, wallet)
	}

	return wallets, rows.Err()
}

// CreditBalance adds amount to an account's wallet balance on one network
func (r *AccountRepository) CreditBalance(ctx context.Context, accountID uuid.UUID, network entities.Network, amount decimal.Decimal) error {
	query := `
		UPDATE wallets
		SET balance = balance + $3, updated_at = $4
		WHERE account_id = $1 AND network = $2
	`

	result, err := exec(ctx, r.db).ExecContext(ctx, query, accountID, network, amount, time.Now())
	if err != nil {
		r.logger.Error("failed to credit balance",
			zap.Error(err),
			zap.String("account_id", accountID.String()),
			zap.String("network", string(network)),
			zap.String("amount", amount.String()),
		)
		return fmt.Errorf("failed to credit balance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domainerrors.NotFoundError("wallet")
	}

	return nil
}

// DebitBalanceIfSufficient subtracts amount from an account's wallet balance
// only when the current balance covers it. Returns ErrInsufficientBalance
// when the guard fails, so callers never race a read-then-write.
func (r *AccountRepository) DebitBalanceIfSufficient(ctx context.Context, accountID uuid.UUID, network entities.Network, amount decimal.Decimal) error {
	query := `
		UPDATE wallets
		SET balance = balance - $3, updated_at = $4
		WHERE account_id = $1 AND network = $2 AND balance >= $3
	`

	result, err := exec(ctx, r.db).ExecContext(ctx, query, accountID, network, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
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

// CreditFiat adds amount to the account's spendable fiat balance
func (r *AccountRepository) CreditFiat(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET fiat_balance = fiat_balance + $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := exec(ctx, r.db).ExecContext(ctx, query, accountID, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to credit fiat: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domainerrors.NotFoundError("account")
	}

	return nil
}

// DebitFiatIfSufficient subtracts amount from the spendable fiat balance
// only when it covers the amount.
func (r *AccountRepository) DebitFiatIfSufficient(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET fiat_balance = fiat_balance - $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL AND fiat_balance >= $2
	`

	result, err := exec(ctx, r.db).ExecContext(ctx, query, accountID, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to debit fiat: %w", err)
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

// LockFiat moves amount from the spendable fiat balance into the locked
// balance, guarded on sufficiency. Used when a pre-order is placed.
func (r *AccountRepository) LockFiat(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET fiat_balance = fiat_balance - $2,
			locked_fiat = locked_fiat + $2,
			updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL AND fiat_balance >= $2
	`

	result, err := exec(ctx, r.db).ExecContext(ctx, query, accountID, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to lock fiat: %w", err)
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

// UnlockFiat moves amount from the locked balance back into the spendable
// balance. Used on pre-order cancel and expiry.
func (r *AccountRepository) UnlockFiat(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET fiat_balance = fiat_balance + $2,
			locked_fiat = locked_fiat - $2,
			updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL AND locked_fiat >= $2
	`

	result, err := exec(ctx, r.db).ExecContext(ctx, query, accountID, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to unlock fiat: %w", err)
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

// SettleLockedFiat burns amount from the locked balance when a pre-order
// fills, without touching the spendable balance.
func (r *AccountRepository) SettleLockedFiat(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET locked_fiat = locked_fiat - $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL AND locked_fiat >= $2
	`

	result, err := exec(ctx, r.db).ExecContext(ctx, query, accountID, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to settle locked fiat: %w", err)
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
