package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
)

// TransactionRepository persists ledger entries. The tx_id column carries a
// unique index, which is what makes deposit crediting idempotent under
// concurrent scans.
type TransactionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sql.DB, logger *zap.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

const entryColumns = `id, tx_id, from_address, to_address, amount, network,
		tx_type, status, token_address, created_at, updated_at`

// Insert stores a ledger entry. A duplicate tx_id maps to
// ErrDuplicateTransaction so callers can treat replays as a no-op.
func (r *TransactionRepository) Insert(ctx context.Context, entry *entities.LedgerEntry) error {
	query := `
		INSERT INTO transactions (id, tx_id, from_address, to_address, amount,
			network, tx_type, status, token_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	now := time.Now()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now

	_, err := exec(ctx, r.db).ExecContext(ctx, query,
		entry.ID,
		entry.TxID,
		entry.FromAddress,
		entry.ToAddress,
		entry.Amount,
		entry.Network,
		entry.Type,
		entry.Status,
		entry.TokenAddress,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return domainerrors.ErrDuplicateTransaction
		}
		r.logger.Error("failed to insert ledger entry",
			zap.Error(err),
			zap.String("tx_id", entry.TxID),
		)
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return nil
}

// ExistsByTxID reports whether a ledger entry with the given tx id exists
func (r *TransactionRepository) ExistsByTxID(ctx context.Context, txID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM transactions WHERE tx_id = $1)`

	var exists bool
	if err := exec(ctx, r.db).QueryRowContext(ctx, query, txID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check ledger entry existence: %w", err)
	}

	return exists, nil
}

// GetByID retrieves a ledger entry by its id
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM transactions WHERE id = $1`

	entry := &entities.LedgerEntry{}
	err := exec(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&entry.ID,
		&entry.TxID,
		&entry.FromAddress,
		&entry.ToAddress,
		&entry.Amount,
		&entry.Network,
		&entry.Type,
		&entry.Status,
		&entry.TokenAddress,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("transaction")
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	return entry, nil
}

// UpdateStatus moves a ledger entry to a new status. When txID is non-empty
// the on-chain hash recorded at broadcast replaces the provisional id.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.TransactionStatus, txID string) error {
	var (
		result sql.Result
		err    error
	)

	if txID != "" {
		query := `UPDATE transactions SET status = $2, tx_id = $3, updated_at = $4 WHERE id = $1`
		result, err = exec(ctx, r.db).ExecContext(ctx, query, id, status, txID, time.Now())
	} else {
		query := `UPDATE transactions SET status = $2, updated_at = $3 WHERE id = $1`
		result, err = exec(ctx, r.db).ExecContext(ctx, query, id, status, time.Now())
	}
	if err != nil {
		return fmt.Errorf("failed to update ledger entry status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domainerrors.NotFoundError("transaction")
	}

	return nil
}

// ListByAddress returns ledger entries touching an address on a network,
// newest first.
func (r *TransactionRepository) ListByAddress(ctx context.Context, network entities.Network, address string, limit int) ([]*entities.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + entryColumns + `
		FROM transactions
		WHERE network = $1 AND (lower(from_address) = lower($2) OR lower(to_address) = lower($2))
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := exec(ctx, r.db).QueryContext(ctx, query, network, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListByStatus returns ledger entries of one type in one status, oldest
// first, for recovery sweeps over stuck work.
func (r *TransactionRepository) ListByStatus(ctx context.Context, txType entities.TransactionType, status entities.TransactionStatus) ([]*entities.LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM transactions
		WHERE tx_type = $1 AND status = $2
		ORDER BY created_at ASC
	`

	rows, err := exec(ctx, r.db).QueryContext(ctx, query, txType, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries by status: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*entities.LedgerEntry, error) {
	var entries []*entities.LedgerEntry
	for rows.Next() {
		entry := &entities.LedgerEntry{}
		if err := rows.Scan(
			&entry.ID,
			&entry.TxID,
			&entry.FromAddress,
			&entry.ToAddress,
			&entry.Amount,
			&entry.Network,
			&entry.Type,
			&entry.Status,
			&entry.TokenAddress,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
