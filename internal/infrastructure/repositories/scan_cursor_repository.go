package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/custody-service/custody_service/internal/domain/entities"
)

// ScanCursorRepository persists the per-network deposit scan cursor.
type ScanCursorRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewScanCursorRepository creates a new scan cursor repository
func NewScanCursorRepository(db *sql.DB, logger *zap.Logger) *ScanCursorRepository {
	return &ScanCursorRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the cursor for a network. A network that has never been
// scanned returns a zero cursor rather than an error.
func (r *ScanCursorRepository) Get(ctx context.Context, network entities.Network) (*entities.ScanCursor, error) {
	query := `SELECT network, last_scan_block, updated_at FROM scan_cursors WHERE network = $1`

	cursor := &entities.ScanCursor{}
	err := exec(ctx, r.db).QueryRowContext(ctx, query, network).Scan(
		&cursor.Network,
		&cursor.LastScanBlock,
		&cursor.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return &entities.ScanCursor{Network: network}, nil
		}
		return nil, fmt.Errorf("failed to get scan cursor: %w", err)
	}

	return cursor, nil
}

// Advance upserts the cursor to a new position. Callers invoke this in the
// same transaction that records the scanned deposits.
func (r *ScanCursorRepository) Advance(ctx context.Context, network entities.Network, position int64) error {
	query := `
		INSERT INTO scan_cursors (network, last_scan_block, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (network)
		DO UPDATE SET last_scan_block = EXCLUDED.last_scan_block, updated_at = EXCLUDED.updated_at
	`

	if _, err := exec(ctx, r.db).ExecContext(ctx, query, network, position, time.Now()); err != nil {
		r.logger.Error("failed to advance scan cursor",
			zap.Error(err),
			zap.String("network", string(network)),
			zap.Int64("position", position),
		)
		return fmt.Errorf("failed to advance scan cursor: %w", err)
	}

	return nil
}
