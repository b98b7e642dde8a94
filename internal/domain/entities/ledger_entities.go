package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of balance movement a ledger entry records
type TransactionType string

const (
	TransactionTypeDeposit     TransactionType = "DEPOSIT"
	TransactionTypeWithdraw    TransactionType = "WITHDRAW"
	TransactionTypeTransfer    TransactionType = "TRANSFER"
	TransactionTypeFiatDeposit TransactionType = "FIAT_DEPOSIT"
	TransactionTypeSweep       TransactionType = "SWEEP"
)

// Validate checks if the transaction type is valid
func (t TransactionType) Validate() error {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdraw, TransactionTypeTransfer, TransactionTypeFiatDeposit, TransactionTypeSweep:
		return nil
	default:
		return fmt.Errorf("invalid transaction type: %s", t)
	}
}

// TransactionStatus represents the lifecycle state of a ledger entry
type TransactionStatus string

const (
	TransactionStatusProcess  TransactionStatus = "PROCESS"
	TransactionStatusSuccess  TransactionStatus = "SUCCESS"
	TransactionStatusCanceled TransactionStatus = "CANCELED"
	TransactionStatusRejected TransactionStatus = "REJECTED"
)

// LedgerEntry is one row of the append-only transaction collection.
// TxID is unique: for on-chain movements it is the chain transaction hash,
// for off-chain movements a generated uuid. Uniqueness on TxID is the sole
// deduplication mechanism for chain re-scans.
type LedgerEntry struct {
	ID           uuid.UUID         `db:"id"`
	TxID         string            `db:"tx_id"`
	FromAddress  string            `db:"from_address"`
	ToAddress    string            `db:"to_address"`
	Amount       decimal.Decimal   `db:"amount"`
	Network      Network           `db:"network"`
	Type         TransactionType   `db:"tx_type"`
	Status       TransactionStatus `db:"status"`
	TokenAddress string            `db:"token_address"`
	CreatedAt    time.Time         `db:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at"`
}

// ScanCursor is the last block (EVM) or millisecond timestamp (TRC20)
// successfully processed for a network's deposit scan. It only advances
// after every deposit in the scanned range has a durable ledger entry.
type ScanCursor struct {
	Network       Network   `db:"network"`
	LastScanBlock int64     `db:"last_scan_block"`
	UpdatedAt     time.Time `db:"updated_at"`
}
