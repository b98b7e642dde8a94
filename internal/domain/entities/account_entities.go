package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// KYCStatus represents the verification state of an account
type KYCStatus string

const (
	KYCStatusPending  KYCStatus = "PENDING"
	KYCStatusApproved KYCStatus = "APPROVED"
	KYCStatusRejected KYCStatus = "REJECTED"
)

// Account is a custodial user account. Balances are mutated only through
// the conditional increment/decrement primitives in AccountRepository;
// accounts are soft-deleted, never removed.
type Account struct {
	ID                   uuid.UUID       `db:"id"`
	Email                string          `db:"email"`
	Name                 string          `db:"name"`
	Fiat                 decimal.Decimal `db:"fiat_balance"`
	LockedFiat           decimal.Decimal `db:"locked_fiat"`
	TwoFAEnabled         bool            `db:"two_fa_enabled"`
	TwoFASecretEncrypted *string         `db:"two_fa_secret_encrypted"`
	KYCStatus            KYCStatus       `db:"kyc_status"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at"`
	DeletedAt            *time.Time      `db:"deleted_at"`
}

// HasProfile reports whether the account carries the profile fields a
// withdrawal requires.
func (a *Account) HasProfile() bool {
	return a.Name != "" && a.Email != ""
}

// Wallet is an account's custodial address on one network, together with
// the ledger balance held against it.
type Wallet struct {
	ID                  uuid.UUID       `db:"id"`
	AccountID           uuid.UUID       `db:"account_id"`
	Network             Network         `db:"network"`
	Address             string          `db:"address"`
	PrivateKeyEncrypted string          `db:"private_key_encrypted"`
	Balance             decimal.Decimal `db:"balance"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`
}
