package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MasterWalletType distinguishes the custodial wallets the exchange operates
type MasterWalletType string

const (
	MasterWalletTypeMaster  MasterWalletType = "MASTER_WALLET"
	MasterWalletTypeReserve MasterWalletType = "RESERVE_WALLET"
)

// MasterWallet is one of the exchange-operated wallets. Exactly one active
// row exists per type. Fiat is the wallet's fiat reserve, credited when
// pre-orders settle.
type MasterWallet struct {
	ID         uuid.UUID        `db:"id"`
	WalletType MasterWalletType `db:"wallet_type"`
	Fiat       decimal.Decimal  `db:"fiat"`
	CreatedAt  time.Time        `db:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at"`
}

// MasterWalletNetwork holds the master wallet's address, signing key and
// ledger balance on one network.
type MasterWalletNetwork struct {
	ID                  uuid.UUID       `db:"id"`
	WalletID            uuid.UUID       `db:"wallet_id"`
	Network             Network         `db:"network"`
	Address             string          `db:"address"`
	PrivateKeyEncrypted string          `db:"private_key_encrypted"`
	Balance             decimal.Decimal `db:"balance"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`
}
