package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OtcOrderType represents the direction of an OTC order
type OtcOrderType string

const (
	OtcOrderTypeBuy  OtcOrderType = "BUY"
	OtcOrderTypeSell OtcOrderType = "SELL"
)

// Validate checks if the order type is valid
func (t OtcOrderType) Validate() error {
	switch t {
	case OtcOrderTypeBuy, OtcOrderTypeSell:
		return nil
	default:
		return fmt.Errorf("invalid otc order type: %s", t)
	}
}

// OtcOrderStatus represents the lifecycle state of an OTC order.
// Transitions are one-directional: PENDING -> {PROCESSING|COMPLETED|
// CANCELLED|FAILED}, PROCESSING -> {COMPLETED|CANCELLED|FAILED}.
// COMPLETED, CANCELLED and FAILED are terminal.
type OtcOrderStatus string

const (
	OtcOrderStatusPending    OtcOrderStatus = "PENDING"
	OtcOrderStatusProcessing OtcOrderStatus = "PROCESSING"
	OtcOrderStatusCompleted  OtcOrderStatus = "COMPLETED"
	OtcOrderStatusCancelled  OtcOrderStatus = "CANCELLED"
	OtcOrderStatusFailed     OtcOrderStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s OtcOrderStatus) IsTerminal() bool {
	return s == OtcOrderStatusCompleted || s == OtcOrderStatusCancelled || s == OtcOrderStatusFailed
}

// OtcOrder is a fiat<->asset order. A pre-order locks fiat at placement and
// waits in PROCESSING for a price match or expiry; an instant order settles
// at placement.
type OtcOrder struct {
	ID            uuid.UUID       `db:"id"`
	UserID        uuid.UUID       `db:"user_id"`
	Type          OtcOrderType    `db:"order_type"`
	Status        OtcOrderStatus  `db:"status"`
	Amount        decimal.Decimal `db:"amount"`
	Price         decimal.Decimal `db:"price"`
	FiatAmount    decimal.Decimal `db:"fiat_amount"`
	FiatCurrency  string          `db:"fiat_currency"`
	Network       Network         `db:"network"`
	IsPreOrder    bool            `db:"is_pre_order"`
	FiatDeposited bool            `db:"fiat_deposited"`
	ExpiresAt     *time.Time      `db:"expires_at"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// CanCancel reports whether the user may still cancel the order.
// Pre-orders cancel only while their fiat has not been settled; instant
// orders cancel while still pending.
func (o *OtcOrder) CanCancel() bool {
	if o.Status.IsTerminal() {
		return false
	}
	if o.IsPreOrder {
		return !o.FiatDeposited
	}
	return o.Status == OtcOrderStatusPending
}

// IsExpired reports whether a pre-order has passed its expiry.
func (o *OtcOrder) IsExpired(now time.Time) bool {
	return o.IsPreOrder && o.ExpiresAt != nil && now.After(*o.ExpiresAt)
}

// PriceQuote is a market price adjusted by the configured spread, valid
// for a short window.
type PriceQuote struct {
	Price        decimal.Decimal `json:"price"`
	FiatAmount   decimal.Decimal `json:"fiat_amount"`
	FiatCurrency string          `json:"fiat_currency"`
	ValidUntil   time.Time       `json:"valid_until"`
	MinAmount    decimal.Decimal `json:"min_amount"`
	MaxAmount    decimal.Decimal `json:"max_amount"`
}
