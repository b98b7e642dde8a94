package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rate is the current fiat price for one asset symbol, maintained by the
// OTC desk. Quotes are derived from it by applying the configured spread.
type Rate struct {
	Asset     string          `db:"asset"`
	Price     decimal.Decimal `db:"price"`
	UpdatedAt time.Time       `db:"updated_at"`
}
