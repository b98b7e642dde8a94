package otc

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/custody-service/custody_service/internal/domain/entities"
)

// RateSource serves the current market price for the traded asset.
type RateSource interface {
	Current(ctx context.Context, asset string) (*entities.Rate, error)
}

// Pricer turns market prices into spread-adjusted quotes. Buyers pay the
// spread on top, sellers give it up.
type Pricer struct {
	rates  RateSource
	asset  string
	spread decimal.Decimal // fraction, 0.01 for 1%
	ttl    time.Duration
	min    decimal.Decimal
	max    decimal.Decimal
}

func NewPricer(rates RateSource, asset string, spreadPercent decimal.Decimal, ttl time.Duration, min, max decimal.Decimal) *Pricer {
	return &Pricer{
		rates:  rates,
		asset:  asset,
		spread: spreadPercent.Div(decimal.NewFromInt(100)),
		ttl:    ttl,
		min:    min,
		max:    max,
	}
}

// Price returns the spread-adjusted unit price for one order direction
func (p *Pricer) Price(ctx context.Context, orderType entities.OtcOrderType) (decimal.Decimal, error) {
	rate, err := p.rates.Current(ctx, p.asset)
	if err != nil {
		return decimal.Zero, err
	}

	one := decimal.NewFromInt(1)
	if orderType == entities.OtcOrderTypeBuy {
		return rate.Price.Mul(one.Add(p.spread)), nil
	}
	return rate.Price.Mul(one.Sub(p.spread)), nil
}

// Quote prices an amount for one order direction. The quote carries its
// expiry; placements after ValidUntil must re-quote.
func (p *Pricer) Quote(ctx context.Context, orderType entities.OtcOrderType, amount decimal.Decimal, fiatCurrency string) (*entities.PriceQuote, error) {
	price, err := p.Price(ctx, orderType)
	if err != nil {
		return nil, err
	}

	return &entities.PriceQuote{
		Price:        price,
		FiatAmount:   amount.Mul(price),
		FiatCurrency: fiatCurrency,
		ValidUntil:   time.Now().Add(p.ttl),
		MinAmount:    p.min,
		MaxAmount:    p.max,
	}, nil
}

// WithinTolerance reports whether requested stays within the given
// fractional tolerance of current.
func WithinTolerance(requested, current, tolerance decimal.Decimal) bool {
	if current.IsZero() {
		return false
	}
	drift := requested.Sub(current).Abs().Div(current)
	return drift.LessThanOrEqual(tolerance)
}
