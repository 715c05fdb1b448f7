// Package oracle supplies the SOL/USD price used for market-cap display and
// USD conversions. The ledger core never reads it; only the query surface and
// the scheduler do.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"LaunchLedger/internal/curve"

	"github.com/shopspring/decimal"
)

// MaxPriceStaleness is how old a cached price may be before it stops being served.
const MaxPriceStaleness = 300 * time.Second

var (
	// ErrPriceUnavailable means no fresh, cached or fallback price exists.
	ErrPriceUnavailable = errors.New("oracle: sol/usd price unavailable")

	// ErrInvalidPrice is returned for non-positive prices.
	ErrInvalidPrice = errors.New("oracle: price must be positive")
)

var lamportsPerSol = decimal.NewFromUint64(curve.LamportsPerSol)

// Price is a SOL/USD quote.
type Price struct {
	USD       decimal.Decimal
	FetchedAt time.Time
	Source    string
	Stale     bool // served past TTL because a refresh failed
}

// WholeUSD is the price floored to whole dollars, the unit the integer
// market-cap math uses.
func (p Price) WholeUSD() uint64 {
	if !p.USD.IsPositive() {
		return 0
	}
	return uint64(p.USD.Floor().IntPart())
}

// PriceOracle is the injected price dependency.
type PriceOracle interface {
	SOLPriceUSD(ctx context.Context) (Price, error)
}

// Static always returns the same price. Used when no remote source is
// configured and in tests.
type Static struct {
	price Price
}

func NewStatic(usd decimal.Decimal) (*Static, error) {
	if !usd.IsPositive() {
		return nil, fmt.Errorf("static price %s: %w", usd, ErrInvalidPrice)
	}
	return &Static{price: Price{USD: usd, Source: "static"}}, nil
}

func (s *Static) SOLPriceUSD(context.Context) (Price, error) {
	return s.price, nil
}

// USDToLamports converts a USD amount into lamports at price, flooring.
func USDToLamports(usd decimal.Decimal, price Price) (uint64, error) {
	if !price.USD.IsPositive() {
		return 0, ErrInvalidPrice
	}
	if usd.IsNegative() {
		return 0, fmt.Errorf("negative usd amount %s", usd)
	}
	lamports := usd.Mul(lamportsPerSol).Div(price.USD).Floor()
	if !lamports.BigInt().IsUint64() {
		return 0, curve.ErrArithmeticOverflow
	}
	return lamports.BigInt().Uint64(), nil
}

// LamportsToUSD converts lamports to USD at price.
func LamportsToUSD(lamports uint64, price Price) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Mul(price.USD).Div(lamportsPerSol)
}
