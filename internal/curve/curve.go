// Package curve prices share issuance and redemption on the quadratic bonding curve.
//
// Every function is integer-only and reproduces the on-chain program bit for bit:
// intermediates are computed on big.Int (u128 on chain) and every division floors.
package curve

import (
	"errors"
	"fmt"
	"math/big"

	fpmath "LaunchLedger/internal/math"
)

const (
	// Slope and Scale define cost = Slope*(sNew^2 - s^2) / (2*Scale).
	Slope uint64 = 781_250
	Scale uint64 = 1_000_000_000_000

	// LamportsPerSol converts lamports to whole SOL for USD market cap.
	LamportsPerSol uint64 = 1_000_000_000
)

var (
	// ErrInvalidSellAmount is returned when more shares are sold than held.
	ErrInvalidSellAmount = errors.New("curve: sell amount exceeds shares held")

	// ErrInvalidSupply is returned when a position is larger than the launch supply.
	ErrInvalidSupply = errors.New("curve: position exceeds total supply")

	// ErrArithmeticOverflow signals a result outside the u64 range the program uses.
	ErrArithmeticOverflow = fpmath.ErrOverflow
)

var (
	bigSlope       = new(big.Int).SetUint64(Slope)
	bigTwoScale    = new(big.Int).Mul(big.NewInt(2), new(big.Int).SetUint64(Scale))
	bigScale       = new(big.Int).SetUint64(Scale)
	bigTwoScaleDiv = new(big.Int).Quo(bigTwoScale, bigSlope)
)

// TwoScaleOverSlope is 2*Scale/Slope (2,560,000). Costs are exact multiples of
// 1/TwoScaleOverSlope lamports, so share deltas whose squared difference is a
// multiple of it round-trip exactly through BuyQuote and BuyReturn.
func TwoScaleOverSlope() uint64 {
	return bigTwoScaleDiv.Uint64()
}

// BuyQuote returns the lamports needed to buy sharesOut at currentSupply.
func BuyQuote(sharesOut, currentSupply uint64) (uint64, error) {
	if sharesOut == 0 {
		return 0, nil
	}

	s := new(big.Int).SetUint64(currentSupply)
	sNew := new(big.Int).Add(s, new(big.Int).SetUint64(sharesOut))

	// delta = sNew^2 - s^2
	delta := new(big.Int).Mul(sNew, sNew)
	delta.Sub(delta, new(big.Int).Mul(s, s))

	cost := delta.Mul(delta, bigSlope)
	cost.Quo(cost, bigTwoScale)

	out, err := fpmath.ToUint64(cost)
	if err != nil {
		return 0, fmt.Errorf("buy quote %d at supply %d: %w", sharesOut, currentSupply, err)
	}
	return out, nil
}

// BuyReturn returns the shares issued for solAmount lamports at currentSupply.
func BuyReturn(solAmount, currentSupply uint64) (uint64, error) {
	if solAmount == 0 {
		return 0, nil
	}

	s := new(big.Int).SetUint64(currentSupply)

	// term = 2*sol*scale / slope, floored before the square root
	term := new(big.Int).SetUint64(solAmount)
	term.Mul(term, bigTwoScale)
	term.Quo(term, bigSlope)

	inside := term.Add(term, new(big.Int).Mul(s, s))
	sNew := fpmath.Isqrt(inside)

	shares := sNew.Sub(sNew, s)
	out, err := fpmath.ToUint64(shares)
	if err != nil {
		return 0, fmt.Errorf("buy return %d at supply %d: %w", solAmount, currentSupply, err)
	}
	return out, nil
}

// SellReturn returns floor(sharesToSell*userBasis/userShares): the seller's
// proportional basis, never curve appreciation.
func SellReturn(sharesToSell, userShares, userBasis uint64) (uint64, error) {
	if userShares == 0 {
		return 0, nil
	}
	if sharesToSell > userShares {
		return 0, fmt.Errorf("sell %d of %d: %w", sharesToSell, userShares, ErrInvalidSellAmount)
	}
	// sharesToSell <= userShares, so the quotient is at most userBasis
	return fpmath.MulDiv(sharesToSell, userBasis, userShares, fpmath.RoundDown)
}

// SharePrice is the marginal price in lamports per share at totalShares.
func SharePrice(totalShares uint64) (uint64, error) {
	return fpmath.MulDiv(Slope, totalShares, Scale, fpmath.RoundDown)
}

// SharePriceRat is the exact marginal price, for display conversion only.
func SharePriceRat(totalShares uint64) *big.Rat {
	num := new(big.Int).Mul(bigSlope, new(big.Int).SetUint64(totalShares))
	return new(big.Rat).SetFrac(num, bigScale)
}

// PositionValue is the cost to reacquire shares at the current supply.
// It is a valuation only and is never paid out.
func PositionValue(shares, currentTotalShares uint64) (uint64, error) {
	if shares > currentTotalShares {
		return 0, fmt.Errorf("value %d of supply %d: %w", shares, currentTotalShares, ErrInvalidSupply)
	}
	return BuyQuote(shares, currentTotalShares-shares)
}

// MarketCapUSD converts a lamport pool into whole USD at solPriceUSD per SOL.
func MarketCapUSD(totalSol, solPriceUSD uint64) (uint64, error) {
	return fpmath.MulDiv(totalSol, solPriceUSD, LamportsPerSol, fpmath.RoundDown)
}

// NetOfFee returns amount minus floor(amount*feeBps/bpsDenominator).
func NetOfFee(amount, feeBps, bpsDenominator uint64) (uint64, error) {
	fee, err := fpmath.MulDiv(amount, feeBps, bpsDenominator, fpmath.RoundDown)
	if err != nil {
		return 0, err
	}
	return fpmath.CheckedSub(amount, fee)
}
