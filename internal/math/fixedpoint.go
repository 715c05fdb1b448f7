// internal/math/fixedpoint.go
package math

import (
	"errors"
	"math/big"
	"sync"
)

// ErrOverflow is returned when a result does not fit the on-chain u64 range
// or when a subtraction would go negative.
var ErrOverflow = errors.New("math: u64 overflow")

// ErrDivisionByZero is returned by MulDiv when the denominator is zero.
var ErrDivisionByZero = errors.New("math: division by zero")

// Pooled big.Int scratch values for u128-style intermediates
var u128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getU128() *big.Int {
	return u128Pool.Get().(*big.Int)
}

func putU128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	u128Pool.Put(v)
}

type RoundingMode int

const (
	RoundDown RoundingMode = iota // Floor, matches the program's integer division
	RoundUp
)

// MulDiv computes a * b / denominator with a 128+ bit intermediate.
// RoundDown is the only mode used on the ledger write path.
func MulDiv(a, b, denominator uint64, mode RoundingMode) (uint64, error) {
	if denominator == 0 {
		return 0, ErrDivisionByZero
	}

	num := getU128()
	den := getU128()
	rem := getU128()
	defer func() {
		putU128(num)
		putU128(den)
		putU128(rem)
	}()

	num.SetUint64(a)
	num.Mul(num, new(big.Int).SetUint64(b))
	den.SetUint64(denominator)

	num.QuoRem(num, den, rem)
	if mode == RoundUp && rem.Sign() != 0 {
		num.Add(num, big.NewInt(1))
	}

	return ToUint64(num)
}

// ToUint64 narrows v to uint64, failing with ErrOverflow when it does not fit.
func ToUint64(v *big.Int) (uint64, error) {
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, ErrOverflow
	}
	return v.Uint64(), nil
}

// Isqrt returns the exact integer square root: r with r*r <= n < (r+1)*(r+1).
// n must be non-negative.
func Isqrt(n *big.Int) *big.Int {
	if n.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sqrt(n)
}

// CheckedAdd returns a + b or ErrOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// CheckedSub returns a - b or ErrOverflow when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// SaturatingSub returns a - b, clamped at zero.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// BasisPoints returns floor(part * bpsDenominator / whole), or 0 when whole is 0.
func BasisPoints(part, whole, bpsDenominator uint64) uint64 {
	if whole == 0 {
		return 0
	}
	bps, err := MulDiv(part, bpsDenominator, whole, RoundDown)
	if err != nil {
		// part > whole by more than u64/bpsDenominator; cap at the maximum
		return ^uint64(0)
	}
	return bps
}
