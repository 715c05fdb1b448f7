package ledger

import (
	"fmt"
	"math/big"

	"LaunchLedger/internal/state"
)

// InvariantValidator checks ledger invariants after a mutation
type InvariantValidator struct{}

func NewInvariantValidator() *InvariantValidator {
	return &InvariantValidator{}
}

// ValidateLaunch checks lifecycle flags and the graduation snapshot
func (v *InvariantValidator) ValidateLaunch(l *state.Launch) error {
	if l.Graduated && l.RefundMode {
		return fmt.Errorf("launch %s is both graduated and refunding", l.Address)
	}
	if l.Graduated != (l.GraduatedAt != nil) {
		return fmt.Errorf("launch %s graduated=%t but graduatedAt set=%t", l.Address, l.Graduated, l.GraduatedAt != nil)
	}
	if !l.Graduated && l.TotalSharesAtGraduation != 0 {
		return fmt.Errorf("launch %s has a graduation snapshot before graduating", l.Address)
	}
	if l.CreatorClaimedShares > l.CreatorSeedShares {
		return fmt.Errorf("launch %s released %d of %d seed shares", l.Address, l.CreatorClaimedShares, l.CreatorSeedShares)
	}
	return nil
}

// ValidateGraduationFrozen checks the graduation snapshot did not move
// between before and after.
func (v *InvariantValidator) ValidateGraduationFrozen(before, after *state.Launch) error {
	if before.Graduated && after.TotalSharesAtGraduation != before.TotalSharesAtGraduation {
		return fmt.Errorf("launch %s graduation snapshot changed %d -> %d",
			after.Address, before.TotalSharesAtGraduation, after.TotalSharesAtGraduation)
	}
	if before.Graduated && !after.Graduated {
		return fmt.Errorf("launch %s reverted graduation", after.Address)
	}
	if before.RefundMode && !after.RefundMode {
		return fmt.Errorf("launch %s reverted refund mode", after.Address)
	}
	return nil
}

// ValidatePosition checks a fully sold position carries no dust basis
func (v *InvariantValidator) ValidatePosition(p *state.Position) error {
	if p.Shares == 0 && p.LockedShares == 0 && !p.HasClaimedTokens && p.SolBasis != 0 {
		return fmt.Errorf("position %s/%s has basis %d with no shares", p.Launch, p.User, p.SolBasis)
	}
	return nil
}

// ValidateSellRatio checks the basis per share survived a sell to within one
// rounding unit. In integers: 0 <= basisAfter*sharesBefore - basisBefore*sharesAfter < sharesBefore.
func (v *InvariantValidator) ValidateSellRatio(sharesBefore, basisBefore, sharesAfter, basisAfter uint64) error {
	if sharesAfter == 0 {
		if basisAfter != 0 {
			return fmt.Errorf("closed position kept basis %d", basisAfter)
		}
		return nil
	}
	if sharesBefore == 0 {
		return fmt.Errorf("sell from an empty position")
	}

	lhs := new(big.Int).Mul(new(big.Int).SetUint64(basisAfter), new(big.Int).SetUint64(sharesBefore))
	rhs := new(big.Int).Mul(new(big.Int).SetUint64(basisBefore), new(big.Int).SetUint64(sharesAfter))
	drift := lhs.Sub(lhs, rhs)

	if drift.Sign() < 0 || drift.Cmp(new(big.Int).SetUint64(sharesBefore)) >= 0 {
		return fmt.Errorf("basis ratio drift %s out of [0, %d): %d/%d -> %d/%d",
			drift, sharesBefore, basisBefore, sharesBefore, basisAfter, sharesAfter)
	}
	return nil
}

// ValidateShareSum verifies an active launch's total equals the sum of its
// positions' holdings.
func (v *InvariantValidator) ValidateShareSum(l *state.Launch, positions []*state.Position) error {
	if l.Status() != state.LaunchStatusActive {
		return nil
	}
	var sum uint64
	for _, p := range positions {
		sum += p.Holding()
	}
	if sum != l.TotalShares {
		return fmt.Errorf("launch %s total shares %d != position sum %d", l.Address, l.TotalShares, sum)
	}
	return nil
}
