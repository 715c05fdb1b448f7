package ledger_test

import (
	"errors"
	"testing"
	"time"

	"LaunchLedger/internal/curve"
	"LaunchLedger/internal/event"
	"LaunchLedger/internal/ledger"
	"LaunchLedger/internal/state"
	"LaunchLedger/internal/testutil"

	"github.com/google/uuid"
	"pgregory.net/rapid"
)

var (
	launchAddr  = testutil.Address(1)
	creatorAddr = testutil.Address(2)
	aliceAddr   = testutil.Address(3)
	bobAddr     = testutil.Address(4)
)

func newLaunch() *state.Launch {
	return state.NewLaunch(launchAddr, creatorAddr, testutil.Time(0))
}

func mustBuy(t *testing.T, pl *ledger.PositionLedger, l *state.Launch, p *state.Position, user string, sol, shares uint64) *state.Position {
	t.Helper()
	pos, _, err := pl.ApplyBuy(l, p, user, sol, shares, testutil.Time(time.Minute))
	if err != nil {
		t.Fatalf("ApplyBuy: %v", err)
	}
	return pos
}

// ============================================================================
// Test: Buy
// ============================================================================

func TestApplyBuy_OpensPosition(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()

	pos, eff, err := pl.ApplyBuy(l, nil, aliceAddr, 1_000, 40, testutil.Time(time.Hour))
	if err != nil {
		t.Fatalf("ApplyBuy: %v", err)
	}

	if pos.Shares != 40 || pos.SolBasis != 1_000 {
		t.Errorf("position = %d shares / %d basis, want 40 / 1000", pos.Shares, pos.SolBasis)
	}
	if !pos.FirstBuyAt.Equal(testutil.Time(time.Hour)) {
		t.Errorf("FirstBuyAt = %v, want %v", pos.FirstBuyAt, testutil.Time(time.Hour))
	}
	if l.TotalShares != 40 || l.TotalSol != 1_000 {
		t.Errorf("launch totals = %d / %d, want 40 / 1000", l.TotalShares, l.TotalSol)
	}
	if eff.SolAmount != 1_000 || eff.SharesAmount != 40 {
		t.Errorf("effect = %+v", eff)
	}
}

func TestApplyBuy_AccumulatesAndKeepsFirstBuy(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()

	pos := mustBuy(t, pl, l, nil, aliceAddr, 100, 10)
	first := pos.FirstBuyAt

	pos, _, err := pl.ApplyBuy(l, pos, aliceAddr, 50, 5, testutil.Time(2*time.Hour))
	if err != nil {
		t.Fatalf("ApplyBuy: %v", err)
	}

	if pos.Shares != 15 || pos.SolBasis != 150 {
		t.Errorf("position = %d / %d, want 15 / 150", pos.Shares, pos.SolBasis)
	}
	if !pos.FirstBuyAt.Equal(first) {
		t.Error("FirstBuyAt must not move on later buys")
	}
	if !pos.LastUpdatedAt.Equal(testutil.Time(2 * time.Hour)) {
		t.Errorf("LastUpdatedAt = %v", pos.LastUpdatedAt)
	}
}

func TestApplyBuy_RejectedAfterGraduation(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	mustBuy(t, pl, l, nil, aliceAddr, 100, 10)
	if _, err := pl.ApplyGraduate(l, testutil.Time(time.Hour)); err != nil {
		t.Fatalf("ApplyGraduate: %v", err)
	}

	_, _, err := pl.ApplyBuy(l, nil, bobAddr, 100, 10, testutil.Time(2*time.Hour))
	if !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
	if l.TotalShares != 10 {
		t.Errorf("rejected buy changed totals: %d", l.TotalShares)
	}
}

func TestApplyBuy_OverflowLeavesStateUntouched(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	l.TotalSol = ^uint64(0)

	_, _, err := pl.ApplyBuy(l, nil, aliceAddr, 1, 1, testutil.Time(0))
	if !errors.Is(err, ledger.ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
	if l.TotalShares != 0 {
		t.Errorf("TotalShares = %d after failed buy", l.TotalShares)
	}
}

// ============================================================================
// Test: Sell
// ============================================================================

func TestApplySell_ProportionalBasis(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	pos := mustBuy(t, pl, l, nil, aliceAddr, 100, 150)

	eff, err := pl.ApplySell(l, pos, 50, testutil.Time(time.Hour))
	if err != nil {
		t.Fatalf("ApplySell: %v", err)
	}

	// floor(50*100/150) = 33
	if eff.SolAmount != 33 {
		t.Errorf("basis reduction = %d, want 33", eff.SolAmount)
	}
	if pos.Shares != 100 || pos.SolBasis != 67 {
		t.Errorf("position = %d / %d, want 100 / 67", pos.Shares, pos.SolBasis)
	}
	if l.TotalShares != 100 || l.TotalSol != 67 {
		t.Errorf("launch totals = %d / %d, want 100 / 67", l.TotalShares, l.TotalSol)
	}
}

func TestApplySell_FullSellClosesBasis(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	pos := mustBuy(t, pl, l, nil, aliceAddr, 10, 3)

	if _, err := pl.ApplySell(l, pos, 1, testutil.Time(time.Hour)); err != nil {
		t.Fatalf("ApplySell: %v", err)
	}
	if _, err := pl.ApplySell(l, pos, 2, testutil.Time(time.Hour)); err != nil {
		t.Fatalf("ApplySell: %v", err)
	}

	if pos.Shares != 0 || pos.SolBasis != 0 {
		t.Errorf("closed position = %d / %d, want 0 / 0", pos.Shares, pos.SolBasis)
	}
	if !pos.IsClosed() {
		t.Error("position should be closed")
	}
}

func TestApplySell_InsufficientShares(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	pos := mustBuy(t, pl, l, nil, aliceAddr, 100, 10)

	_, err := pl.ApplySell(l, pos, 11, testutil.Time(time.Hour))
	if !errors.Is(err, ledger.ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}

	var se *ledger.SharesError
	if !errors.As(err, &se) || se.Held != 10 || se.Requested != 11 {
		t.Errorf("unexpected error detail: %v", err)
	}
	if pos.Shares != 10 || pos.SolBasis != 100 || l.TotalShares != 10 {
		t.Error("rejected sell must not mutate state")
	}
}

func TestApplySell_NoPosition(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()

	_, err := pl.ApplySell(l, nil, 1, testutil.Time(0))
	if !errors.Is(err, ledger.ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
}

func TestApplySell_RejectedInRefundMode(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	pos := mustBuy(t, pl, l, nil, aliceAddr, 100, 10)
	if _, err := pl.ApplyRefundEnable(l, testutil.Time(8*24*time.Hour)); err != nil {
		t.Fatalf("ApplyRefundEnable: %v", err)
	}

	_, err := pl.ApplySell(l, pos, 5, testutil.Time(8*24*time.Hour))
	if !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

// Property: the basis/share ratio survives any sell sequence to within one
// rounding unit, and a closed position keeps no basis.
func TestApplySell_BasisRatioProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pl := ledger.NewPositionLedger()
		v := pl.Validator()
		l := newLaunch()

		shares := rapid.Uint64Range(1, 1<<40).Draw(t, "shares")
		basis := rapid.Uint64Range(0, 1<<40).Draw(t, "basis")

		pos, _, err := pl.ApplyBuy(l, nil, aliceAddr, basis, shares, testutil.Time(0))
		if err != nil {
			t.Fatalf("ApplyBuy: %v", err)
		}

		steps := rapid.IntRange(1, 8).Draw(t, "steps")
		for i := 0; i < steps && pos.Shares > 0; i++ {
			sell := rapid.Uint64Range(1, pos.Shares).Draw(t, "sell")
			s0, b0 := pos.Shares, pos.SolBasis

			eff, err := pl.ApplySell(l, pos, sell, testutil.Time(time.Minute))
			if err != nil {
				t.Fatalf("ApplySell(%d of %d): %v", sell, s0, err)
			}

			if err := v.ValidateSellRatio(s0, b0, pos.Shares, pos.SolBasis); err != nil {
				t.Fatal(err)
			}
			if err := v.ValidatePosition(pos); err != nil {
				t.Fatal(err)
			}
			if eff.SolAmount > b0 {
				t.Fatalf("refund %d exceeds basis %d", eff.SolAmount, b0)
			}
			if l.TotalShares != pos.Shares || l.TotalSol != pos.SolBasis {
				t.Fatalf("launch totals %d/%d diverged from sole position %d/%d",
					l.TotalShares, l.TotalSol, pos.Shares, pos.SolBasis)
			}
		}
	})
}

// ============================================================================
// Test: Lifecycle
// ============================================================================

func TestApplyGraduate_FreezesSnapshot(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	mustBuy(t, pl, l, nil, aliceAddr, 100, 500)

	if _, err := pl.ApplyGraduate(l, testutil.Time(time.Hour)); err != nil {
		t.Fatalf("ApplyGraduate: %v", err)
	}

	if !l.Graduated || l.TotalSharesAtGraduation != 500 {
		t.Errorf("graduated=%t snapshot=%d, want true/500", l.Graduated, l.TotalSharesAtGraduation)
	}
	if l.GraduatedAt == nil || !l.GraduatedAt.Equal(testutil.Time(time.Hour)) {
		t.Errorf("GraduatedAt = %v", l.GraduatedAt)
	}
	if err := pl.Validator().ValidateLaunch(l); err != nil {
		t.Error(err)
	}
}

func TestLifecycle_TerminalStatesAreExclusive(t *testing.T) {
	cases := []struct {
		name   string
		first  func(*ledger.PositionLedger, *state.Launch) error
		second func(*ledger.PositionLedger, *state.Launch) error
	}{
		{"graduate twice", graduate, graduate},
		{"refund after graduate", graduate, refundEnable},
		{"graduate after refund", refundEnable, graduate},
		{"refund twice", refundEnable, refundEnable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pl := ledger.NewPositionLedger()
			l := newLaunch()
			if err := tc.first(pl, l); err != nil {
				t.Fatalf("first transition: %v", err)
			}
			before := l.Clone()

			err := tc.second(pl, l)
			if !errors.Is(err, ledger.ErrInvalidStateTransition) {
				t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
			}
			if err := pl.Validator().ValidateGraduationFrozen(before, l); err != nil {
				t.Error(err)
			}
			if l.Graduated && l.RefundMode {
				t.Error("graduated and refundMode both set")
			}
		})
	}
}

func graduate(pl *ledger.PositionLedger, l *state.Launch) error {
	_, err := pl.ApplyGraduate(l, testutil.Time(time.Hour))
	return err
}

func refundEnable(pl *ledger.PositionLedger, l *state.Launch) error {
	_, err := pl.ApplyRefundEnable(l, testutil.Time(8*24*time.Hour))
	return err
}

func TestApplyCreate_SeedFromCurve(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	creator := state.NewPosition(launchAddr, creatorAddr, testutil.Time(0))

	seedNet := uint64(990_000_000)
	eff, err := pl.ApplyCreate(l, creator, seedNet, 0, testutil.Time(0))
	if err != nil {
		t.Fatalf("ApplyCreate: %v", err)
	}

	want, _ := curve.BuyReturn(seedNet, 0)
	if eff.SharesAmount != want || creator.LockedShares != want {
		t.Errorf("seed shares = %d / locked %d, want %d", eff.SharesAmount, creator.LockedShares, want)
	}
	if creator.Shares != 0 {
		t.Errorf("seed shares must be locked, got %d tradable", creator.Shares)
	}
	if creator.SolBasis != 0 {
		t.Errorf("creator basis = %d, want 0 (seed basis lives on the launch)", creator.SolBasis)
	}
	if l.CreatorSeedShares != want || l.CreatorSeedBasis != seedNet || l.TotalSol != seedNet {
		t.Errorf("launch seed = %d/%d total sol %d", l.CreatorSeedShares, l.CreatorSeedBasis, l.TotalSol)
	}

	_, err = pl.ApplyCreate(l, creator, seedNet, 0, testutil.Time(0))
	if !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Errorf("second create: expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestApplyMarketCap_ReconcilesSol(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	mustBuy(t, pl, l, nil, aliceAddr, 100, 10)

	sol := uint64(120)
	pl.ApplyMarketCap(l, 41_000, &sol)
	if l.MarketCapUSD != 41_000 || l.TotalSol != 120 {
		t.Errorf("market cap = %d, total sol = %d", l.MarketCapUSD, l.TotalSol)
	}

	pl.ApplyMarketCap(l, 41_500, nil)
	if l.TotalSol != 120 {
		t.Errorf("absent totalSol must not reset the pool, got %d", l.TotalSol)
	}
}

func TestApplyReadyToGraduate_KeepsFirstStamp(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()

	pl.ApplyReadyToGraduate(l, 40_000, testutil.Time(time.Hour))
	pl.ApplyReadyToGraduate(l, 39_950, testutil.Time(2*time.Hour))

	if l.ReadyToGraduateAt == nil || !l.ReadyToGraduateAt.Equal(testutil.Time(time.Hour)) {
		t.Errorf("ReadyToGraduateAt = %v", l.ReadyToGraduateAt)
	}
	if l.MarketCapUSD != 40_000 {
		t.Errorf("MarketCapUSD = %d, want 40000", l.MarketCapUSD)
	}
}

// ============================================================================
// Test: Claims
// ============================================================================

func TestApplyTokensClaim(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	alice := mustBuy(t, pl, l, nil, aliceAddr, 300, 300)
	mustBuy(t, pl, l, nil, bobAddr, 100, 100)
	if _, err := pl.ApplyGraduate(l, testutil.Time(time.Hour)); err != nil {
		t.Fatal(err)
	}

	eff, err := pl.ApplyTokensClaim(l, alice, testutil.Time(2*time.Hour))
	if err != nil {
		t.Fatalf("ApplyTokensClaim: %v", err)
	}

	// 300/400 of 800M tokens at 9 decimals
	want := uint64(600_000_000) * 1_000_000_000
	if eff.TokenAmount != want {
		t.Errorf("tokens = %d, want %d", eff.TokenAmount, want)
	}
	if !alice.HasClaimedTokens || alice.Shares != 0 {
		t.Errorf("claimed=%t shares=%d", alice.HasClaimedTokens, alice.Shares)
	}
	if l.TotalSharesAtGraduation != 400 {
		t.Errorf("claim changed graduation snapshot: %d", l.TotalSharesAtGraduation)
	}

	_, err = pl.ApplyTokensClaim(l, alice, testutil.Time(3*time.Hour))
	if !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Errorf("double claim: expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestApplyTokensClaim_RequiresGraduation(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	alice := mustBuy(t, pl, l, nil, aliceAddr, 100, 10)

	_, err := pl.ApplyTokensClaim(l, alice, testutil.Time(time.Hour))
	if !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestApplyRefundClaim(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	alice := mustBuy(t, pl, l, nil, aliceAddr, 700, 70)
	mustBuy(t, pl, l, nil, bobAddr, 300, 30)
	if _, err := pl.ApplyRefundEnable(l, testutil.Time(8*24*time.Hour)); err != nil {
		t.Fatal(err)
	}

	eff, err := pl.ApplyRefundClaim(l, alice, testutil.Time(9*24*time.Hour))
	if err != nil {
		t.Fatalf("ApplyRefundClaim: %v", err)
	}

	if eff.SolAmount != 700 {
		t.Errorf("refund = %d, want 700", eff.SolAmount)
	}
	if !alice.IsClosed() || !alice.HasClaimedRefund {
		t.Errorf("alice after refund: %+v", alice)
	}
	if l.TotalShares != 30 || l.TotalSol != 300 {
		t.Errorf("launch totals = %d / %d, want 30 / 300", l.TotalShares, l.TotalSol)
	}

	_, err = pl.ApplyRefundClaim(l, alice, testutil.Time(9*24*time.Hour))
	if !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Errorf("double refund: expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestApplyRefundClaim_CreatorSeedStaysCounted(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	creator := state.NewPosition(launchAddr, creatorAddr, testutil.Time(0))
	if _, err := pl.ApplyCreate(l, creator, 990, 1_000, testutil.Time(0)); err != nil {
		t.Fatal(err)
	}
	mustBuy(t, pl, l, nil, aliceAddr, 500, 50)
	if err := refundEnable(pl, l); err != nil {
		t.Fatal(err)
	}

	// Seed only: nothing to pay, totals untouched
	eff, err := pl.ApplyRefundClaim(l, creator, testutil.Time(9*24*time.Hour))
	if err != nil {
		t.Fatalf("ApplyRefundClaim: %v", err)
	}
	if eff.SolAmount != 0 || eff.SharesAmount != 0 {
		t.Errorf("creator refund effect = %+v, want zero", eff)
	}
	if !creator.HasClaimedRefund || creator.LockedShares != 1_000 {
		t.Errorf("creator after claim: claimed=%t locked=%d", creator.HasClaimedRefund, creator.LockedShares)
	}
	if l.TotalShares != 1_050 || l.TotalSol != 1_490 {
		t.Errorf("launch totals = %d / %d, want 1050 / 1490", l.TotalShares, l.TotalSol)
	}
}

func TestApplyRefundClaim_CreatorBuysRefundedSeedKept(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	creator := state.NewPosition(launchAddr, creatorAddr, testutil.Time(0))
	if _, err := pl.ApplyCreate(l, creator, 990, 1_000, testutil.Time(0)); err != nil {
		t.Fatal(err)
	}
	creator = mustBuy(t, pl, l, creator, creatorAddr, 200, 20)
	if err := refundEnable(pl, l); err != nil {
		t.Fatal(err)
	}

	eff, err := pl.ApplyRefundClaim(l, creator, testutil.Time(9*24*time.Hour))
	if err != nil {
		t.Fatalf("ApplyRefundClaim: %v", err)
	}
	if eff.SolAmount != 200 || eff.SharesAmount != 20 {
		t.Errorf("refund effect = %+v, want 200 sol / 20 shares", eff)
	}
	if creator.Shares != 0 || creator.SolBasis != 0 || creator.LockedShares != 1_000 {
		t.Errorf("creator = %d shares / %d basis / %d locked", creator.Shares, creator.SolBasis, creator.LockedShares)
	}
	if l.TotalShares != 1_000 || l.TotalSol != 990 {
		t.Errorf("launch totals = %d / %d, want 1000 / 990", l.TotalShares, l.TotalSol)
	}
}

func TestApplyVestingClaim_Linear(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	creator := state.NewPosition(launchAddr, creatorAddr, testutil.Time(0))
	if _, err := pl.ApplyCreate(l, creator, 1_000, 1_000, testutil.Time(0)); err != nil {
		t.Fatal(err)
	}

	// Not graduated yet
	_, err := pl.ApplyVestingClaim(l, creator, testutil.Time(time.Hour))
	if !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition before graduation, got %v", err)
	}

	gradAt := 24 * time.Hour
	if _, err := pl.ApplyGraduate(l, testutil.Time(gradAt)); err != nil {
		t.Fatal(err)
	}

	half := testutil.Time(gradAt + state.VestingDuration/2)
	eff, err := pl.ApplyVestingClaim(l, creator, half)
	if err != nil {
		t.Fatalf("ApplyVestingClaim: %v", err)
	}
	if eff.SharesAmount != 500 || creator.Shares != 500 || creator.LockedShares != 500 {
		t.Errorf("half vest: released %d, shares %d, locked %d", eff.SharesAmount, creator.Shares, creator.LockedShares)
	}

	// Claiming again at the same instant releases nothing
	eff, err = pl.ApplyVestingClaim(l, creator, half)
	if err != nil || eff.SharesAmount != 0 {
		t.Errorf("repeat claim: %+v, %v", eff, err)
	}

	end := testutil.Time(gradAt + state.VestingDuration + time.Hour)
	if _, err := pl.ApplyVestingClaim(l, creator, end); err != nil {
		t.Fatal(err)
	}
	if creator.LockedShares != 0 || l.CreatorClaimedShares != 1_000 {
		t.Errorf("full vest: locked %d, claimed %d", creator.LockedShares, l.CreatorClaimedShares)
	}
}

func TestApplyVestingClaim_NotCreator(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	alice := mustBuy(t, pl, l, nil, aliceAddr, 100, 10)
	if _, err := pl.ApplyGraduate(l, testutil.Time(time.Hour)); err != nil {
		t.Fatal(err)
	}

	_, err := pl.ApplyVestingClaim(l, alice, testutil.Time(2*time.Hour))
	if !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

// ============================================================================
// Test: Validator
// ============================================================================

func TestValidateSellRatio(t *testing.T) {
	v := ledger.NewInvariantValidator()

	if err := v.ValidateSellRatio(150, 100, 100, 67); err != nil {
		t.Errorf("150/100 -> 100/67 should pass: %v", err)
	}
	if err := v.ValidateSellRatio(150, 100, 100, 66); err == nil {
		t.Error("100/66 loses more than one unit and should fail")
	}
	if err := v.ValidateSellRatio(150, 100, 0, 1); err == nil {
		t.Error("closed position with basis should fail")
	}
}

func TestValidateShareSum(t *testing.T) {
	pl := ledger.NewPositionLedger()
	l := newLaunch()
	a := mustBuy(t, pl, l, nil, aliceAddr, 100, 10)
	b := mustBuy(t, pl, l, nil, bobAddr, 100, 20)

	v := pl.Validator()
	if err := v.ValidateShareSum(l, []*state.Position{a, b}); err != nil {
		t.Error(err)
	}
	if err := v.ValidateShareSum(l, []*state.Position{a}); err == nil {
		t.Error("missing position should break the share sum")
	}
}

// ============================================================================
// Test: RecordGenerator
// ============================================================================

func TestRecordGenerator_Generate(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	gen := ledger.NewRecordGeneratorWithIDs(func() uuid.UUID { return id })

	l := newLaunch()
	l.MarketCapUSD = 12_345
	evt := &event.Buy{
		Meta: event.Meta{
			Sig:       testutil.Signature(7),
			Launch:    launchAddr,
			SlotNum:   99,
			Timestamp: testutil.Time(time.Minute),
		},
		User:         aliceAddr,
		SolAmount:    500,
		SharesAmount: 25,
	}

	rec := gen.Generate(evt, l, ledger.Effect{SolAmount: 500, SharesAmount: 25})

	if rec.ID != id || rec.Signature != evt.Sig || rec.IdempotencyKey != evt.Sig {
		t.Errorf("identity fields: %+v", rec)
	}
	if rec.Type != "buy" || rec.User != aliceAddr || rec.Launch != launchAddr {
		t.Errorf("type/user/launch = %s/%s/%s", rec.Type, rec.User, rec.Launch)
	}
	if rec.SolAmount != 500 || rec.SharesAmount != 25 || rec.MarketCapUSD != 12_345 || rec.Slot != 99 {
		t.Errorf("amounts: %+v", rec)
	}
	if rec.Hash != nil || rec.PrevHash != nil {
		t.Error("generator must leave hashes to the chain")
	}
}
