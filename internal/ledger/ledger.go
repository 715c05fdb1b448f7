package ledger

import (
	"errors"
	"fmt"
	"time"

	"LaunchLedger/internal/curve"
	fpmath "LaunchLedger/internal/math"
	"LaunchLedger/internal/state"
)

var (
	// ErrInsufficientShares is returned when a sell or claim exceeds holdings.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrInvalidStateTransition is returned for lifecycle operations the
	// launch's current phase does not allow.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrArithmeticOverflow means a total left the u64 range. The program uses
	// checked math, so this indicates a constant or replay mismatch.
	ErrArithmeticOverflow = fpmath.ErrOverflow
)

// TransitionError describes a rejected lifecycle operation.
type TransitionError struct {
	Launch string
	Op     string
	From   state.LaunchStatus
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s on launch %s (%s): %s", e.Op, e.Launch, e.From, e.Reason)
	}
	return fmt.Sprintf("%s on launch %s not allowed from %s", e.Op, e.Launch, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// SharesError reports a request for more shares than a position holds.
type SharesError struct {
	Launch    string
	User      string
	Held      uint64
	Requested uint64
}

func (e *SharesError) Error() string {
	return fmt.Sprintf("position %s/%s holds %d shares, requested %d", e.Launch, e.User, e.Held, e.Requested)
}

func (e *SharesError) Is(target error) bool {
	return target == ErrInsufficientShares
}

// Effect is what one applied operation moved. It feeds the audit record.
type Effect struct {
	SolAmount    uint64
	SharesAmount uint64
	TokenAmount  uint64
}

// PositionLedger applies lifecycle and trade transitions to Launch and
// Position records. Every Apply method is all-or-nothing: on error neither
// record is modified. Callers serialize access per launch.
type PositionLedger struct {
	validator *InvariantValidator
}

func NewPositionLedger() *PositionLedger {
	return &PositionLedger{validator: NewInvariantValidator()}
}

// Validator exposes the post-mutation invariant checks.
func (pl *PositionLedger) Validator() *InvariantValidator {
	return pl.validator
}

// ApplyCreate initializes a launch with the creator's seed. seedNet is the
// seed after the buy fee; seedShares of zero derives the shares from the curve.
// The seed shares are locked on the creator's position until vesting releases
// them. The seed basis is tracked on the launch only: the creator position
// starts with zero basis, so it has nothing to refund.
func (pl *PositionLedger) ApplyCreate(
	launch *state.Launch,
	creator *state.Position,
	seedNet, seedShares uint64,
	ts time.Time,
) (Effect, error) {
	if launch.TotalShares != 0 || launch.CreatorSeedShares != 0 {
		return Effect{}, &TransitionError{Launch: launch.Address, Op: "create", From: launch.Status(), Reason: "launch already seeded"}
	}

	if seedShares == 0 {
		var err error
		seedShares, err = curve.BuyReturn(seedNet, 0)
		if err != nil {
			return Effect{}, err
		}
	}

	locked, err := fpmath.CheckedAdd(creator.LockedShares, seedShares)
	if err != nil {
		return Effect{}, err
	}

	launch.TotalShares = seedShares
	launch.TotalSol = seedNet
	launch.CreatorSeedShares = seedShares
	launch.CreatorSeedBasis = seedNet

	creator.LockedShares = locked
	creator.LastUpdatedAt = ts.UTC()

	return Effect{SolAmount: seedNet, SharesAmount: seedShares}, nil
}

// ApplyBuy credits sharesAmount and solAmount to the user's position and the
// launch totals. position may be nil, in which case one is opened at ts.
func (pl *PositionLedger) ApplyBuy(
	launch *state.Launch,
	position *state.Position,
	user string,
	solAmount, sharesAmount uint64,
	ts time.Time,
) (*state.Position, Effect, error) {
	if launch.Status() != state.LaunchStatusActive {
		return nil, Effect{}, &TransitionError{Launch: launch.Address, Op: "buy", From: launch.Status()}
	}

	if position == nil {
		position = state.NewPosition(launch.Address, user, ts)
	}

	shares, err := fpmath.CheckedAdd(position.Shares, sharesAmount)
	if err != nil {
		return nil, Effect{}, err
	}
	basis, err := fpmath.CheckedAdd(position.SolBasis, solAmount)
	if err != nil {
		return nil, Effect{}, err
	}
	totalShares, err := fpmath.CheckedAdd(launch.TotalShares, sharesAmount)
	if err != nil {
		return nil, Effect{}, err
	}
	totalSol, err := fpmath.CheckedAdd(launch.TotalSol, solAmount)
	if err != nil {
		return nil, Effect{}, err
	}

	position.Shares = shares
	position.SolBasis = basis
	position.LastUpdatedAt = ts.UTC()
	launch.TotalShares = totalShares
	launch.TotalSol = totalSol

	return position, Effect{SolAmount: solAmount, SharesAmount: sharesAmount}, nil
}

// ApplySell redeems sharesAmount at the position's proportional basis.
// The basis reduction (the seller's refund) also leaves the launch's SOL pool.
func (pl *PositionLedger) ApplySell(
	launch *state.Launch,
	position *state.Position,
	sharesAmount uint64,
	ts time.Time,
) (Effect, error) {
	if launch.Status() != state.LaunchStatusActive {
		return Effect{}, &TransitionError{Launch: launch.Address, Op: "sell", From: launch.Status()}
	}
	if position == nil {
		return Effect{}, &SharesError{Launch: launch.Address, Requested: sharesAmount}
	}
	if sharesAmount > position.Shares {
		return Effect{}, &SharesError{
			Launch:    launch.Address,
			User:      position.User,
			Held:      position.Shares,
			Requested: sharesAmount,
		}
	}

	reduction, err := curve.SellReturn(sharesAmount, position.Shares, position.SolBasis)
	if err != nil {
		return Effect{}, err
	}
	totalShares, err := fpmath.CheckedSub(launch.TotalShares, sharesAmount)
	if err != nil {
		return Effect{}, err
	}
	totalSol, err := fpmath.CheckedSub(launch.TotalSol, reduction)
	if err != nil {
		return Effect{}, err
	}

	position.Shares -= sharesAmount
	position.SolBasis -= reduction
	if position.Shares == 0 {
		position.SolBasis = 0
	}
	position.LastUpdatedAt = ts.UTC()
	launch.TotalShares = totalShares
	launch.TotalSol = totalSol

	return Effect{SolAmount: reduction, SharesAmount: sharesAmount}, nil
}

// ApplyGraduate freezes TotalSharesAtGraduation and starts creator vesting.
func (pl *PositionLedger) ApplyGraduate(launch *state.Launch, ts time.Time) (Effect, error) {
	if !launch.Status().CanTransitionTo(state.LaunchStatusGraduated) {
		return Effect{}, &TransitionError{Launch: launch.Address, Op: "graduate", From: launch.Status()}
	}

	at := ts.UTC()
	launch.Graduated = true
	launch.GraduatedAt = &at
	launch.TotalSharesAtGraduation = launch.TotalShares

	return Effect{SharesAmount: launch.TotalSharesAtGraduation}, nil
}

// ApplyRefundEnable moves the launch into refund mode.
func (pl *PositionLedger) ApplyRefundEnable(launch *state.Launch, ts time.Time) (Effect, error) {
	if !launch.Status().CanTransitionTo(state.LaunchStatusRefunding) {
		return Effect{}, &TransitionError{Launch: launch.Address, Op: "refund_enable", From: launch.Status()}
	}

	at := ts.UTC()
	launch.RefundMode = true
	launch.RefundEnabledAt = &at

	return Effect{SolAmount: launch.TotalSol}, nil
}

// ApplyMarketCap records the program's market cap and, when reported,
// reconciles the SOL pool. Share totals are never overwritten; they are
// derived from applied trades only.
func (pl *PositionLedger) ApplyMarketCap(launch *state.Launch, marketCapUSD uint64, totalSol *uint64) Effect {
	launch.MarketCapUSD = marketCapUSD
	if totalSol != nil {
		launch.TotalSol = *totalSol
	}
	return Effect{SolAmount: launch.TotalSol}
}

// ApplyReadyToGraduate stamps the first time the launch crossed the
// notification threshold. Later signals keep the original stamp.
func (pl *PositionLedger) ApplyReadyToGraduate(launch *state.Launch, marketCapUSD uint64, ts time.Time) Effect {
	if launch.ReadyToGraduateAt == nil {
		at := ts.UTC()
		launch.ReadyToGraduateAt = &at
	}
	if marketCapUSD > launch.MarketCapUSD {
		launch.MarketCapUSD = marketCapUSD
	}
	return Effect{}
}

// ApplyTokensClaim converts a holder's shares into token base units:
// shares * TokenUnitsForHolders / TotalSharesAtGraduation. The creator must
// have released the whole seed through vesting first.
func (pl *PositionLedger) ApplyTokensClaim(launch *state.Launch, position *state.Position, ts time.Time) (Effect, error) {
	if !launch.Graduated {
		return Effect{}, &TransitionError{Launch: launch.Address, Op: "claim_tokens", From: launch.Status(), Reason: "not graduated"}
	}
	if position == nil {
		return Effect{}, &SharesError{Launch: launch.Address}
	}
	if position.HasClaimedTokens {
		return Effect{}, &TransitionError{Launch: launch.Address, Op: "claim_tokens", From: launch.Status(), Reason: "already claimed"}
	}
	if position.User == launch.Creator && position.LockedShares > 0 {
		return Effect{}, &TransitionError{Launch: launch.Address, Op: "claim_tokens", From: launch.Status(), Reason: "vesting not complete"}
	}
	if launch.TotalSharesAtGraduation == 0 {
		return Effect{}, &TransitionError{Launch: launch.Address, Op: "claim_tokens", From: launch.Status(), Reason: "no shares at graduation"}
	}

	tokens, err := TokensForShares(position.Shares, launch.TotalSharesAtGraduation)
	if err != nil {
		return Effect{}, err
	}
	if tokens == 0 {
		return Effect{}, &SharesError{Launch: launch.Address, User: position.User, Held: position.Shares}
	}

	shares := position.Shares
	position.HasClaimedTokens = true
	position.Shares = 0
	position.LastUpdatedAt = ts.UTC()

	return Effect{SharesAmount: shares, TokenAmount: tokens}, nil
}

// TokensForShares is the token allocation for shares of a graduated launch.
func TokensForShares(shares, totalSharesAtGraduation uint64) (uint64, error) {
	if totalSharesAtGraduation == 0 {
		return 0, nil
	}
	return fpmath.MulDiv(shares, state.TokenUnitsForHolders, totalSharesAtGraduation, fpmath.RoundDown)
}

// ApplyRefundClaim pays back the position's full basis in refund mode and
// removes its tradable shares from the launch totals. Locked seed shares stay
// counted. A position with no basis is only marked claimed.
func (pl *PositionLedger) ApplyRefundClaim(launch *state.Launch, position *state.Position, ts time.Time) (Effect, error) {
	if !launch.RefundMode {
		return Effect{}, &TransitionError{Launch: launch.Address, Op: "claim_refund", From: launch.Status(), Reason: "refund mode not active"}
	}
	if position == nil {
		return Effect{}, &SharesError{Launch: launch.Address}
	}
	if position.HasClaimedRefund {
		return Effect{}, &TransitionError{Launch: launch.Address, Op: "claim_refund", From: launch.Status(), Reason: "already claimed"}
	}

	refund := position.SolBasis
	position.HasClaimedRefund = true
	position.LastUpdatedAt = ts.UTC()
	if refund == 0 {
		return Effect{}, nil
	}

	shares := position.Shares
	launch.TotalShares = fpmath.SaturatingSub(launch.TotalShares, shares)
	launch.TotalSol = fpmath.SaturatingSub(launch.TotalSol, refund)

	position.Shares = 0
	position.SolBasis = 0

	return Effect{SolAmount: refund, SharesAmount: shares}, nil
}

// ApplyVestingClaim releases the creator's vested seed shares as of ts.
// Vesting is linear over state.VestingDuration from graduation.
func (pl *PositionLedger) ApplyVestingClaim(launch *state.Launch, position *state.Position, ts time.Time) (Effect, error) {
	start, ok := launch.VestingStart()
	if !ok {
		return Effect{}, &TransitionError{Launch: launch.Address, Op: "claim_vesting", From: launch.Status(), Reason: "not graduated"}
	}
	if position == nil || position.User != launch.Creator {
		return Effect{}, &TransitionError{Launch: launch.Address, Op: "claim_vesting", From: launch.Status(), Reason: "not the creator"}
	}

	elapsed := int64(ts.Sub(start) / time.Second)
	claimable, err := fpmath.VestingClaimable(
		launch.CreatorSeedShares,
		launch.CreatorClaimedShares,
		elapsed,
		int64(state.VestingDuration/time.Second),
	)
	if err != nil {
		return Effect{}, err
	}
	if claimable == 0 {
		return Effect{}, nil
	}
	if claimable > position.LockedShares {
		return Effect{}, &SharesError{
			Launch:    launch.Address,
			User:      position.User,
			Held:      position.LockedShares,
			Requested: claimable,
		}
	}

	shares, err := fpmath.CheckedAdd(position.Shares, claimable)
	if err != nil {
		return Effect{}, err
	}

	position.LockedShares -= claimable
	position.Shares = shares
	position.VestedSharesClaimed += claimable
	position.LastUpdatedAt = ts.UTC()
	launch.CreatorClaimedShares += claimable

	return Effect{SharesAmount: claimable}, nil
}
