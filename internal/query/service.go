// Package query serves read-only launch and position views. Reads come from
// the store outside any launch transaction, so they may trail in-flight
// writes; every view carries as_of_slot for freshness.
package query

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"LaunchLedger/internal/advisor"
	"LaunchLedger/internal/core"
	"LaunchLedger/internal/curve"
	"LaunchLedger/internal/event"
	"LaunchLedger/internal/gates"
	"LaunchLedger/internal/ledger"
	"LaunchLedger/internal/oracle"
	"LaunchLedger/internal/persistence"
	"LaunchLedger/internal/state"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidArgument wraps every request validation failure.
	ErrInvalidArgument = errors.New("query: invalid argument")

	// ErrLaunchNotActive is returned when quoting a trade on a graduated or refunding launch.
	ErrLaunchNotActive = errors.New("query: launch is not active")
)

// QueryService answers quote, valuation, gate and advisory queries.
type QueryService struct {
	store   persistence.Reader
	prices  oracle.PriceOracle
	advisor *advisor.Advisor
	params  state.GraduationParams
	now     func() time.Time
	log     zerolog.Logger
}

// NewQueryService wires the read side. prices may be nil, in which case USD
// fields are left empty.
func NewQueryService(
	store persistence.Reader,
	prices oracle.PriceOracle,
	adv *advisor.Advisor,
	params state.GraduationParams,
	log zerolog.Logger,
) *QueryService {
	if adv == nil {
		adv = advisor.New(advisor.DefaultPolicy())
	}
	return &QueryService{
		store:   store,
		prices:  prices,
		advisor: adv,
		params:  params,
		now:     time.Now,
		log:     log,
	}
}

// WithClock overrides the time source used for expiry.
func (qs *QueryService) WithClock(now func() time.Time) *QueryService {
	qs.now = now
	return qs
}

// QuoteBuyBySol returns the shares solAmount lamports buy right now.
func (qs *QueryService) QuoteBuyBySol(ctx context.Context, launch string, solAmount uint64) (*BuyQuote, error) {
	if solAmount == 0 {
		return nil, fmt.Errorf("%w: sol must be positive", ErrInvalidArgument)
	}
	if solAmount > state.MaxBuyLamports {
		return nil, fmt.Errorf("%w: sol %d exceeds max buy %d", ErrInvalidArgument, solAmount, state.MaxBuyLamports)
	}
	l, err := qs.activeLaunch(ctx, launch)
	if err != nil {
		return nil, err
	}

	shares, err := curve.BuyReturn(solAmount, l.TotalShares)
	if err != nil {
		return nil, err
	}
	return buyQuote(l, solAmount, shares), nil
}

// QuoteBuyByShares returns the lamports needed to buy shares right now.
func (qs *QueryService) QuoteBuyByShares(ctx context.Context, launch string, shares uint64) (*BuyQuote, error) {
	if shares == 0 {
		return nil, fmt.Errorf("%w: shares must be positive", ErrInvalidArgument)
	}
	l, err := qs.activeLaunch(ctx, launch)
	if err != nil {
		return nil, err
	}

	cost, err := curve.BuyQuote(shares, l.TotalShares)
	if err != nil {
		return nil, err
	}
	return buyQuote(l, cost, shares), nil
}

func buyQuote(l *state.Launch, sol, shares uint64) *BuyQuote {
	after := l.TotalShares + shares
	return &BuyQuote{
		Launch:       l.Address,
		SolAmount:    sol,
		SharesOut:    shares,
		SupplyBefore: l.TotalShares,
		SupplyAfter:  after,
		PriceBefore:  ratDecimal(curve.SharePriceRat(l.TotalShares)).String(),
		PriceAfter:   ratDecimal(curve.SharePriceRat(after)).String(),
		AsOfSlot:     l.LastSlot,
	}
}

// QuoteSell returns the refund for selling shares out of user's position.
func (qs *QueryService) QuoteSell(ctx context.Context, launch, user string, shares uint64) (*SellQuote, error) {
	if err := validateUser(user); err != nil {
		return nil, err
	}
	if shares == 0 {
		return nil, fmt.Errorf("%w: shares must be positive", ErrInvalidArgument)
	}
	l, err := qs.activeLaunch(ctx, launch)
	if err != nil {
		return nil, err
	}
	p, err := qs.positionOrEmpty(ctx, launch, user)
	if err != nil {
		return nil, err
	}
	if shares > p.Shares {
		return nil, fmt.Errorf("%w: sell %d exceeds %d shares held", ErrInvalidArgument, shares, p.Shares)
	}

	refund, err := curve.SellReturn(shares, p.Shares, p.SolBasis)
	if err != nil {
		return nil, err
	}

	q := &SellQuote{
		Launch:          launch,
		User:            user,
		SharesIn:        shares,
		Refund:          refund,
		RemainingShares: p.Shares - shares,
		RemainingBasis:  p.SolBasis - refund,
		AsOfSlot:        l.LastSlot,
	}
	if q.RemainingShares == 0 {
		q.RemainingBasis = 0
	}
	return q, nil
}

// GetLaunch returns the launch with its current share price.
func (qs *QueryService) GetLaunch(ctx context.Context, launch string) (*LaunchView, error) {
	l, err := qs.launch(ctx, launch)
	if err != nil {
		return nil, err
	}

	return &LaunchView{
		Address:                 l.Address,
		Creator:                 l.Creator,
		Status:                  l.Status().String(),
		TotalShares:             l.TotalShares,
		TotalSol:                l.TotalSol,
		MarketCapUSD:            l.MarketCapUSD,
		CreatorSeedShares:       l.CreatorSeedShares,
		CreatorClaimedShares:    l.CreatorClaimedShares,
		TotalSharesAtGraduation: l.TotalSharesAtGraduation,
		CreatedAt:               l.CreatedAt,
		GraduatedAt:             l.GraduatedAt,
		RefundEnabledAt:         l.RefundEnabledAt,
		ReadyToGraduateAt:       l.ReadyToGraduateAt,
		Expired:                 l.Status() == state.LaunchStatusActive && l.IsExpired(qs.now()),
		Price:                   qs.priceView(ctx, l),
		AsOfSlot:                l.LastSlot,
	}, nil
}

// SharePrice returns the marginal price per share, with USD display values
// when the oracle has a price.
func (qs *QueryService) SharePrice(ctx context.Context, launch string) (*PriceView, error) {
	l, err := qs.launch(ctx, launch)
	if err != nil {
		return nil, err
	}
	return qs.priceView(ctx, l), nil
}

func (qs *QueryService) priceView(ctx context.Context, l *state.Launch) *PriceView {
	perShare := ratDecimal(curve.SharePriceRat(l.TotalShares))
	v := &PriceView{
		Launch:        l.Address,
		TotalShares:   l.TotalShares,
		PriceLamports: perShare.String(),
		PriceSOL:      perShare.Shift(-9).String(),
		AsOfSlot:      l.LastSlot,
	}

	price, ok := qs.solPrice(ctx)
	if !ok {
		return v
	}
	v.SolPriceUSD = price.USD.StringFixed(2)
	v.PriceUSD = perShare.Shift(-9).Mul(price.USD).StringFixed(2)
	v.TotalSolUSD = oracle.LamportsToUSD(l.TotalSol, price).StringFixed(2)
	v.PriceStale = price.Stale
	return v
}

// GetPosition returns user's position in launch.
func (qs *QueryService) GetPosition(ctx context.Context, launch, user string) (*PositionView, error) {
	if err := validateUser(user); err != nil {
		return nil, err
	}
	l, err := qs.launch(ctx, launch)
	if err != nil {
		return nil, err
	}
	p, err := qs.store.GetPosition(ctx, launch, user)
	if err != nil {
		return nil, fmt.Errorf("position %s/%s: %w", launch, user, err)
	}

	return &PositionView{
		Launch:              p.Launch,
		User:                p.User,
		Shares:              p.Shares,
		SolBasis:            p.SolBasis,
		LockedShares:        p.LockedShares,
		VestedSharesClaimed: p.VestedSharesClaimed,
		HasClaimedTokens:    p.HasClaimedTokens,
		HasClaimedRefund:    p.HasClaimedRefund,
		FirstBuyAt:          p.FirstBuyAt,
		LastUpdatedAt:       p.LastUpdatedAt,
		AsOfSlot:            l.LastSlot,
	}, nil
}

// PaperGain values user's tradable shares against their basis. A missing
// position is a zero gain.
func (qs *QueryService) PaperGain(ctx context.Context, launch, user string) (advisor.PaperGain, error) {
	l, p, err := qs.holding(ctx, launch, user)
	if err != nil {
		return advisor.PaperGain{}, err
	}
	return qs.advisor.PaperGain(p.Shares, p.SolBasis, l.TotalShares), nil
}

// PositionValue is the paper valuation of user's position.
func (qs *QueryService) PositionValue(ctx context.Context, launch, user string) (*Valuation, error) {
	l, p, err := qs.holding(ctx, launch, user)
	if err != nil {
		return nil, err
	}
	gain := qs.advisor.PaperGain(p.Shares, p.SolBasis, l.TotalShares)

	v := &Valuation{
		Launch:         launch,
		User:           user,
		Shares:         p.Shares,
		Value:          gain.PositionValue,
		Invested:       gain.Invested,
		UnrealizedGain: gain.UnrealizedGain.String(),
		ROIPercent:     gain.ROIPercent.StringFixed(2),
		AsOfSlot:       l.LastSlot,
	}
	if price, ok := qs.solPrice(ctx); ok {
		v.ValueUSD = oracle.LamportsToUSD(gain.PositionValue, price).StringFixed(2)
	}
	return v, nil
}

// GraduationGates evaluates the three graduation gates for launch.
func (qs *QueryService) GraduationGates(ctx context.Context, launch string) (*GatesView, error) {
	l, err := qs.launch(ctx, launch)
	if err != nil {
		return nil, err
	}
	positions, err := qs.store.ListActivePositions(ctx, launch)
	if err != nil {
		return nil, fmt.Errorf("positions of %s: %w", launch, err)
	}

	r := gates.Evaluate(l, positions, qs.params)
	return &GatesView{
		Launch:              launch,
		Status:              l.Status().String(),
		CanGraduate:         r.CanGraduate,
		MarketCapUSD:        r.MarketCapUSD,
		MarketCapTarget:     r.MarketCapTarget,
		ReadyThresholdUSD:   qs.params.ReadyThresholdUSD(),
		Holders:             r.Holders,
		HoldersTarget:       r.HoldersTarget,
		TopHolder:           r.TopHolder,
		ConcentrationBps:    r.ConcentrationBps,
		MaxConcentrationBps: r.MaxConcentrationBps,
		BlockingReasons:     r.BlockingReasons(),
		AsOfSlot:            l.LastSlot,
		Result:              r,
	}, nil
}

// SellWarning runs the advisor over user's position for a proposed sell.
func (qs *QueryService) SellWarning(ctx context.Context, launch, user string, shares uint64) (*SellWarningView, error) {
	l, p, err := qs.holding(ctx, launch, user)
	if err != nil {
		return nil, err
	}

	w := qs.advisor.SellWarning(shares, p.Shares, p.SolBasis, l.TotalShares)
	return &SellWarningView{
		Launch:        launch,
		User:          user,
		SharesToSell:  shares,
		Severity:      w.Severity,
		SellReturn:    w.SellReturn,
		PositionValue: w.PositionValue,
		LeavingBehind: w.LeavingBehind,
		ROIPercent:    w.ROIPercent.StringFixed(2),
		Message:       w.Message,
		AsOfSlot:      l.LastSlot,
	}, nil
}

// VerifyIntegrity re-walks the launch's audit hash chain, checks its head
// against the hash stored on the launch and, for an active launch, checks
// that position holdings sum to the launch's total shares.
func (qs *QueryService) VerifyIntegrity(ctx context.Context, launch string) (*IntegrityReport, error) {
	l, err := qs.launch(ctx, launch)
	if err != nil {
		return nil, err
	}
	recs, err := qs.store.ListTransactionRecords(ctx, launch, 0)
	if err != nil {
		return nil, fmt.Errorf("records of %s: %w", launch, err)
	}

	report := &IntegrityReport{Launch: launch, Records: len(recs), Passed: true}
	if err := core.VerifyChain(recs); err != nil {
		report.Passed = false
		report.Detail = err.Error()
		return report, nil
	}
	if len(recs) > 0 {
		head := recs[len(recs)-1].Hash
		report.HeadHash = hex.EncodeToString(head)
		if hex.EncodeToString(l.LastAuditHash) != report.HeadHash {
			report.Passed = false
			report.Detail = "launch audit head does not match last record"
			return report, nil
		}
	}

	// Holdings must add up to the launch total while trading is open.
	positions, err := qs.store.ListActivePositions(ctx, launch)
	if err != nil {
		return nil, fmt.Errorf("positions of %s: %w", launch, err)
	}
	if err := ledger.NewInvariantValidator().ValidateShareSum(l, positions); err != nil {
		report.Passed = false
		report.Detail = err.Error()
	}
	return report, nil
}

// ============================================================================
// Helpers
// ============================================================================

func (qs *QueryService) launch(ctx context.Context, address string) (*state.Launch, error) {
	if err := event.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: launch: %v", ErrInvalidArgument, err)
	}
	l, err := qs.store.GetLaunch(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", address, err)
	}
	return l, nil
}

func (qs *QueryService) activeLaunch(ctx context.Context, address string) (*state.Launch, error) {
	l, err := qs.launch(ctx, address)
	if err != nil {
		return nil, err
	}
	if l.Status() != state.LaunchStatusActive {
		return nil, fmt.Errorf("launch %s is %s: %w", address, l.Status(), ErrLaunchNotActive)
	}
	return l, nil
}

// holding loads the launch and user's position, empty if absent.
func (qs *QueryService) holding(ctx context.Context, launch, user string) (*state.Launch, *state.Position, error) {
	if err := validateUser(user); err != nil {
		return nil, nil, err
	}
	l, err := qs.launch(ctx, launch)
	if err != nil {
		return nil, nil, err
	}
	p, err := qs.positionOrEmpty(ctx, launch, user)
	if err != nil {
		return nil, nil, err
	}
	return l, p, nil
}

func (qs *QueryService) positionOrEmpty(ctx context.Context, launch, user string) (*state.Position, error) {
	p, err := qs.store.GetPosition(ctx, launch, user)
	if errors.Is(err, persistence.ErrNotFound) {
		return &state.Position{Launch: launch, User: user}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("position %s/%s: %w", launch, user, err)
	}
	return p, nil
}

// solPrice returns the oracle price, or false when none is configured or
// available. USD values are display-only, so an oracle failure never fails
// the query.
func (qs *QueryService) solPrice(ctx context.Context) (oracle.Price, bool) {
	if qs.prices == nil {
		return oracle.Price{}, false
	}
	price, err := qs.prices.SOLPriceUSD(ctx)
	if err != nil {
		qs.log.Warn().Err(err).Msg("sol price unavailable; omitting usd values")
		return oracle.Price{}, false
	}
	return price, true
}

func validateUser(user string) error {
	if err := event.ValidateAddress(user); err != nil {
		return fmt.Errorf("%w: user: %v", ErrInvalidArgument, err)
	}
	return nil
}

// ratDecimal converts an exact price to a decimal with 12 places.
func ratDecimal(r *big.Rat) decimal.Decimal {
	num := decimal.NewFromBigInt(r.Num(), 0)
	den := decimal.NewFromBigInt(r.Denom(), 0)
	return num.DivRound(den, 12)
}
