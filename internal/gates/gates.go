// Package gates evaluates whether a launch qualifies for graduation.
//
// Evaluate is a pure function of a launch snapshot and its active positions;
// the scheduler and the query API both recompute it on demand.
package gates

import (
	"fmt"

	fpmath "LaunchLedger/internal/math"
	"LaunchLedger/internal/state"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Gate names a graduation requirement.
type Gate string

const (
	GateMarketCap     Gate = "market_cap"
	GateHolders       Gate = "holders"
	GateConcentration Gate = "concentration"
)

// BlockingReason is one failing gate. Remaining is how far the current value
// is from passing: USD or holders still missing, or bps over the cap.
type BlockingReason struct {
	Gate      Gate
	Current   uint64
	Target    uint64
	Remaining uint64
	Message   string
}

// Result is the full gate evaluation.
type Result struct {
	CanGraduate bool

	MarketCapUSD    uint64
	MarketCapTarget uint64
	MarketCapPassed bool

	Holders       uint64
	HoldersTarget uint64
	HoldersPassed bool

	TopHolder           string
	TopHolding          uint64
	ConcentrationBps    uint64
	MaxConcentrationBps uint64
	ConcentrationPassed bool

	Blocking []BlockingReason
}

// BlockingReasons returns the failing gates' messages in gate order.
func (r Result) BlockingReasons() []string {
	out := make([]string, 0, len(r.Blocking))
	for _, b := range r.Blocking {
		out = append(out, b.Message)
	}
	return out
}

var printer = message.NewPrinter(language.English)

// Evaluate computes the three gates for launch over its active positions
// (shares + locked shares > 0). Inactive positions in the input are skipped.
// Reasons are ordered market cap, holders, concentration.
func Evaluate(launch *state.Launch, positions []*state.Position, params state.GraduationParams) Result {
	r := Result{
		MarketCapUSD:        launch.MarketCapUSD,
		MarketCapTarget:     params.MarketCapUSD,
		HoldersTarget:       params.MinHolders,
		MaxConcentrationBps: params.MaxConcentrationBps,
	}

	for _, p := range positions {
		if !p.IsActive() {
			continue
		}
		r.Holders++
		if h := p.Holding(); h > r.TopHolding || (h == r.TopHolding && p.User < r.TopHolder) {
			r.TopHolding = h
			r.TopHolder = p.User
		}
	}
	if launch.TotalShares > 0 {
		r.ConcentrationBps = fpmath.BasisPoints(r.TopHolding, launch.TotalShares, state.BpsDenominator)
	}

	// Gate 1: market cap
	r.MarketCapPassed = r.MarketCapUSD >= r.MarketCapTarget
	if !r.MarketCapPassed {
		r.Blocking = append(r.Blocking, BlockingReason{
			Gate:      GateMarketCap,
			Current:   r.MarketCapUSD,
			Target:    r.MarketCapTarget,
			Remaining: r.MarketCapTarget - r.MarketCapUSD,
			Message:   printer.Sprintf("Market cap $%d / $%d", r.MarketCapUSD, r.MarketCapTarget),
		})
	}

	// Gate 2: holders
	r.HoldersPassed = r.Holders >= r.HoldersTarget
	if !r.HoldersPassed {
		r.Blocking = append(r.Blocking, BlockingReason{
			Gate:      GateHolders,
			Current:   r.Holders,
			Target:    r.HoldersTarget,
			Remaining: r.HoldersTarget - r.Holders,
			Message:   printer.Sprintf("Holders %d / %d", r.Holders, r.HoldersTarget),
		})
	}

	// Gate 3: concentration
	r.ConcentrationPassed = r.ConcentrationBps <= r.MaxConcentrationBps
	if !r.ConcentrationPassed {
		r.Blocking = append(r.Blocking, BlockingReason{
			Gate:      GateConcentration,
			Current:   r.ConcentrationBps,
			Target:    r.MaxConcentrationBps,
			Remaining: r.ConcentrationBps - r.MaxConcentrationBps,
			Message: fmt.Sprintf("Top holder %s%% / %s%% max",
				bpsToPercent(r.ConcentrationBps), bpsToPercent(r.MaxConcentrationBps)),
		})
	}

	r.CanGraduate = r.MarketCapPassed && r.HoldersPassed && r.ConcentrationPassed
	return r
}

func bpsToPercent(bps uint64) string {
	return decimal.NewFromInt(int64(bps)).Shift(-2).StringFixed(2)
}
