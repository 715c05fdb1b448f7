// Package advisor derives paper-gain and sell-warning data for display.
// It never blocks or mutates anything, and degenerate inputs yield neutral
// results instead of errors.
package advisor

import (
	"LaunchLedger/internal/curve"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Severity classifies a sell warning.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Policy holds the ROI thresholds, in percent, above which a sell is flagged.
type Policy struct {
	CriticalROIPercent decimal.Decimal
	WarningROIPercent  decimal.Decimal
}

// DefaultPolicy flags ROI above 50% as critical and above 10% as a warning.
func DefaultPolicy() Policy {
	return Policy{
		CriticalROIPercent: decimal.NewFromInt(50),
		WarningROIPercent:  decimal.NewFromInt(10),
	}
}

// PaperGain is the unrealized result of a position at the current supply.
type PaperGain struct {
	PositionValue  uint64          // lamports to reacquire the position now
	Invested       uint64          // lamports of basis
	UnrealizedGain decimal.Decimal // lamports, may be negative
	ROIPercent     decimal.Decimal // zero when nothing is invested
}

// SellWarning is the advisory shown before a sell.
type SellWarning struct {
	Severity      Severity
	SellReturn    uint64 // lamports the sell pays out
	PositionValue uint64 // lamports, pre-sell
	LeavingBehind uint64 // value the sell forfeits relative to holding
	ROIPercent    decimal.Decimal
	Message       string
}

// Advisor evaluates positions against a Policy.
type Advisor struct {
	policy Policy
}

func New(policy Policy) *Advisor {
	return &Advisor{policy: policy}
}

// PaperGain values shares at currentTotalShares against basis.
func (a *Advisor) PaperGain(shares, basis, currentTotalShares uint64) PaperGain {
	value, err := curve.PositionValue(shares, currentTotalShares)
	if err != nil {
		value = 0
	}

	gain := decimal.NewFromUint64(value).Sub(decimal.NewFromUint64(basis))
	return PaperGain{
		PositionValue:  value,
		Invested:       basis,
		UnrealizedGain: gain,
		ROIPercent:     roi(gain, basis),
	}
}

// SellWarning describes what selling sharesToSell forfeits. Requests above
// userShares are clamped; zero shares produce a neutral info result.
func (a *Advisor) SellWarning(sharesToSell, userShares, userBasis, currentTotalShares uint64) SellWarning {
	if userShares == 0 || sharesToSell == 0 {
		return SellWarning{Severity: SeverityInfo, ROIPercent: decimal.Zero, Message: "Nothing to sell"}
	}
	if sharesToSell > userShares {
		sharesToSell = userShares
	}

	gain := a.PaperGain(userShares, userBasis, currentTotalShares)
	refund, err := curve.SellReturn(sharesToSell, userShares, userBasis)
	if err != nil {
		refund = 0
	}

	w := SellWarning{
		SellReturn:    refund,
		PositionValue: gain.PositionValue,
		ROIPercent:    gain.ROIPercent,
	}
	if gain.PositionValue > refund {
		w.LeavingBehind = gain.PositionValue - refund
	}

	switch {
	case w.LeavingBehind == 0:
		w.Severity = SeverityInfo
		w.Message = "Break even: this sell returns your full position value"
	case gain.ROIPercent.GreaterThan(a.policy.CriticalROIPercent):
		w.Severity = SeverityCritical
		w.Message = printer.Sprintf("Selling forfeits %s SOL of value at %s%% ROI; gains are only realized at graduation",
			lamportsToSOL(w.LeavingBehind), gain.ROIPercent.StringFixed(1))
	case gain.ROIPercent.GreaterThan(a.policy.WarningROIPercent):
		w.Severity = SeverityWarning
		w.Message = printer.Sprintf("Selling forfeits %s SOL of value at %s%% ROI",
			lamportsToSOL(w.LeavingBehind), gain.ROIPercent.StringFixed(1))
	default:
		w.Severity = SeverityInfo
		w.Message = printer.Sprintf("Selling returns %s SOL of your basis", lamportsToSOL(refund))
	}
	return w
}

var printer = message.NewPrinter(language.English)

func roi(gain decimal.Decimal, invested uint64) decimal.Decimal {
	if invested == 0 {
		return decimal.Zero
	}
	return gain.Mul(decimal.NewFromInt(100)).Div(decimal.NewFromUint64(invested))
}

func lamportsToSOL(lamports uint64) string {
	return decimal.NewFromUint64(lamports).Shift(-int32(9)).StringFixed(4)
}
