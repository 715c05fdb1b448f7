package state

import (
	"fmt"
	"time"
)

// Protocol constants. These must match the deployed program exactly.
const (
	GraduationMarketCapUSD        uint64 = 42_000
	GraduationMinHolders          uint64 = 100
	GraduationMaxConcentrationBps uint64 = 1000 // 10%

	// Market cap share of the target at which the program emits ReadyToGraduate
	GraduationThresholdNotificationBps uint64 = 9500

	TokensForHolders uint64 = 800_000_000
	TokenDecimals    uint64 = 9
	BpsDenominator   uint64 = 10_000

	TotalFeeBps    uint64 = 100 // 1%, charged on buys only
	MaxBuyLamports uint64 = 1_000_000_000_000

	LaunchDuration  = 7 * 24 * time.Hour
	VestingDuration = 42 * 24 * time.Hour
)

// TokenUnitsForHolders is TokensForHolders in base units (10^TokenDecimals).
const TokenUnitsForHolders uint64 = TokensForHolders * 1_000_000_000

// GraduationParams are the off-chain graduation gate thresholds.
type GraduationParams struct {
	MarketCapUSD        uint64
	MinHolders          uint64
	MaxConcentrationBps uint64
}

// DefaultGraduationParams returns the protocol thresholds.
func DefaultGraduationParams() GraduationParams {
	return GraduationParams{
		MarketCapUSD:        GraduationMarketCapUSD,
		MinHolders:          GraduationMinHolders,
		MaxConcentrationBps: GraduationMaxConcentrationBps,
	}
}

// Validate checks the thresholds are usable.
func (p GraduationParams) Validate() error {
	if p.MarketCapUSD == 0 {
		return fmt.Errorf("graduation market cap must be positive")
	}
	if p.MaxConcentrationBps > BpsDenominator {
		return fmt.Errorf("max concentration %d bps exceeds %d", p.MaxConcentrationBps, BpsDenominator)
	}
	return nil
}

// ReadyThresholdUSD is the market cap at which a launch is announced as close
// to graduation (95% of the target).
func (p GraduationParams) ReadyThresholdUSD() uint64 {
	return p.MarketCapUSD * GraduationThresholdNotificationBps / BpsDenominator
}
