package query

import (
	"time"

	"LaunchLedger/internal/advisor"
	"LaunchLedger/internal/gates"
)

// All responses carry as_of_slot, the highest slot applied to the launch,
// so callers can judge freshness.

// BuyQuote prices a buy at the launch's current supply.
type BuyQuote struct {
	Launch       string `json:"launch"`
	SolAmount    uint64 `json:"sol_amount"`    // lamports paid, net of fee
	SharesOut    uint64 `json:"shares_out"`
	SupplyBefore uint64 `json:"supply_before"`
	SupplyAfter  uint64 `json:"supply_after"`
	PriceBefore  string `json:"price_before"` // lamports per share, exact decimal
	PriceAfter   string `json:"price_after"`
	AsOfSlot     uint64 `json:"as_of_slot"`
}

// SellQuote is the refund a sell pays out. Refunds are proportional basis,
// never curve appreciation.
type SellQuote struct {
	Launch          string `json:"launch"`
	User            string `json:"user"`
	SharesIn        uint64 `json:"shares_in"`
	Refund          uint64 `json:"refund"`
	RemainingShares uint64 `json:"remaining_shares"`
	RemainingBasis  uint64 `json:"remaining_basis"`
	AsOfSlot        uint64 `json:"as_of_slot"`
}

// LaunchView is a launch with derived display values.
type LaunchView struct {
	Address      string `json:"address"`
	Creator      string `json:"creator"`
	Status       string `json:"status"`
	TotalShares  uint64 `json:"total_shares"`
	TotalSol     uint64 `json:"total_sol"`
	MarketCapUSD uint64 `json:"market_cap_usd"`

	CreatorSeedShares    uint64 `json:"creator_seed_shares"`
	CreatorClaimedShares uint64 `json:"creator_claimed_shares"`

	TotalSharesAtGraduation uint64     `json:"total_shares_at_graduation,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	GraduatedAt             *time.Time `json:"graduated_at,omitempty"`
	RefundEnabledAt         *time.Time `json:"refund_enabled_at,omitempty"`
	ReadyToGraduateAt       *time.Time `json:"ready_to_graduate_at,omitempty"`
	Expired                 bool       `json:"expired"`

	Price    *PriceView `json:"price"`
	AsOfSlot uint64     `json:"as_of_slot"`
}

// PriceView is the marginal share price. USD fields are set only when the
// oracle had a price.
type PriceView struct {
	Launch        string `json:"launch"`
	TotalShares   uint64 `json:"total_shares"`
	PriceLamports string `json:"price_lamports"` // exact, 12 dp
	PriceSOL      string `json:"price_sol"`
	PriceUSD      string `json:"price_usd,omitempty"` // 2 dp
	TotalSolUSD   string `json:"total_sol_usd,omitempty"`
	SolPriceUSD   string `json:"sol_price_usd,omitempty"`
	PriceStale    bool   `json:"price_stale,omitempty"`
	AsOfSlot      uint64 `json:"as_of_slot"`
}

// PositionView is one holder's position.
type PositionView struct {
	Launch              string    `json:"launch"`
	User                string    `json:"user"`
	Shares              uint64    `json:"shares"`
	SolBasis            uint64    `json:"sol_basis"`
	LockedShares        uint64    `json:"locked_shares"`
	VestedSharesClaimed uint64    `json:"vested_shares_claimed"`
	HasClaimedTokens    bool      `json:"has_claimed_tokens"`
	HasClaimedRefund    bool      `json:"has_claimed_refund"`
	FirstBuyAt          time.Time `json:"first_buy_at"`
	LastUpdatedAt       time.Time `json:"last_updated_at"`
	AsOfSlot            uint64    `json:"as_of_slot"`
}

// Valuation is a position's paper value at the current supply.
type Valuation struct {
	Launch         string `json:"launch"`
	User           string `json:"user"`
	Shares         uint64 `json:"shares"`
	Value          uint64 `json:"value"` // lamports to reacquire the shares now
	Invested       uint64 `json:"invested"`
	UnrealizedGain string `json:"unrealized_gain"` // lamports, signed
	ROIPercent     string `json:"roi_percent"`
	ValueUSD       string `json:"value_usd,omitempty"`
	AsOfSlot       uint64 `json:"as_of_slot"`
}

// GatesView wraps a gate evaluation for display.
type GatesView struct {
	Launch              string   `json:"launch"`
	Status              string   `json:"status"`
	CanGraduate         bool     `json:"can_graduate"`
	MarketCapUSD        uint64   `json:"market_cap_usd"`
	MarketCapTarget     uint64   `json:"market_cap_target"`
	ReadyThresholdUSD   uint64   `json:"ready_threshold_usd"`
	Holders             uint64   `json:"holders"`
	HoldersTarget       uint64   `json:"holders_target"`
	TopHolder           string   `json:"top_holder,omitempty"`
	ConcentrationBps    uint64   `json:"concentration_bps"`
	MaxConcentrationBps uint64   `json:"max_concentration_bps"`
	BlockingReasons     []string `json:"blocking_reasons"`
	AsOfSlot            uint64   `json:"as_of_slot"`

	Result gates.Result `json:"-"`
}

// SellWarningView is advisor output for a proposed sell.
type SellWarningView struct {
	Launch        string           `json:"launch"`
	User          string           `json:"user"`
	SharesToSell  uint64           `json:"shares_to_sell"`
	Severity      advisor.Severity `json:"severity"`
	SellReturn    uint64           `json:"sell_return"`
	PositionValue uint64           `json:"position_value"`
	LeavingBehind uint64           `json:"leaving_behind"`
	ROIPercent    string           `json:"roi_percent"`
	Message       string           `json:"message"`
	AsOfSlot      uint64           `json:"as_of_slot"`
}

// IntegrityReport is the result of re-walking a launch's audit hash chain.
type IntegrityReport struct {
	Launch   string `json:"launch"`
	Records  int    `json:"records"`
	Passed   bool   `json:"passed"`
	HeadHash string `json:"head_hash,omitempty"`
	Detail   string `json:"detail,omitempty"`
}
