// internal/event/market_cap.go
package event

// MarketCapUpdated is emitted by the program after each buy once a SOL price is known.
// TotalSol and TotalShares are optional reconciliation values.
type MarketCapUpdated struct {
	Meta
	MarketCapUSD uint64
	TotalSol     *uint64
	TotalShares  *uint64
}

func (m *MarketCapUpdated) EventType() EventType {
	return EventTypeMarketCapUpdated
}

// IdempotencyKey is qualified by type: the program emits this event in the
// same transaction as the buy that moved the market cap.
func (m *MarketCapUpdated) IdempotencyKey() string {
	return m.Sig + "#" + EventTypeMarketCapUpdated.String()
}

func (m *MarketCapUpdated) Validate() error {
	return m.Meta.validate(EventTypeMarketCapUpdated)
}

// ReadyToGraduate signals the market cap crossed 95% of the graduation target.
type ReadyToGraduate struct {
	Meta
	MarketCapUSD uint64
	ThresholdUSD uint64
}

func (r *ReadyToGraduate) EventType() EventType {
	return EventTypeReadyToGraduate
}

func (r *ReadyToGraduate) IdempotencyKey() string {
	return r.Sig + "#" + EventTypeReadyToGraduate.String()
}

func (r *ReadyToGraduate) Validate() error {
	return r.Meta.validate(EventTypeReadyToGraduate)
}
