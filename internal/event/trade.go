package event

import (
	"fmt"

	"LaunchLedger/internal/state"
)

// Buy is a SharesPurchased event.
// SolAmount is the gross amount the buyer paid, as the program emits it; the
// 1% fee is netted off before basis is credited. SharesAmount is what the curve issued.
type Buy struct {
	Meta
	User         string
	SolAmount    uint64
	SharesAmount uint64
}

func (b *Buy) EventType() EventType {
	return EventTypeBuy
}

func (b *Buy) Validate() error {
	if err := b.Meta.validate(EventTypeBuy); err != nil {
		return err
	}
	if err := ValidateAddress(b.User); err != nil {
		return &ValidationError{Type: EventTypeBuy, Field: "userAddress", Reason: err.Error()}
	}
	if b.SolAmount == 0 {
		return &ValidationError{Type: EventTypeBuy, Field: "solAmount", Reason: "must be positive"}
	}
	if b.SolAmount > state.MaxBuyLamports {
		return &ValidationError{
			Type:   EventTypeBuy,
			Field:  "solAmount",
			Reason: fmt.Sprintf("%d exceeds max buy %d", b.SolAmount, state.MaxBuyLamports),
		}
	}
	if b.SharesAmount == 0 {
		return &ValidationError{Type: EventTypeBuy, Field: "sharesAmount", Reason: "must be positive"}
	}
	return nil
}

// Sell is a SharesSold event. SolAmount is the refund the program reported, if any.
type Sell struct {
	Meta
	User         string
	SharesAmount uint64
	SolAmount    uint64
}

func (s *Sell) EventType() EventType {
	return EventTypeSell
}

func (s *Sell) Validate() error {
	if err := s.Meta.validate(EventTypeSell); err != nil {
		return err
	}
	if err := ValidateAddress(s.User); err != nil {
		return &ValidationError{Type: EventTypeSell, Field: "userAddress", Reason: err.Error()}
	}
	if s.SharesAmount == 0 {
		return &ValidationError{Type: EventTypeSell, Field: "sharesAmount", Reason: "must be positive"}
	}
	return nil
}
