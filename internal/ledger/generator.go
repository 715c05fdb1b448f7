package ledger

import (
	"LaunchLedger/internal/event"
	"LaunchLedger/internal/state"

	"github.com/google/uuid"
)

// RecordGenerator builds audit records for applied events.
// Hash fields are left empty; the ingestor chains them.
type RecordGenerator struct {
	newID func() uuid.UUID
}

func NewRecordGenerator() *RecordGenerator {
	return &RecordGenerator{newID: uuid.New}
}

// NewRecordGeneratorWithIDs uses idFn for record IDs, for deterministic tests.
func NewRecordGeneratorWithIDs(idFn func() uuid.UUID) *RecordGenerator {
	return &RecordGenerator{newID: idFn}
}

// Generate creates the record for evt with the amounts the ledger applied.
func (g *RecordGenerator) Generate(evt event.Event, launch *state.Launch, eff Effect) *state.TransactionRecord {
	return &state.TransactionRecord{
		ID:             g.newID(),
		IdempotencyKey: evt.IdempotencyKey(),
		Signature:      evt.Signature(),
		Type:           evt.EventType().String(),
		Launch:         evt.LaunchAddress(),
		User:           userOf(evt),
		SolAmount:      eff.SolAmount,
		SharesAmount:   eff.SharesAmount,
		TokenAmount:    eff.TokenAmount,
		MarketCapUSD:   launch.MarketCapUSD,
		Slot:           evt.Slot(),
		Timestamp:      evt.OccurredAt().UTC(),
	}
}

func userOf(evt event.Event) string {
	switch e := evt.(type) {
	case *event.Create:
		return e.Creator
	case *event.Buy:
		return e.User
	case *event.Sell:
		return e.User
	case *event.TokensClaimed:
		return e.User
	case *event.RefundClaimed:
		return e.User
	case *event.VestingClaimed:
		return e.User
	default:
		return ""
	}
}
