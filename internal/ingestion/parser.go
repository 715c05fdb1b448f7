package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"LaunchLedger/internal/event"
)

// ErrMalformed is returned for payloads that are not a JSON event object.
// Well-formed payloads with missing fields parse fine and fail Validate.
var ErrMalformed = errors.New("malformed event payload")

// wireEvent is the JSON shape published by the chain indexer. Field names are
// camelCase to match upstream; amounts are integers in base units and
// timestamp is unix seconds of the block.
type wireEvent struct {
	Signature     string  `json:"signature"`
	Type          string  `json:"type"`
	LaunchAddress string  `json:"launchAddress"`
	UserAddress   string  `json:"userAddress,omitempty"`
	SolAmount     *uint64 `json:"solAmount,omitempty"`
	SharesAmount  *uint64 `json:"sharesAmount,omitempty"`
	TokensAmount  *uint64 `json:"tokensAmount,omitempty"`
	MarketCapUSD  *uint64 `json:"marketCapUsd,omitempty"`
	ThresholdUSD  *uint64 `json:"thresholdUsd,omitempty"`
	TotalSol      *uint64 `json:"totalSol,omitempty"`
	TotalShares   *uint64 `json:"totalShares,omitempty"`
	Name          string  `json:"name,omitempty"`
	Symbol        string  `json:"symbol,omitempty"`
	Slot          uint64  `json:"slot"`
	Timestamp     int64   `json:"timestamp"`
}

// ParseEvent decodes one wire event into the typed union. Unknown types come
// back as *event.Unrecognized rather than an error.
func ParseEvent(data []byte) (event.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return w.toEvent(), nil
}

func (w *wireEvent) toEvent() event.Event {
	meta := event.Meta{
		Sig:     w.Signature,
		Launch:  w.LaunchAddress,
		SlotNum: w.Slot,
	}
	if w.Timestamp > 0 {
		meta.Timestamp = time.Unix(w.Timestamp, 0).UTC()
	}

	switch event.ParseEventType(w.Type) {
	case event.EventTypeCreate:
		return &event.Create{
			Meta:         meta,
			Creator:      w.UserAddress,
			Name:         w.Name,
			Symbol:       w.Symbol,
			SeedLamports: value(w.SolAmount),
			SeedShares:   value(w.SharesAmount),
		}
	case event.EventTypeBuy:
		return &event.Buy{Meta: meta, User: w.UserAddress, SolAmount: value(w.SolAmount), SharesAmount: value(w.SharesAmount)}
	case event.EventTypeSell:
		return &event.Sell{Meta: meta, User: w.UserAddress, SharesAmount: value(w.SharesAmount), SolAmount: value(w.SolAmount)}
	case event.EventTypeGraduate:
		return &event.Graduate{Meta: meta, TotalShares: value(w.TotalShares)}
	case event.EventTypeMarketCapUpdated:
		return &event.MarketCapUpdated{
			Meta:         meta,
			MarketCapUSD: value(w.MarketCapUSD),
			TotalSol:     w.TotalSol,
			TotalShares:  w.TotalShares,
		}
	case event.EventTypeReadyToGraduate:
		return &event.ReadyToGraduate{Meta: meta, MarketCapUSD: value(w.MarketCapUSD), ThresholdUSD: value(w.ThresholdUSD)}
	case event.EventTypeRefundEnabled:
		return &event.RefundEnabled{Meta: meta}
	case event.EventTypeTokensClaimed:
		return &event.TokensClaimed{Meta: meta, User: w.UserAddress, TokensAmount: value(w.TokensAmount)}
	case event.EventTypeRefundClaimed:
		return &event.RefundClaimed{Meta: meta, User: w.UserAddress, SolAmount: value(w.SolAmount)}
	case event.EventTypeVestingClaimed:
		return &event.VestingClaimed{Meta: meta, User: w.UserAddress, SharesAmount: value(w.SharesAmount)}
	default:
		return &event.Unrecognized{Meta: meta, Kind: w.Type}
	}
}

func value(p *uint64) uint64 {
	if p == nil {
		return 0
	}
	return *p
}
