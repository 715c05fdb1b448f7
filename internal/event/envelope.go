package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
)

// EventType discriminator for launch events
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeCreate
	EventTypeBuy
	EventTypeSell
	EventTypeGraduate
	EventTypeMarketCapUpdated
	EventTypeReadyToGraduate
	EventTypeRefundEnabled
	EventTypeTokensClaimed
	EventTypeRefundClaimed
	EventTypeVestingClaimed
)

// Event is the closed set of launch events accepted by the ingestor.
// Every implementation lives in this package.
type Event interface {
	// Signature is the transaction signature
	Signature() string

	// IdempotencyKey is the dedup key; the signature for every kind that a
	// transaction emits at most once
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// LaunchAddress is the launch this event mutates
	LaunchAddress() string

	// Slot is the chain slot the event was observed in
	Slot() uint64

	// OccurredAt is the chain timestamp (not wall-clock)
	OccurredAt() time.Time

	// Validate checks required fields before the event reaches the ledger
	Validate() error

	sealed()
}

// Meta carries the fields shared by every event.
type Meta struct {
	Sig       string
	Launch    string
	SlotNum   uint64
	Timestamp time.Time
}

func (m Meta) Signature() string      { return m.Sig }
func (m Meta) IdempotencyKey() string { return m.Sig }
func (m Meta) LaunchAddress() string  { return m.Launch }
func (m Meta) Slot() uint64           { return m.SlotNum }
func (m Meta) OccurredAt() time.Time  { return m.Timestamp }
func (m Meta) sealed()                {}

func (m Meta) validate(et EventType) error {
	if err := ValidateSignature(m.Sig); err != nil {
		return &ValidationError{Type: et, Field: "signature", Reason: err.Error()}
	}
	if err := ValidateAddress(m.Launch); err != nil {
		return &ValidationError{Type: et, Field: "launchAddress", Reason: err.Error()}
	}
	if m.Timestamp.IsZero() {
		return &ValidationError{Type: et, Field: "timestamp", Reason: "missing"}
	}
	return nil
}

// ErrValidation is matched by every *ValidationError via errors.Is.
var ErrValidation = errors.New("event validation failed")

// ValidationError reports a malformed event: a missing or invalid field.
type ValidationError struct {
	Type   EventType
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s event: %s: %s", e.Type, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

const (
	addressLen   = 32
	signatureLen = 64
)

// ValidateAddress checks s is a base58 Solana public key.
func ValidateAddress(s string) error {
	return validateBase58(s, addressLen)
}

// ValidateSignature checks s is a base58 transaction signature.
func ValidateSignature(s string) error {
	return validateBase58(s, signatureLen)
}

func validateBase58(s string, size int) error {
	if s == "" {
		return errors.New("missing")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("not base58: %w", err)
	}
	if len(raw) != size {
		return fmt.Errorf("decoded to %d bytes, want %d", len(raw), size)
	}
	return nil
}

func (et EventType) String() string {
	switch et {
	case EventTypeCreate:
		return "create"
	case EventTypeBuy:
		return "buy"
	case EventTypeSell:
		return "sell"
	case EventTypeGraduate:
		return "graduate"
	case EventTypeMarketCapUpdated:
		return "market_cap_updated"
	case EventTypeReadyToGraduate:
		return "ready_to_graduate"
	case EventTypeRefundEnabled:
		return "refund_enabled"
	case EventTypeTokensClaimed:
		return "tokens_claimed"
	case EventTypeRefundClaimed:
		return "refund_claimed"
	case EventTypeVestingClaimed:
		return "vesting_claimed"
	default:
		return "unknown"
	}
}

// ParseEventType maps a wire type string to its discriminator.
func ParseEventType(s string) EventType {
	switch s {
	case "create":
		return EventTypeCreate
	case "buy":
		return EventTypeBuy
	case "sell":
		return EventTypeSell
	case "graduate":
		return EventTypeGraduate
	case "market_cap_updated":
		return EventTypeMarketCapUpdated
	case "ready_to_graduate":
		return EventTypeReadyToGraduate
	case "refund_enabled", "refund_enable":
		return EventTypeRefundEnabled
	case "tokens_claimed":
		return EventTypeTokensClaimed
	case "refund_claimed":
		return EventTypeRefundClaimed
	case "vesting_claimed":
		return EventTypeVestingClaimed
	default:
		return EventTypeUnknown
	}
}

// Unrecognized is an event whose type this build does not know. The ingestor
// logs and ignores it.
type Unrecognized struct {
	Meta
	Kind string
}

func (u *Unrecognized) EventType() EventType { return EventTypeUnknown }

func (u *Unrecognized) Validate() error { return nil }
