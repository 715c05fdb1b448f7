package core

import (
	"errors"
	"fmt"

	"LaunchLedger/internal/curve"
	"LaunchLedger/internal/event"
	"LaunchLedger/internal/ledger"
)

// ErrorKind classifies ingest failures so callers can decide per kind
// whether to skip, retry or page.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindInsufficientShares
	KindInvalidStateTransition
	KindDuplicate
	KindArithmeticOverflow
	KindStorage
	KindOutOfOrder
	KindInvariantViolation
	KindLaunchNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInsufficientShares:
		return "insufficient_shares"
	case KindInvalidStateTransition:
		return "invalid_state_transition"
	case KindDuplicate:
		return "duplicate"
	case KindArithmeticOverflow:
		return "arithmetic_overflow"
	case KindStorage:
		return "storage"
	case KindOutOfOrder:
		return "out_of_order"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindLaunchNotFound:
		return "launch_not_found"
	default:
		return "unknown"
	}
}

// Retryable reports whether redelivering the same event can succeed.
// Storage failures are transient, and an unknown launch may be waiting on
// its create; everything else is deterministic.
func (k ErrorKind) Retryable() bool {
	return k == KindStorage || k == KindLaunchNotFound
}

// ErrOutOfOrder is wrapped by KindOutOfOrder errors.
var ErrOutOfOrder = errors.New("event slot precedes launch's last applied slot")

// ErrInvariantViolation means a mutation broke a ledger invariant. The
// mutation is discarded; it signals a bug or a divergence from the program.
var ErrInvariantViolation = errors.New("ledger invariant violated")

func invariantViolation(err error) error {
	return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
}

// ErrLaunchNotFound is returned for events that reference an unknown launch.
var ErrLaunchNotFound = errors.New("launch not found")

// IngestError is the typed result of a rejected event.
type IngestError struct {
	Kind      ErrorKind
	Signature string
	Err       error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s [%s]: %v", e.Signature, e.Kind, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// KindOf extracts the classification from err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindUnknown
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, event.ErrValidation):
		return KindValidation
	case errors.Is(err, ledger.ErrInsufficientShares), errors.Is(err, curve.ErrInvalidSellAmount):
		return KindInsufficientShares
	case errors.Is(err, ErrLaunchNotFound):
		return KindLaunchNotFound
	case errors.Is(err, ledger.ErrInvalidStateTransition):
		return KindInvalidStateTransition
	case errors.Is(err, ledger.ErrArithmeticOverflow), errors.Is(err, curve.ErrInvalidSupply):
		return KindArithmeticOverflow
	case errors.Is(err, ErrOutOfOrder):
		return KindOutOfOrder
	case errors.Is(err, ErrInvariantViolation):
		return KindInvariantViolation
	default:
		return KindStorage
	}
}

func wrap(sig string, err error) *IngestError {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie
	}
	return &IngestError{Kind: classify(err), Signature: sig, Err: err}
}
