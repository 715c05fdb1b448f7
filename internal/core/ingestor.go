package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"LaunchLedger/internal/curve"
	"LaunchLedger/internal/event"
	"LaunchLedger/internal/ledger"
	"LaunchLedger/internal/observability"
	"LaunchLedger/internal/persistence"
	"LaunchLedger/internal/state"

	"github.com/rs/zerolog"
)

// Result describes what Process did with an event.
type Result struct {
	Key       string
	Duplicate bool // already processed; nothing changed
	Ignored   bool // unrecognized type; nothing changed
	Record    *state.TransactionRecord
}

// Options configures an EventIngestor.
type Options struct {
	DedupCacheSize  int
	StrictSlotOrder bool
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		DedupCacheSize:  100_000,
		StrictSlotOrder: true,
	}
}

// EventIngestor applies chain events to the ledger exactly once per
// idempotency key. The dedup check, the ledger mutation, the processed
// marker and the audit record commit together in one launch transaction.
type EventIngestor struct {
	store       persistence.Store
	ledger      *ledger.PositionLedger
	records     *ledger.RecordGenerator
	idempotency *IdempotencyChecker
	slots       *SlotValidator
	metrics     *observability.Metrics
	log         zerolog.Logger
}

func NewEventIngestor(
	store persistence.Store,
	opts Options,
	metrics *observability.Metrics,
	log zerolog.Logger,
) (*EventIngestor, error) {
	if opts.DedupCacheSize <= 0 {
		opts.DedupCacheSize = DefaultOptions().DedupCacheSize
	}
	idem, err := NewIdempotencyChecker(opts.DedupCacheSize, store, metrics)
	if err != nil {
		return nil, err
	}
	return &EventIngestor{
		store:       store,
		ledger:      ledger.NewPositionLedger(),
		records:     ledger.NewRecordGenerator(),
		idempotency: idem,
		slots:       NewSlotValidator(opts.StrictSlotOrder, metrics),
		metrics:     metrics,
		log:         log,
	}, nil
}

// WarmDedupCache loads recently processed keys from the store.
func (in *EventIngestor) WarmDedupCache(ctx context.Context, limit int) error {
	keys, err := in.store.RecentIdempotencyKeys(ctx, limit)
	if err != nil {
		return fmt.Errorf("load recent keys: %w", err)
	}
	in.idempotency.Warm(keys)
	in.log.Info().Int("keys", len(keys)).Msg("dedup cache warmed")
	return nil
}

// Process applies evt. A duplicate is reported through Result.Duplicate
// with a nil error. Every rejection is an *IngestError; only KindStorage
// is worth redelivering.
func (in *EventIngestor) Process(ctx context.Context, evt event.Event) (Result, error) {
	start := time.Now()
	eventType := evt.EventType().String()
	key := evt.IdempotencyKey()

	log := in.log.With().
		Str("signature", evt.Signature()).
		Str("launch", evt.LaunchAddress()).
		Uint64("slot", evt.Slot()).
		Str("event_type", eventType).
		Logger()

	// Step 1: forward compatibility
	if u, ok := evt.(*event.Unrecognized); ok {
		log.Warn().Str("kind", u.Kind).Msg("unrecognized event type ignored")
		in.reject(eventType, "unrecognized")
		return Result{Key: key, Ignored: true}, nil
	}

	// Step 2: boundary validation
	if err := evt.Validate(); err != nil {
		ie := wrap(evt.Signature(), err)
		log.Warn().Err(err).Msg("invalid event skipped")
		in.reject(eventType, ie.Kind.String())
		return Result{Key: key}, ie
	}

	// Step 3: idempotency fast path
	if in.idempotency.IsDuplicate(ctx, eventType, key) {
		log.Debug().Msg("duplicate event")
		in.reject(eventType, KindDuplicate.String())
		return Result{Key: key, Duplicate: true}, nil
	}

	// Step 4: atomic apply
	var (
		rec       *state.TransactionRecord
		duplicate bool
	)
	err := in.store.WithinLaunch(ctx, evt.LaunchAddress(), func(tx persistence.Tx) error {
		done, err := tx.HasProcessedSignature(ctx, key)
		if err != nil {
			return fmt.Errorf("check processed: %w", err)
		}
		if done {
			duplicate = true
			return nil
		}

		r, err := in.apply(ctx, tx, evt, log)
		if err != nil {
			return err
		}
		if err := tx.MarkProcessed(ctx, key, evt.LaunchAddress(), evt.Slot()); err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		if err := tx.AppendTransactionRecord(ctx, r); err != nil {
			return fmt.Errorf("append record: %w", err)
		}
		rec = r
		return nil
	})

	if errors.Is(err, persistence.ErrConflict) {
		// A concurrent delivery of the same event committed first
		duplicate, err = true, nil
	}
	if err != nil {
		ie := wrap(evt.Signature(), err)
		in.logRejection(log, ie)
		in.reject(eventType, ie.Kind.String())
		return Result{Key: key}, ie
	}

	in.idempotency.MarkProcessed(key)
	if duplicate {
		log.Debug().Msg("duplicate event")
		in.reject(eventType, KindDuplicate.String())
		return Result{Key: key, Duplicate: true}, nil
	}

	if in.metrics != nil {
		in.metrics.IngestEventsApplied.WithLabelValues(eventType).Inc()
		in.metrics.IngestEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}
	log.Debug().
		Uint64("sol_amount", rec.SolAmount).
		Uint64("shares_amount", rec.SharesAmount).
		Msg("event applied")

	return Result{Key: key, Record: rec}, nil
}

// apply runs inside the launch transaction. Records it loads are copies,
// so a returned error discards every change.
func (in *EventIngestor) apply(
	ctx context.Context,
	tx persistence.Tx,
	evt event.Event,
	log zerolog.Logger,
) (*state.TransactionRecord, error) {
	addr := evt.LaunchAddress()
	ts := evt.OccurredAt()

	launch, err := tx.GetLaunch(ctx, addr)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		c, ok := evt.(*event.Create)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrLaunchNotFound, addr)
		}
		launch = state.NewLaunch(addr, c.Creator, ts)
	case err != nil:
		return nil, fmt.Errorf("load launch: %w", err)
	}

	if err := in.slots.Validate(launch, evt); err != nil {
		return nil, err
	}

	before := launch.Clone()
	var (
		eff       ledger.Effect
		positions []*state.Position
	)

	switch e := evt.(type) {
	case *event.Create:
		if before.Version > 0 {
			return nil, &ledger.TransitionError{Launch: addr, Op: "create", From: launch.Status(), Reason: "launch exists"}
		}
		seedNet, err := curve.NetOfFee(e.SeedLamports, state.TotalFeeBps, state.BpsDenominator)
		if err != nil {
			return nil, err
		}
		creator, err := in.position(ctx, tx, addr, e.Creator)
		if err != nil {
			return nil, err
		}
		if creator == nil {
			creator = state.NewPosition(addr, e.Creator, ts)
		}
		if eff, err = in.ledger.ApplyCreate(launch, creator, seedNet, e.SeedShares, ts); err != nil {
			return nil, err
		}
		positions = append(positions, creator)

	case *event.Buy:
		net, err := curve.NetOfFee(e.SolAmount, state.TotalFeeBps, state.BpsDenominator)
		if err != nil {
			return nil, err
		}
		expected, err := curve.BuyReturn(net, launch.TotalShares)
		if err != nil {
			return nil, err
		}
		if expected != e.SharesAmount {
			in.divergence(log, evt, expected, e.SharesAmount)
		}
		pos, err := in.position(ctx, tx, addr, e.User)
		if err != nil {
			return nil, err
		}
		if pos, eff, err = in.ledger.ApplyBuy(launch, pos, e.User, net, e.SharesAmount, ts); err != nil {
			return nil, err
		}
		positions = append(positions, pos)

	case *event.Sell:
		pos, err := in.position(ctx, tx, addr, e.User)
		if err != nil {
			return nil, err
		}
		var s0, b0 uint64
		if pos != nil {
			s0, b0 = pos.Shares, pos.SolBasis
		}
		if eff, err = in.ledger.ApplySell(launch, pos, e.SharesAmount, ts); err != nil {
			return nil, err
		}
		if e.SolAmount != 0 && e.SolAmount != eff.SolAmount {
			in.divergence(log, evt, eff.SolAmount, e.SolAmount)
		}
		if err := in.ledger.Validator().ValidateSellRatio(s0, b0, pos.Shares, pos.SolBasis); err != nil {
			return nil, invariantViolation(err)
		}
		positions = append(positions, pos)

	case *event.Graduate:
		if eff, err = in.ledger.ApplyGraduate(launch, ts); err != nil {
			return nil, err
		}
		if e.TotalShares != 0 && e.TotalShares != launch.TotalSharesAtGraduation {
			in.divergence(log, evt, launch.TotalSharesAtGraduation, e.TotalShares)
		}

	case *event.RefundEnabled:
		if eff, err = in.ledger.ApplyRefundEnable(launch, ts); err != nil {
			return nil, err
		}

	case *event.MarketCapUpdated:
		if e.TotalShares != nil && *e.TotalShares != launch.TotalShares {
			in.divergence(log, evt, launch.TotalShares, *e.TotalShares)
		}
		eff = in.ledger.ApplyMarketCap(launch, e.MarketCapUSD, e.TotalSol)

	case *event.ReadyToGraduate:
		eff = in.ledger.ApplyReadyToGraduate(launch, e.MarketCapUSD, ts)

	case *event.TokensClaimed:
		pos, err := in.position(ctx, tx, addr, e.User)
		if err != nil {
			return nil, err
		}
		if eff, err = in.ledger.ApplyTokensClaim(launch, pos, ts); err != nil {
			return nil, err
		}
		if e.TokensAmount != 0 && e.TokensAmount != eff.TokenAmount {
			in.divergence(log, evt, eff.TokenAmount, e.TokensAmount)
		}
		positions = append(positions, pos)

	case *event.RefundClaimed:
		pos, err := in.position(ctx, tx, addr, e.User)
		if err != nil {
			return nil, err
		}
		if eff, err = in.ledger.ApplyRefundClaim(launch, pos, ts); err != nil {
			return nil, err
		}
		if e.SolAmount != 0 && e.SolAmount != eff.SolAmount {
			in.divergence(log, evt, eff.SolAmount, e.SolAmount)
		}
		positions = append(positions, pos)

	case *event.VestingClaimed:
		pos, err := in.position(ctx, tx, addr, e.User)
		if err != nil {
			return nil, err
		}
		if eff, err = in.ledger.ApplyVestingClaim(launch, pos, ts); err != nil {
			return nil, err
		}
		if e.SharesAmount != 0 && e.SharesAmount != eff.SharesAmount {
			in.divergence(log, evt, eff.SharesAmount, e.SharesAmount)
		}
		positions = append(positions, pos)

	default:
		return nil, fmt.Errorf("%w: no handler for %T", event.ErrValidation, evt)
	}

	// Post-checks
	v := in.ledger.Validator()
	if err := v.ValidateLaunch(launch); err != nil {
		return nil, invariantViolation(err)
	}
	if err := v.ValidateGraduationFrozen(before, launch); err != nil {
		return nil, invariantViolation(err)
	}
	for _, p := range positions {
		if err := v.ValidatePosition(p); err != nil {
			return nil, invariantViolation(err)
		}
	}

	in.slots.Advance(launch, evt.Slot())

	rec := in.records.Generate(evt, launch, eff)
	ChainRecord(launch.LastAuditHash, rec)
	launch.LastAuditHash = rec.Hash

	if err := tx.UpsertLaunch(ctx, launch); err != nil {
		return nil, fmt.Errorf("upsert launch: %w", err)
	}
	for _, p := range positions {
		if err := tx.UpsertPosition(ctx, p); err != nil {
			return nil, fmt.Errorf("upsert position: %w", err)
		}
	}
	return rec, nil
}

// position loads a position, returning nil when it does not exist.
func (in *EventIngestor) position(ctx context.Context, tx persistence.Tx, launch, user string) (*state.Position, error) {
	p, err := tx.GetPosition(ctx, launch, user)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}
	return p, nil
}

// divergence logs a reported amount that differs from the local computation.
// The chain is authoritative, so processing continues.
func (in *EventIngestor) divergence(log zerolog.Logger, evt event.Event, local, reported uint64) {
	log.Warn().
		Uint64("local", local).
		Uint64("reported", reported).
		Msg("curve divergence")
	if in.metrics != nil {
		in.metrics.CurveDivergence.WithLabelValues(evt.EventType().String()).Inc()
	}
}

func (in *EventIngestor) reject(eventType, reason string) {
	if in.metrics != nil {
		in.metrics.IngestEventsRejected.WithLabelValues(eventType, reason).Inc()
	}
}

func (in *EventIngestor) logRejection(log zerolog.Logger, ie *IngestError) {
	switch ie.Kind {
	case KindArithmeticOverflow, KindInvariantViolation:
		if ie.Kind == KindArithmeticOverflow && in.metrics != nil {
			in.metrics.ArithmeticOverflow.Inc()
		}
		log.Error().Err(ie.Err).Str("kind", ie.Kind.String()).Msg("ledger fault: constants or replay diverge from chain")
	case KindStorage:
		log.Error().Err(ie.Err).Msg("storage failure; event left for redelivery")
	case KindOutOfOrder:
		log.Warn().Err(ie.Err).Msg("out-of-order event rejected")
	case KindLaunchNotFound:
		log.Warn().Err(ie.Err).Msg("event for unknown launch; left for redelivery")
	default:
		log.Warn().Err(ie.Err).Str("kind", ie.Kind.String()).Msg("event rejected")
	}
}
