// Package scheduler polls open launches on a cron schedule and announces the
// ones that can graduate or have expired into refund candidacy.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"LaunchLedger/internal/gates"
	"LaunchLedger/internal/ingestion"
	"LaunchLedger/internal/observability"
	"LaunchLedger/internal/persistence"
	"LaunchLedger/internal/state"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSpec polls once a minute.
const DefaultSpec = "@every 1m"

// ErrAlreadyRunning is returned by RunOnce while a previous run is in flight.
var ErrAlreadyRunning = errors.New("scheduler: run already in progress")

// NoticePublisher receives the poller's findings. *ingestion.NoticePublisher
// implements it.
type NoticePublisher interface {
	PublishGraduationReady(ctx context.Context, n ingestion.GraduationReadyNotice) error
	PublishRefundCandidate(ctx context.Context, n ingestion.RefundCandidateNotice) error
}

// RunSummary counts what one pass found.
type RunSummary struct {
	Evaluated        int
	Ready            int
	RefundCandidates int
	PublishFailures  int
}

// GraduationPoller re-evaluates graduation gates for every open launch.
// Gate evaluation is pure, so repeated runs are safe; notices carry a
// per-launch message ID and JetStream drops repeats inside its window.
type GraduationPoller struct {
	store     persistence.Reader
	publisher NoticePublisher
	params    state.GraduationParams
	timeout   time.Duration
	metrics   *observability.Metrics
	log       zerolog.Logger
	now       func() time.Time

	runMu sync.Mutex
	cron  *cron.Cron
}

func NewGraduationPoller(
	store persistence.Reader,
	publisher NoticePublisher,
	params state.GraduationParams,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *GraduationPoller {
	return &GraduationPoller{
		store:     store,
		publisher: publisher,
		params:    params,
		timeout:   30 * time.Second,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the time source, for expiry tests.
func (p *GraduationPoller) WithClock(now func() time.Time) *GraduationPoller {
	p.now = now
	return p
}

// Start schedules RunOnce on spec (standard cron or "@every" syntax).
func (p *GraduationPoller) Start(spec string) error {
	if spec == "" {
		spec = DefaultSpec
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{p.log})))
	if _, err := c.AddFunc(spec, p.tick); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()
	p.cron = c

	p.log.Info().Str("spec", spec).Msg("graduation poller started")
	return nil
}

// Stop halts scheduling and waits for a running pass to finish or ctx to expire.
func (p *GraduationPoller) Stop(ctx context.Context) {
	if p.cron == nil {
		return
	}
	select {
	case <-p.cron.Stop().Done():
	case <-ctx.Done():
	}
	p.log.Info().Msg("graduation poller stopped")
}

func (p *GraduationPoller) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if _, err := p.RunOnce(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		p.log.Error().Err(err).Msg("graduation poll failed")
	}
}

// RunOnce evaluates every open launch once. A publish failure is counted and
// logged but does not stop the pass.
func (p *GraduationPoller) RunOnce(ctx context.Context) (RunSummary, error) {
	if !p.runMu.TryLock() {
		return RunSummary{}, ErrAlreadyRunning
	}
	defer p.runMu.Unlock()

	start := time.Now()
	summary, err := p.run(ctx)

	if p.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		} else if summary.PublishFailures > 0 {
			result = "partial"
		}
		p.metrics.SchedulerRuns.WithLabelValues(result).Inc()
		p.metrics.SchedulerRunDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			p.metrics.LaunchesReady.Set(float64(summary.Ready))
			p.metrics.RefundCandidates.Set(float64(summary.RefundCandidates))
		}
	}

	p.log.Info().
		Int("evaluated", summary.Evaluated).
		Int("ready", summary.Ready).
		Int("refund_candidates", summary.RefundCandidates).
		Int("publish_failures", summary.PublishFailures).
		Dur("took", time.Since(start)).
		Msg("graduation poll complete")
	return summary, err
}

func (p *GraduationPoller) run(ctx context.Context) (RunSummary, error) {
	var summary RunSummary

	launches, err := p.store.ListOpenLaunches(ctx)
	if err != nil {
		return summary, fmt.Errorf("list open launches: %w", err)
	}

	now := p.now().UTC()
	for _, l := range launches {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Evaluated++

		if l.IsExpired(now) {
			summary.RefundCandidates++
			if !p.publishRefund(ctx, l, now) {
				summary.PublishFailures++
			}
			continue
		}

		positions, err := p.store.ListActivePositions(ctx, l.Address)
		if err != nil {
			return summary, fmt.Errorf("positions of %s: %w", l.Address, err)
		}

		r := gates.Evaluate(l, positions, p.params)
		log := p.log.With().Str("launch", l.Address).Logger()
		if !r.CanGraduate {
			log.Debug().Strs("blocking", r.BlockingReasons()).Msg("launch not ready")
			continue
		}

		summary.Ready++
		log.Info().
			Uint64("market_cap_usd", r.MarketCapUSD).
			Uint64("holders", r.Holders).
			Uint64("concentration_bps", r.ConcentrationBps).
			Msg("launch ready to graduate")
		if !p.publishReady(ctx, l, r, now) {
			summary.PublishFailures++
		}
	}
	return summary, nil
}

func (p *GraduationPoller) publishReady(ctx context.Context, l *state.Launch, r gates.Result, now time.Time) bool {
	if p.publisher == nil {
		return true
	}
	err := p.publisher.PublishGraduationReady(ctx, ingestion.GraduationReadyNotice{
		Launch:           l.Address,
		MarketCapUSD:     r.MarketCapUSD,
		Holders:          r.Holders,
		ConcentrationBps: r.ConcentrationBps,
		EvaluatedAt:      now,
	})
	if err != nil {
		p.log.Warn().Err(err).Str("launch", l.Address).Msg("graduation notice not published")
		return false
	}
	return true
}

func (p *GraduationPoller) publishRefund(ctx context.Context, l *state.Launch, now time.Time) bool {
	if p.publisher == nil {
		return true
	}
	err := p.publisher.PublishRefundCandidate(ctx, ingestion.RefundCandidateNotice{
		Launch:      l.Address,
		CreatedAt:   l.CreatedAt,
		ExpiredAt:   l.CreatedAt.Add(state.LaunchDuration),
		TotalSol:    l.TotalSol,
		EvaluatedAt: now,
	})
	if err != nil {
		p.log.Warn().Err(err).Str("launch", l.Address).Msg("refund notice not published")
		return false
	}
	return true
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
