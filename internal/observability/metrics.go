package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for LaunchLedger.
type Metrics struct {
	// --- Ingestion ---
	IngestEventsApplied  *prometheus.CounterVec
	IngestEventsRejected *prometheus.CounterVec
	IngestEventDuration  *prometheus.HistogramVec
	IngestLastSlot       *prometheus.GaugeVec
	CurveDivergence      *prometheus.CounterVec
	ArithmeticOverflow   prometheus.Counter

	// --- Idempotency & Ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupTier2Errors      prometheus.Counter
	EventOutOfOrder       *prometheus.CounterVec

	// --- Transport ---
	NATSMessages     *prometheus.CounterVec
	NATSPullLatency  prometheus.Histogram
	NoticesPublished *prometheus.CounterVec

	// --- Oracle ---
	OraclePriceUSD     prometheus.Gauge
	OracleRefreshes    *prometheus.CounterVec
	OracleBreakerState prometheus.Gauge
	OraclePriceAge     prometheus.Gauge

	// --- Scheduler ---
	SchedulerRuns        *prometheus.CounterVec
	SchedulerRunDuration prometheus.Histogram
	LaunchesReady        prometheus.Gauge
	RefundCandidates     prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics registers every metric with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers with reg; tests pass a fresh registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	applyBuckets := []float64{
		0.0001, 0.00025, 0.0005, 0.001, 0.0025,
		0.005, 0.01, 0.025, 0.05, 0.1, 0.25,
	}

	return &Metrics{
		// Ingestion
		IngestEventsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "launch_ingest_events_applied_total",
			Help: "Events applied to the ledger",
		}, []string{"event_type"}),

		IngestEventsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "launch_ingest_events_rejected_total",
			Help: "Events rejected by kind (validation, insufficient_shares, ...)",
		}, []string{"event_type", "reason"}),

		IngestEventDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "launch_ingest_event_duration_seconds",
			Help:    "Time to apply a single event including the store commit",
			Buckets: applyBuckets,
		}, []string{"event_type"}),

		IngestLastSlot: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "launch_ingest_last_slot",
			Help: "Highest applied slot per launch",
		}, []string{"launch"}),

		CurveDivergence: f.NewCounterVec(prometheus.CounterOpts{
			Name: "launch_curve_divergence_total",
			Help: "Events whose reported amounts differ from the local curve",
		}, []string{"event_type"}),

		ArithmeticOverflow: f.NewCounter(prometheus.CounterOpts{
			Name: "launch_arithmetic_overflow_total",
			Help: "Ledger arithmetic overflows (constant mismatch with the program)",
		}),

		// Idempotency & Ordering
		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "launch_idempotency_duplicates_total",
			Help: "Duplicate events detected",
		}, []string{"event_type", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "launch_dedup_lru_size",
			Help: "Entries in the tier-1 dedup cache",
		}),

		DedupTier2Errors: f.NewCounter(prometheus.CounterOpts{
			Name: "launch_dedup_tier2_errors_total",
			Help: "Store lookups that failed during dedup",
		}),

		EventOutOfOrder: f.NewCounterVec(prometheus.CounterOpts{
			Name: "launch_event_out_of_order_total",
			Help: "Events older than the launch's last applied slot",
		}, []string{"event_type"}),

		// Transport
		NATSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "launch_nats_messages_total",
			Help: "Messages consumed by outcome (ack, nak, term)",
		}, []string{"outcome"}),

		NATSPullLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "launch_nats_handle_seconds",
			Help:    "Time from delivery to ack",
			Buckets: applyBuckets,
		}),

		NoticesPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "launch_notices_published_total",
			Help: "Lifecycle notices published",
		}, []string{"subject", "result"}),

		// Oracle
		OraclePriceUSD: f.NewGauge(prometheus.GaugeOpts{
			Name: "launch_oracle_sol_price_usd",
			Help: "Last SOL/USD price served",
		}),

		OracleRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "launch_oracle_refresh_total",
			Help: "Oracle refresh attempts by result",
		}, []string{"result"}),

		OracleBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "launch_oracle_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}),

		OraclePriceAge: f.NewGauge(prometheus.GaugeOpts{
			Name: "launch_oracle_price_age_seconds",
			Help: "Age of the cached price at last read",
		}),

		// Scheduler
		SchedulerRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "launch_scheduler_runs_total",
			Help: "Graduation poll runs by result",
		}, []string{"result"}),

		SchedulerRunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "launch_scheduler_run_duration_seconds",
			Help:    "Graduation poll duration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		LaunchesReady: f.NewGauge(prometheus.GaugeOpts{
			Name: "launch_graduation_ready",
			Help: "Open launches passing every graduation gate",
		}),

		RefundCandidates: f.NewGauge(prometheus.GaugeOpts{
			Name: "launch_refund_candidates",
			Help: "Expired launches awaiting refund enablement",
		}),

		// Query API
		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "launch_query_requests_total",
			Help: "Query API requests",
		}, []string{"endpoint"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "launch_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "launch_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}
