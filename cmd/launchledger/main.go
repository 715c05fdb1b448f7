package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"LaunchLedger/internal/advisor"
	"LaunchLedger/internal/config"
	"LaunchLedger/internal/core"
	"LaunchLedger/internal/ingestion"
	"LaunchLedger/internal/observability"
	"LaunchLedger/internal/oracle"
	"LaunchLedger/internal/persistence"
	"LaunchLedger/internal/query"
	"LaunchLedger/internal/scheduler"
	"LaunchLedger/internal/server"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ./config.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}

	level := observability.ParseLogLevel(cfg.App.LogLevel)
	instance := uuid.NewString()
	log := observability.NewLoggerWithLevel("main", level).With().Str("instance", instance).Logger()
	logger := func(component string) zerolog.Logger {
		return observability.NewLoggerWithLevel(component, level).With().Str("instance", instance).Logger()
	}
	log.Info().Str("app", cfg.App.Name).Msg("LaunchLedger starting")

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Store ---
	store, err := openStore(ctx, cfg, healthChecker, logger("persistence"))
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer store.Close()

	// --- Ingestor ---
	ingestor, err := core.NewEventIngestor(store, cfg.Ingest.Options(), metrics, logger("ingestor"))
	if err != nil {
		log.Fatal().Err(err).Msg("create ingestor")
	}
	if cfg.Ingest.WarmKeys > 0 {
		if err := ingestor.WarmDedupCache(ctx, cfg.Ingest.WarmKeys); err != nil {
			log.Warn().Err(err).Msg("dedup cache warm-up failed, falling back to store lookups")
		}
	}

	// --- Price oracle ---
	prices, err := newPriceOracle(cfg.Oracle, metrics, logger("oracle"))
	if err != nil {
		log.Fatal().Err(err).Msg("create price oracle")
	}

	// --- NATS ---
	var (
		nc         *nats.Conn
		subscriber *ingestion.NATSSubscriber
		notices    scheduler.NoticePublisher
	)
	if cfg.NATS.Enabled {
		natsLog := logger("nats")
		conn, js, err := ingestion.ConnectNATS(cfg.NATS.URL, natsLog)
		if err != nil {
			log.Fatal().Err(err).Msg("nats connect")
		}
		nc = conn
		defer nc.Close()

		if err := ingestion.EnsureStreams(ctx, js, natsLog); err != nil {
			log.Fatal().Err(err).Msg("ensure NATS streams")
		}

		subscriber = ingestion.NewNATSSubscriber(js, ingestor, cfg.NATS.Subscriber(), metrics, natsLog)
		if err := subscriber.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("nats subscribe")
		}
		notices = ingestion.NewNoticePublisher(js, metrics, natsLog)

		healthChecker.AddCheck("nats", func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		})
	} else {
		log.Warn().Msg("NATS disabled; events arrive only through admin injection")
	}

	// --- Services ---
	params := cfg.Gates.Params()
	queryService := query.NewQueryService(store, prices, advisor.New(cfg.Advisor.Policy()), params, logger("query"))

	var admin *ingestion.AdminIngestService
	if cfg.Server.EnableInject {
		admin = ingestion.NewAdminIngestService(ingestor, logger("admin"))
	}

	grpcServer := server.NewGRPCServer(cfg.Server.GRPCAddr(), cfg.Server.HTTPAddr(), &server.ServerDeps{
		QueryService:  queryService,
		Admin:         admin,
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Log:           logger("server"),
	})

	// --- Start goroutines ---
	errChan := make(chan error, 4)

	// 1. gRPC server
	go func() {
		errChan <- grpcServer.StartGRPC(ctx)
	}()

	// 2. HTTP/JSON gateway
	go func() {
		errChan <- grpcServer.StartHTTPGateway(ctx)
	}()

	// 3. Prometheus metrics server
	go func() {
		errChan <- serveMetrics(ctx, cfg.Server.MetricsAddr(), log)
	}()

	// 4. Graduation poller
	var poller *scheduler.GraduationPoller
	if cfg.Scheduler.Enabled {
		poller = scheduler.NewGraduationPoller(store, notices, params, metrics, logger("scheduler"))
		if err := poller.Start(cfg.Scheduler.GraduationPollSpec); err != nil {
			log.Fatal().Err(err).Msg("start graduation poller")
		}
	}

	// Mark service as ready after all goroutines started
	healthChecker.SetReady(true)

	log.Info().
		Bool("in_memory", cfg.Database.InMemory()).
		Bool("nats", cfg.NATS.Enabled).
		Bool("inject", cfg.Server.EnableInject).
		Str("grpc", cfg.Server.GRPCAddr()).
		Str("http", cfg.Server.HTTPAddr()).
		Str("metrics", cfg.Server.MetricsAddr()).
		Msg("LaunchLedger ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	// --- Graceful shutdown ---
	healthChecker.SetReady(false)

	// Stop intake first so no event is left half-applied behind a cancelled context.
	if subscriber != nil {
		subscriber.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if poller != nil {
		poller.Stop(shutdownCtx)
	}

	cancel()
	if nc != nil {
		if err := nc.Drain(); err != nil {
			log.Warn().Err(err).Msg("nats drain")
		}
	}

	log.Info().Msg("LaunchLedger shutdown complete")
}

// openStore connects to Postgres and applies migrations, or returns an
// in-memory store when no database URL is configured.
func openStore(ctx context.Context, cfg *config.Config, health *observability.HealthChecker, log zerolog.Logger) (persistence.Store, error) {
	if cfg.Database.InMemory() {
		log.Warn().Msg("no database configured, using in-memory store")
		return persistence.NewMemoryStore(), nil
	}

	db, err := persistence.OpenDB(ctx, cfg.Database.URL,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Postgres connected")

	if cfg.Database.AutoMigrate {
		n, err := persistence.NewMigrator(db, cfg.Database.MigrationsDir, log).Up(ctx)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		log.Info().Int("applied", n).Msg("migrations up to date")
	}

	pg := persistence.NewPostgresStore(db, log)
	health.AddCheck("postgres", pg.Ping)
	return pg, nil
}

// newPriceOracle builds the SOL/USD source: a cached remote feed when a URL
// is configured, the fallback price as a static quote otherwise, or nil.
func newPriceOracle(cfg config.OracleConfig, metrics *observability.Metrics, log zerolog.Logger) (oracle.PriceOracle, error) {
	if cfg.URL != "" {
		cc, err := cfg.Cached()
		if err != nil {
			return nil, err
		}
		client := &http.Client{Timeout: cc.Timeout}
		return oracle.NewCached(oracle.NewHTTPSource(cfg.URL, client), cc, metrics, log), nil
	}

	fallback, err := cfg.FallbackPrice()
	if err != nil {
		return nil, err
	}
	if fallback.IsZero() {
		log.Warn().Msg("no SOL/USD source configured; USD fields will be omitted")
		return nil, nil
	}
	log.Info().Str("usd", fallback.String()).Msg("using static SOL/USD price")
	return oracle.NewStatic(fallback)
}

func serveMetrics(ctx context.Context, addr string, log zerolog.Logger) error {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              addr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = metricsServer.Shutdown(shutCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics server listening on /metrics")
	if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
