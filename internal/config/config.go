// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"time"

	"LaunchLedger/internal/advisor"
	"LaunchLedger/internal/core"
	"LaunchLedger/internal/ingestion"
	"LaunchLedger/internal/oracle"
	"LaunchLedger/internal/state"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Server    ServerConfig    `mapstructure:"server"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Advisor   AdvisorConfig   `mapstructure:"advisor"`
	Gates     GatesConfig     `mapstructure:"gates"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig holds the Postgres pool settings. An empty URL runs the
// ledger on the in-memory store.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// InMemory reports whether no database is configured.
func (c DatabaseConfig) InMemory() bool {
	return c.URL == ""
}

// NATSConfig holds the JetStream consumer settings.
type NATSConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	Stream     string        `mapstructure:"stream"`
	Subject    string        `mapstructure:"subject"`
	Consumer   string        `mapstructure:"consumer"`
	AckWait    time.Duration `mapstructure:"ack_wait"`
	MaxDeliver int           `mapstructure:"max_deliver"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// Subscriber converts the section to the subscriber's settings.
func (c NATSConfig) Subscriber() ingestion.SubscriberConfig {
	return ingestion.SubscriberConfig{
		Stream:     c.Stream,
		Subject:    c.Subject,
		Consumer:   c.Consumer,
		AckWait:    c.AckWait,
		MaxDeliver: c.MaxDeliver,
		RetryDelay: c.RetryDelay,
	}
}

// ServerConfig holds listener ports.
type ServerConfig struct {
	GRPCPort     int  `mapstructure:"grpc_port"`
	HTTPPort     int  `mapstructure:"http_port"`
	MetricsPort  int  `mapstructure:"metrics_port"`
	EnableInject bool `mapstructure:"enable_inject"`
}

func (c ServerConfig) GRPCAddr() string    { return fmt.Sprintf(":%d", c.GRPCPort) }
func (c ServerConfig) HTTPAddr() string    { return fmt.Sprintf(":%d", c.HTTPPort) }
func (c ServerConfig) MetricsAddr() string { return fmt.Sprintf(":%d", c.MetricsPort) }

// OracleConfig holds the SOL/USD source settings. With no URL the fallback
// price is served as a static quote; with neither, USD fields are omitted.
type OracleConfig struct {
	URL               string        `mapstructure:"url"`
	TTL               time.Duration `mapstructure:"ttl"`
	MaxStaleness      time.Duration `mapstructure:"max_staleness"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	FallbackPriceUSD  string        `mapstructure:"fallback_price_usd"`
	BreakerFailures   uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown"`
}

// FallbackPrice parses FallbackPriceUSD; empty is zero.
func (c OracleConfig) FallbackPrice() (decimal.Decimal, error) {
	if c.FallbackPriceUSD == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(c.FallbackPriceUSD)
}

// Cached converts the section to the cached oracle's settings.
func (c OracleConfig) Cached() (oracle.Config, error) {
	fallback, err := c.FallbackPrice()
	if err != nil {
		return oracle.Config{}, fmt.Errorf("oracle.fallback_price_usd: %w", err)
	}
	return oracle.Config{
		TTL:               c.TTL,
		MaxStaleness:      c.MaxStaleness,
		Timeout:           c.Timeout,
		RequestsPerMinute: c.RequestsPerMinute,
		FallbackPriceUSD:  fallback,
		BreakerFailures:   c.BreakerFailures,
		BreakerCooldown:   c.BreakerCooldown,
	}, nil
}

// AdvisorConfig holds sell warning ROI thresholds in percent.
type AdvisorConfig struct {
	CriticalROIPercent float64 `mapstructure:"critical_roi_percent"`
	WarningROIPercent  float64 `mapstructure:"warning_roi_percent"`
}

func (c AdvisorConfig) Policy() advisor.Policy {
	return advisor.Policy{
		CriticalROIPercent: decimal.NewFromFloat(c.CriticalROIPercent),
		WarningROIPercent:  decimal.NewFromFloat(c.WarningROIPercent),
	}
}

// GatesConfig holds the graduation thresholds.
type GatesConfig struct {
	MarketCapUSD        uint64 `mapstructure:"market_cap_usd"`
	MinHolders          uint64 `mapstructure:"min_holders"`
	MaxConcentrationBps uint64 `mapstructure:"max_concentration_bps"`
}

func (c GatesConfig) Params() state.GraduationParams {
	return state.GraduationParams{
		MarketCapUSD:        c.MarketCapUSD,
		MinHolders:          c.MinHolders,
		MaxConcentrationBps: c.MaxConcentrationBps,
	}
}

// SchedulerConfig holds the graduation poller schedule.
type SchedulerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	GraduationPollSpec string `mapstructure:"graduation_poll_spec"`
}

// IngestConfig holds ingestor settings.
type IngestConfig struct {
	DedupCacheSize  int  `mapstructure:"dedup_cache_size"`
	WarmKeys        int  `mapstructure:"warm_keys"`
	StrictSlotOrder bool `mapstructure:"strict_slot_order"`
}

func (c IngestConfig) Options() core.Options {
	return core.Options{
		DedupCacheSize:  c.DedupCacheSize,
		StrictSlotOrder: c.StrictSlotOrder,
	}
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("LAUNCH")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "LAUNCH_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.log_level", "LAUNCH_LOG_LEVEL", "LOG_LEVEL")

	// Database
	v.BindEnv("database.url", "LAUNCH_DATABASE_URL", "DATABASE_URL")
	v.BindEnv("database.max_open_conns", "LAUNCH_DATABASE_MAX_OPEN_CONNS")
	v.BindEnv("database.migrations_dir", "LAUNCH_MIGRATIONS_DIR", "MIGRATIONS_DIR")
	v.BindEnv("database.auto_migrate", "LAUNCH_AUTO_MIGRATE")

	// NATS
	v.BindEnv("nats.enabled", "LAUNCH_NATS_ENABLED")
	v.BindEnv("nats.url", "LAUNCH_NATS_URL", "NATS_URL")
	v.BindEnv("nats.consumer", "LAUNCH_NATS_CONSUMER")

	// Server
	v.BindEnv("server.grpc_port", "LAUNCH_GRPC_PORT")
	v.BindEnv("server.http_port", "LAUNCH_HTTP_PORT")
	v.BindEnv("server.metrics_port", "LAUNCH_METRICS_PORT")
	v.BindEnv("server.enable_inject", "LAUNCH_ENABLE_INJECT")

	// Oracle
	v.BindEnv("oracle.url", "LAUNCH_ORACLE_URL")
	v.BindEnv("oracle.fallback_price_usd", "LAUNCH_ORACLE_FALLBACK_PRICE_USD")

	// Scheduler
	v.BindEnv("scheduler.enabled", "LAUNCH_SCHEDULER_ENABLED")
	v.BindEnv("scheduler.graduation_poll_spec", "LAUNCH_GRADUATION_POLL_SPEC")
}

func setDefaults(v *viper.Viper) {
	gates := state.DefaultGraduationParams()
	sub := ingestion.DefaultSubscriberConfig()
	orc := oracle.DefaultConfig()
	ing := core.DefaultOptions()

	// App defaults
	v.SetDefault("app.name", "launchledger")
	v.SetDefault("app.log_level", "info")

	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.migrations_dir", "migrations")
	v.SetDefault("database.auto_migrate", true)

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.stream", sub.Stream)
	v.SetDefault("nats.subject", sub.Subject)
	v.SetDefault("nats.consumer", sub.Consumer)
	v.SetDefault("nats.ack_wait", sub.AckWait.String())
	v.SetDefault("nats.max_deliver", sub.MaxDeliver)
	v.SetDefault("nats.retry_delay", sub.RetryDelay.String())

	// Server defaults
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.enable_inject", false)

	// Oracle defaults
	v.SetDefault("oracle.url", "")
	v.SetDefault("oracle.ttl", orc.TTL.String())
	v.SetDefault("oracle.max_staleness", orc.MaxStaleness.String())
	v.SetDefault("oracle.timeout", orc.Timeout.String())
	v.SetDefault("oracle.requests_per_minute", orc.RequestsPerMinute)
	v.SetDefault("oracle.fallback_price_usd", "")
	v.SetDefault("oracle.breaker_failures", orc.BreakerFailures)
	v.SetDefault("oracle.breaker_cooldown", orc.BreakerCooldown.String())

	// Advisor defaults
	v.SetDefault("advisor.critical_roi_percent", 50)
	v.SetDefault("advisor.warning_roi_percent", 10)

	// Gate defaults
	v.SetDefault("gates.market_cap_usd", gates.MarketCapUSD)
	v.SetDefault("gates.min_holders", gates.MinHolders)
	v.SetDefault("gates.max_concentration_bps", gates.MaxConcentrationBps)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.graduation_poll_spec", "@every 1m")

	// Ingest defaults
	v.SetDefault("ingest.dedup_cache_size", ing.DedupCacheSize)
	v.SetDefault("ingest.warm_keys", 10_000)
	v.SetDefault("ingest.strict_slot_order", ing.StrictSlotOrder)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.GRPCPort <= 0 || c.Server.HTTPPort <= 0 || c.Server.MetricsPort <= 0 {
		return fmt.Errorf("server ports must be positive")
	}
	if c.Server.GRPCPort == c.Server.HTTPPort || c.Server.HTTPPort == c.Server.MetricsPort ||
		c.Server.GRPCPort == c.Server.MetricsPort {
		return fmt.Errorf("server ports must be distinct")
	}
	if !c.Database.InMemory() && c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.url is required when nats is enabled")
		}
		if c.NATS.Consumer == "" {
			return fmt.Errorf("nats.consumer is required when nats is enabled")
		}
	}

	fallback, err := c.Oracle.FallbackPrice()
	if err != nil {
		return fmt.Errorf("invalid oracle.fallback_price_usd %q: %w", c.Oracle.FallbackPriceUSD, err)
	}
	if fallback.IsNegative() {
		return fmt.Errorf("oracle.fallback_price_usd cannot be negative")
	}

	if c.Advisor.WarningROIPercent > c.Advisor.CriticalROIPercent {
		return fmt.Errorf("advisor.warning_roi_percent must not exceed critical_roi_percent")
	}
	if err := c.Gates.Params().Validate(); err != nil {
		return fmt.Errorf("gates: %w", err)
	}
	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.GraduationPollSpec); err != nil {
			return fmt.Errorf("invalid scheduler.graduation_poll_spec: %w", err)
		}
	}
	if c.Ingest.DedupCacheSize <= 0 {
		return fmt.Errorf("ingest.dedup_cache_size must be positive")
	}
	return nil
}
