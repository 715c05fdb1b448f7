package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"LaunchLedger/internal/config"
	"LaunchLedger/internal/state"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadFrom runs Load from an empty working directory so no stray
// config.yaml is picked up.
func loadFrom(t *testing.T, path string) (*config.Config, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	return config.Load(path)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "launchledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadFrom(t, "")
	require.NoError(t, err)

	assert.Equal(t, "launchledger", cfg.App.Name)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.True(t, cfg.Database.InMemory())
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "launch.events.>", cfg.NATS.Subject)
	assert.Equal(t, 30*time.Second, cfg.NATS.AckWait)
	assert.Equal(t, ":9090", cfg.Server.GRPCAddr())
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr())
	assert.Equal(t, ":9091", cfg.Server.MetricsAddr())
	assert.Equal(t, 300*time.Second, cfg.Oracle.MaxStaleness)
	assert.Equal(t, state.DefaultGraduationParams(), cfg.Gates.Params())
	assert.Equal(t, "@every 1m", cfg.Scheduler.GraduationPollSpec)
	assert.Equal(t, 100_000, cfg.Ingest.DedupCacheSize)
	assert.True(t, cfg.Ingest.StrictSlotOrder)

	policy := cfg.Advisor.Policy()
	assert.True(t, policy.CriticalROIPercent.Equal(decimal.NewFromInt(50)))
	assert.True(t, policy.WarningROIPercent.Equal(decimal.NewFromInt(10)))
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: debug
database:
  url: postgres://ledger@localhost/launchledger
  max_open_conns: 4
nats:
  enabled: true
  consumer: ingest-2
  retry_delay: 500ms
oracle:
  url: https://prices.example/sol
  fallback_price_usd: "142.50"
gates:
  min_holders: 50
ingest:
  strict_slot_order: false
`)

	cfg, err := loadFrom(t, path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.False(t, cfg.Database.InMemory())
	assert.Equal(t, 4, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.NATS.Enabled)

	sub := cfg.NATS.Subscriber()
	assert.Equal(t, "ingest-2", sub.Consumer)
	assert.Equal(t, 500*time.Millisecond, sub.RetryDelay)
	assert.Equal(t, "LAUNCH_EVENTS", sub.Stream)

	oc, err := cfg.Oracle.Cached()
	require.NoError(t, err)
	assert.True(t, oc.FallbackPriceUSD.Equal(decimal.RequireFromString("142.5")))
	assert.Equal(t, 30*time.Second, oc.TTL)

	assert.Equal(t, uint64(50), cfg.Gates.Params().MinHolders)
	assert.False(t, cfg.Ingest.Options().StrictSlotOrder)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 8000\n")
	t.Setenv("LAUNCH_HTTP_PORT", "8181")
	t.Setenv("LAUNCH_DATABASE_URL", "postgres://env@db/launchledger")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := loadFrom(t, path)
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.HTTPPort)
	assert.Equal(t, "postgres://env@db/launchledger", cfg.Database.URL)
	assert.Equal(t, "warn", cfg.App.LogLevel)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := loadFrom(t, filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		errMsg string
	}{
		{"port clash", func(c *config.Config) { c.Server.HTTPPort = c.Server.GRPCPort }, "distinct"},
		{"zero port", func(c *config.Config) { c.Server.MetricsPort = 0 }, "positive"},
		{"nats without url", func(c *config.Config) { c.NATS.Enabled = true; c.NATS.URL = "" }, "nats.url"},
		{"bad fallback", func(c *config.Config) { c.Oracle.FallbackPriceUSD = "cheap" }, "fallback_price_usd"},
		{"negative fallback", func(c *config.Config) { c.Oracle.FallbackPriceUSD = "-1" }, "negative"},
		{"inverted advisor", func(c *config.Config) { c.Advisor.WarningROIPercent = 80 }, "warning_roi_percent"},
		{"zero market cap", func(c *config.Config) { c.Gates.MarketCapUSD = 0 }, "gates"},
		{"bad schedule", func(c *config.Config) { c.Scheduler.GraduationPollSpec = "sometimes" }, "graduation_poll_spec"},
		{"pool without size", func(c *config.Config) {
			c.Database.URL = "postgres://x"
			c.Database.MaxOpenConns = 0
		}, "max_open_conns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadFrom(t, "")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_DisabledSchedulerIgnoresSpec(t *testing.T) {
	cfg, err := loadFrom(t, "")
	require.NoError(t, err)

	cfg.Scheduler.Enabled = false
	cfg.Scheduler.GraduationPollSpec = "sometimes"
	assert.NoError(t, cfg.Validate())
}
