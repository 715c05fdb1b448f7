package oracle_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"LaunchLedger/internal/observability"
	"LaunchLedger/internal/oracle"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls atomic.Int64
	mu    sync.Mutex
	price decimal.Decimal
	err   error
	gate  chan struct{}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context) (decimal.Decimal, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price, f.err
}

func (f *fakeSource) set(price decimal.Decimal, err error) {
	f.mu.Lock()
	f.price, f.err = price, err
	f.mu.Unlock()
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func unlimited() oracle.Config {
	cfg := oracle.DefaultConfig()
	cfg.RequestsPerMinute = 0
	return cfg
}

func newCached(src oracle.Source, cfg oracle.Config) (*oracle.Cached, *clock) {
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return oracle.NewCached(src, cfg, nil, zerolog.Nop()).WithClock(clk.now), clk
}

var errUpstream = errors.New("upstream down")

// ============================================================================
// Test: HTTP source
// ============================================================================

func TestHTTPSource_DecodesSimplePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"solana":{"usd":142.37}}`))
	}))
	defer srv.Close()

	price, err := oracle.NewHTTPSource(srv.URL, srv.Client()).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "142.37", price.String())
}

func TestHTTPSource_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, `{}`},
		{"malformed", http.StatusOK, `{"solana":`},
		{"zero price", http.StatusOK, `{"solana":{"usd":0}}`},
		{"missing field", http.StatusOK, `{"bitcoin":{"usd":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := oracle.NewHTTPSource(srv.URL, srv.Client()).Fetch(context.Background())
			assert.Error(t, err)
		})
	}
}

// ============================================================================
// Test: TTL cache
// ============================================================================

func TestCached_ServesWithinTTL(t *testing.T) {
	src := &fakeSource{price: decimal.NewFromInt(150)}
	c, clk := newCached(src, unlimited())

	for i := 0; i < 3; i++ {
		p, err := c.SOLPriceUSD(context.Background())
		require.NoError(t, err)
		assert.True(t, p.USD.Equal(decimal.NewFromInt(150)))
		clk.advance(5 * time.Second)
	}
	assert.Equal(t, int64(1), src.calls.Load())

	clk.advance(30 * time.Second)
	src.set(decimal.NewFromInt(160), nil)

	p, err := c.SOLPriceUSD(context.Background())
	require.NoError(t, err)
	assert.True(t, p.USD.Equal(decimal.NewFromInt(160)))
	assert.False(t, p.Stale)
	assert.Equal(t, int64(2), src.calls.Load())
}

func TestCached_ConcurrentRefreshCollapses(t *testing.T) {
	src := &fakeSource{price: decimal.NewFromInt(150), gate: make(chan struct{})}
	c, _ := newCached(src, unlimited())

	const callers = 16
	var ready, done sync.WaitGroup
	ready.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer done.Done()
			ready.Done()
			p, err := c.SOLPriceUSD(context.Background())
			assert.NoError(t, err)
			assert.True(t, p.USD.Equal(decimal.NewFromInt(150)))
		}()
	}
	ready.Wait()
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	done.Wait()

	assert.Equal(t, int64(1), src.calls.Load())
}

func TestCached_StaleAfterFailedRefresh(t *testing.T) {
	src := &fakeSource{price: decimal.NewFromInt(150)}
	c, clk := newCached(src, unlimited())

	_, err := c.SOLPriceUSD(context.Background())
	require.NoError(t, err)

	clk.advance(time.Minute)
	src.set(decimal.Zero, errUpstream)

	p, err := c.SOLPriceUSD(context.Background())
	require.NoError(t, err)
	assert.True(t, p.Stale)
	assert.True(t, p.USD.Equal(decimal.NewFromInt(150)))
}

func TestCached_FallbackPastMaxStaleness(t *testing.T) {
	src := &fakeSource{price: decimal.NewFromInt(150)}
	cfg := unlimited()
	cfg.FallbackPriceUSD = decimal.NewFromInt(100)
	c, clk := newCached(src, cfg)

	_, err := c.SOLPriceUSD(context.Background())
	require.NoError(t, err)

	clk.advance(oracle.MaxPriceStaleness + time.Second)
	src.set(decimal.Zero, errUpstream)

	p, err := c.SOLPriceUSD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fallback", p.Source)
	assert.True(t, p.USD.Equal(decimal.NewFromInt(100)))
}

func TestCached_UnavailableWithoutFallback(t *testing.T) {
	src := &fakeSource{err: errUpstream}
	c, _ := newCached(src, unlimited())

	_, err := c.SOLPriceUSD(context.Background())
	assert.ErrorIs(t, err, oracle.ErrPriceUnavailable)
}

func TestCached_BreakerStopsCallingSource(t *testing.T) {
	src := &fakeSource{err: errUpstream}
	c, _ := newCached(src, unlimited())

	for i := 0; i < 6; i++ {
		_, err := c.Refresh(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, int64(3), src.calls.Load(), "breaker should open after three failures")
}

func TestCached_RateLimitServesCachedPrice(t *testing.T) {
	src := &fakeSource{price: decimal.NewFromInt(150)}
	cfg := oracle.DefaultConfig()
	cfg.RequestsPerMinute = 1
	c, clk := newCached(src, cfg)

	_, err := c.SOLPriceUSD(context.Background())
	require.NoError(t, err)

	clk.advance(time.Minute)
	p, err := c.SOLPriceUSD(context.Background())
	require.NoError(t, err)
	assert.True(t, p.Stale)
	assert.Equal(t, int64(1), src.calls.Load())
}

func TestCached_RecordsMetrics(t *testing.T) {
	m := observability.NewMetricsWithRegistry(prometheus.NewRegistry())
	src := &fakeSource{price: decimal.RequireFromString("142.5")}
	c := oracle.NewCached(src, unlimited(), m, zerolog.Nop())

	_, err := c.SOLPriceUSD(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 142.5, promtest.ToFloat64(m.OraclePriceUSD))
	assert.Equal(t, float64(1), promtest.ToFloat64(m.OracleRefreshes.WithLabelValues("ok")))
}

// ============================================================================
// Test: Conversions
// ============================================================================

func TestConversions(t *testing.T) {
	price := oracle.Price{USD: decimal.NewFromInt(150)}

	lamports, err := oracle.USDToLamports(decimal.NewFromInt(42_000), price)
	require.NoError(t, err)
	assert.Equal(t, uint64(280_000_000_000), lamports)

	usd := oracle.LamportsToUSD(280_000_000_000, price)
	assert.True(t, usd.Equal(decimal.NewFromInt(42_000)), usd.String())

	_, err = oracle.USDToLamports(decimal.NewFromInt(1), oracle.Price{})
	assert.ErrorIs(t, err, oracle.ErrInvalidPrice)
}

func TestWholeUSDFloors(t *testing.T) {
	assert.Equal(t, uint64(142), oracle.Price{USD: decimal.RequireFromString("142.99")}.WholeUSD())
	assert.Equal(t, uint64(0), oracle.Price{}.WholeUSD())
}

func TestStatic(t *testing.T) {
	s, err := oracle.NewStatic(decimal.NewFromInt(150))
	require.NoError(t, err)

	p, err := s.SOLPriceUSD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(150), p.WholeUSD())

	_, err = oracle.NewStatic(decimal.Zero)
	assert.ErrorIs(t, err, oracle.ErrInvalidPrice)
}
