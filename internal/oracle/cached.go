package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"LaunchLedger/internal/observability"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var errRateLimited = errors.New("oracle: refresh rate limited")

// Config controls refresh and fallback behavior of a Cached oracle.
type Config struct {
	TTL               time.Duration   // serve cached price without refreshing
	MaxStaleness      time.Duration   // serve cached price after a failed refresh
	Timeout           time.Duration   // per-fetch deadline
	RequestsPerMinute int             // outbound fetch budget
	FallbackPriceUSD  decimal.Decimal // zero disables the fallback
	BreakerFailures   uint32          // consecutive failures that open the breaker
	BreakerCooldown   time.Duration   // open -> half-open delay
}

func DefaultConfig() Config {
	return Config{
		TTL:               30 * time.Second,
		MaxStaleness:      MaxPriceStaleness,
		Timeout:           5 * time.Second,
		RequestsPerMinute: 30,
		BreakerFailures:   3,
		BreakerCooldown:   30 * time.Second,
	}
}

// Cached wraps a Source with a TTL cache. Concurrent refreshes collapse into
// one fetch, fetches pass a rate limiter and a circuit breaker, and a failed
// refresh degrades to the last good price, then to the fallback price.
type Cached struct {
	src     Source
	cfg     Config
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[decimal.Decimal]
	group   singleflight.Group
	metrics *observability.Metrics
	log     zerolog.Logger
	now     func() time.Time

	mu   sync.RWMutex
	last Price
	have bool
}

func NewCached(src Source, cfg Config, metrics *observability.Metrics, log zerolog.Logger) *Cached {
	c := &Cached{
		src:     src,
		cfg:     cfg,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}

	rps := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	if cfg.RequestsPerMinute <= 0 {
		rps = rate.Inf
	}
	c.limiter = rate.NewLimiter(rps, 1)

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	c.breaker = gobreaker.NewCircuitBreaker[decimal.Decimal](gobreaker.Settings{
		Name:        "sol-usd-" + src.Name(),
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("oracle circuit breaker state change")
			if c.metrics != nil {
				c.metrics.OracleBreakerState.Set(float64(to))
			}
		},
	})
	return c
}

// WithClock replaces the time source. Tests only.
func (c *Cached) WithClock(now func() time.Time) *Cached {
	c.now = now
	return c
}

// SOLPriceUSD returns the cached price while it is within TTL, otherwise
// refreshes it.
func (c *Cached) SOLPriceUSD(ctx context.Context) (Price, error) {
	if p, ok := c.cached(c.cfg.TTL); ok {
		return p, nil
	}

	v, err, _ := c.group.Do("sol_usd", func() (any, error) {
		return c.refresh(ctx)
	})
	if err == nil {
		return v.(Price), nil
	}

	if p, ok := c.cached(c.cfg.MaxStaleness); ok {
		p.Stale = true
		c.log.Warn().Err(err).Dur("age", c.now().Sub(p.FetchedAt)).Msg("serving stale sol/usd price")
		return p, nil
	}
	if c.cfg.FallbackPriceUSD.IsPositive() {
		c.log.Warn().Err(err).Str("price", c.cfg.FallbackPriceUSD.String()).Msg("serving fallback sol/usd price")
		return Price{USD: c.cfg.FallbackPriceUSD, FetchedAt: c.now(), Source: "fallback", Stale: true}, nil
	}
	return Price{}, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
}

// Refresh forces a fetch regardless of TTL.
func (c *Cached) Refresh(ctx context.Context) (Price, error) {
	v, err, _ := c.group.Do("sol_usd", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return Price{}, err
	}
	return v.(Price), nil
}

func (c *Cached) refresh(ctx context.Context) (Price, error) {
	if !c.limiter.Allow() {
		c.observe("rate_limited")
		return Price{}, errRateLimited
	}

	usd, err := c.breaker.Execute(func() (decimal.Decimal, error) {
		fctx := ctx
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}
		return c.src.Fetch(fctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.observe("breaker_open")
		} else {
			c.observe("error")
		}
		return Price{}, err
	}

	p := Price{USD: usd, FetchedAt: c.now(), Source: c.src.Name()}
	c.mu.Lock()
	c.last, c.have = p, true
	c.mu.Unlock()

	c.observe("ok")
	if c.metrics != nil {
		c.metrics.OraclePriceUSD.Set(usd.InexactFloat64())
	}
	c.log.Debug().Str("price", usd.String()).Msg("sol/usd price refreshed")
	return p, nil
}

func (c *Cached) cached(maxAge time.Duration) (Price, bool) {
	c.mu.RLock()
	p, have := c.last, c.have
	c.mu.RUnlock()
	if !have {
		return Price{}, false
	}
	age := c.now().Sub(p.FetchedAt)
	if c.metrics != nil {
		c.metrics.OraclePriceAge.Set(age.Seconds())
	}
	return p, age < maxAge
}

func (c *Cached) observe(result string) {
	if c.metrics != nil {
		c.metrics.OracleRefreshes.WithLabelValues(result).Inc()
	}
}
