// Package health runs readiness probes against userbase's dependencies.
//
// Probes run concurrently, each bounded by its own timeout. The combined
// report is cached briefly so load balancers polling /readyz do not turn
// into a load test of Postgres and the Hive nodes.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const reportKey = "readiness"

// Config controls probing.
type Config struct {
	Timeout  time.Duration `env:"USERBASE_HEALTH_TIMEOUT, default=3s"`
	CacheTTL time.Duration `env:"USERBASE_HEALTH_CACHE_TTL, default=10s"`
}

// Check is one named probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
	// AlertOnFailure raises "<name>_unavailable" when the probe fails.
	AlertOnFailure bool
}

// Status is the outcome of one probe.
type Status struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Report is the combined outcome.
type Report struct {
	OK        bool      `json:"ok"`
	Checks    []Status  `json:"checks"`
	CheckedAt time.Time `json:"checked_at"`
}

// Alerter receives operational failures worth paging on.
type Alerter interface {
	Alert(ctx context.Context, event string, fields map[string]any)
}

// Checker runs checks and caches the report.
type Checker struct {
	cfg    Config
	checks []Check
	cache  *ristretto.Cache[string, Report]
	alert  Alerter
	log    *slog.Logger
}

// NewChecker builds a Checker. Close releases the cache.
func NewChecker(cfg Config, checks []Check, alert Alerter, log *slog.Logger) (*Checker, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, Report]{
		NumCounters:        100,
		MaxCost:            10,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("health: cache: %w", err)
	}
	return &Checker{cfg: cfg, checks: checks, cache: cache, alert: alert, log: log}, nil
}

// Close releases cache resources.
func (c *Checker) Close() { c.cache.Close() }

// Report returns the cached report or runs every check.
func (c *Checker) Report(ctx context.Context) Report {
	if c.cfg.CacheTTL > 0 {
		if r, ok := c.cache.Get(reportKey); ok {
			return r
		}
	}

	r := c.run(ctx)
	if c.cfg.CacheTTL > 0 {
		c.cache.SetWithTTL(reportKey, r, 1, c.cfg.CacheTTL)
		c.cache.Wait()
	}
	return r
}

func (c *Checker) run(ctx context.Context) Report {
	out := Report{OK: true, Checks: make([]Status, len(c.checks)), CheckedAt: time.Now().UTC()}

	var wg sync.WaitGroup
	for i, chk := range c.checks {
		wg.Add(1)
		go func(i int, chk Check) {
			defer wg.Done()
			out.Checks[i] = c.probe(ctx, chk)
		}(i, chk)
	}
	wg.Wait()

	for i, st := range out.Checks {
		if st.OK {
			continue
		}
		out.OK = false
		c.log.Warn("health.check.fail", "check", st.Name, "err", st.Error)
		if c.checks[i].AlertOnFailure && c.alert != nil {
			c.alert.Alert(ctx, st.Name+"_unavailable", map[string]any{"error": st.Error})
		}
	}
	return out
}

func (c *Checker) probe(ctx context.Context, chk Check) Status {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := chk.Fn(ctx)
	st := Status{Name: chk.Name, OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		st.Error = err.Error()
	}
	return st
}
