// Package enrich resolves IP addresses to geographic records through the
// cache and the provider chain, and writes the results onto caller records.
package enrich

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"grimm.is/geoenrich/internal/clock"
	"grimm.is/geoenrich/internal/geo"
	"grimm.is/geoenrich/internal/geocache"
	"grimm.is/geoenrich/internal/ipclass"
	"grimm.is/geoenrich/internal/logging"
	"grimm.is/geoenrich/internal/metrics"
	"grimm.is/geoenrich/internal/provider"
)

// Result is the outcome of enriching one IP.
type Result struct {
	Data    *geo.Record
	Source  geo.Source
	Latency time.Duration
	Success bool
}

// MarshalJSON renders the latency in milliseconds.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Data      *geo.Record `json:"data"`
		Source    geo.Source  `json:"source"`
		LatencyMS float64     `json:"latency_ms"`
		Success   bool        `json:"success"`
	}{r.Data, r.Source, float64(r.Latency) / float64(time.Millisecond), r.Success})
}

func failed() Result {
	return Result{Source: geo.SourceFailed}
}

// Resolver walks the provider tiers for an address. *provider.Chain
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, addr ipclass.Addr) provider.Outcome
	ResolvePrimary(ctx context.Context, addr ipclass.Addr) provider.Outcome
}

// Store caches records by normalized IP. A nil record is a valid entry.
// *geocache.Cache implements it.
type Store interface {
	Get(ip string) (*geo.Record, bool)
	Set(ip string, rec *geo.Record)
}

// Options holds the engine settings that are fixed for its lifetime.
type Options struct {
	// BatchBudget is the advisory end-to-end latency target of a batch.
	BatchBudget time.Duration
	// MaxInFlight bounds concurrent lookups per batch. Zero is unbounded.
	MaxInFlight int
	// CountDefaultAsSuccess makes default-tier results count as successes.
	CountDefaultAsSuccess bool
	// Fields are the object fields scanned when EnrichObject gets none.
	Fields []string
}

// DefaultOptions returns the standard engine settings.
func DefaultOptions() Options {
	return Options{
		BatchBudget:           DefaultBatchBudget,
		MaxInFlight:           DefaultMaxInFlight,
		CountDefaultAsSuccess: true,
		Fields:                DefaultFields,
	}
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithLogger sets the log sink.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the Prometheus registry.
func WithMetrics(r *metrics.Registry) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithClock sets the time source used for latency and reset times.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = clock.Or(c) }
}

// WithFeatures sets the runtime feature gate.
func WithFeatures(f Features) Option {
	return func(e *Engine) {
		if f != nil {
			e.features = f
		}
	}
}

// Engine is the enrichment pipeline. Build one per process and share it.
type Engine struct {
	opts     Options
	chain    Resolver
	cache    Store
	features Features
	logger   Logger
	metrics  *metrics.Registry
	clock    clock.Clock
	stats    *monitor

	// flight coalesces concurrent misses for the same IP.
	flight singleflight.Group
}

// New creates an engine. A nil chain uses the built-in fallback tiers with no
// primary provider; a nil cache gets a default-sized geocache.
func New(opts Options, chain Resolver, cache Store, options ...Option) *Engine {
	if chain == nil {
		chain = provider.NewChain(nil)
	}
	if cache == nil {
		cache = geocache.New(geocache.DefaultConfig())
	}
	if len(opts.Fields) == 0 {
		opts.Fields = DefaultFields
	}

	e := &Engine{
		opts:     opts,
		chain:    chain,
		cache:    cache,
		features: DefaultFeatures(),
		logger:   logging.Discard(),
		clock:    clock.Real,
	}
	for _, opt := range options {
		opt(e)
	}
	e.stats = newMonitor(e.clock.Now())
	return e
}

// Cache returns the engine's cache.
func (e *Engine) Cache() Store {
	return e.cache
}

// EnrichIP resolves a single IP. It never fails: problems degrade to a
// result with Source failed.
func (e *Engine) EnrichIP(ctx context.Context, ip string) Result {
	if !e.features.EnrichmentEnabled() {
		return failed()
	}

	start := e.clock.Now()
	res := e.enrich(ctx, ip)
	res.Latency = e.clock.Since(start)

	e.stats.record(res.Source, res.Success, res.Latency)
	e.metrics.RecordRequest(res.Source.String(), res.Success, res.Latency)
	if budget := e.features.PerCallBudget(); budget > 0 && res.Latency > budget {
		e.stats.callOverrun()
		e.metrics.RecordOverrun("call")
		e.logger.Debug("Enrichment exceeded per-call budget",
			"ip", ip, "source", res.Source, "latency", res.Latency, "budget", budget)
	}
	return res
}

func (e *Engine) enrich(ctx context.Context, ip string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Enrichment panicked", "ip", ip, "panic", r)
			res = failed()
		}
	}()

	addr, err := ipclass.Classify(ip)
	if err != nil || addr.Private {
		return failed()
	}

	if rec, ok := e.cacheGet(addr.Normalized); ok {
		return Result{Data: rec, Source: geo.SourceCache, Success: e.succeeded(rec, geo.SourceCache)}
	}

	// The walk is shared by every caller waiting on this IP, so it must
	// not end when the first caller's context does. primary_timeout still
	// bounds it.
	walkCtx := context.WithoutCancel(ctx)
	v, _, _ := e.flight.Do(addr.Normalized, func() (any, error) {
		return e.resolve(walkCtx, addr), nil
	})
	return v.(Result)
}

// resolve runs the provider chain on a cache miss and caches the answer.
func (e *Engine) resolve(ctx context.Context, addr ipclass.Addr) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Provider chain panicked", "ip", addr.Normalized, "panic", r)
			res = failed()
		}
	}()

	var out provider.Outcome
	if e.features.FallbackEnabled() {
		out = e.chain.Resolve(ctx, addr)
	} else {
		out = e.chain.ResolvePrimary(ctx, addr)
	}

	for _, f := range out.Failures {
		e.metrics.RecordProviderError(f.Tier.String())
		e.logger.Debug("Provider tier failed", "ip", addr.Normalized, "tier", f.Tier, "error", f.Err)
	}

	if out.Record == nil {
		// A clean miss is cached as confirmed unresolvable. A failed
		// primary is not, so the next call retries it.
		if len(out.Failures) == 0 {
			e.cacheSet(addr.Normalized, nil)
		}
		return failed()
	}

	e.cacheSet(addr.Normalized, out.Record)
	return Result{Data: out.Record, Source: out.Source, Success: e.succeeded(out.Record, out.Source)}
}

// succeeded reports whether rec counts as a successful enrichment. Default
// records, fresh or cached, count only with CountDefaultAsSuccess.
func (e *Engine) succeeded(rec *geo.Record, source geo.Source) bool {
	if rec == nil {
		return false
	}
	if source == geo.SourceDefault || provider.IsDefault(rec) {
		return e.opts.CountDefaultAsSuccess
	}
	return true
}

func (e *Engine) cacheGet(ip string) (rec *geo.Record, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Cache read failed", "ip", ip, "panic", r)
			rec, ok = nil, false
		}
	}()
	return e.cache.Get(ip)
}

func (e *Engine) cacheSet(ip string, rec *geo.Record) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Cache write failed", "ip", ip, "panic", r)
		}
	}()
	e.cache.Set(ip, rec)
}

// MetricsSnapshot reports the values exported as sampled gauges.
func (e *Engine) MetricsSnapshot() metrics.Snapshot {
	s := e.stats.snapshot()
	snap := metrics.Snapshot{SuccessRate: s.SuccessRate}
	if s.TotalRequests == 0 {
		snap.SuccessRate = 1
	}
	if c, ok := e.cache.(interface{ Stats() geocache.Stats }); ok {
		cs := c.Stats()
		snap.CacheEntries = cs.Size
		snap.CacheHits = cs.HitCount
		snap.CacheMisses = cs.MissCount
		snap.CacheEvictions = cs.EvictionCount
		snap.CacheExpired = cs.ExpiredCount
	}
	return snap
}
