// Package metrics exports enrichment and cache metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "enrich"

// Registry holds all enrichment metrics. Every method is safe on a nil
// *Registry so callers can leave metrics unconfigured.
type Registry struct {
	// Request metrics
	Requests       *prometheus.CounterVec
	LookupLatency  prometheus.Histogram
	BudgetOverruns *prometheus.CounterVec
	ProviderErrors *prometheus.CounterVec
	SuccessRate    prometheus.Gauge

	// Batch metrics
	BatchLatency prometheus.Histogram
	BatchSize    prometheus.Histogram

	// Cache metrics, sampled from cache statistics
	CacheHits      prometheus.Gauge
	CacheMisses    prometheus.Gauge
	CacheEvictions prometheus.Gauge
	CacheExpired   prometheus.Gauge
	CacheEntries   prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewRegistry creates the metrics on reg. A nil reg gets a fresh private
// registry with the Go runtime and process collectors attached.
func NewRegistry(reg *prometheus.Registry) *Registry {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)
	r := &Registry{gatherer: reg}

	r.Requests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Total IP enrichment requests by result source",
	}, []string{"source", "success"})

	r.LookupLatency = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "lookup_duration_seconds",
		Help:      "Latency of single IP enrichment",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	r.BudgetOverruns = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "budget_overruns_total",
		Help:      "Calls or batches that exceeded their latency budget",
	}, []string{"scope"})

	r.ProviderErrors = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_errors_total",
		Help:      "Provider tier failures, including recovered panics and timeouts",
	}, []string{"tier"})

	r.SuccessRate = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "success_rate",
		Help:      "Fraction of enrichment requests that produced a record",
	})

	r.BatchLatency = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "End-to-end latency of batch enrichment",
		Buckets:   prometheus.DefBuckets,
	})

	r.BatchSize = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_size",
		Help:      "Distinct IPs per batch",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	r.CacheHits = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Cache hits since the last statistics reset",
	})

	r.CacheMisses = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Cache misses since the last statistics reset",
	})

	r.CacheEvictions = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_evictions_total",
		Help:      "LRU evictions since the last statistics reset",
	})

	r.CacheExpired = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_expired_total",
		Help:      "Entries dropped for exceeding their TTL since the last statistics reset",
	})

	r.CacheEntries = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_entries",
		Help:      "Current number of cached IPs",
	})

	return r
}

// RecordRequest records one enrichment call.
func (r *Registry) RecordRequest(source string, success bool, d time.Duration) {
	if r == nil {
		return
	}
	r.Requests.WithLabelValues(source, strconv.FormatBool(success)).Inc()
	r.LookupLatency.Observe(d.Seconds())
}

// RecordBatch records a completed batch of size distinct IPs.
func (r *Registry) RecordBatch(size int, d time.Duration) {
	if r == nil {
		return
	}
	r.BatchSize.Observe(float64(size))
	r.BatchLatency.Observe(d.Seconds())
}

// RecordOverrun records a budget overrun for scope ("call" or "batch").
func (r *Registry) RecordOverrun(scope string) {
	if r == nil {
		return
	}
	r.BudgetOverruns.WithLabelValues(scope).Inc()
}

// RecordProviderError records a failed tier attempt.
func (r *Registry) RecordProviderError(tier string) {
	if r == nil {
		return
	}
	r.ProviderErrors.WithLabelValues(tier).Inc()
}

// Update copies a snapshot into the sampled gauges.
func (r *Registry) Update(s Snapshot) {
	if r == nil {
		return
	}
	r.CacheHits.Set(float64(s.CacheHits))
	r.CacheMisses.Set(float64(s.CacheMisses))
	r.CacheEvictions.Set(float64(s.CacheEvictions))
	r.CacheExpired.Set(float64(s.CacheExpired))
	r.CacheEntries.Set(float64(s.CacheEntries))
	r.SuccessRate.Set(s.SuccessRate)
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
