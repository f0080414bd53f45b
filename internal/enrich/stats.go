package enrich

import (
	"sync/atomic"
	"time"

	"grimm.is/geoenrich/internal/geo"
)

// Stats summarizes enrichment activity since the last reset.
type Stats struct {
	TotalRequests      uint64                `json:"total_requests"`
	SuccessfulRequests uint64                `json:"successful_requests"`
	SuccessRate        float64               `json:"success_rate"`
	BySource           map[geo.Source]uint64 `json:"by_source"`
	PerCallOverruns    uint64                `json:"per_call_overruns"`
	BatchOverruns      uint64                `json:"batch_overruns"`
	AverageLatency     time.Duration         `json:"average_latency"`
	LastReset          time.Time             `json:"last_reset"`
}

// monitor holds the lock-free counters behind Stats.
type monitor struct {
	total     atomic.Uint64
	success   atomic.Uint64
	callOver  atomic.Uint64
	batchOver atomic.Uint64
	latencyNS atomic.Uint64
	lastReset atomic.Int64

	// Keys are fixed at construction; only the counters change.
	bySource map[geo.Source]*atomic.Uint64
}

func newMonitor(now time.Time) *monitor {
	m := &monitor{bySource: make(map[geo.Source]*atomic.Uint64, len(geo.Sources))}
	for _, s := range geo.Sources {
		m.bySource[s] = new(atomic.Uint64)
	}
	m.lastReset.Store(now.UnixNano())
	return m
}

func (m *monitor) record(source geo.Source, success bool, latency time.Duration) {
	m.total.Add(1)
	if success {
		m.success.Add(1)
	}
	if c, ok := m.bySource[source]; ok {
		c.Add(1)
	}
	if latency > 0 {
		m.latencyNS.Add(uint64(latency))
	}
}

func (m *monitor) callOverrun()  { m.callOver.Add(1) }
func (m *monitor) batchOverrun() { m.batchOver.Add(1) }

func (m *monitor) snapshot() Stats {
	s := Stats{
		TotalRequests:      m.total.Load(),
		SuccessfulRequests: m.success.Load(),
		BySource:           make(map[geo.Source]uint64, len(m.bySource)),
		PerCallOverruns:    m.callOver.Load(),
		BatchOverruns:      m.batchOver.Load(),
		LastReset:          time.Unix(0, m.lastReset.Load()),
	}
	for src, c := range m.bySource {
		s.BySource[src] = c.Load()
	}
	if s.TotalRequests > 0 {
		s.SuccessRate = float64(s.SuccessfulRequests) / float64(s.TotalRequests)
		s.AverageLatency = time.Duration(m.latencyNS.Load() / s.TotalRequests)
	}
	return s
}

func (m *monitor) reset(now time.Time) {
	m.total.Store(0)
	m.success.Store(0)
	m.callOver.Store(0)
	m.batchOver.Store(0)
	m.latencyNS.Store(0)
	for _, c := range m.bySource {
		c.Store(0)
	}
	m.lastReset.Store(now.UnixNano())
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	return e.stats.snapshot()
}

// ResetStats zeroes every counter.
func (e *Engine) ResetStats() {
	e.stats.reset(e.clock.Now())
}

// IsPerformingWell reports whether the success rate meets the configured
// target. It is true before any request has been made.
func (e *Engine) IsPerformingWell() bool {
	s := e.stats.snapshot()
	if s.TotalRequests == 0 {
		return true
	}
	return s.SuccessRate >= e.features.SuccessRateTarget()
}
