package metrics

import (
	"sync"
	"time"

	"grimm.is/geoenrich/internal/clock"
	"grimm.is/geoenrich/internal/logging"
)

// Snapshot is a point-in-time view of values exported as gauges.
type Snapshot struct {
	CacheEntries   int     `json:"cache_entries"`
	CacheHits      uint64  `json:"cache_hits"`
	CacheMisses    uint64  `json:"cache_misses"`
	CacheEvictions uint64  `json:"cache_evictions"`
	CacheExpired   uint64  `json:"cache_expired"`
	SuccessRate    float64 `json:"success_rate"`
}

// SnapshotFunc produces the current snapshot.
type SnapshotFunc func() Snapshot

// Collector periodically samples a SnapshotFunc into the registry.
type Collector struct {
	registry *Registry
	logger   *logging.Logger
	interval time.Duration
	source   SnapshotFunc
	clock    clock.Clock

	stopCh   chan struct{}
	stopOnce sync.Once

	mu         sync.RWMutex
	last       Snapshot
	lastUpdate time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(registry *Registry, source SnapshotFunc, logger *logging.Logger, interval time.Duration) *Collector {
	if logger == nil {
		logger = logging.Discard()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		registry: registry,
		logger:   logger,
		interval: interval,
		source:   source,
		clock:    clock.Real,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the collection loop until Stop is called.
func (c *Collector) Start() {
	c.logger.Info("Starting metrics collector", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()
	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stopCh:
			c.logger.Info("Stopping metrics collector")
			return
		}
	}
}

// Stop stops the collection loop. It is safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect takes one sample immediately.
func (c *Collector) Collect() {
	s := c.source()
	c.registry.Update(s)

	c.mu.Lock()
	c.last = s
	c.lastUpdate = c.clock.Now()
	c.mu.Unlock()
}

// Last returns the most recent sample and when it was taken. The time is
// zero before the first sample.
func (c *Collector) Last() (Snapshot, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last, c.lastUpdate
}
