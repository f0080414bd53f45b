// Package geocache is the bounded IP -> geographic record cache used by the
// enrichment engine. Entries expire after a TTL and the least recently used
// entry is evicted when the cache is full.
package geocache

import (
	"container/list"
	"sync"
	"time"

	"grimm.is/geoenrich/internal/clock"
	"grimm.is/geoenrich/internal/geo"
)

const (
	DefaultMaxSize = 10000
	DefaultTTL     = time.Hour
)

// Config holds cache limits.
type Config struct {
	MaxSize     int
	TTL         time.Duration
	EnableStats bool
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxSize:     DefaultMaxSize,
		TTL:         DefaultTTL,
		EnableStats: true,
	}
}

// Update is a partial Config change. Nil fields are left alone.
type Update struct {
	MaxSize     *int
	TTL         *time.Duration
	EnableStats *bool
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Size          int     `json:"size"`
	MaxSize       int     `json:"max_size"`
	HitCount      uint64  `json:"hit_count"`
	MissCount     uint64  `json:"miss_count"`
	HitRate       float64 `json:"hit_rate"`
	EvictionCount uint64  `json:"eviction_count"`
	ExpiredCount  uint64  `json:"expired_count"`
}

// entry wraps a cached record for LRU tracking. A nil data pointer is a
// deliberate "confirmed unresolvable" value.
type entry struct {
	key     string
	data    *geo.Record
	created time.Time
}

// Cache is a concurrent-safe LRU cache with per-entry TTL.
type Cache struct {
	mu    sync.Mutex
	items map[string]*list.Element
	lru   *list.List // Front = most recent, Back = least recent
	cfg   Config
	clock clock.Clock

	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	running  bool
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock sets the time source used for TTL checks.
func WithClock(c clock.Clock) Option {
	return func(cache *Cache) { cache.clock = clock.Or(c) }
}

// New creates a cache. Non-positive limits fall back to the defaults.
func New(cfg Config, opts ...Option) *Cache {
	c := &Cache{
		items:  make(map[string]*list.Element),
		lru:    list.New(),
		cfg:    sanitize(cfg),
		clock:  clock.Real,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sanitize(cfg Config) Config {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return cfg
}

// Get returns the record cached for ip. found is false when the key is
// absent or expired; a found nil record means the IP is known unresolvable.
func (c *Cache) Get(ip string) (rec *geo.Record, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[ip]
	if !ok {
		c.countMiss()
		return nil, false
	}

	e, ok := elem.Value.(*entry)
	if !ok {
		c.removeElement(elem, ip)
		c.countMiss()
		return nil, false
	}

	if c.expiredAt(e, c.clock.Now()) {
		c.removeElement(elem, ip)
		if c.cfg.EnableStats {
			c.expired++
		}
		c.countMiss()
		return nil, false
	}

	c.lru.MoveToFront(elem)
	if c.cfg.EnableStats {
		c.hits++
	}
	return e.data, true
}

// Set stores rec for ip. Storing an existing key refreshes its age and
// recency; storing a new key into a full cache evicts the LRU entry first.
func (c *Cache) Set(ip string, rec *geo.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if elem, ok := c.items[ip]; ok {
		elem.Value = &entry{key: ip, data: rec, created: now}
		c.lru.MoveToFront(elem)
		return
	}

	for c.lru.Len() >= c.cfg.MaxSize {
		if !c.evictLRU() {
			break
		}
	}

	c.items[ip] = c.lru.PushFront(&entry{key: ip, data: rec, created: now})
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Clear removes all entries. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.lru.Init()
}

// PruneExpired removes every expired entry and returns how many were dropped.
func (c *Cache) PruneExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		e, ok := elem.Value.(*entry)
		if !ok || c.expiredAt(e, now) {
			key := ""
			if ok {
				key = e.key
			}
			c.removeElement(elem, key)
			removed++
		}
		elem = prev
	}
	if c.cfg.EnableStats {
		c.expired += uint64(removed)
	}
	return removed
}

// Stats returns current counters. Counters stay at zero while stats are
// disabled.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:          c.lru.Len(),
		MaxSize:       c.cfg.MaxSize,
		HitCount:      c.hits,
		MissCount:     c.misses,
		EvictionCount: c.evictions,
		ExpiredCount:  c.expired,
	}
	if total := s.HitCount + s.MissCount; total > 0 {
		s.HitRate = float64(s.HitCount) / float64(total)
	}
	return s
}

// ResetStats zeroes the hit, miss, eviction and expiry counters.
func (c *Cache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits, c.misses, c.evictions, c.expired = 0, 0, 0, 0
}

// Config returns the active limits.
func (c *Cache) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// UpdateConfig applies a partial change. Shrinking MaxSize evicts LRU
// entries until the cache fits.
func (c *Cache) UpdateConfig(u Update) Config {
	c.mu.Lock()
	defer c.mu.Unlock()

	if u.MaxSize != nil && *u.MaxSize > 0 {
		c.cfg.MaxSize = *u.MaxSize
	}
	if u.TTL != nil && *u.TTL > 0 {
		c.cfg.TTL = *u.TTL
	}
	if u.EnableStats != nil {
		c.cfg.EnableStats = *u.EnableStats
	}
	for c.lru.Len() > c.cfg.MaxSize {
		if !c.evictLRU() {
			break
		}
	}
	return c.cfg
}

func (c *Cache) expiredAt(e *entry, now time.Time) bool {
	return now.Sub(e.created) > c.cfg.TTL
}

func (c *Cache) countMiss() {
	if c.cfg.EnableStats {
		c.misses++
	}
}

// evictLRU removes the least recently used entry (must hold lock).
func (c *Cache) evictLRU() bool {
	back := c.lru.Back()
	if back == nil {
		return false
	}
	key := ""
	if e, ok := back.Value.(*entry); ok {
		key = e.key
	}
	c.removeElement(back, key)
	if c.cfg.EnableStats {
		c.evictions++
	}
	return true
}

// removeElement unlinks elem and drops key from the index (must hold lock).
func (c *Cache) removeElement(elem *list.Element, key string) {
	c.lru.Remove(elem)
	if key != "" {
		if cur, ok := c.items[key]; ok && cur == elem {
			delete(c.items, key)
		}
		return
	}
	for k, v := range c.items {
		if v == elem {
			delete(c.items, k)
			return
		}
	}
}
