package geocache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/geoenrich/internal/clock"
	"grimm.is/geoenrich/internal/geo"
)

var epoch = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestCache(maxSize int, ttl time.Duration) (*Cache, *clock.Mock) {
	mock := clock.NewMock(epoch)
	c := New(Config{MaxSize: maxSize, TTL: ttl, EnableStats: true}, WithClock(mock))
	return c, mock
}

func rec(code string) *geo.Record {
	return &geo.Record{Country: code, CountryCode: code}
}

func TestCache_GetSet(t *testing.T) {
	c, _ := newTestCache(100, time.Hour)

	// Initially empty
	_, ok := c.Get("8.8.8.8")
	assert.False(t, ok, "expected cache miss on empty cache")

	us := rec("US")
	c.Set("8.8.8.8", us)

	got, ok := c.Get("8.8.8.8")
	require.True(t, ok)
	assert.Same(t, us, got)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.HitCount)
	assert.Equal(t, uint64(1), s.MissCount)
	assert.Equal(t, 1, s.Size)
	assert.InDelta(t, 0.5, s.HitRate, 1e-9)
}

func TestCache_NilIsAValue(t *testing.T) {
	c, _ := newTestCache(10, time.Hour)

	c.Set("203.0.114.1", nil)

	got, ok := c.Get("203.0.114.1")
	assert.True(t, ok, "cached nil should be reported as present")
	assert.Nil(t, got)

	_, ok = c.Get("203.0.114.2")
	assert.False(t, ok, "absent key should not be present")
}

func TestCache_LRUEviction(t *testing.T) {
	c, _ := newTestCache(2, time.Hour)

	c.Set("A", rec("AA"))
	c.Set("B", rec("BB"))
	c.Set("C", rec("CC"))

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("A")
	assert.False(t, ok, "A should have been evicted")
	_, ok = c.Get("B")
	assert.True(t, ok)
	_, ok = c.Get("C")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().EvictionCount)
}

func TestCache_GetRefreshesRecency(t *testing.T) {
	c, _ := newTestCache(3, time.Hour)

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("1.1.1.%d", i), rec("AU"))
	}

	// Touch the oldest so the second-oldest becomes LRU.
	_, ok := c.Get("1.1.1.0")
	require.True(t, ok)

	c.Set("1.1.1.9", rec("AU"))

	_, ok = c.Get("1.1.1.0")
	assert.True(t, ok, "recently read entry should survive")
	_, ok = c.Get("1.1.1.1")
	assert.False(t, ok, "LRU entry should be evicted")
	assert.Equal(t, 3, c.Len())
}

func TestCache_UpdateExistingDoesNotEvict(t *testing.T) {
	c, _ := newTestCache(2, time.Hour)

	c.Set("A", rec("AA"))
	c.Set("B", rec("BB"))
	c.Set("A", rec("AB"))

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, uint64(0), c.Stats().EvictionCount)
	got, ok := c.Get("A")
	require.True(t, ok)
	assert.Equal(t, "AB", got.CountryCode)

	// A was refreshed, so B is now the LRU entry.
	c.Set("C", rec("CC"))
	_, ok = c.Get("B")
	assert.False(t, ok)
}

func TestCache_TTLBoundary(t *testing.T) {
	ttl := 10 * time.Second
	c, mock := newTestCache(10, ttl)

	c.Set("8.8.8.8", rec("US"))
	c.Set("1.1.1.1", rec("AU"))
	require.Equal(t, 2, c.Len())

	mock.Advance(ttl - time.Millisecond)
	_, ok := c.Get("8.8.8.8")
	assert.True(t, ok, "entry should be live just before TTL")

	mock.Advance(2 * time.Millisecond)
	_, ok = c.Get("8.8.8.8")
	assert.False(t, ok, "entry should be expired just after TTL")
	assert.Equal(t, 1, c.Len(), "expired entry should be removed on read")

	s := c.Stats()
	assert.Equal(t, uint64(1), s.ExpiredCount)
}

func TestCache_PruneExpired(t *testing.T) {
	c, mock := newTestCache(10, time.Minute)

	c.Set("a", rec("AA"))
	c.Set("b", rec("BB"))
	mock.Advance(45 * time.Second)
	c.Set("c", rec("CC"))
	mock.Advance(30 * time.Second)

	assert.Equal(t, 2, c.PruneExpired())
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 0, c.PruneExpired())
}

func TestCache_Clear(t *testing.T) {
	c, _ := newTestCache(10, time.Hour)
	c.Set("a", rec("AA"))
	c.Set("b", rec("BB"))

	c.Clear()

	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCache_StatsDisabled(t *testing.T) {
	c := New(Config{MaxSize: 1, TTL: time.Hour, EnableStats: false})
	c.Set("a", rec("AA"))
	c.Get("a")
	c.Get("missing")
	c.Set("b", rec("BB"))

	s := c.Stats()
	assert.Zero(t, s.HitCount)
	assert.Zero(t, s.MissCount)
	assert.Zero(t, s.EvictionCount)
	assert.Equal(t, 1, s.Size)
}

func TestCache_UpdateConfig(t *testing.T) {
	c, _ := newTestCache(5, time.Hour)
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), rec("AA"))
	}

	size := 2
	ttl := time.Minute
	cfg := c.UpdateConfig(Update{MaxSize: &size, TTL: &ttl})

	assert.Equal(t, 2, cfg.MaxSize)
	assert.Equal(t, time.Minute, cfg.TTL)
	assert.True(t, cfg.EnableStats, "untouched field should be kept")
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, uint64(3), c.Stats().EvictionCount)

	// Most recent two survive.
	_, ok := c.Get("k4")
	assert.True(t, ok)
	_, ok = c.Get("k3")
	assert.True(t, ok)
	_, ok = c.Get("k0")
	assert.False(t, ok)

	zero := 0
	cfg = c.UpdateConfig(Update{MaxSize: &zero})
	assert.Equal(t, 2, cfg.MaxSize, "non-positive size is ignored")
	assert.Equal(t, cfg, c.Config())
}

func TestCache_Defaults(t *testing.T) {
	c := New(Config{})
	cfg := c.Config()
	assert.Equal(t, DefaultMaxSize, cfg.MaxSize)
	assert.Equal(t, DefaultTTL, cfg.TTL)
}

func TestCache_Janitor(t *testing.T) {
	c, mock := newTestCache(10, time.Second)
	c.Set("a", rec("AA"))
	mock.Advance(2 * time.Second)

	c.StartJanitor(5 * time.Millisecond)
	c.StartJanitor(5 * time.Millisecond)
	defer c.Stop()

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	c.Stop()
}

func TestCache_Concurrent(t *testing.T) {
	c, _ := newTestCache(64, time.Hour)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				key := fmt.Sprintf("10.%d.%d.1", id, i%200)
				if i%3 == 0 {
					c.Set(key, rec("AA"))
				} else {
					c.Get(key)
				}
				if i%500 == 0 {
					c.PruneExpired()
				}
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
	s := c.Stats()
	assert.Equal(t, c.Len(), s.Size)
}
