// Package health aggregates readiness checks for the enrichment service.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"grimm.is/geoenrich/internal/clock"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

var severity = map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}

// Check represents a single health check.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ns"`
}

// Report represents the overall health report.
type Report struct {
	Status    Status           `json:"status"`
	Checks    map[string]Check `json:"checks"`
	Timestamp time.Time        `json:"timestamp"`
}

// CheckFunc performs one health check. Name, LastChecked and Duration are
// filled in by the Checker.
type CheckFunc func(ctx context.Context) Check

// Checker runs registered checks and caches the report for a short TTL.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
	cache  *Report
	ttl    time.Duration
	clock  clock.Clock
}

// NewChecker creates a checker with no checks. A zero ttl disables caching.
func NewChecker(ttl time.Duration, c clock.Clock) *Checker {
	return &Checker{
		checks: make(map[string]CheckFunc),
		ttl:    ttl,
		clock:  clock.Or(c),
	}
}

// Register adds or replaces a health check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
	c.cache = nil
}

// Check runs all health checks concurrently and returns a report. The
// overall status is the worst individual status.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	if c.cache != nil && c.clock.Since(c.cache.Timestamp) < c.ttl {
		report := *c.cache
		c.mu.RUnlock()
		return report
	}
	funcs := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		funcs[name] = fn
	}
	c.mu.RUnlock()

	checks := make(map[string]Check, len(funcs))
	overall := StatusHealthy

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, fn := range funcs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := c.clock.Now()
			check := fn(ctx)
			check.Name = name
			check.LastChecked = start
			check.Duration = c.clock.Since(start)

			mu.Lock()
			defer mu.Unlock()
			checks[name] = check
			if severity[check.Status] > severity[overall] {
				overall = check.Status
			}
		}()
	}
	wg.Wait()

	report := Report{
		Status:    overall,
		Checks:    checks,
		Timestamp: c.clock.Now(),
	}

	c.mu.Lock()
	c.cache = &report
	c.mu.Unlock()
	return report
}

// Handler returns an HTTP handler serving the JSON report. Unhealthy
// reports are served with 503; degraded ones are still 200.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		report := c.Check(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	}
}

// LivenessHandler returns a simple liveness probe handler.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	}
}
