package config

import (
	"math/rand/v2"
	"time"
)

// Features is the enrichment feature gate built from an EnrichmentConfig.
// It satisfies enrich.Features.
type Features struct {
	enabled    bool
	fallback   bool
	budget     time.Duration
	target     float64
	sampleRate float64

	// roll returns a value in [0, 1). Tests replace it.
	roll func() float64
}

// Features returns the feature gate for c.
func (c *Config) Features() *Features {
	c.applyDefaults()
	e := c.Enrichment
	return &Features{
		enabled:    *e.Enabled,
		fallback:   *e.FallbackEnabled,
		budget:     duration(e.PerCallBudget),
		target:     *e.SuccessRateTarget,
		sampleRate: *e.SampleRate,
		roll:       rand.Float64,
	}
}

func (f *Features) EnrichmentEnabled() bool      { return f.enabled }
func (f *Features) FallbackEnabled() bool        { return f.fallback }
func (f *Features) PerCallBudget() time.Duration { return f.budget }
func (f *Features) SuccessRateTarget() float64   { return f.target }
func (f *Features) SampleRate() float64          { return f.sampleRate }

// ShouldSample reports whether the next object should be enriched.
func (f *Features) ShouldSample() bool {
	switch {
	case f.sampleRate >= 1:
		return true
	case f.sampleRate <= 0:
		return false
	}
	return f.roll() < f.sampleRate
}
