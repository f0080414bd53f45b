package enrich

import "time"

const (
	DefaultPerCallBudget     = 10 * time.Millisecond
	DefaultBatchBudget       = 100 * time.Millisecond
	DefaultSuccessRateTarget = 0.95
	DefaultMaxInFlight       = 64
)

// Features is the runtime feature gate consulted on every call.
type Features interface {
	EnrichmentEnabled() bool
	FallbackEnabled() bool
	PerCallBudget() time.Duration
	SuccessRateTarget() float64
	ShouldSample() bool
}

// StaticFeatures is a fixed Features value that samples every object.
type StaticFeatures struct {
	Enabled  bool
	Fallback bool
	Budget   time.Duration
	Target   float64
}

// DefaultFeatures enables enrichment with fallback and the default budgets.
func DefaultFeatures() StaticFeatures {
	return StaticFeatures{
		Enabled:  true,
		Fallback: true,
		Budget:   DefaultPerCallBudget,
		Target:   DefaultSuccessRateTarget,
	}
}

func (f StaticFeatures) EnrichmentEnabled() bool      { return f.Enabled }
func (f StaticFeatures) FallbackEnabled() bool        { return f.Fallback }
func (f StaticFeatures) PerCallBudget() time.Duration { return f.Budget }
func (f StaticFeatures) SuccessRateTarget() float64   { return f.Target }
func (f StaticFeatures) ShouldSample() bool           { return true }

// Logger is the write-only sink the engine reports to. *logging.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
