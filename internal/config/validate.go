package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"grimm.is/geoenrich/internal/logging"
)

// ErrInvalid is matched by errors.Is on every ValidationErrors with at least
// one error-severity entry.
var ErrInvalid = errors.New("invalid configuration")

// ValidationError represents a configuration validation problem.
type ValidationError struct {
	Field    string
	Message  string
	Severity string // "error" (default), "warning"
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation problems.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if any entry is an error rather than a warning.
func (e ValidationErrors) HasErrors() bool {
	for _, err := range e {
		if err.Severity != "warning" {
			return true
		}
	}
	return false
}

// Warnings returns only the warning-severity entries.
func (e ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for _, err := range e {
		if err.Severity == "warning" {
			out = append(out, err)
		}
	}
	return out
}

func (e ValidationErrors) Unwrap() error {
	if e.HasErrors() {
		return ErrInvalid
	}
	return nil
}

// Err returns e as an error when it holds at least one error, else nil.
func (e ValidationErrors) Err() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// Validate checks the configuration. Unset blocks are validated against
// their defaults.
func (c *Config) Validate() ValidationErrors {
	c.applyDefaults()

	var errs ValidationErrors
	errs = append(errs, c.validateEnrichment()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateGeoIP()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateMetrics()...)
	return errs
}

func (c *Config) validateEnrichment() ValidationErrors {
	var errs ValidationErrors
	e := c.Enrichment

	if r := *e.SampleRate; r < 0 || r > 1 {
		errs = append(errs, ValidationError{
			Field:   "enrichment.sample_rate",
			Message: fmt.Sprintf("must be between 0 and 1, got %g", r),
		})
	} else if r == 0 && *e.Enabled {
		errs = append(errs, ValidationError{
			Field:    "enrichment.sample_rate",
			Message:  "is 0; objects will never be enriched",
			Severity: "warning",
		})
	}
	if t := *e.SuccessRateTarget; t < 0 || t > 1 {
		errs = append(errs, ValidationError{
			Field:   "enrichment.success_rate_target",
			Message: fmt.Sprintf("must be between 0 and 1, got %g", t),
		})
	}
	if *e.MaxInFlight < 0 {
		errs = append(errs, ValidationError{
			Field:   "enrichment.max_in_flight",
			Message: "must not be negative",
		})
	}
	errs = append(errs, validateDuration("enrichment.per_call_budget", e.PerCallBudget)...)
	errs = append(errs, validateDuration("enrichment.batch_budget", e.BatchBudget)...)
	errs = append(errs, validateDuration("enrichment.primary_timeout", e.PrimaryTimeout)...)
	return errs
}

func (c *Config) validateCache() ValidationErrors {
	var errs ValidationErrors
	if c.Cache.MaxSize < 0 {
		errs = append(errs, ValidationError{
			Field:   "cache.max_size",
			Message: "must be positive",
		})
	}
	if d, err := time.ParseDuration(c.Cache.TTL); err != nil {
		errs = append(errs, ValidationError{Field: "cache.ttl", Message: err.Error()})
	} else if d <= 0 {
		errs = append(errs, ValidationError{Field: "cache.ttl", Message: "must be positive"})
	}
	errs = append(errs, validateDuration("cache.prune_interval", c.Cache.PruneInterval)...)
	return errs
}

func (c *Config) validateGeoIP() ValidationErrors {
	var errs ValidationErrors
	g := c.GeoIP
	if g.CityDatabase == "" {
		if g.ASNDatabase != "" {
			errs = append(errs, ValidationError{
				Field:   "geoip.asn_database",
				Message: "requires city_database",
			})
		}
		if g.AnonymousDatabase != "" {
			errs = append(errs, ValidationError{
				Field:   "geoip.anonymous_database",
				Message: "requires city_database",
			})
		}
	}
	return errs
}

func (c *Config) validateLogging() ValidationErrors {
	var errs ValidationErrors
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, ValidationError{Field: "logging.level", Message: err.Error()})
	}
	for field, v := range map[string]int{
		"logging.max_size_mb":  c.Logging.MaxSizeMB,
		"logging.max_backups":  c.Logging.MaxBackups,
		"logging.max_age_days": c.Logging.MaxAgeDays,
	} {
		if v < 0 {
			errs = append(errs, ValidationError{Field: field, Message: "must not be negative"})
		}
	}
	return errs
}

func (c *Config) validateMetrics() ValidationErrors {
	var errs ValidationErrors
	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics.listen",
				Message: fmt.Sprintf("invalid address %q: %v", c.Metrics.Listen, err),
			})
		}
	}
	if d, err := time.ParseDuration(c.Metrics.Interval); err != nil {
		errs = append(errs, ValidationError{Field: "metrics.interval", Message: err.Error()})
	} else if d <= 0 {
		errs = append(errs, ValidationError{Field: "metrics.interval", Message: "must be positive"})
	}
	return errs
}

func validateDuration(field, s string) ValidationErrors {
	d, err := time.ParseDuration(s)
	if err != nil {
		return ValidationErrors{{Field: field, Message: err.Error()}}
	}
	if d < 0 {
		return ValidationErrors{{Field: field, Message: "must not be negative"}}
	}
	return nil
}
