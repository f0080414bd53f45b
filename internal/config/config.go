// Package config loads and validates geoenrich configuration.
//
// # Overview
//
// Configuration is written in HCL (or the equivalent JSON). Every block is
// optional; anything left out falls back to the built-in defaults, so an
// empty file is a valid configuration.
//
// # Configuration Blocks
//
//   - enrichment: feature toggles, sampling and latency budgets
//   - cache: geographic cache size, TTL and pruning
//   - geoip: MaxMind databases and the secondary prefix table
//   - logging: level, format and file rotation
//   - metrics: Prometheus listener
//
// Durations are strings in time.ParseDuration form, e.g. "10ms" or "1h".
//
// Example:
//
//	enrichment {
//	  fallback_enabled = true
//	  sample_rate      = 0.5
//	  per_call_budget  = "10ms"
//	}
//
//	cache {
//	  max_size = 50000
//	  ttl      = "2h"
//	}
//
//	geoip {
//	  city_database = "/var/lib/geoip/GeoLite2-City.mmdb"
//	}
package config

import (
	"time"

	"grimm.is/geoenrich/internal/enrich"
	"grimm.is/geoenrich/internal/geocache"
	"grimm.is/geoenrich/internal/logging"
	"grimm.is/geoenrich/internal/provider"
)

// DefaultPruneInterval is how often the cache janitor runs when enabled.
const DefaultPruneInterval = 5 * time.Minute

// Config is the root configuration.
type Config struct {
	Enrichment *EnrichmentConfig `hcl:"enrichment,block" json:"enrichment,omitempty"`
	Cache      *CacheConfig      `hcl:"cache,block" json:"cache,omitempty"`
	GeoIP      *GeoIPConfig      `hcl:"geoip,block" json:"geoip,omitempty"`
	Logging    *LoggingConfig    `hcl:"logging,block" json:"logging,omitempty"`
	Metrics    *MetricsConfig    `hcl:"metrics,block" json:"metrics,omitempty"`
}

// EnrichmentConfig controls the enrichment engine. Pointer fields
// distinguish "unset" from an explicit zero or false.
type EnrichmentConfig struct {
	Enabled               *bool    `hcl:"enabled,optional" json:"enabled,omitempty"`
	FallbackEnabled       *bool    `hcl:"fallback_enabled,optional" json:"fallback_enabled,omitempty"`
	SampleRate            *float64 `hcl:"sample_rate,optional" json:"sample_rate,omitempty"`                       // 0.0 - 1.0, objects only
	PerCallBudget         string   `hcl:"per_call_budget,optional" json:"per_call_budget,omitempty"`               // "0s" disables
	BatchBudget           string   `hcl:"batch_budget,optional" json:"batch_budget,omitempty"`                     // "0s" disables
	SuccessRateTarget     *float64 `hcl:"success_rate_target,optional" json:"success_rate_target,omitempty"`       // 0.0 - 1.0
	CountDefaultAsSuccess *bool    `hcl:"count_default_as_success,optional" json:"count_default_as_success,omitempty"`
	MaxInFlight           *int     `hcl:"max_in_flight,optional" json:"max_in_flight,omitempty"` // 0 = unbounded
	PrimaryTimeout        string   `hcl:"primary_timeout,optional" json:"primary_timeout,omitempty"`
}

// CacheConfig controls the geographic cache.
type CacheConfig struct {
	MaxSize       int    `hcl:"max_size,optional" json:"max_size,omitempty"`
	TTL           string `hcl:"ttl,optional" json:"ttl,omitempty"`
	EnableStats   *bool  `hcl:"enable_stats,optional" json:"enable_stats,omitempty"`
	PruneInterval string `hcl:"prune_interval,optional" json:"prune_interval,omitempty"` // "0s" disables the janitor
}

// GeoIPConfig locates the lookup data. Without a city database the
// pipeline runs on the built-in fallback tiers alone.
type GeoIPConfig struct {
	CityDatabase      string `hcl:"city_database,optional" json:"city_database,omitempty"`
	ASNDatabase       string `hcl:"asn_database,optional" json:"asn_database,omitempty"`
	AnonymousDatabase string `hcl:"anonymous_database,optional" json:"anonymous_database,omitempty"`
	SecondaryTable    string `hcl:"secondary_table,optional" json:"secondary_table,omitempty"` // YAML prefix overrides
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level      string `hcl:"level,optional" json:"level,omitempty"`
	JSON       bool   `hcl:"json,optional" json:"json,omitempty"`
	File       string `hcl:"file,optional" json:"file,omitempty"`
	MaxSizeMB  int    `hcl:"max_size_mb,optional" json:"max_size_mb,omitempty"`
	MaxBackups int    `hcl:"max_backups,optional" json:"max_backups,omitempty"`
	MaxAgeDays int    `hcl:"max_age_days,optional" json:"max_age_days,omitempty"`
	Compress   bool   `hcl:"compress,optional" json:"compress,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Listen   string `hcl:"listen,optional" json:"listen,omitempty"`
	Interval string `hcl:"interval,optional" json:"interval,omitempty"` // gauge sampling period
}

// Default returns a fully populated configuration.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func ptr[T any](v T) *T { return &v }

// applyDefaults fills every unset block and field.
func (c *Config) applyDefaults() {
	if c.Enrichment == nil {
		c.Enrichment = &EnrichmentConfig{}
	}
	if c.Cache == nil {
		c.Cache = &CacheConfig{}
	}
	if c.GeoIP == nil {
		c.GeoIP = &GeoIPConfig{}
	}
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{}
	}

	e := c.Enrichment
	if e.Enabled == nil {
		e.Enabled = ptr(true)
	}
	if e.FallbackEnabled == nil {
		e.FallbackEnabled = ptr(true)
	}
	if e.SampleRate == nil {
		e.SampleRate = ptr(1.0)
	}
	if e.PerCallBudget == "" {
		e.PerCallBudget = enrich.DefaultPerCallBudget.String()
	}
	if e.BatchBudget == "" {
		e.BatchBudget = enrich.DefaultBatchBudget.String()
	}
	if e.SuccessRateTarget == nil {
		e.SuccessRateTarget = ptr(enrich.DefaultSuccessRateTarget)
	}
	if e.CountDefaultAsSuccess == nil {
		e.CountDefaultAsSuccess = ptr(true)
	}
	if e.MaxInFlight == nil {
		e.MaxInFlight = ptr(enrich.DefaultMaxInFlight)
	}
	if e.PrimaryTimeout == "" {
		e.PrimaryTimeout = "0s"
	}

	ca := c.Cache
	if ca.MaxSize == 0 {
		ca.MaxSize = geocache.DefaultMaxSize
	}
	if ca.TTL == "" {
		ca.TTL = geocache.DefaultTTL.String()
	}
	if ca.EnableStats == nil {
		ca.EnableStats = ptr(true)
	}
	if ca.PruneInterval == "" {
		ca.PruneInterval = DefaultPruneInterval.String()
	}

	l := c.Logging
	ld := logging.DefaultConfig()
	if l.Level == "" {
		l.Level = "info"
	}
	if l.MaxSizeMB == 0 {
		l.MaxSizeMB = ld.MaxSizeMB
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = ld.MaxBackups
	}
	if l.MaxAgeDays == 0 {
		l.MaxAgeDays = ld.MaxAgeDays
	}

	if c.Metrics.Interval == "" {
		c.Metrics.Interval = "15s"
	}
}

// duration parses s, treating an unparseable value as zero. Validate
// reports bad values; callers past validation never see them.
func duration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// EngineOptions returns the fixed engine settings.
func (c *Config) EngineOptions() enrich.Options {
	opts := enrich.DefaultOptions()
	opts.BatchBudget = duration(c.Enrichment.BatchBudget)
	opts.MaxInFlight = *c.Enrichment.MaxInFlight
	opts.CountDefaultAsSuccess = *c.Enrichment.CountDefaultAsSuccess
	return opts
}

// CacheLimits returns the geographic cache limits.
func (c *Config) CacheLimits() geocache.Config {
	return geocache.Config{
		MaxSize:     c.Cache.MaxSize,
		TTL:         duration(c.Cache.TTL),
		EnableStats: *c.Cache.EnableStats,
	}
}

// PruneInterval returns the janitor period. Zero disables the janitor.
func (c *Config) PruneInterval() time.Duration {
	return duration(c.Cache.PruneInterval)
}

// MetricsInterval returns the gauge sampling period.
func (c *Config) MetricsInterval() time.Duration {
	return duration(c.Metrics.Interval)
}

// MaxMindConfig returns the database locations for the primary provider.
func (c *Config) MaxMindConfig() provider.MaxMindConfig {
	return provider.MaxMindConfig{
		CityPath:      c.GeoIP.CityDatabase,
		ASNPath:       c.GeoIP.ASNDatabase,
		AnonymousPath: c.GeoIP.AnonymousDatabase,
	}
}

// ChainOptions returns the provider chain options, loading the secondary
// table overrides if one is configured.
func (c *Config) ChainOptions() ([]provider.Option, error) {
	opts := []provider.Option{
		provider.WithPrimaryTimeout(duration(c.Enrichment.PrimaryTimeout)),
	}
	if c.GeoIP.SecondaryTable != "" {
		rows, err := provider.LoadTableFile(c.GeoIP.SecondaryTable)
		if err != nil {
			return nil, err
		}
		table, err := provider.DefaultTable().Merge(rows)
		if err != nil {
			return nil, err
		}
		opts = append(opts, provider.WithSecondaryTable(table))
	}
	return opts, nil
}

// LogConfig returns the logger settings.
func (c *Config) LogConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Logging.Level); err == nil {
		cfg.Level = level
	}
	cfg.JSON = c.Logging.JSON
	cfg.File = c.Logging.File
	cfg.MaxSizeMB = c.Logging.MaxSizeMB
	cfg.MaxBackups = c.Logging.MaxBackups
	cfg.MaxAgeDays = c.Logging.MaxAgeDays
	cfg.Compress = c.Logging.Compress
	return cfg
}
