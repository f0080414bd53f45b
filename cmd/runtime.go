package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"grimm.is/geoenrich/internal/brand"
	"grimm.is/geoenrich/internal/config"
	"grimm.is/geoenrich/internal/enrich"
	"grimm.is/geoenrich/internal/geocache"
	"grimm.is/geoenrich/internal/i18n"
	"grimm.is/geoenrich/internal/logging"
	"grimm.is/geoenrich/internal/metrics"
	"grimm.is/geoenrich/internal/provider"
)

// Printer is the global message printer for the CLI
var Printer = i18n.NewCLIPrinter()

// runtime holds the collaborators shared by every command. Build it once
// with newRuntime and release it with Close.
type runtime struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Registry
	cache   *geocache.Cache
	maxmind *provider.MaxMind // nil without a city database
	engine  *enrich.Engine
}

// loadConfig resolves configFile (falling back to the default location and
// then to built-in defaults) and validates it. Warnings go to stderr.
func loadConfig(configFile string) (*config.Config, error) {
	if configFile == "" {
		configFile = brand.DefaultConfigPath()
	}
	cfg, warnings, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration invalid: %w", err)
	}
	for _, w := range warnings {
		Printer.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	return cfg, nil
}

// newRuntime wires the engine from cfg. logOut overrides the log
// destination when no log file is configured.
func newRuntime(cfg *config.Config, logOut io.Writer) (*runtime, error) {
	logCfg := cfg.LogConfig()
	if logOut != nil {
		logCfg.Output = logOut
	}
	rt := &runtime{
		cfg:     cfg,
		logger:  logging.New(logCfg),
		metrics: metrics.NewRegistry(nil),
	}

	chainOpts, err := cfg.ChainOptions()
	if err != nil {
		rt.Close()
		return nil, err
	}

	var primary provider.Primary
	if mm := cfg.MaxMindConfig(); mm.CityPath != "" {
		rt.maxmind, err = provider.OpenMaxMind(mm)
		if err != nil {
			rt.Close()
			return nil, err
		}
		primary = rt.maxmind
	} else {
		rt.logger.Info("No city database configured; using built-in fallback tiers")
	}

	rt.cache = geocache.New(cfg.CacheLimits())
	rt.engine = enrich.New(
		cfg.EngineOptions(),
		provider.NewChain(primary, chainOpts...),
		rt.cache,
		enrich.WithLogger(rt.logger.WithComponent("enrich")),
		enrich.WithMetrics(rt.metrics),
		enrich.WithFeatures(cfg.Features()),
	)
	return rt, nil
}

// Close stops the cache janitor and releases the databases and log file.
func (rt *runtime) Close() error {
	var errs []error
	if rt.cache != nil {
		rt.cache.Stop()
	}
	if rt.maxmind != nil {
		errs = append(errs, rt.maxmind.Close())
	}
	if rt.logger != nil {
		errs = append(errs, rt.logger.Close())
	}
	return errors.Join(errs...)
}

// reload re-reads configFile and applies what can change without a
// restart: the log level and the GeoIP databases.
func (rt *runtime) reload(configFile string) error {
	var errs []error
	if cfg, err := loadConfig(configFile); err != nil {
		errs = append(errs, err)
	} else if level := cfg.LogConfig().Level; level != rt.logger.GetLevel() {
		prev := rt.logger.GetLevel()
		rt.logger.SetLevel(level)
		rt.logger.Info("Log level changed", "from", prev, "to", level)
	}
	if rt.maxmind != nil {
		if err := rt.maxmind.Reload(); err != nil {
			errs = append(errs, fmt.Errorf("failed to reload GeoIP databases: %w", err))
		}
	}
	return errors.Join(errs...)
}
