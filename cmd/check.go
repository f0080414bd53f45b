package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"grimm.is/geoenrich/internal/brand"
	"grimm.is/geoenrich/internal/config"
	"grimm.is/geoenrich/internal/provider"
)

// RunCheck validates the configuration file syntax and semantics. With
// verbose set it also opens the configured databases and prefix table.
func RunCheck(configFile string, verbose bool, out io.Writer) error {
	if len(configFile) == 0 {
		return fmt.Errorf("usage: %s check [-v] <config-file>\nExample: %s check -v %s/%s",
			brand.BinaryName, brand.BinaryName, brand.DefaultConfigDir, brand.ConfigFileName)
	}

	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	errs := cfg.Validate()
	for _, w := range errs.Warnings() {
		Printer.Fprintf(out, "Warning: %s\n", w)
	}
	if err := errs.Err(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	Printer.Fprintf(out, "Configuration valid!\n")
	printConfigSummary(out, cfg)

	if verbose {
		Printer.Fprintln(out)
		return checkResources(out, cfg)
	}
	return nil
}

func printConfigSummary(out io.Writer, cfg *config.Config) {
	e := cfg.Enrichment
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Enrichment:\t%s\n", onOff(*e.Enabled))
	fmt.Fprintf(w, "Fallback:\t%s\n", onOff(*e.FallbackEnabled))
	fmt.Fprintf(w, "Sample rate:\t%.0f%%\n", *e.SampleRate*100)
	fmt.Fprintf(w, "Budgets:\t%s per call, %s per batch\n", e.PerCallBudget, e.BatchBudget)
	Printer.Fprintf(w, "Cache:\t%d entries, TTL %s\n", cfg.Cache.MaxSize, cfg.Cache.TTL)
	if cfg.GeoIP.CityDatabase != "" {
		fmt.Fprintf(w, "City database:\t%s\n", cfg.GeoIP.CityDatabase)
	} else {
		fmt.Fprintf(w, "City database:\t(none, fallback tiers only)\n")
	}
	if cfg.Metrics.Listen != "" {
		fmt.Fprintf(w, "Metrics:\t%s\n", cfg.Metrics.Listen)
	}
	w.Flush()
}

// checkResources opens every file the configuration refers to.
func checkResources(out io.Writer, cfg *config.Config) error {
	if _, err := cfg.ChainOptions(); err != nil {
		return fmt.Errorf("secondary table: %w", err)
	}
	if cfg.GeoIP.SecondaryTable != "" {
		Printer.Fprintf(out, "Secondary table %s: OK\n", cfg.GeoIP.SecondaryTable)
	}

	mm := cfg.MaxMindConfig()
	if mm.CityPath == "" {
		return nil
	}
	db, err := provider.OpenMaxMind(mm)
	if err != nil {
		return err
	}
	defer db.Close()
	Printer.Fprintf(out, "GeoIP databases: OK\n")
	return nil
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
