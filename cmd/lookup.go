package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"grimm.is/geoenrich/internal/brand"
	"grimm.is/geoenrich/internal/enrich"
)

// lookupLine is one line of lookup output.
type lookupLine struct {
	IP     string        `json:"ip"`
	Result enrich.Result `json:"result"`
}

// RunLookup enriches each IP and writes one JSON object per line to out.
func RunLookup(ctx context.Context, configFile string, ips []string, out io.Writer) error {
	if len(ips) == 0 {
		return fmt.Errorf("usage: %s lookup [-c config] <ip>...", brand.BinaryName)
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	enc := json.NewEncoder(out)
	for _, ip := range ips {
		if err := enc.Encode(lookupLine{IP: ip, Result: rt.engine.EnrichIP(ctx, ip)}); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}
	return nil
}
