package enrich

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BatchRequest points at a field of a caller record holding an IP.
type BatchRequest struct {
	IP        string `json:"ip"`
	FieldPath string `json:"field_path"`
}

// EnrichBatch resolves every distinct IP in reqs concurrently and returns a
// result per IP. A failing IP never affects the others. The batch budget is
// advisory: overruns are logged and counted only.
func (e *Engine) EnrichBatch(ctx context.Context, reqs []BatchRequest) map[string]Result {
	ips := distinctIPs(reqs)
	results := make(map[string]Result, len(ips))
	if len(ips) == 0 {
		return results
	}

	batchID := uuid.NewString()
	start := e.clock.Now()

	out := make([]Result, len(ips))
	var g errgroup.Group
	if e.opts.MaxInFlight > 0 {
		g.SetLimit(e.opts.MaxInFlight)
	}
	for i, ip := range ips {
		g.Go(func() error {
			out[i] = e.EnrichIP(ctx, ip)
			return nil
		})
	}
	_ = g.Wait()

	for i, ip := range ips {
		results[ip] = out[i]
	}

	elapsed := e.clock.Since(start)
	e.metrics.RecordBatch(len(ips), elapsed)
	if budget := e.opts.BatchBudget; budget > 0 && elapsed > budget {
		e.stats.batchOverrun()
		e.metrics.RecordOverrun("batch")
		e.logger.Warn("Batch exceeded latency budget",
			"batch_id", batchID, "ips", len(ips), "latency", elapsed, "budget", budget)
	}
	e.logger.Debug("Batch enriched",
		"batch_id", batchID, "requests", len(reqs), "ips", len(ips), "latency", elapsed)

	return results
}

// distinctIPs returns the non-empty IPs of reqs in first-seen order.
func distinctIPs(reqs []BatchRequest) []string {
	seen := make(map[string]struct{}, len(reqs))
	ips := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if r.IP == "" {
			continue
		}
		if _, dup := seen[r.IP]; dup {
			continue
		}
		seen[r.IP] = struct{}{}
		ips = append(ips, r.IP)
	}
	return ips
}
