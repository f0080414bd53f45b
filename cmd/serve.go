package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grimm.is/geoenrich/internal/brand"
	"grimm.is/geoenrich/internal/enrich"
	"grimm.is/geoenrich/internal/geocache"
	"grimm.is/geoenrich/internal/health"
	"grimm.is/geoenrich/internal/i18n"
	"grimm.is/geoenrich/internal/metrics"
)

// maxBodyBytes bounds POST /enrich request bodies.
const maxBodyBytes = 4 << 20

// RunServe runs the HTTP enrichment service until ctx is cancelled. SIGHUP
// reloads the log level and the GeoIP databases.
func RunServe(ctx context.Context, configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	log := rt.logger.WithComponent("serve")
	rt.cache.StartJanitor(cfg.PruneInterval())

	collector := metrics.NewCollector(rt.metrics, rt.engine.MetricsSnapshot, rt.logger.WithComponent("metrics"), cfg.MetricsInterval())
	go collector.Start()
	defer collector.Stop()

	listen := cfg.Metrics.Listen
	if listen == "" {
		listen = brand.DefaultListen
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listen, err)
	}

	srv := &http.Server{
		Handler:           newHandler(rt),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting enrichment server", "listen", ln.Addr().String(), "version", brand.Version)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-hup:
			log.Info("Received SIGHUP, reloading...")
			if err := rt.reload(configFile); err != nil {
				log.Error("Reload failed", "error", err)
			}
		case err := <-errCh:
			return fmt.Errorf("server failed: %w", err)
		case <-ctx.Done():
			log.Info("Shutting down enrichment server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	}
}

// statsResponse is the body of GET /stats.
type statsResponse struct {
	Enrichment      enrich.Stats   `json:"enrichment"`
	Cache           geocache.Stats `json:"cache"`
	PerformingWell  bool           `json:"performing_well"`
	FallbackEnabled bool           `json:"fallback_enabled"`
}

func newHandler(rt *runtime) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", rt.metrics.Handler())
	mux.Handle("GET /healthz", health.LivenessHandler())
	mux.Handle("GET /readyz", newChecker(rt).Handler())
	mux.HandleFunc("GET /enrich", func(w http.ResponseWriter, r *http.Request) {
		ips := r.URL.Query()["ip"]
		switch len(ips) {
		case 0:
			http.Error(w, "missing ip parameter", http.StatusBadRequest)
		case 1:
			writeJSON(w, rt.engine.EnrichIP(r.Context(), ips[0]))
		default:
			reqs := make([]enrich.BatchRequest, len(ips))
			for i, ip := range ips {
				reqs[i] = enrich.BatchRequest{IP: ip}
			}
			writeJSON(w, rt.engine.EnrichBatch(r.Context(), reqs))
		}
	})
	mux.HandleFunc("POST /enrich", func(w http.ResponseWriter, r *http.Request) {
		fields := r.URL.Query()["field"]
		var body any
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
			return
		}
		switch v := body.(type) {
		case map[string]any:
			writeJSON(w, rt.engine.EnrichObject(r.Context(), v, fields...))
		case []any:
			objs := make([]map[string]any, len(v))
			for i, item := range v {
				obj, ok := item.(map[string]any)
				if !ok {
					http.Error(w, fmt.Sprintf("element %d is not an object", i), http.StatusBadRequest)
					return
				}
				objs[i] = obj
			}
			writeJSON(w, rt.engine.EnrichObjects(r.Context(), objs, fields...))
		default:
			http.Error(w, "body must be an object or an array of objects", http.StatusBadRequest)
		}
	})
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		resp := statsResponse{
			Enrichment:      rt.engine.Stats(),
			Cache:           rt.cache.Stats(),
			PerformingWell:  rt.engine.IsPerformingWell(),
			FallbackEnabled: *rt.cfg.Enrichment.FallbackEnabled,
		}
		if r.URL.Query().Get("format") == "text" {
			writeStatsText(w, r, resp)
			return
		}
		writeJSON(w, resp)
	})
	mux.HandleFunc("POST /stats/reset", func(w http.ResponseWriter, r *http.Request) {
		rt.engine.ResetStats()
		rt.cache.ResetStats()
		w.WriteHeader(http.StatusNoContent)
	})
	return i18n.Middleware(mux)
}

// newChecker registers the readiness checks for rt.
func newChecker(rt *runtime) *health.Checker {
	checker := health.NewChecker(5*time.Second, nil)
	checker.Register("enrichment", health.CheckPerformance(rt.engine))
	checker.Register("cache", health.CheckCache(rt.cache.Stats))

	var probe func(ctx context.Context) error
	if rt.maxmind != nil {
		probe = func(ctx context.Context) error {
			_, err := rt.maxmind.Lookup(ctx, "8.8.8.8")
			return err
		}
	}
	checker.Register("geoip", health.CheckDatabase(probe))
	return checker
}

func writeStatsText(w http.ResponseWriter, r *http.Request, s statsResponse) {
	p := i18n.GetPrinter(r.Context())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	p.Fprintf(w, "Requests:        %d\n", s.Enrichment.TotalRequests)
	p.Fprintf(w, "Success rate:    %.2f%%\n", s.Enrichment.SuccessRate*100)
	p.Fprintf(w, "Average latency: %s\n", s.Enrichment.AverageLatency)
	p.Fprintf(w, "Call overruns:   %d\n", s.Enrichment.PerCallOverruns)
	p.Fprintf(w, "Batch overruns:  %d\n", s.Enrichment.BatchOverruns)
	p.Fprintf(w, "Cache entries:   %d / %d\n", s.Cache.Size, s.Cache.MaxSize)
	p.Fprintf(w, "Cache hit rate:  %.2f%%\n", s.Cache.HitRate*100)
	p.Fprintf(w, "Performing well: %t\n", s.PerformingWell)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
