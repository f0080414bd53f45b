package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"

	"grimm.is/geoenrich/internal/enrich"
)

// enrichChunk is how many objects are enriched per batch.
const enrichChunk = 256

// EnrichOptions controls RunEnrich.
type EnrichOptions struct {
	ConfigFile string
	Fields     []string
	Quiet      bool // suppress the summary on stats
}

// RunEnrich reads JSON objects from in, either as one JSON array or as a
// stream of objects (JSON lines), and writes each enriched object as one
// line to out. A summary is written to stats.
func RunEnrich(ctx context.Context, opts EnrichOptions, in io.Reader, out, stats io.Writer) error {
	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg, stats)
	if err != nil {
		return err
	}
	defer rt.Close()

	start := time.Now()
	n, err := enrichStream(ctx, rt.engine, opts.Fields, in, out)
	if err != nil {
		return err
	}
	if !opts.Quiet {
		printSummary(stats, rt, n, time.Since(start))
	}
	return nil
}

// enrichStream enriches objects from in in chunks and returns how many it
// wrote.
func enrichStream(ctx context.Context, engine *enrich.Engine, fields []string, in io.Reader, out io.Writer) (int, error) {
	br := bufio.NewReader(in)
	array, err := startsWithArray(br)
	if err != nil {
		return 0, err
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()
	if array {
		if _, err := dec.Token(); err != nil {
			return 0, fmt.Errorf("failed to read input: %w", err)
		}
	}

	enc := json.NewEncoder(out)
	written := 0
	flush := func(chunk []map[string]any) error {
		for _, obj := range engine.EnrichObjects(ctx, chunk, fields...) {
			if err := enc.Encode(obj); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			written++
		}
		return nil
	}

	chunk := make([]map[string]any, 0, enrichChunk)
	for dec.More() {
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return written, fmt.Errorf("failed to parse object %d: %w", written+len(chunk)+1, err)
		}
		chunk = append(chunk, obj)
		if len(chunk) == enrichChunk {
			if err := flush(chunk); err != nil {
				return written, err
			}
			chunk = chunk[:0]
		}
	}
	if err := flush(chunk); err != nil {
		return written, err
	}

	if array {
		if _, err := dec.Token(); err != nil {
			return written, fmt.Errorf("failed to read input: %w", err)
		}
	}
	return written, nil
}

// startsWithArray reports whether the first non-space byte is '['.
func startsWithArray(br *bufio.Reader) (bool, error) {
	for {
		r, _, err := br.ReadRune()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to read input: %w", err)
		}
		if unicode.IsSpace(r) {
			continue
		}
		return r == '[', br.UnreadRune()
	}
}

func printSummary(w io.Writer, rt *runtime, objects int, elapsed time.Duration) {
	s := rt.engine.Stats()
	cs := rt.cache.Stats()
	Printer.Fprintf(w, "Enriched %s objects in %s: %s lookups, %.1f%% success, cache hit rate %.1f%%\n",
		humanize.Comma(int64(objects)),
		elapsed.Round(time.Millisecond),
		humanize.Comma(int64(s.TotalRequests)),
		s.SuccessRate*100,
		cs.HitRate*100,
	)
	if s.BatchOverruns > 0 {
		Printer.Fprintf(w, "Warning: %s batches exceeded the latency budget\n", humanize.Comma(int64(s.BatchOverruns)))
	}
}
