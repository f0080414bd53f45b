package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ConsoleHandler is a slog.Handler that writes logs in a human-readable format:
//
//	2006-01-02T15:04:05Z geoenrich[1234]: [info] component: Message key=value
type ConsoleHandler struct {
	opts       slog.HandlerOptions
	timeFormat string
	procName   string
	out        io.Writer
	mu         *sync.Mutex
	attrs      []slog.Attr
	group      string
}

// NewConsoleHandler creates a new ConsoleHandler. An empty timeFormat means
// RFC 3339.
func NewConsoleHandler(out io.Writer, opts *slog.HandlerOptions, timeFormat string) *ConsoleHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	name := strings.ToLower(filepath.Base(os.Args[0]))
	if name == "" || name == "." {
		name = "geoenrich"
	}
	return &ConsoleHandler{
		opts:       *opts,
		timeFormat: timeFormat,
		procName:   name,
		out:        out,
		mu:         &sync.Mutex{},
	}
}

// Enabled reports whether the handler is enabled for this level.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle formats and writes the record.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)

	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	buf = t.AppendFormat(buf, h.timeFormat)
	buf = append(buf, ' ')
	buf = append(buf, h.procName...)
	buf = append(buf, '[')
	buf = strconv.AppendInt(buf, int64(os.Getpid()), 10)
	buf = append(buf, "]: ["...)
	buf = append(buf, strings.ToLower(r.Level.String())...)
	buf = append(buf, "] "...)

	// The component attribute is promoted to a tag; a record-level value
	// overrides a pre-bound one.
	component := ""
	for _, a := range h.attrs {
		if a.Key == "component" {
			component = a.Value.String()
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = a.Value.String()
			return false
		}
		return true
	})
	if component != "" {
		buf = append(buf, strings.ToLower(component)...)
		buf = append(buf, ": "...)
	}

	buf = append(buf, r.Message...)

	for _, a := range h.attrs {
		if a.Key == "component" {
			continue
		}
		buf = h.appendAttr(buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != "component" {
			buf = h.appendAttr(buf, h.group, a)
		}
		return true
	})

	if h.opts.AddSource && r.PC != 0 {
		buf = h.appendAttr(buf, "", slog.Any(slog.SourceKey, r.Source()))
	}

	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf)
	return err
}

func (h *ConsoleHandler) appendAttr(buf []byte, group string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		prefix := a.Key
		if group != "" && prefix != "" {
			prefix = group + "." + prefix
		} else if prefix == "" {
			prefix = group
		}
		for _, ga := range a.Value.Group() {
			buf = h.appendAttr(buf, prefix, ga)
		}
		return buf
	}

	buf = append(buf, ' ')
	if group != "" {
		buf = append(buf, group...)
		buf = append(buf, '.')
	}
	buf = append(buf, a.Key...)
	buf = append(buf, '=')

	var val string
	if src, ok := a.Value.Any().(*slog.Source); ok && src != nil {
		val = filepath.Base(src.File) + ":" + strconv.Itoa(src.Line)
	} else {
		val = a.Value.String()
	}
	if val == "" || strings.ContainsAny(val, " \t\n\"=") {
		return strconv.AppendQuote(buf, val)
	}
	return append(buf, val...)
}

// WithAttrs returns a new handler with the given attributes.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	if h.group != "" {
		attrs = []slog.Attr{{Key: h.group, Value: slog.GroupValue(attrs...)}}
	}
	h2.attrs = slices.Concat(h.attrs, attrs)
	return &h2
}

// WithGroup returns a new handler that qualifies record attribute keys with
// name.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	if h.group != "" {
		h2.group = h.group + "." + name
	} else {
		h2.group = name
	}
	return &h2
}
