package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{
		Level:      LevelDebug,
		Output:     &buf,
		JSON:       true,
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}

	logger := New(cfg)
	if logger == nil {
		t.Fatal("New logger should not be nil")
	}

	t.Run("Levels", func(t *testing.T) {
		for _, fn := range []func(string, ...any){logger.Debug, logger.Info, logger.Warn, logger.Error} {
			buf.Reset()
			fn("level msg")
			if !strings.Contains(buf.String(), "level msg") {
				t.Errorf("message missing from output: %q", buf.String())
			}
		}
	})

	t.Run("DynamicLevel", func(t *testing.T) {
		logger.SetLevel(LevelError)
		if logger.GetLevel() != LevelError {
			t.Error("SetLevel failed")
		}

		buf.Reset()
		logger.Info("should not appear")
		if buf.Len() > 0 {
			t.Error("Logged info message when level was Error")
		}

		logger.SetLevel(LevelDebug)
	})

	t.Run("WithComponent", func(t *testing.T) {
		buf.Reset()
		l := logger.WithComponent("enrich")
		l.Info("msg")
		if !strings.Contains(buf.String(), "enrich") {
			t.Error("WithComponent missing component field")
		}

		// Derived loggers share the level.
		logger.SetLevel(LevelWarn)
		buf.Reset()
		l.Info("hidden")
		if buf.Len() > 0 {
			t.Error("derived logger ignored parent level change")
		}
		logger.SetLevel(LevelDebug)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("nothing")
	l.WithComponent("x").Warn("nothing")
	if err := l.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestConsoleHandler(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf, TimeFormat: time.Kitchen})

	l.WithComponent("Cache").Info("pruned entries", "count", 3, "note", "two words", "empty", "")
	line := buf.String()

	if !strings.Contains(line, "[info] cache: pruned entries") {
		t.Errorf("unexpected header: %q", line)
	}
	if !strings.Contains(line, "count=3") {
		t.Errorf("missing attribute: %q", line)
	}
	if !strings.Contains(line, `note="two words"`) {
		t.Errorf("value with spaces not quoted: %q", line)
	}
	if !strings.Contains(line, `empty=""`) {
		t.Errorf("empty value not quoted: %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Errorf("component should be promoted to the tag: %q", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Error("line not terminated")
	}

	buf.Reset()
	l.Debug("below level")
	if buf.Len() != 0 {
		t.Error("debug record written at info level")
	}
}

func TestConsoleHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, &slog.HandlerOptions{Level: LevelDebug}, "")
	l := slog.New(h).WithGroup("batch").With("id", "b1")

	l.Info("done", "size", 5, slog.Group("latency", "ms", 12))
	line := buf.String()

	for _, want := range []string{"batch.id=b1", "batch.size=5", "batch.latency.ms=12"} {
		if !strings.Contains(line, want) {
			t.Errorf("missing %q in %q", want, line)
		}
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geoenrich.log")
	cfg := DefaultConfig()
	cfg.File = path
	cfg.MaxSizeMB = 1

	l := New(cfg)
	l.Info("to file", "ip", "8.8.8.8")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file ip=8.8.8.8") {
		t.Errorf("log file content = %q", data)
	}
}

func TestJSONLogParsing(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Level: LevelInfo, Output: &buf, JSON: true}
	l := New(cfg)

	l.Info("json test", "key", "value")

	var data map[string]any
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}

	if data["msg"] != "json test" {
		t.Error("JSON msg field incorrect")
	}
	if data["key"] != "value" {
		t.Error("JSON extra field incorrect")
	}
	if data["level"] != "INFO" {
		t.Error("JSON level incorrect")
	}
}
