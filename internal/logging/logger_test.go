package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelDebug)
	return slog.New(newConsoleHandler(buf, lvl, false))
}

func TestConsoleHandlerPromotesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.With(String(FieldComponent, "api-server")).Info("listening", String("address", "127.0.0.1:0"))

	line := buf.String()
	if !strings.Contains(line, "api-server: listening") {
		t.Fatalf("component not promoted into prefix: %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should not appear as key/value: %q", line)
	}
	if !strings.Contains(line, "address=127.0.0.1:0") {
		t.Fatalf("missing attribute: %q", line)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.Info("upload accepted", String("filename", "my holiday.jpg"))

	if !strings.Contains(buf.String(), `filename="my holiday.jpg"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestConsoleHandlerFlattensGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.Info("render", slog.Group("clip", String("codec", "libx264"), Int("fps", 30)))

	line := buf.String()
	if !strings.Contains(line, "clip.codec=libx264") || !strings.Contains(line, "clip.fps=30") {
		t.Fatalf("group attrs not flattened: %q", line)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		" info  ": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNoopHandlerDiscards(t *testing.T) {
	logger := NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("noop logger should report disabled")
	}
}
