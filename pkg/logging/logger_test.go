package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := parseLevel(raw); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestNewLoggerLevels(t *testing.T) {
	logger := NewLogger(Config{Level: "error"})
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info enabled on an error-level logger")
	}
	if !logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("error disabled on an error-level logger")
	}
}
