package logger

import (
	"log/slog"
	"testing"
)

func TestInit_SetsDefault(t *testing.T) {
	lg := Init("test-service", slog.LevelInfo, "")
	if lg == nil {
		t.Fatal("expected a logger")
	}
	if slog.Default() == nil {
		t.Fatal("expected default logger to be installed")
	}
	// Smoke: must not panic.
	lg.Info("hello", slog.String("k", "v"))
}
