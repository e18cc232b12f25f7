// Package testutil holds small helpers shared by the package tests:
// test-scoped loggers, fixed run tokens, and ephemeral journals.
package testutil

import (
	"log/slog"
	"strings"
	"testing"
)

// Logger returns a debug-level logger that writes through t.Log, so
// protocol logs show up attached to the failing test and nowhere else.
func Logger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
