// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging constructs the structured logger injected into every
// pipeline component. Level and sink are decided here by the caller's
// environment, never per call site.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds a text logger writing to stderr, tagged with the stage name.
// The level comes from THEME_ENGINE_LOG_LEVEL (debug, info, warn, error;
// default info).
func New(stage string) *slog.Logger {
	return NewWithWriter(stage, os.Stderr)
}

// NewWithWriter is New with an explicit sink, for tests and captured runs.
func NewWithWriter(stage string, w io.Writer) *slog.Logger {
	level := parseLevel(os.Getenv("THEME_ENGINE_LOG_LEVEL"))
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("stage", stage)
}

// Discard returns a logger that drops everything. Components require a
// non-nil logger; tests that do not assert on logs use this.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
