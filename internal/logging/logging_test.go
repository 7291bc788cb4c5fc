package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewWithWriterTagsStage(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("fulltext", &buf)
	log.Info("tier failed", "tier", "pmc")

	out := buf.String()
	if !strings.Contains(out, "stage=fulltext") {
		t.Errorf("log line should carry the stage tag: %q", out)
	}
	if !strings.Contains(out, "tier=pmc") {
		t.Errorf("log line should carry attributes: %q", out)
	}
}

func TestDiscardDoesNotPanic(t *testing.T) {
	Discard().Error("dropped", "key", "value")
}
