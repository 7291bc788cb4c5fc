// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package progress

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/pdiddy/theme-engine/pkg/types"
)

// JSONLSink writes one JSON line per update. This is the transport format
// the UI layer consumes; a socket bridge forwards lines verbatim.
type JSONLSink struct {
	mu  sync.Mutex
	w   io.Writer
	log *slog.Logger
}

// NewJSONLSink builds a sink writing updates to w. Encoding failures are
// logged and dropped: progress is best-effort and never fails the run.
func NewJSONLSink(w io.Writer, log *slog.Logger) *JSONLSink {
	return &JSONLSink{w: w, log: log}
}

func (s *JSONLSink) Send(update types.ProgressUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := json.NewEncoder(s.w).Encode(update); err != nil {
		s.log.Warn("dropping progress update", "run_id", update.RunID, "error", err)
	}
}

// LogSink emits updates through the structured logger, for headless runs
// where no transport is attached.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Send(update types.ProgressUpdate) {
	s.Log.Info("progress",
		"run_id", update.RunID,
		"stage", update.StageNumber,
		"stage_name", update.StageName,
		"percentage", update.Percentage,
		"sources_analyzed", update.LiveStats.SourcesAnalyzed,
		"codes_generated", update.LiveStats.CodesGenerated,
		"themes_identified", update.LiveStats.ThemesIdentified,
	)
}

// CollectSink accumulates updates in order. Test helper.
type CollectSink struct {
	mu      sync.Mutex
	updates []types.ProgressUpdate
}

func (s *CollectSink) Send(update types.ProgressUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update)
}

// Updates returns a copy of everything received so far.
func (s *CollectSink) Updates() []types.ProgressUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ProgressUpdate, len(s.updates))
	copy(out, s.updates)
	return out
}
