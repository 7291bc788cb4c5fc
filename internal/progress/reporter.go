// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package progress

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pdiddy/theme-engine/pkg/types"
)

// Sink receives progress updates. Implementations must tolerate being
// called from the reporter's lock; they should hand off quickly.
type Sink interface {
	Send(update types.ProgressUpdate)
}

// Reporter emits progress updates for one extraction run. Many workers may
// call Emit concurrently; a mutex serializes emissions so the sink sees a
// single ordered stream. The reporter owns the monotonicity rules: raw
// percentages are clamped, invalid stages are substituted, and the stage
// number never moves backwards once a later stage has reached the sink (R3.1-R3.3).
type Reporter struct {
	runID string
	sink  Sink
	log   *slog.Logger

	mu        sync.Mutex
	lastStage Stage
}

// NewReporter builds a reporter for a fresh run. The generated run ID keys
// every update so one transport can multiplex concurrent runs (R1.2).
func NewReporter(sink Sink, log *slog.Logger) *Reporter {
	return &Reporter{
		runID:     uuid.NewString(),
		sink:      sink,
		log:       log,
		lastStage: StagePreparing,
	}
}

// RunID returns the identifier carried by every update from this reporter.
func (r *Reporter) RunID() string {
	return r.runID
}

// Emit sends one progress update. The percentage is clamped to [0,100]
// before emission; an out-of-range stage is logged as an error and replaced
// with the last valid stage rather than propagated (R2.2, R2.3). Stages
// only move forward: an emission for a stage below the highest one already
// sent is suppressed and logged, so a late worker tick cannot walk the
// display backwards and completion is a terminal-stage event, never a
// reset to stage zero (R3.2).
func (r *Reporter) Emit(stage Stage, percentage int, stats types.LiveStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !stage.Valid() {
		r.log.Error("progress stage out of range, substituting last valid stage",
			"run_id", r.runID, "stage", int(stage), "substituted", int(r.lastStage))
		stage = r.lastStage
	}

	if stage < r.lastStage {
		r.log.Warn("progress stage regression suppressed",
			"run_id", r.runID, "stage", int(stage), "floor", int(r.lastStage))
		return
	}

	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}

	r.lastStage = stage

	if r.sink != nil {
		r.sink.Send(types.ProgressUpdate{
			RunID:          r.runID,
			StageName:      stage.String(),
			StageNumber:    int(stage),
			TotalStages:    TotalStages,
			Percentage:     percentage,
			WhatWeAreDoing: stage.whatWeAreDoing(),
			WhyItMatters:   stage.whyItMatters(),
			LiveStats:      stats,
		})
	}
}

// Complete emits the terminal-stage update carrying the run's final
// aggregate counters (R3.1).
func (r *Reporter) Complete(stats types.LiveStats) {
	r.Emit(Terminal, 100, stats)
}
