// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// LiveStats is the running-counter block carried by every progress update.
// Per prd006-progress R2.4.
type LiveStats struct {
	// SourcesAnalyzed counts sources that have completed extraction so far.
	SourcesAnalyzed int `json:"sources_analyzed" yaml:"sources_analyzed"`

	// CodesGenerated counts codes produced so far.
	CodesGenerated int `json:"codes_generated" yaml:"codes_generated"`

	// ThemesIdentified counts themes identified so far.
	ThemesIdentified int `json:"themes_identified" yaml:"themes_identified"`

	// CurrentOperation names what the pipeline is doing right now
	// (e.g. "extracting: Stress and Sleep in Adolescents").
	CurrentOperation string `json:"current_operation,omitempty" yaml:"current_operation,omitempty"`
}

// ProgressUpdate is one message on the progress stream. Updates are keyed
// by RunID so one transport can multiplex concurrent runs without
// cross-talk. Regenerated at every emission, never persisted.
// Per prd006-progress R2.1-R2.6.
type ProgressUpdate struct {
	// RunID identifies the extraction run this update belongs to.
	RunID string `json:"run_id" yaml:"run_id"`

	// StageName is the human-readable stage label (e.g. "Generating themes").
	StageName string `json:"stage_name" yaml:"stage_name"`

	// StageNumber is the zero-based stage index.
	StageNumber int `json:"stage_number" yaml:"stage_number"`

	// TotalStages is the fixed stage count for the methodology.
	TotalStages int `json:"total_stages" yaml:"total_stages"`

	// Percentage is the within-stage completion, clamped to [0,100]
	// before emission.
	Percentage int `json:"percentage" yaml:"percentage"`

	// WhatWeAreDoing is a one-line description of the current work.
	WhatWeAreDoing string `json:"what_we_are_doing" yaml:"what_we_are_doing"`

	// WhyItMatters is a one-line rationale shown alongside the stage.
	WhyItMatters string `json:"why_it_matters" yaml:"why_it_matters"`

	// LiveStats carries the running counters.
	LiveStats LiveStats `json:"live_stats" yaml:"live_stats"`
}
