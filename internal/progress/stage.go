// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package progress emits ordered, monotonic progress events for an
// extraction run to an external consumer, decoupled from the pipeline's
// internal retry and fallback logic.
// Implements: prd006-progress (R1-R3); docs/ARCHITECTURE § Progress.
package progress

// Stage is one step of the fixed extraction methodology. The stage count
// is part of the protocol: consumers render a stepper over TotalStages
// and every emission carries a stage in [0, TotalStages).
type Stage int

const (
	StagePreparing Stage = iota
	StageFamiliarization
	StageCoding
	StageThemeGeneration
	StageThemeReview
	StageThemeRefinement
	StageComplete
)

// TotalStages is the fixed methodology stage count.
const TotalStages = 7

// Terminal is the run's final stage. After it is emitted, a run's stage
// number never goes back down (R3.2).
const Terminal = StageComplete

func (s Stage) String() string {
	switch s {
	case StagePreparing:
		return "Preparing sources"
	case StageFamiliarization:
		return "Reading and familiarization"
	case StageCoding:
		return "Generating initial codes"
	case StageThemeGeneration:
		return "Generating themes"
	case StageThemeReview:
		return "Reviewing themes"
	case StageThemeRefinement:
		return "Refining and naming themes"
	case StageComplete:
		return "Complete"
	default:
		return "unknown"
	}
}

// Valid reports whether s is a defined methodology stage.
func (s Stage) Valid() bool {
	return s >= StagePreparing && s < TotalStages
}

// whatWeAreDoing returns the one-line activity description for a stage.
func (s Stage) whatWeAreDoing() string {
	switch s {
	case StagePreparing:
		return "Collecting and validating your sources"
	case StageFamiliarization:
		return "Reading through every source to understand the material"
	case StageCoding:
		return "Extracting meaningful statements from each source"
	case StageThemeGeneration:
		return "Grouping related codes into candidate themes"
	case StageThemeReview:
		return "Checking candidate themes against the sources"
	case StageThemeRefinement:
		return "Merging duplicates and naming the final themes"
	case StageComplete:
		return "Analysis complete"
	default:
		return ""
	}
}

// whyItMatters returns the one-line rationale shown alongside a stage.
func (s Stage) whyItMatters() string {
	switch s {
	case StagePreparing:
		return "Clean input keeps every later step reliable"
	case StageFamiliarization:
		return "Understanding context prevents misreading isolated quotes"
	case StageCoding:
		return "Codes are the evidence every theme is built on"
	case StageThemeGeneration:
		return "Patterns across sources are what make a finding a theme"
	case StageThemeReview:
		return "Themes must be grounded in the data, not imposed on it"
	case StageThemeRefinement:
		return "Distinct, well-named themes are easier to act on"
	case StageComplete:
		return "Your themes are ready with full provenance"
	default:
		return ""
	}
}
