// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// SourceMetadata carries optional bibliographic fields on a source
// descriptor, passed through to ThemeSource entries for provenance.
type SourceMetadata struct {
	// DOI is the source's Digital Object Identifier, when known.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// Authors lists the source authors, when known.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Year is the publication year. Zero means unknown.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	// Venue is the journal, channel, or feed name, when known.
	Venue string `json:"venue,omitempty" yaml:"venue,omitempty"`

	// URL is the source landing page, when known.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// SourceDescriptor is one source submitted for theme extraction.
// Per prd003-extraction R1.1-R1.3.
type SourceDescriptor struct {
	// ID is an opaque, stable source identifier.
	ID string `json:"id" yaml:"id"`

	// Type is the source type: paper, video, podcast, or social.
	Type SourceType `json:"type" yaml:"type"`

	// Title is the source title.
	Title string `json:"title" yaml:"title"`

	// Content is the text to extract from: full text, transcript, or post body.
	Content string `json:"content" yaml:"content"`

	// Keywords are optional source-level keywords.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	// Metadata carries optional bibliographic fields for provenance.
	Metadata SourceMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ExtractionOptions tunes one extraction run.
// Per prd003-extraction R1.4 and prd004-themes R1.2.
type ExtractionOptions struct {
	// MinConfidence drops raw themes below this extraction confidence,
	// between 0.0 and 1.0.
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`

	// DeduplicationThreshold is the similarity at or above which two theme
	// labels are treated as the same theme, between 0.0 and 1.0.
	DeduplicationThreshold float64 `json:"deduplication_threshold" yaml:"deduplication_threshold"`

	// IncludeProvenance controls whether per-theme provenance statistics
	// are computed and returned.
	IncludeProvenance bool `json:"include_provenance" yaml:"include_provenance"`

	// TargetThemeCount, when positive, routes the run through the
	// breadth-maximizing clustering path with this many clusters as the
	// target. Zero selects the incremental merge path.
	TargetThemeCount int `json:"target_theme_count,omitempty" yaml:"target_theme_count,omitempty"`
}

// ExtractionRequest is the subsystem's input: sources plus run options.
type ExtractionRequest struct {
	// Sources lists the sources to analyze.
	Sources []SourceDescriptor `json:"sources" yaml:"sources"`

	// Options tunes the run.
	Options ExtractionOptions `json:"options" yaml:"options"`

	// FetchFailures counts candidate documents that lost or degraded their
	// content during full-text acquisition, upstream of this request: dropped
	// for having no text at all, or falling back to the abstract. Carried
	// into RunStats so the caller can see fetch-stage casualties alongside
	// extraction failures.
	FetchFailures int `json:"fetch_failures,omitempty" yaml:"fetch_failures,omitempty"`
}

// RunStats summarizes one extraction run, including per-stage failure
// counts so a caller can tell "zero themes because everything failed"
// from "zero themes because nothing matched". Per prd004-themes R4.2.
type RunStats struct {
	// SourcesAnalyzed counts sources that completed extraction.
	SourcesAnalyzed int `json:"sources_analyzed" yaml:"sources_analyzed"`

	// CodesGenerated counts codes produced across all sources.
	CodesGenerated int `json:"codes_generated" yaml:"codes_generated"`

	// ThemesIdentified counts unified themes in the final set.
	ThemesIdentified int `json:"themes_identified" yaml:"themes_identified"`

	// DurationMs is the wall-clock run duration in milliseconds.
	DurationMs int64 `json:"duration_ms" yaml:"duration_ms"`

	// FetchFailures counts sources whose full-text acquisition exhausted
	// every tier and fell back to the abstract.
	FetchFailures int `json:"fetch_failures,omitempty" yaml:"fetch_failures,omitempty"`

	// ExtractionFailures counts sources whose extraction call failed.
	ExtractionFailures int `json:"extraction_failures,omitempty" yaml:"extraction_failures,omitempty"`

	// LabelingFallbacks counts clusters labeled by keyword fallback after
	// the labeling capability failed.
	LabelingFallbacks int `json:"labeling_fallbacks,omitempty" yaml:"labeling_fallbacks,omitempty"`

	// MalformedSkipped counts source groups skipped by the merge engine
	// for structural problems.
	MalformedSkipped int `json:"malformed_skipped,omitempty" yaml:"malformed_skipped,omitempty"`

	// Cancelled is set when the run was cut short by cancellation and the
	// response carries partial results.
	Cancelled bool `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
}

// HasFailures reports whether any source failed at any stage.
func (s RunStats) HasFailures() bool {
	return s.FetchFailures > 0 || s.ExtractionFailures > 0 || s.MalformedSkipped > 0
}

// ExtractionResponse is the subsystem's output: the unified theme set plus
// run statistics.
type ExtractionResponse struct {
	// Themes is the final deduplicated theme set, ordered by weight
	// descending, label ascending.
	Themes []UnifiedTheme `json:"themes" yaml:"themes"`

	// Stats summarizes the run.
	Stats RunStats `json:"stats" yaml:"stats"`
}
