// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Code is an atomic, researcher-meaningful statement extracted from one
// source by the extraction stage. Per prd003-extraction R2.1-R2.4.
type Code struct {
	// ID is a stable identifier for this code, consistent across
	// re-extractions of unchanged content. Per R2.4.
	ID string `json:"id" yaml:"id"`

	// SourceDocumentID identifies the source the code came from.
	SourceDocumentID string `json:"source_document_id" yaml:"source_document_id"`

	// Text is the code statement, preserving the source's own language.
	Text string `json:"text" yaml:"text"`

	// Embedding is an optional dense vector for the clustering path. Its
	// dimensionality depends on the embedding provider and is detected at
	// run time, never assumed. Per prd005-clustering R1.1.
	Embedding []float32 `json:"embedding,omitempty" yaml:"embedding,omitempty"`
}

// RawTheme is one theme as asserted by the extraction capability for a
// single source, before deduplication. Per prd004-themes R1.1.
type RawTheme struct {
	// Label is the theme label as the extractor phrased it.
	Label string `json:"label" yaml:"label"`

	// Description is an optional one- or two-sentence summary.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Keywords are the terms the extractor associated with the theme.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// Weight is the theme's influence within its source, between 0.0 and 1.0.
	Weight float64 `json:"weight" yaml:"weight"`

	// Confidence is the extractor's certainty, between 0.0 and 1.0.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Controversial marks themes the extractor flagged as contested in the
	// source material. Per R1.4.
	Controversial bool `json:"controversial,omitempty" yaml:"controversial,omitempty"`

	// Excerpts are short supporting quotes from the source.
	Excerpts []string `json:"excerpts,omitempty" yaml:"excerpts,omitempty"`
}

// ThemeSource records one source's contribution to a unified theme.
// A theme holds at most one ThemeSource per (SourceType, SourceID) pair.
// Per prd004-themes R2.1-R2.3.
type ThemeSource struct {
	// SourceType is the contributing source's type: paper, video, podcast,
	// or social.
	SourceType SourceType `json:"source_type" yaml:"source_type"`

	// SourceID identifies the contributing source.
	SourceID string `json:"source_id" yaml:"source_id"`

	// SourceTitle is the contributing source's title.
	SourceTitle string `json:"source_title" yaml:"source_title"`

	// Influence is the theme's weight within this source, between 0.0 and 1.0.
	Influence float64 `json:"influence" yaml:"influence"`

	// KeywordMatches counts the theme keywords this source contributed.
	KeywordMatches int `json:"keyword_matches" yaml:"keyword_matches"`

	// Excerpts are supporting quotes, bounded per source. Per R2.3.
	Excerpts []string `json:"excerpts,omitempty" yaml:"excerpts,omitempty"`

	// DOI is the source's DOI, when known.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// Authors lists the source authors, when known.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Year is the source's publication year. Zero means unknown.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`
}

// ThemeProvenance aggregates statistics over a theme's sources.
// Computed in one pass over the final source list. Per prd004-themes R3.1-R3.5.
type ThemeProvenance struct {
	// PaperCount is the number of contributing paper sources.
	PaperCount int `json:"paper_count" yaml:"paper_count"`

	// VideoCount is the number of contributing video sources.
	VideoCount int `json:"video_count" yaml:"video_count"`

	// PodcastCount is the number of contributing podcast sources.
	PodcastCount int `json:"podcast_count" yaml:"podcast_count"`

	// SocialCount is the number of contributing social sources.
	SocialCount int `json:"social_count" yaml:"social_count"`

	// PaperInfluence sums contributing papers' influence values.
	PaperInfluence float64 `json:"paper_influence" yaml:"paper_influence"`

	// VideoInfluence sums contributing videos' influence values.
	VideoInfluence float64 `json:"video_influence" yaml:"video_influence"`

	// PodcastInfluence sums contributing podcasts' influence values.
	PodcastInfluence float64 `json:"podcast_influence" yaml:"podcast_influence"`

	// SocialInfluence sums contributing social posts' influence values.
	SocialInfluence float64 `json:"social_influence" yaml:"social_influence"`

	// AverageConfidence is the mean extraction confidence across the merge
	// decisions that produced this theme.
	AverageConfidence float64 `json:"average_confidence" yaml:"average_confidence"`

	// CitationChain documents the merge decisions that produced this theme,
	// in order. Kept for audit and debugging; never consulted by the
	// algorithms themselves. Per R3.5.
	CitationChain []string `json:"citation_chain,omitempty" yaml:"citation_chain,omitempty"`
}

// UnifiedTheme is the pipeline's terminal artifact: one deduplicated theme
// with full provenance. Sources is never empty; Keywords holds no duplicate
// values; Weight equals the maximum Influence across Sources.
// Per prd004-themes R2.1-R2.5.
type UnifiedTheme struct {
	// ID is a stable identifier derived from the canonical label.
	ID string `json:"id" yaml:"id"`

	// Label is the canonical theme label.
	Label string `json:"label" yaml:"label"`

	// Description summarizes the theme. May be empty.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Keywords is the deduplicated union of contributing keywords, in
	// first-seen order.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// Weight is the maximum influence across contributing sources.
	Weight float64 `json:"weight" yaml:"weight"`

	// Confidence is the average extraction confidence, between 0.0 and 1.0.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Controversial is set when any contributing source flagged the theme
	// as contested.
	Controversial bool `json:"controversial,omitempty" yaml:"controversial,omitempty"`

	// Sources lists contributing sources, one entry per distinct
	// (source_type, source_id).
	Sources []ThemeSource `json:"sources" yaml:"sources"`

	// Provenance aggregates per-type counts and influence sums.
	Provenance ThemeProvenance `json:"provenance" yaml:"provenance"`
}
