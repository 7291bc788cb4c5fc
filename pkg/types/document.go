// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the theme-engine pipeline.
// Implements: prd001-ranking (Document, ScoredDocument, R4.1-R4.3);
//
//	prd002-fulltext (FullTextStatus, FullTextSource, R1.2, R4.5);
//	prd003-extraction (SourceDescriptor, Code, R2.1-R2.4);
//	prd004-themes (RawTheme, UnifiedTheme, ThemeSource, ThemeProvenance, R1.1-R3.5);
//	prd006-progress (ProgressUpdate, LiveStats, R2.1-R2.6).
//
// See docs/ARCHITECTURE.md § Pipeline Interface, § Data Structures.
package types

import "time"

// SourceType categorizes where a source's content came from.
// Per prd003-extraction R1.2.
type SourceType string

const (
	SourcePaper   SourceType = "paper"
	SourceVideo   SourceType = "video"
	SourcePodcast SourceType = "podcast"
	SourceSocial  SourceType = "social"
)

// FullTextStatus tracks the state of full-text acquisition for a document.
// Per prd002-fulltext R1.2.
type FullTextStatus string

const (
	FullTextNotFetched FullTextStatus = "not_fetched"
	FullTextFetching   FullTextStatus = "fetching"
	FullTextSuccess    FullTextStatus = "success"
	FullTextFailed     FullTextStatus = "failed"
)

// FullTextSource identifies which acquisition tier produced a document's full text.
// Per prd002-fulltext R1.3.
type FullTextSource string

const (
	TierCache      FullTextSource = "cache"
	TierPMC        FullTextSource = "pmc"
	TierHTMLScrape FullTextSource = "html_scrape"
	TierUnpaywall  FullTextSource = "unpaywall"
)

// ExternalIDs holds the registry identifiers a document may carry.
// All fields are optional; the fulltext waterfall checks them tier by tier.
// Per prd002-fulltext R2.1.
type ExternalIDs struct {
	// DOI is the Digital Object Identifier (e.g. "10.1038/s41586-020-2649-2").
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// PMID is the PubMed identifier.
	PMID string `json:"pmid,omitempty" yaml:"pmid,omitempty"`

	// PMCID is the PubMed Central identifier (e.g. "PMC7610520").
	PMCID string `json:"pmcid,omitempty" yaml:"pmcid,omitempty"`
}

// Document is a candidate source in the ranking pool. Metadata fields are
// immutable once the document enters the pool; only the full-text enrichment
// fields mutate, exactly once per fetch attempt.
// Per prd001-ranking R4.1 and prd002-fulltext R1.1-R1.4.
type Document struct {
	// ID is an opaque, stable identifier for the document.
	ID string `json:"id" yaml:"id"`

	// Title is the document title.
	Title string `json:"title" yaml:"title"`

	// Abstract is the document abstract or summary. May be empty.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Keywords lists author- or indexer-supplied keywords.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	// Authors lists the document authors in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Venue is the journal, conference, channel, or feed name. May be empty.
	Venue string `json:"venue,omitempty" yaml:"venue,omitempty"`

	// Year is the publication year. Zero means unknown.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	// ExternalIDs carries registry identifiers used by the fulltext waterfall.
	ExternalIDs ExternalIDs `json:"external_ids,omitempty" yaml:"external_ids,omitempty"`

	// URL is the landing-page URL, used by the HTML-scrape tier. May be empty.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// FullText is the acquired body text. Empty until a fetch succeeds.
	FullText string `json:"full_text,omitempty" yaml:"full_text,omitempty"`

	// FullTextStatus tracks the acquisition state: not_fetched, fetching,
	// success, or failed.
	FullTextStatus FullTextStatus `json:"full_text_status" yaml:"full_text_status"`

	// FullTextSource records which tier produced FullText. Per R4.5.
	FullTextSource FullTextSource `json:"full_text_source,omitempty" yaml:"full_text_source,omitempty"`

	// WordCount is the whitespace-token count of FullText, recorded at fetch
	// time for downstream weighting and diagnostics.
	WordCount int `json:"word_count,omitempty" yaml:"word_count,omitempty"`

	// FetchedAt is when the last fetch attempt finished. Zero when not_fetched.
	FetchedAt time.Time `json:"fetched_at,omitempty" yaml:"fetched_at,omitempty"`
}

// ScoreBreakdown records per-field contributions to a relevance score,
// used for diagnostics and deterministic tie-breaking.
// Per prd001-ranking R4.3.
type ScoreBreakdown struct {
	// Title is the title field contribution, after length normalization.
	Title float64 `json:"title" yaml:"title"`

	// Keywords is the keyword field contribution.
	Keywords float64 `json:"keywords" yaml:"keywords"`

	// Abstract is the abstract field contribution.
	Abstract float64 `json:"abstract" yaml:"abstract"`

	// Authors is the author field contribution (exact token matches only).
	Authors float64 `json:"authors" yaml:"authors"`

	// Venue is the venue field contribution (exact token matches only).
	Venue float64 `json:"venue" yaml:"venue"`

	// PhraseBonus is the verbatim-phrase-in-title bonus.
	PhraseBonus float64 `json:"phrase_bonus" yaml:"phrase_bonus"`

	// LengthNorm is the BM25 length-normalization factor applied to the
	// abstract contribution (1.0 means no adjustment).
	LengthNorm float64 `json:"length_norm" yaml:"length_norm"`
}

// ScoredDocument pairs a document with its relevance score and breakdown.
// Scoring is a pure function of (CompiledQuery, Document); re-scoring the
// same pair always reproduces the same values. Per prd001-ranking R4.2.
type ScoredDocument struct {
	Document `yaml:",inline"`

	// RelevanceScore is the combined field score. Non-negative, unbounded
	// above; meaningful only for relative ranking within one query.
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`

	// Breakdown itemizes the per-field contributions behind RelevanceScore.
	Breakdown ScoreBreakdown `json:"breakdown" yaml:"breakdown"`
}
