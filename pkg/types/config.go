package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "theme-engine/0.1"). Per prd002-fulltext R5.2.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// RankConfig holds settings for the relevance-ranking stage.
// Per prd001-ranking R5.1-R5.7.
type RankConfig struct {
	// StemmedDiscount is the weight applied to stemmed-only term matches
	// relative to exact matches (default 0.8). Tunable, not derivable from
	// first principles; validate empirically before changing.
	StemmedDiscount float64 `json:"stemmed_discount" yaml:"stemmed_discount"`

	// K1 is the BM25 term-frequency saturation parameter (default 1.2).
	K1 float64 `json:"k1" yaml:"k1"`

	// B is the BM25 length-normalization strength (default 0.75).
	B float64 `json:"b" yaml:"b"`

	// PivotLength is the abstract word count treated as average for length
	// normalization (default 180).
	PivotLength int `json:"pivot_length" yaml:"pivot_length"`

	// TitleWeight scales title-field matches (default 3.0).
	TitleWeight float64 `json:"title_weight" yaml:"title_weight"`

	// KeywordWeight scales keyword-field matches (default 2.0).
	KeywordWeight float64 `json:"keyword_weight" yaml:"keyword_weight"`

	// AbstractWeight scales abstract-field matches (default 1.0).
	AbstractWeight float64 `json:"abstract_weight" yaml:"abstract_weight"`

	// AuthorWeight scales exact author-token matches (default 1.5).
	AuthorWeight float64 `json:"author_weight" yaml:"author_weight"`

	// VenueWeight scales exact venue-token matches (default 1.0).
	VenueWeight float64 `json:"venue_weight" yaml:"venue_weight"`

	// PhraseBonus is added when the verbatim query appears in the title
	// (default 2.5).
	PhraseBonus float64 `json:"phrase_bonus" yaml:"phrase_bonus"`

	// MinScore drops documents scoring below this value (default 0 = keep all).
	MinScore float64 `json:"min_score" yaml:"min_score"`

	// MaxResults caps the ranked output length (default 50).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// FullTextConfig holds settings for the content-acquisition waterfall.
// Per prd002-fulltext R5.1-R5.6.
type FullTextConfig struct {
	HTTPConfig `yaml:",inline"`

	// TierTimeout bounds each network tier's attempt (default 30s).
	TierTimeout time.Duration `json:"tier_timeout" yaml:"tier_timeout"`

	// MinTextLength is the minimum character count for acquired text to
	// count as full text rather than a fragment (default 500).
	MinTextLength int `json:"min_text_length" yaml:"min_text_length"`

	// FetchConcurrency bounds concurrent fetches in batch mode (default 4).
	FetchConcurrency int `json:"fetch_concurrency" yaml:"fetch_concurrency"`

	// StuckFetchAge is how long a document may sit in the fetching state
	// before reconciliation marks it failed (default 10m).
	StuckFetchAge time.Duration `json:"stuck_fetch_age" yaml:"stuck_fetch_age"`

	// UnpaywallEmail identifies the caller to the open-access resolver.
	UnpaywallEmail string `json:"unpaywall_email,omitempty" yaml:"unpaywall_email,omitempty"`

	// NCBIAPIKey is an optional key for higher PMC rate limits.
	NCBIAPIKey string `json:"ncbi_api_key,omitempty" yaml:"ncbi_api_key,omitempty"`

	// PDFServiceURL is the base URL of the PDF text-extraction service.
	PDFServiceURL string `json:"pdf_service_url,omitempty" yaml:"pdf_service_url,omitempty"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// ExtractionConfig holds settings for the batch extraction stage.
// Per prd003-extraction R5.1-R5.4.
type ExtractionConfig struct {
	AIConfig `yaml:",inline"`

	// MaxConcurrent bounds in-flight extraction calls (default 3).
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`

	// RequestsPerSecond rate-limits extraction calls (default 1.0).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
}

// ThemesConfig holds settings for the deduplication and merge stage.
// Per prd004-themes R5.1-R5.3.
type ThemesConfig struct {
	// DeduplicationThreshold is the default label-similarity acceptance
	// threshold when the request does not set one (default 0.75). Tunable,
	// not derivable from first principles; validate empirically before
	// changing.
	DeduplicationThreshold float64 `json:"deduplication_threshold" yaml:"deduplication_threshold"`

	// MaxExcerptsPerSource bounds supporting excerpts kept per theme source
	// (default 3).
	MaxExcerptsPerSource int `json:"max_excerpts_per_source" yaml:"max_excerpts_per_source"`
}

// ClusterConfig holds settings for the breadth-maximizing clustering stage.
// Per prd005-clustering R5.1-R5.5.
type ClusterConfig struct {
	AIConfig `yaml:",inline"`

	// ConvergenceEpsilon stops iteration when the largest centroid movement
	// falls below it (default 0.001).
	ConvergenceEpsilon float64 `json:"convergence_epsilon" yaml:"convergence_epsilon"`

	// MaxIterations caps the k-means loop (default 50).
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// MaxInterClusterSimilarity triggers the diversity post-pass: cluster
	// pairs with centroid cosine similarity above it are merged (default 0.85).
	MaxInterClusterSimilarity float64 `json:"max_inter_cluster_similarity" yaml:"max_inter_cluster_similarity"`

	// Seed fixes the seeding order for reproducible runs (default 1).
	Seed int64 `json:"seed" yaml:"seed"`

	// EmbeddingServiceURL is the base URL of the embedding service.
	EmbeddingServiceURL string `json:"embedding_service_url,omitempty" yaml:"embedding_service_url,omitempty"`
}

// StoreConfig holds settings for the local document and theme store.
// Per prd007-store R1.1-R1.3.
type StoreConfig struct {
	// DBPath is the SQLite database file path (default "theme-engine.db").
	DBPath string `json:"db_path" yaml:"db_path"`

	// RunsDir is the directory for run snapshots (default "runs").
	RunsDir string `json:"runs_dir" yaml:"runs_dir"`

	// ThemesDir is the directory for theme exports (default "themes").
	ThemesDir string `json:"themes_dir" yaml:"themes_dir"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Rank       RankConfig       `json:"rank" yaml:"rank"`
	FullText   FullTextConfig   `json:"fulltext" yaml:"fulltext"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`
	Themes     ThemesConfig     `json:"themes" yaml:"themes"`
	Cluster    ClusterConfig    `json:"cluster" yaml:"cluster"`
	Store      StoreConfig      `json:"store" yaml:"store"`
}
