// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"
	"golang.org/x/time/rate"

	"github.com/pdiddy/theme-engine/internal/cluster"
	"github.com/pdiddy/theme-engine/internal/extraction"
	"github.com/pdiddy/theme-engine/internal/logging"
	"github.com/pdiddy/theme-engine/internal/pipeline"
	"github.com/pdiddy/theme-engine/internal/progress"
	"github.com/pdiddy/theme-engine/internal/rank"
	"github.com/pdiddy/theme-engine/internal/store"
	"github.com/pdiddy/theme-engine/pkg/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract [sources.yaml]",
	Short: "Extract and unify themes from a set of sources",
	Long: `Extract runs the theme pipeline over a sources file: each source is
coded by the extraction capability, raw themes are deduplicated into unified
themes with provenance, and the run is saved to the store with a snapshot.

Sources can come from a YAML file of descriptors or, with --pool, from a
ranked pool file whose fetched full text becomes paper content. Sources
already covered by the most recent run are skipped unless --force.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().String("pool", "", "build paper sources from a ranked pool file")
	extractCmd.Flags().Float64("min-confidence", 0, "drop raw themes below this extraction confidence")
	extractCmd.Flags().Float64("dedup-threshold", 0, "label similarity threshold for merging (0 = config default)")
	extractCmd.Flags().Bool("provenance", true, "compute per-theme provenance statistics")
	extractCmd.Flags().Int("target-themes", 0, "cluster codes into this many themes instead of merging (needs embedding service)")
	extractCmd.Flags().Bool("force", false, "re-extract sources already covered by the latest run")
	extractCmd.Flags().String("progress", "", "write JSONL progress updates to this file")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	sources, fetchFailures, err := loadSources(cmd, args)
	if err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	if !force {
		sources, err = skipCoveredSources(sources)
		if err != nil {
			return err
		}
	}
	if len(sources) == 0 {
		fmt.Println("All sources already covered by the latest run; use --force to re-extract.")
		return nil
	}

	apiKey := secretDefault("anthropic-api-key", viper.GetString("extraction.api_key"))
	if apiKey == "" {
		return fmt.Errorf("no Anthropic API key: set .secrets/anthropic-api-key or extraction.api_key")
	}

	cfg := pipelineConfigFromViper()
	log := logging.New("extract")

	rps := cfg.Extraction.RequestsPerSecond
	if rps <= 0 {
		rps = 1.0
	}
	backend := &extraction.ClaudeBackend{
		APIKey:  apiKey,
		Model:   cfg.Extraction.Model,
		Client:  &http.Client{Timeout: 120 * time.Second},
		Limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}

	var embedder cluster.Embedder
	var labeler cluster.Labeler
	targetThemes, _ := cmd.Flags().GetInt("target-themes")
	if targetThemes > 0 {
		embedURL := cfg.Cluster.EmbeddingServiceURL
		if embedURL == "" {
			return fmt.Errorf("--target-themes needs cluster.embedding_service_url configured")
		}
		embedder = &cluster.HTTPEmbedder{
			BaseURL: embedURL,
			Model:   cfg.Cluster.Model,
			APIKey:  secretDefault("embedding-api-key", cfg.Cluster.APIKey),
			Client:  &http.Client{Timeout: 60 * time.Second},
		}
		labeler = &cluster.ClaudeLabeler{
			APIKey: apiKey,
			Model:  cfg.Extraction.Model,
			Client: &http.Client{Timeout: 60 * time.Second},
		}
	}

	st, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	sink, closeSink, err := progressSink(cmd)
	if err != nil {
		return err
	}
	defer closeSink()
	reporter := progress.NewReporter(sink, log)

	minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")
	dedupThreshold, _ := cmd.Flags().GetFloat64("dedup-threshold")
	provenance, _ := cmd.Flags().GetBool("provenance")

	p := pipeline.New(cfg, backend, embedder, labeler, st, log)
	resp, err := p.Run(context.Background(), types.ExtractionRequest{
		Sources: sources,
		Options: types.ExtractionOptions{
			MinConfidence:          minConfidence,
			DeduplicationThreshold: dedupThreshold,
			IncludeProvenance:      provenance,
			TargetThemeCount:       targetThemes,
		},
		FetchFailures: fetchFailures,
	}, reporter)
	if err != nil {
		return err
	}

	printRunSummary(&resp, reporter.RunID())
	if resp.Stats.ExtractionFailures > 0 {
		return fmt.Errorf("%d source(s) failed extraction", resp.Stats.ExtractionFailures)
	}
	return nil
}

// loadSources reads source descriptors from the positional YAML file or
// builds paper descriptors from a ranked pool file's fetched documents.
// The second return value counts fetch-stage casualties on the pool path:
// documents dropped for having no text at all plus documents degraded to
// their abstract.
func loadSources(cmd *cobra.Command, args []string) ([]types.SourceDescriptor, int, error) {
	poolPath, _ := cmd.Flags().GetString("pool")
	if poolPath != "" {
		pool, err := rank.ReadPoolFile(poolPath)
		if err != nil {
			return nil, 0, err
		}
		docs := pool.Documents
		if len(pool.Ranked) > 0 {
			docs = docs[:0:0]
			for _, sd := range pool.Ranked {
				docs = append(docs, sd.Document)
			}
		}
		sources, fetchFailures := sourcesFromPool(docs)
		if len(sources) == 0 {
			return nil, 0, fmt.Errorf("pool file %s has no documents with text", poolPath)
		}
		return sources, fetchFailures, nil
	}

	if len(args) != 1 {
		return nil, 0, fmt.Errorf("provide a sources file or --pool")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, 0, fmt.Errorf("reading sources file: %w", err)
	}
	var sources []types.SourceDescriptor
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return nil, 0, fmt.Errorf("parsing sources file: %w", err)
	}
	if len(sources) == 0 {
		return nil, 0, fmt.Errorf("sources file %s is empty", args[0])
	}
	return sources, 0, nil
}

// sourcesFromPool turns pool documents into paper descriptors, counting
// every document whose full-text acquisition failed: abstract fallbacks
// proceed degraded, documents with no text at all are dropped with a
// printed line. Both count, so the run stats account for every candidate.
func sourcesFromPool(docs []types.Document) ([]types.SourceDescriptor, int) {
	var sources []types.SourceDescriptor
	fetchFailures := 0
	for _, doc := range docs {
		content := doc.FullText
		if content == "" {
			// abstract fallback for documents the waterfall could not serve
			content = doc.Abstract
			fetchFailures++
		}
		if content == "" {
			fmt.Printf("dropped %s: no full text and no abstract\n", doc.ID)
			continue
		}
		sources = append(sources, types.SourceDescriptor{
			ID:       doc.ID,
			Type:     types.SourcePaper,
			Title:    doc.Title,
			Content:  content,
			Keywords: doc.Keywords,
			Metadata: types.SourceMetadata{
				DOI:     doc.ExternalIDs.DOI,
				Authors: doc.Authors,
				Year:    doc.Year,
				Venue:   doc.Venue,
				URL:     doc.URL,
			},
		})
	}
	return sources, fetchFailures
}

// skipCoveredSources drops sources already present in the most recent run
// snapshot, printing one line per skip.
func skipCoveredSources(sources []types.SourceDescriptor) ([]types.SourceDescriptor, error) {
	runsDir := storeConfig().RunsDir
	ids, err := pipeline.ListSnapshots(runsDir)
	if err != nil || len(ids) == 0 {
		return sources, nil
	}
	snap, err := pipeline.LoadSnapshot(runsDir, ids[0])
	if err != nil {
		// unreadable snapshot never blocks a new run
		return sources, nil
	}

	covered := make(map[string]bool, len(snap.SourceIDs))
	for _, id := range snap.SourceIDs {
		covered[id] = true
	}

	kept := sources[:0:0]
	for _, src := range sources {
		if covered[src.ID] {
			fmt.Printf("skipped %s (in run %s)\n", src.ID, snap.RunID)
			continue
		}
		kept = append(kept, src)
	}
	return kept, nil
}

func progressSink(cmd *cobra.Command) (progress.Sink, func(), error) {
	path, _ := cmd.Flags().GetString("progress")
	if path == "" {
		return progress.LogSink{Log: logging.New("progress")}, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating progress file: %w", err)
	}
	return progress.NewJSONLSink(f, logging.New("progress")), func() { f.Close() }, nil
}

func pipelineConfigFromViper() types.PipelineConfig {
	return types.PipelineConfig{
		Extraction: types.ExtractionConfig{
			AIConfig: types.AIConfig{
				Model:      viper.GetString("extraction.model"),
				MaxRetries: viper.GetInt("extraction.max_retries"),
			},
			MaxConcurrent:     viper.GetInt("extraction.max_concurrent"),
			RequestsPerSecond: viper.GetFloat64("extraction.requests_per_second"),
		},
		Themes: types.ThemesConfig{
			DeduplicationThreshold: viper.GetFloat64("themes.deduplication_threshold"),
			MaxExcerptsPerSource:   viper.GetInt("themes.max_excerpts_per_source"),
		},
		Cluster: types.ClusterConfig{
			AIConfig: types.AIConfig{
				Model:  viper.GetString("cluster.model"),
				APIKey: viper.GetString("cluster.api_key"),
			},
			ConvergenceEpsilon:        viper.GetFloat64("cluster.convergence_epsilon"),
			MaxIterations:             viper.GetInt("cluster.max_iterations"),
			MaxInterClusterSimilarity: viper.GetFloat64("cluster.max_inter_cluster_similarity"),
			Seed:                      viper.GetInt64("cluster.seed"),
			EmbeddingServiceURL:       viper.GetString("cluster.embedding_service_url"),
		},
		Store: storeConfig(),
	}
}

func printRunSummary(resp *types.ExtractionResponse, runID string) {
	fmt.Printf("\nRun %s\n", runID)
	fmt.Printf("  sources analyzed:  %d\n", resp.Stats.SourcesAnalyzed)
	fmt.Printf("  codes generated:   %d\n", resp.Stats.CodesGenerated)
	fmt.Printf("  themes identified: %d\n", resp.Stats.ThemesIdentified)
	fmt.Printf("  duration:          %dms\n", resp.Stats.DurationMs)
	if resp.Stats.FetchFailures > 0 {
		fmt.Printf("  fetch failures:      %d\n", resp.Stats.FetchFailures)
	}
	if resp.Stats.ExtractionFailures > 0 {
		fmt.Printf("  extraction failures: %d\n", resp.Stats.ExtractionFailures)
	}
	if resp.Stats.LabelingFallbacks > 0 {
		fmt.Printf("  labeling fallbacks:  %d\n", resp.Stats.LabelingFallbacks)
	}
	if resp.Stats.MalformedSkipped > 0 {
		fmt.Printf("  malformed skipped:   %d\n", resp.Stats.MalformedSkipped)
	}
	if resp.Stats.Cancelled {
		fmt.Println("  run cancelled: results are partial")
	}
	for _, theme := range resp.Themes {
		fmt.Printf("  - %-40s  weight %.2f  confidence %.2f  sources %d\n",
			truncateLabel(theme.Label, 40), theme.Weight, theme.Confidence, len(theme.Sources))
	}
}

func truncateLabel(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
