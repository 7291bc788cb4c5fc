// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline orchestrates one extraction run: validation, per-source
// code extraction, theme unification, and the final response.
// Implements: prd003-extraction (R3), prd004-themes (R4), prd006-progress (R1);
//
//	docs/ARCHITECTURE § Pipeline Interface.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdiddy/theme-engine/internal/cluster"
	"github.com/pdiddy/theme-engine/internal/extraction"
	"github.com/pdiddy/theme-engine/internal/progress"
	"github.com/pdiddy/theme-engine/internal/store"
	"github.com/pdiddy/theme-engine/internal/themes"
	"github.com/pdiddy/theme-engine/pkg/types"
)

// Pipeline wires the run stages together. All capabilities are injected at
// construction; a nil embedder disables the clustering path and a nil store
// disables persistence.
type Pipeline struct {
	cfg      types.PipelineConfig
	backend  extraction.Backend
	embedder cluster.Embedder
	labeler  cluster.Labeler
	store    *store.Store
	log      *slog.Logger
}

// New builds a pipeline.
func New(cfg types.PipelineConfig, backend extraction.Backend, embedder cluster.Embedder, labeler cluster.Labeler, st *store.Store, log *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		backend:  backend,
		embedder: embedder,
		labeler:  labeler,
		store:    st,
		log:      log,
	}
}

func validateRequest(req *types.ExtractionRequest) error {
	if len(req.Sources) == 0 {
		return fmt.Errorf("request has no sources")
	}
	opts := req.Options
	if opts.MinConfidence < 0 || opts.MinConfidence > 1 {
		return fmt.Errorf("min_confidence %v out of range [0,1]", opts.MinConfidence)
	}
	if opts.DeduplicationThreshold < 0 || opts.DeduplicationThreshold > 1 {
		return fmt.Errorf("deduplication_threshold %v out of range [0,1]", opts.DeduplicationThreshold)
	}
	if opts.TargetThemeCount < 0 {
		return fmt.Errorf("target_theme_count %d must not be negative", opts.TargetThemeCount)
	}
	for i, src := range req.Sources {
		if src.ID == "" {
			return fmt.Errorf("source %d has no id", i)
		}
	}
	return nil
}

// Run executes one extraction run end to end. Per-source failures never
// abort the run; they are collected into the response stats. Cancellation
// yields a partial response with the Cancelled flag set rather than an
// error, so callers always get the stats describing what did complete.
func (p *Pipeline) Run(ctx context.Context, req types.ExtractionRequest, reporter *progress.Reporter) (types.ExtractionResponse, error) {
	start := time.Now()

	reporter.Emit(progress.StagePreparing, 0, types.LiveStats{})
	if err := validateRequest(&req); err != nil {
		return types.ExtractionResponse{}, fmt.Errorf("validating request: %w", err)
	}
	reporter.Emit(progress.StagePreparing, 100, types.LiveStats{})

	// Content arrives on the descriptors; familiarization here is a
	// bookkeeping pass, the heavy fetch work happens upstream.
	reporter.Emit(progress.StageFamiliarization, 100, types.LiveStats{})

	batch := extraction.ExtractBatch(ctx, req.Sources, p.backend, extraction.BatchOptions{
		MaxConcurrent: p.cfg.Extraction.MaxConcurrent,
		MaxRetries:    p.cfg.Extraction.MaxRetries,
	}, reporter, p.log)

	stats := types.RunStats{
		SourcesAnalyzed:    batch.Stats.Succeeded,
		CodesGenerated:     batch.Stats.CodesGenerated,
		FetchFailures:      req.FetchFailures,
		ExtractionFailures: batch.Stats.Failed,
		Cancelled:          batch.Stats.Cancelled,
	}

	live := types.LiveStats{
		SourcesAnalyzed: stats.SourcesAnalyzed,
		CodesGenerated:  stats.CodesGenerated,
	}

	var (
		unified []types.UnifiedTheme
		err     error
	)
	if req.Options.TargetThemeCount > 0 && p.embedder != nil {
		unified, err = p.clusterThemes(ctx, batch.Results, req.Options, reporter, live, &stats)
		if err != nil {
			return types.ExtractionResponse{}, err
		}
	} else {
		unified = p.mergeThemes(batch.Results, req.Options, reporter, live, &stats)
	}

	stats.ThemesIdentified = len(unified)
	stats.DurationMs = time.Since(start).Milliseconds()
	live.ThemesIdentified = len(unified)

	reporter.Emit(progress.StageThemeRefinement, 100, live)

	resp := types.ExtractionResponse{Themes: unified, Stats: stats}
	p.persist(ctx, reporter.RunID(), &req, &resp)
	reporter.Complete(live)
	return resp, nil
}

// mergeThemes runs the incremental merge path over extracted raw themes,
// applying the confidence floor before merging.
func (p *Pipeline) mergeThemes(results []extraction.SourceResult, opts types.ExtractionOptions, reporter *progress.Reporter, live types.LiveStats, stats *types.RunStats) []types.UnifiedTheme {
	engine := themes.NewEngine(p.cfg.Themes, opts.DeduplicationThreshold, p.log)

	for i, res := range results {
		kept := make([]types.RawTheme, 0, len(res.Themes))
		for _, raw := range res.Themes {
			if raw.Confidence < opts.MinConfidence {
				continue
			}
			kept = append(kept, raw)
		}
		engine.Merge(themes.SourceGroup{Source: res.Source, Themes: kept})

		pct := (i + 1) * 100 / len(results)
		live.CurrentOperation = fmt.Sprintf("merging: %s", res.Source.Title)
		reporter.Emit(progress.StageThemeGeneration, pct, live)
	}

	unified := engine.Finalize(opts.IncludeProvenance)
	stats.MalformedSkipped = engine.MalformedSkipped()

	live.ThemesIdentified = len(unified)
	live.CurrentOperation = ""
	reporter.Emit(progress.StageThemeReview, 100, live)
	return unified
}

// clusterThemes runs the breadth-maximizing path: embed every code, cluster,
// and label. Embedding or dimension problems are run-level failures.
func (p *Pipeline) clusterThemes(ctx context.Context, results []extraction.SourceResult, opts types.ExtractionOptions, reporter *progress.Reporter, live types.LiveStats, stats *types.RunStats) ([]types.UnifiedTheme, error) {
	var codes []types.Code
	sources := make(map[string]types.SourceDescriptor, len(results))
	for _, res := range results {
		sources[res.Source.ID] = res.Source
		codes = append(codes, res.Codes...)
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("clustering requested but extraction produced no codes")
	}

	texts := make([]string, len(codes))
	for i, c := range codes {
		texts[i] = c.Text
	}
	live.CurrentOperation = "embedding codes"
	reporter.Emit(progress.StageThemeGeneration, 0, live)

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding codes: %w", err)
	}
	if len(vectors) != len(codes) {
		return nil, fmt.Errorf("embedding returned %d vectors for %d codes", len(vectors), len(codes))
	}
	for i := range codes {
		codes[i].Embedding = vectors[i]
	}

	live.CurrentOperation = "clustering codes"
	reporter.Emit(progress.StageThemeGeneration, 50, live)

	cp := cluster.NewPipeline(p.cfg.Cluster, p.labeler, p.log)
	result, err := cp.Cluster(ctx, codes, sources, opts.TargetThemeCount)
	if err != nil {
		return nil, fmt.Errorf("clustering codes: %w", err)
	}
	stats.LabelingFallbacks = result.LabelingFallbacks

	live.ThemesIdentified = len(result.Themes)
	live.CurrentOperation = ""
	reporter.Emit(progress.StageThemeReview, 100, live)
	return result.Themes, nil
}

// persist writes the run snapshot and, when a store is attached, the run
// record. Persistence failures are logged, never fatal: the response is
// already computed and the caller gets it regardless.
func (p *Pipeline) persist(ctx context.Context, runID string, req *types.ExtractionRequest, resp *types.ExtractionResponse) {
	sourceIDs := make([]string, len(req.Sources))
	for i, src := range req.Sources {
		sourceIDs[i] = src.ID
	}
	snap := &RunSnapshot{
		RunID:     runID,
		Options:   req.Options,
		SourceIDs: sourceIDs,
		Themes:    resp.Themes,
		Stats:     resp.Stats,
	}
	runsDir := p.cfg.Store.RunsDir
	if runsDir == "" {
		runsDir = "runs"
	}
	if err := SaveSnapshot(runsDir, snap); err != nil {
		p.log.Warn("run snapshot write failed", "run_id", runID, "error", err)
	}

	if p.store == nil {
		return
	}
	run := &store.Run{
		ID:      runID,
		Options: req.Options,
		Themes:  resp.Themes,
		Stats:   resp.Stats,
	}
	if err := p.store.SaveRun(ctx, run); err != nil {
		p.log.Warn("run persistence failed", "run_id", runID, "error", err)
	}
}
