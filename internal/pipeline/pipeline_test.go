// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdiddy/theme-engine/internal/cluster"
	"github.com/pdiddy/theme-engine/internal/extraction"
	"github.com/pdiddy/theme-engine/internal/logging"
	"github.com/pdiddy/theme-engine/internal/progress"
	"github.com/pdiddy/theme-engine/pkg/types"
)

// --- test doubles ---

type stubBackend struct {
	extract  map[string]extraction.RawExtraction
	failWith map[string]error
}

func (b *stubBackend) ExtractSource(ctx context.Context, src types.SourceDescriptor) (extraction.RawExtraction, error) {
	if err, ok := b.failWith[src.ID]; ok {
		return extraction.RawExtraction{}, err
	}
	return b.extract[src.ID], nil
}

// stubEmbedder assigns each text a one-hot vector chosen by keyword, so
// clustering separates them deterministically.
type stubEmbedder struct {
	dim  int
	axis map[string]int // substring -> axis index
}

func (e *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dim)
		for needle, axis := range e.axis {
			if strings.Contains(text, needle) {
				vec[axis] = 1
			}
		}
		out[i] = vec
	}
	return out, nil
}

type stubLabeler struct {
	fail bool
}

func (l *stubLabeler) Label(ctx context.Context, codes []types.Code) (cluster.ThemeLabel, error) {
	if l.fail {
		return cluster.ThemeLabel{}, errors.New("labeling capability down")
	}
	return cluster.ThemeLabel{
		Label:      "Cluster of " + codes[0].Text,
		Keywords:   []string{"keyword"},
		Confidence: 0.9,
	}, nil
}

func testConfig(t *testing.T) types.PipelineConfig {
	t.Helper()
	return types.PipelineConfig{
		Themes: types.ThemesConfig{DeduplicationThreshold: 0.75, MaxExcerptsPerSource: 3},
		Cluster: types.ClusterConfig{
			ConvergenceEpsilon:        0.001,
			MaxIterations:             50,
			MaxInterClusterSimilarity: 0.85,
			Seed:                      1,
		},
		Store: types.StoreConfig{RunsDir: filepath.Join(t.TempDir(), "runs")},
	}
}

func sleepStressSources() ([]types.SourceDescriptor, *stubBackend) {
	sources := []types.SourceDescriptor{
		{ID: "paper-1", Type: types.SourcePaper, Title: "Stress and Sleep", Content: "...", Keywords: []string{"sleep", "stress"}},
		{ID: "video-1", Type: types.SourceVideo, Title: "Managing Stress", Content: "...", Keywords: []string{"stress", "anxiety"}},
		{ID: "pod-1", Type: types.SourcePodcast, Title: "Sleep Science", Content: "...", Keywords: []string{"sleep"}},
	}
	backend := &stubBackend{extract: map[string]extraction.RawExtraction{
		"paper-1": {
			Codes: []string{"stress disrupts sleep architecture"},
			Themes: []types.RawTheme{{
				Label: "Stress and Sleep", Keywords: []string{"sleep", "stress"},
				Weight: 0.8, Confidence: 0.9,
			}},
		},
		"video-1": {
			Codes: []string{"chronic stress drives anxiety"},
			Themes: []types.RawTheme{{
				Label: "Sleep and Stress", Keywords: []string{"stress", "anxiety"},
				Weight: 0.7, Confidence: 0.8,
			}},
		},
		"pod-1": {
			Codes: []string{"sleep debt accumulates under stress"},
			Themes: []types.RawTheme{{
				Label: "Stress and Sleep", Keywords: []string{"sleep"},
				Weight: 0.6, Confidence: 0.85,
			}},
		},
	}}
	return sources, backend
}

// --- merge path ---

func TestRunMergePathEndToEnd(t *testing.T) {
	sources, backend := sleepStressSources()
	cfg := testConfig(t)
	p := New(cfg, backend, nil, nil, nil, logging.Discard())

	sink := &progress.CollectSink{}
	reporter := progress.NewReporter(sink, logging.Discard())

	resp, err := p.Run(context.Background(), types.ExtractionRequest{
		Sources: sources,
		Options: types.ExtractionOptions{DeduplicationThreshold: 0.75, IncludeProvenance: true},
	}, reporter)
	if err != nil {
		t.Fatal(err)
	}

	if len(resp.Themes) != 1 {
		t.Fatalf("themes = %d, want 1 unified theme", len(resp.Themes))
	}
	theme := resp.Themes[0]
	if len(theme.Sources) != 3 {
		t.Fatalf("theme sources = %d, want 3", len(theme.Sources))
	}
	wantKeywords := map[string]bool{"sleep": true, "stress": true, "anxiety": true}
	if len(theme.Keywords) != len(wantKeywords) {
		t.Errorf("keywords = %v, want sleep/stress/anxiety", theme.Keywords)
	}
	for _, kw := range theme.Keywords {
		if !wantKeywords[kw] {
			t.Errorf("unexpected keyword %q", kw)
		}
	}
	if theme.Provenance.PaperCount != 1 || theme.Provenance.VideoCount != 1 || theme.Provenance.PodcastCount != 1 {
		t.Errorf("provenance counts = %+v, want 1/1/1", theme.Provenance)
	}

	if resp.Stats.SourcesAnalyzed != 3 {
		t.Errorf("sources analyzed = %d, want 3", resp.Stats.SourcesAnalyzed)
	}
	if resp.Stats.CodesGenerated != 3 {
		t.Errorf("codes = %d, want 3", resp.Stats.CodesGenerated)
	}
	if resp.Stats.ThemesIdentified != 1 {
		t.Errorf("themes identified = %d, want 1", resp.Stats.ThemesIdentified)
	}
	if resp.Stats.DurationMs < 0 {
		t.Errorf("duration = %d", resp.Stats.DurationMs)
	}

	updates := sink.Updates()
	if len(updates) == 0 {
		t.Fatal("no progress updates emitted")
	}
	last := updates[len(updates)-1]
	if last.StageNumber != int(progress.Terminal) {
		t.Errorf("final update stage = %d, want terminal %d", last.StageNumber, int(progress.Terminal))
	}
	if last.LiveStats.ThemesIdentified != 1 {
		t.Errorf("final live stats themes = %d, want 1", last.LiveStats.ThemesIdentified)
	}

	// snapshot written at the terminal stage
	snap, err := LoadSnapshot(cfg.Store.RunsDir, reporter.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Themes) != 1 || len(snap.SourceIDs) != 3 {
		t.Errorf("snapshot themes = %d sources = %d, want 1/3", len(snap.Themes), len(snap.SourceIDs))
	}
}

func TestRunPartialExtractionFailure(t *testing.T) {
	sources, backend := sleepStressSources()
	backend.failWith = map[string]error{"video-1": errors.New("capability refused")}

	p := New(testConfig(t), backend, nil, nil, nil, logging.Discard())
	reporter := progress.NewReporter(&progress.CollectSink{}, logging.Discard())

	resp, err := p.Run(context.Background(), types.ExtractionRequest{Sources: sources}, reporter)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Stats.SourcesAnalyzed != 2 {
		t.Errorf("sources analyzed = %d, want 2", resp.Stats.SourcesAnalyzed)
	}
	if resp.Stats.ExtractionFailures != 1 {
		t.Errorf("extraction failures = %d, want 1", resp.Stats.ExtractionFailures)
	}
	if !resp.Stats.HasFailures() {
		t.Error("HasFailures must report the failed source")
	}
	if len(resp.Themes) != 1 {
		t.Errorf("themes = %d, surviving sources still merge", len(resp.Themes))
	}
}

func TestRunCarriesFetchFailures(t *testing.T) {
	sources, backend := sleepStressSources()

	p := New(testConfig(t), backend, nil, nil, nil, logging.Discard())
	reporter := progress.NewReporter(&progress.CollectSink{}, logging.Discard())

	resp, err := p.Run(context.Background(), types.ExtractionRequest{
		Sources:       sources,
		FetchFailures: 2,
	}, reporter)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Stats.FetchFailures != 2 {
		t.Errorf("fetch failures = %d, want 2 carried through from the request", resp.Stats.FetchFailures)
	}
	if !resp.Stats.HasFailures() {
		t.Error("HasFailures must report fetch-stage casualties")
	}
	if resp.Stats.ExtractionFailures != 0 {
		t.Errorf("extraction failures = %d, fetch casualties must not leak into the extraction count", resp.Stats.ExtractionFailures)
	}
}

func TestRunMinConfidenceFilter(t *testing.T) {
	sources, backend := sleepStressSources()
	// video-1's theme has confidence 0.8; a floor above it drops the theme
	p := New(testConfig(t), backend, nil, nil, nil, logging.Discard())
	reporter := progress.NewReporter(&progress.CollectSink{}, logging.Discard())

	resp, err := p.Run(context.Background(), types.ExtractionRequest{
		Sources: sources,
		Options: types.ExtractionOptions{MinConfidence: 0.82, DeduplicationThreshold: 0.75},
	}, reporter)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Themes) != 1 {
		t.Fatalf("themes = %d, want 1", len(resp.Themes))
	}
	for _, src := range resp.Themes[0].Sources {
		if src.SourceID == "video-1" {
			t.Error("low-confidence theme from video-1 survived the filter")
		}
	}
}

// --- validation ---

func TestRunValidation(t *testing.T) {
	p := New(testConfig(t), &stubBackend{}, nil, nil, nil, logging.Discard())

	cases := []struct {
		name string
		req  types.ExtractionRequest
		want string
	}{
		{
			name: "no sources",
			req:  types.ExtractionRequest{},
			want: "no sources",
		},
		{
			name: "min confidence out of range",
			req: types.ExtractionRequest{
				Sources: []types.SourceDescriptor{{ID: "a"}},
				Options: types.ExtractionOptions{MinConfidence: 1.5},
			},
			want: "min_confidence",
		},
		{
			name: "threshold out of range",
			req: types.ExtractionRequest{
				Sources: []types.SourceDescriptor{{ID: "a"}},
				Options: types.ExtractionOptions{DeduplicationThreshold: -0.1},
			},
			want: "deduplication_threshold",
		},
		{
			name: "negative target count",
			req: types.ExtractionRequest{
				Sources: []types.SourceDescriptor{{ID: "a"}},
				Options: types.ExtractionOptions{TargetThemeCount: -3},
			},
			want: "target_theme_count",
		},
		{
			name: "source without id",
			req: types.ExtractionRequest{
				Sources: []types.SourceDescriptor{{Title: "untitled"}},
			},
			want: "has no id",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reporter := progress.NewReporter(&progress.CollectSink{}, logging.Discard())
			_, err := p.Run(context.Background(), tc.req, reporter)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

// --- clustering path ---

func TestRunClusteringPath(t *testing.T) {
	sources := []types.SourceDescriptor{
		{ID: "paper-1", Type: types.SourcePaper, Title: "Sleep Research", Content: "..."},
		{ID: "paper-2", Type: types.SourcePaper, Title: "Diet Research", Content: "..."},
	}
	backend := &stubBackend{extract: map[string]extraction.RawExtraction{
		"paper-1": {Codes: []string{"sleep improves recall", "sleep consolidates memory"}},
		"paper-2": {Codes: []string{"diet affects cholesterol", "diet shapes gut flora"}},
	}}
	embedder := &stubEmbedder{dim: 8, axis: map[string]int{"sleep": 0, "diet": 3}}

	p := New(testConfig(t), backend, embedder, &stubLabeler{}, nil, logging.Discard())
	reporter := progress.NewReporter(&progress.CollectSink{}, logging.Discard())

	resp, err := p.Run(context.Background(), types.ExtractionRequest{
		Sources: sources,
		Options: types.ExtractionOptions{TargetThemeCount: 2},
	}, reporter)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Themes) != 2 {
		t.Fatalf("themes = %d, want 2 clusters", len(resp.Themes))
	}
	if resp.Stats.LabelingFallbacks != 0 {
		t.Errorf("labeling fallbacks = %d, want 0", resp.Stats.LabelingFallbacks)
	}
	for _, theme := range resp.Themes {
		if len(theme.Sources) != 1 {
			t.Errorf("theme %q sources = %d, want 1 per axis", theme.Label, len(theme.Sources))
		}
	}
}

func TestRunClusteringLabelerFallback(t *testing.T) {
	sources := []types.SourceDescriptor{
		{ID: "paper-1", Type: types.SourcePaper, Title: "Sleep Research", Content: "..."},
	}
	backend := &stubBackend{extract: map[string]extraction.RawExtraction{
		"paper-1": {Codes: []string{"sleep improves recall", "sleep consolidates memory"}},
	}}
	embedder := &stubEmbedder{dim: 4, axis: map[string]int{"sleep": 0}}

	p := New(testConfig(t), backend, embedder, &stubLabeler{fail: true}, nil, logging.Discard())
	reporter := progress.NewReporter(&progress.CollectSink{}, logging.Discard())

	resp, err := p.Run(context.Background(), types.ExtractionRequest{
		Sources: sources,
		Options: types.ExtractionOptions{TargetThemeCount: 1},
	}, reporter)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Themes) != 1 {
		t.Fatalf("themes = %d, want the cluster kept under fallback labeling", len(resp.Themes))
	}
	if resp.Stats.LabelingFallbacks != 1 {
		t.Errorf("labeling fallbacks = %d, want 1", resp.Stats.LabelingFallbacks)
	}
}

func TestRunClusteringWithoutEmbedderUsesMerge(t *testing.T) {
	sources, backend := sleepStressSources()
	p := New(testConfig(t), backend, nil, nil, nil, logging.Discard())
	reporter := progress.NewReporter(&progress.CollectSink{}, logging.Discard())

	resp, err := p.Run(context.Background(), types.ExtractionRequest{
		Sources: sources,
		Options: types.ExtractionOptions{TargetThemeCount: 5, DeduplicationThreshold: 0.75},
	}, reporter)
	if err != nil {
		t.Fatal(err)
	}
	// no embedder: target count is ignored and the merge path runs
	if len(resp.Themes) != 1 {
		t.Fatalf("themes = %d, want 1 via merge path", len(resp.Themes))
	}
}

// --- snapshots ---

func TestSnapshotRoundTrip(t *testing.T) {
	runsDir := filepath.Join(t.TempDir(), "runs")
	snap := &RunSnapshot{
		RunID:     "run-1",
		Options:   types.ExtractionOptions{DeduplicationThreshold: 0.75},
		SourceIDs: []string{"a", "b"},
		Themes:    []types.UnifiedTheme{{ID: "t-1", Label: "Sleep and Stress"}},
		Stats:     types.RunStats{SourcesAnalyzed: 2, CodesGenerated: 7, ThemesIdentified: 1},
		LiveStats: types.LiveStats{CurrentOperation: "transient, must not persist"},
		InFlight:  3,
	}
	if err := SaveSnapshot(runsDir, snap); err != nil {
		t.Fatal(err)
	}

	got, err := LoadSnapshot(runsDir, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != SnapshotVersion {
		t.Errorf("version = %d, want %d", got.Version, SnapshotVersion)
	}
	if len(got.Themes) != 1 || got.Themes[0].Label != "Sleep and Stress" {
		t.Errorf("themes = %+v", got.Themes)
	}
	// transient fields rebuilt, not restored
	if got.LiveStats.CurrentOperation != "" {
		t.Errorf("transient operation persisted: %q", got.LiveStats.CurrentOperation)
	}
	if got.InFlight != 0 {
		t.Errorf("in-flight counter persisted: %d", got.InFlight)
	}
	// live counters rebuilt from persisted stats
	if got.LiveStats.CodesGenerated != 7 {
		t.Errorf("rebuilt codes counter = %d, want 7", got.LiveStats.CodesGenerated)
	}
}

func TestLoadSnapshotRejectsWrongVersion(t *testing.T) {
	runsDir := t.TempDir()
	snap := &RunSnapshot{RunID: "run-1"}
	if err := SaveSnapshot(runsDir, snap); err != nil {
		t.Fatal(err)
	}

	// rewrite with a future version
	data := fmt.Sprintf("version: %d\nrun_id: run-1\n", SnapshotVersion+1)
	path := filepath.Join(runsDir, "run-1.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadSnapshot(runsDir, "run-1")
	if err == nil || !strings.Contains(err.Error(), "version") {
		t.Fatalf("err = %v, want version mismatch", err)
	}
}

func TestListSnapshots(t *testing.T) {
	runsDir := t.TempDir()
	for _, id := range []string{"run-a", "run-b"} {
		if err := SaveSnapshot(runsDir, &RunSnapshot{RunID: id}); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := ListSnapshots(runsDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids = %v, want 2", ids)
	}

	empty, err := ListSnapshots(filepath.Join(runsDir, "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("ids from missing dir = %v, want none", empty)
	}
}
