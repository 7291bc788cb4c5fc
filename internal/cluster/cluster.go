// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cluster

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pdiddy/theme-engine/internal/themes"
	"github.com/pdiddy/theme-engine/pkg/types"
)

// Result is the clustering pipeline's output: the themes plus how many of
// them fell back to keyword labels.
type Result struct {
	Themes            []types.UnifiedTheme
	LabelingFallbacks int
}

// Pipeline clusters embedded codes into many well-separated themes.
// Construct per run; immutable after construction.
type Pipeline struct {
	cfg     types.ClusterConfig
	labeler Labeler
	log     *slog.Logger
}

// NewPipeline builds a clustering pipeline. Zero-valued tunables take the
// package defaults (R5.1-R5.4). A nil labeler is allowed: every cluster
// then gets a keyword fallback label.
func NewPipeline(cfg types.ClusterConfig, labeler Labeler, log *slog.Logger) *Pipeline {
	if cfg.ConvergenceEpsilon == 0 {
		cfg.ConvergenceEpsilon = 0.001
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 50
	}
	if cfg.MaxInterClusterSimilarity == 0 {
		cfg.MaxInterClusterSimilarity = 0.85
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	return &Pipeline{cfg: cfg, labeler: labeler, log: log}
}

// Cluster groups codes by embedding into at most targetCount themes. The
// count is a target, not a guarantee: the diversity post-pass merges
// clusters that converge too close together (R3.2). Sources of member
// codes become the theme's sources, with influence proportional to each
// source's share of the cluster.
func (p *Pipeline) Cluster(ctx context.Context, codes []types.Code, sources map[string]types.SourceDescriptor, targetCount int) (Result, error) {
	if targetCount < 1 {
		return Result{}, fmt.Errorf("target theme count must be positive, got %d", targetCount)
	}

	dim, err := DetectDimension(codes)
	if err != nil {
		return Result{}, err
	}
	p.log.Debug("detected embedding dimension", "dimension", dim)

	points := normalizeAll(codes, dim)
	if len(points) == 0 {
		return Result{}, ErrNoEmbeddings
	}

	k := targetCount
	if k > len(points) {
		k = len(points)
	}

	centroids := seedCentroids(points, k, p.cfg.Seed)
	assigned, centroids := kmeans(points, centroids, p.cfg.ConvergenceEpsilon, p.cfg.MaxIterations)
	assigned, centroids = mergeSimilar(points, assigned, centroids, p.cfg.MaxInterClusterSimilarity)

	// Group member codes per surviving cluster; empty clusters drop.
	members := make([][]types.Code, len(centroids))
	for i, pt := range points {
		members[assigned[i]] = append(members[assigned[i]], codes[pt.idx])
	}

	var result Result
	for c, group := range members {
		if len(group) == 0 {
			continue
		}

		var lbl ThemeLabel
		if p.labeler == nil {
			// no labeling capability wired: keyword labels for every cluster
			lbl = fallbackLabel(group)
			result.LabelingFallbacks++
		} else if labeled, err := p.labeler.Label(ctx, group); err != nil {
			p.log.Warn("labeling failed, falling back to keyword label",
				"cluster", c, "size", len(group), "error", err)
			lbl = fallbackLabel(group)
			result.LabelingFallbacks++
		} else {
			lbl = labeled
		}

		result.Themes = append(result.Themes, buildTheme(lbl, group, sources))
		if err := ctx.Err(); err != nil {
			return result, err
		}
	}

	sort.Slice(result.Themes, func(i, j int) bool {
		if result.Themes[i].Weight != result.Themes[j].Weight {
			return result.Themes[i].Weight > result.Themes[j].Weight
		}
		return result.Themes[i].Label < result.Themes[j].Label
	})
	return result, nil
}

// buildTheme assembles a unified theme from one labeled cluster. Each
// contributing source appears once, with influence equal to its share of
// the cluster's codes.
func buildTheme(lbl ThemeLabel, group []types.Code, sources map[string]types.SourceDescriptor) types.UnifiedTheme {
	perSource := make(map[string]int)
	var order []string
	for _, c := range group {
		if _, seen := perSource[c.SourceDocumentID]; !seen {
			order = append(order, c.SourceDocumentID)
		}
		perSource[c.SourceDocumentID]++
	}

	var themeSources []types.ThemeSource
	maxInfluence := 0.0
	for _, id := range order {
		influence := float64(perSource[id]) / float64(len(group))
		if influence > maxInfluence {
			maxInfluence = influence
		}
		ts := types.ThemeSource{
			SourceType: types.SourcePaper,
			SourceID:   id,
			Influence:  influence,
		}
		if src, ok := sources[id]; ok {
			ts.SourceType = src.Type
			ts.SourceTitle = src.Title
			ts.DOI = src.Metadata.DOI
			ts.Authors = src.Metadata.Authors
			ts.Year = src.Metadata.Year
			ts.KeywordMatches = keywordOverlap(lbl.Keywords, src.Keywords)
		}
		themeSources = append(themeSources, ts)
	}

	keywords := dedupeKeywords(lbl.Keywords)
	chain := []string{fmt.Sprintf("clustered %d codes from %d sources into %q",
		len(group), len(themeSources), lbl.Label)}

	return types.UnifiedTheme{
		ID:          clusterThemeID(lbl.Label),
		Label:       lbl.Label,
		Description: lbl.Description,
		Keywords:    keywords,
		Weight:      maxInfluence,
		Confidence:  lbl.Confidence,
		Sources:     themeSources,
		Provenance:  themes.BuildProvenance(themeSources, lbl.Confidence, chain),
	}
}

func keywordOverlap(themeKeywords, sourceKeywords []string) int {
	set := make(map[string]struct{}, len(themeKeywords))
	for _, kw := range themeKeywords {
		set[strings.ToLower(strings.TrimSpace(kw))] = struct{}{}
	}
	n := 0
	for _, kw := range sourceKeywords {
		if _, ok := set[strings.ToLower(strings.TrimSpace(kw))]; ok {
			n++
		}
	}
	return n
}

func dedupeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	var out []string
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

func clusterThemeID(label string) string {
	h := sha256.Sum256([]byte("cluster:" + strings.ToLower(label)))
	return fmt.Sprintf("%x", h)[:12]
}
