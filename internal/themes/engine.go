// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package themes deduplicates per-source theme lists into unified themes
// with provenance and influence statistics.
// Implements: prd004-themes (R1-R4); docs/ARCHITECTURE § Themes.
package themes

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pdiddy/theme-engine/pkg/types"
)

// MalformedSourceError reports a source group the engine refused to merge.
// Skipped groups are counted, never fatal to the batch (R1.5).
type MalformedSourceError struct {
	SourceID string
	Reason   string
}

func (e *MalformedSourceError) Error() string {
	return fmt.Sprintf("malformed source group %q: %s", e.SourceID, e.Reason)
}

// SourceGroup is one source's extracted themes, ready to merge.
type SourceGroup struct {
	Source types.SourceDescriptor
	Themes []types.RawTheme
}

// validSourceTypes mirrors the SourceType enum for group validation.
var validSourceTypes = map[types.SourceType]bool{
	types.SourcePaper:   true,
	types.SourceVideo:   true,
	types.SourcePodcast: true,
	types.SourceSocial:  true,
}

// entry is one canonical theme under accumulation. The auxiliary sets make
// each merge O(1) amortized in the theme's existing sources and keywords:
// membership is a map lookup, never a rescan of the accumulated lists (R2.6).
type entry struct {
	theme      types.UnifiedTheme
	labelKey   string
	labelToks  map[string]struct{}
	keywordSet map[string]struct{}
	sourceKeys map[string]int // (type|id) -> index into theme.Sources
	confSum    float64
	mergeCount int
	chain      []string
}

// Engine accumulates raw themes into canonical unified themes. One run owns
// one engine; the canonical map has a single logical owner and is never
// mutated concurrently. Merge sources one at a time, then Finalize once.
type Engine struct {
	cfg       types.ThemesConfig
	threshold float64
	log       *slog.Logger

	entries []*entry
	byKey   map[string]*entry
	skipped int
}

// NewEngine builds an engine. A threshold of zero takes the configured
// default; the default of 0.75 is empirical, not derived (R4.4).
func NewEngine(cfg types.ThemesConfig, threshold float64, log *slog.Logger) *Engine {
	if cfg.DeduplicationThreshold == 0 {
		cfg.DeduplicationThreshold = 0.75
	}
	if cfg.MaxExcerptsPerSource == 0 {
		cfg.MaxExcerptsPerSource = 3
	}
	if threshold == 0 {
		threshold = cfg.DeduplicationThreshold
	}
	return &Engine{cfg: cfg, threshold: threshold, log: log, byKey: make(map[string]*entry)}
}

// MalformedSkipped reports how many source groups were skipped for
// structural problems.
func (e *Engine) MalformedSkipped() int {
	return e.skipped
}

// Merge folds one source's themes into the canonical set. A structurally
// invalid group is logged and skipped; it never fails the batch (R1.5).
func (e *Engine) Merge(group SourceGroup) {
	if err := validateGroup(group); err != nil {
		e.log.Warn("skipping malformed source group", "error", err)
		e.skipped++
		return
	}

	for _, raw := range group.Themes {
		if strings.TrimSpace(raw.Label) == "" {
			e.log.Warn("skipping unlabeled theme", "source_id", group.Source.ID)
			continue
		}
		e.mergeOne(group.Source, raw)
	}
}

func validateGroup(group SourceGroup) error {
	if strings.TrimSpace(group.Source.ID) == "" {
		return &MalformedSourceError{SourceID: group.Source.ID, Reason: "missing source id"}
	}
	if !validSourceTypes[group.Source.Type] {
		return &MalformedSourceError{
			SourceID: group.Source.ID,
			Reason:   fmt.Sprintf("unknown source type %q", group.Source.Type),
		}
	}
	return nil
}

// mergeOne merges a single raw theme: matched against every canonical
// label with the similarity function, folded into the best match at or
// above the threshold, registered as a new canonical theme otherwise (R2.1).
func (e *Engine) mergeOne(src types.SourceDescriptor, raw types.RawTheme) {
	key := labelKey(raw.Label)
	toks := labelTokens(raw.Label)

	// Identical normalized labels are the common case at scale; the key
	// map resolves them without scanning the canonical set.
	if ent, ok := e.byKey[key]; ok {
		e.mergeInto(ent, src, raw, 1.0)
		return
	}

	var best *entry
	bestSim := 0.0
	for _, ent := range e.entries {
		sim := similarity(ent.labelKey, ent.labelToks, key, toks)
		if sim > bestSim {
			bestSim = sim
			best = ent
		}
	}

	if best != nil && bestSim >= e.threshold {
		e.mergeInto(best, src, raw, bestSim)
		return
	}
	e.register(src, raw, key, toks)
}

// register adds a new canonical theme seeded from one raw theme.
func (e *Engine) register(src types.SourceDescriptor, raw types.RawTheme, key string, toks map[string]struct{}) {
	ent := &entry{
		theme: types.UnifiedTheme{
			ID:            themeID(key),
			Label:         raw.Label,
			Description:   raw.Description,
			Weight:        raw.Weight,
			Controversial: raw.Controversial,
		},
		labelKey:   key,
		labelToks:  toks,
		keywordSet: make(map[string]struct{}),
		sourceKeys: make(map[string]int),
	}
	e.appendKeywords(ent, raw.Keywords)
	e.appendSource(ent, src, raw)
	ent.confSum = raw.Confidence
	ent.mergeCount = 1
	ent.chain = append(ent.chain, fmt.Sprintf("registered %q from %s:%s", raw.Label, src.Type, src.ID))
	e.entries = append(e.entries, ent)
	e.byKey[key] = ent
}

// mergeInto folds a raw theme into an existing canonical theme: sources
// append (never replace), keywords union through the set, weight takes the
// max, controversiality accumulates by OR (R2.2-R2.5).
func (e *Engine) mergeInto(ent *entry, src types.SourceDescriptor, raw types.RawTheme, sim float64) {
	e.appendKeywords(ent, raw.Keywords)
	e.appendSource(ent, src, raw)

	if raw.Weight > ent.theme.Weight {
		ent.theme.Weight = raw.Weight
	}
	if raw.Controversial {
		ent.theme.Controversial = true
	}
	if ent.theme.Description == "" {
		ent.theme.Description = raw.Description
	}

	ent.confSum += raw.Confidence
	ent.mergeCount++
	ent.chain = append(ent.chain,
		fmt.Sprintf("merged %q from %s:%s (similarity %.2f)", raw.Label, src.Type, src.ID, sim))
}

// appendKeywords unions keywords into the theme, preserving first-seen
// order in the list while the set keeps each insertion O(1) (R2.4).
func (e *Engine) appendKeywords(ent *entry, keywords []string) {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := ent.keywordSet[kw]; dup {
			continue
		}
		ent.keywordSet[kw] = struct{}{}
		ent.theme.Keywords = append(ent.theme.Keywords, kw)
	}
}

// appendSource appends a ThemeSource, de-duplicated by (type, id). A repeat
// contribution from the same source raises influence and extends excerpts
// instead of adding a second entry (R2.2).
func (e *Engine) appendSource(ent *entry, src types.SourceDescriptor, raw types.RawTheme) {
	key := string(src.Type) + "|" + src.ID
	matches := countKeywords(raw.Keywords)

	if idx, ok := ent.sourceKeys[key]; ok {
		existing := &ent.theme.Sources[idx]
		if raw.Weight > existing.Influence {
			existing.Influence = raw.Weight
		}
		if matches > existing.KeywordMatches {
			existing.KeywordMatches = matches
		}
		existing.Excerpts = appendBounded(existing.Excerpts, raw.Excerpts, e.cfg.MaxExcerptsPerSource)
		return
	}

	ts := types.ThemeSource{
		SourceType:     src.Type,
		SourceID:       src.ID,
		SourceTitle:    src.Title,
		Influence:      raw.Weight,
		KeywordMatches: matches,
		Excerpts:       appendBounded(nil, raw.Excerpts, e.cfg.MaxExcerptsPerSource),
		DOI:            src.Metadata.DOI,
		Authors:        src.Metadata.Authors,
		Year:           src.Metadata.Year,
	}
	ent.sourceKeys[key] = len(ent.theme.Sources)
	ent.theme.Sources = append(ent.theme.Sources, ts)
}

func countKeywords(keywords []string) int {
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			seen[kw] = struct{}{}
		}
	}
	return len(seen)
}

func appendBounded(dst, src []string, bound int) []string {
	for _, s := range src {
		if len(dst) >= bound {
			break
		}
		dst = append(dst, s)
	}
	return dst
}

// Finalize computes provenance in one pass over each theme's final source
// list and returns the themes in stable order: weight descending, label
// ascending (R3.1-R3.4).
func (e *Engine) Finalize(includeProvenance bool) []types.UnifiedTheme {
	out := make([]types.UnifiedTheme, 0, len(e.entries))
	for _, ent := range e.entries {
		t := ent.theme
		if ent.mergeCount > 0 {
			t.Confidence = ent.confSum / float64(ent.mergeCount)
		}
		if includeProvenance {
			t.Provenance = BuildProvenance(t.Sources, t.Confidence, ent.chain)
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// BuildProvenance partitions counts and influence sums by source type in a
// single pass (R3.1, R3.2). The clustering path shares it for its themes.
func BuildProvenance(sources []types.ThemeSource, avgConfidence float64, chain []string) types.ThemeProvenance {
	p := types.ThemeProvenance{
		AverageConfidence: avgConfidence,
		CitationChain:     chain,
	}
	for _, s := range sources {
		switch s.SourceType {
		case types.SourcePaper:
			p.PaperCount++
			p.PaperInfluence += s.Influence
		case types.SourceVideo:
			p.VideoCount++
			p.VideoInfluence += s.Influence
		case types.SourcePodcast:
			p.PodcastCount++
			p.PodcastInfluence += s.Influence
		case types.SourceSocial:
			p.SocialCount++
			p.SocialInfluence += s.Influence
		}
	}
	return p
}

// themeID derives a stable identifier from the normalized label: the first
// 12 hex characters of its SHA-256.
func themeID(labelKey string) string {
	h := sha256.Sum256([]byte("theme:" + labelKey))
	return fmt.Sprintf("%x", h)[:12]
}
