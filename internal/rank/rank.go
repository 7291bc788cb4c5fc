// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rank scores and orders candidate documents against a research query.
// Implements: prd001-ranking (R1-R5);
//
//	docs/ARCHITECTURE § Ranking.
package rank

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/theme-engine/internal/stem"
	"github.com/pdiddy/theme-engine/pkg/types"
)

// stemCacheSize bounds the scorer's stem memo. One run's vocabulary fits
// comfortably; overflow just recomputes.
const stemCacheSize = 4096

// Scorer ranks documents against compiled queries. Construct once per run
// and reuse: the embedded stem memo amortizes morphological work across
// all scored documents. Immutable after construction.
type Scorer struct {
	cfg  types.RankConfig
	memo *stem.Memo
}

// NewScorer builds a scorer from cfg. Zero-valued tunables take the
// package defaults (R5.1-R5.7).
func NewScorer(cfg types.RankConfig) (*Scorer, error) {
	if cfg.StemmedDiscount == 0 {
		cfg.StemmedDiscount = 0.8
	}
	if cfg.K1 == 0 {
		cfg.K1 = 1.2
	}
	if cfg.B == 0 {
		cfg.B = 0.75
	}
	if cfg.PivotLength == 0 {
		cfg.PivotLength = 180
	}
	if cfg.TitleWeight == 0 {
		cfg.TitleWeight = 3.0
	}
	if cfg.KeywordWeight == 0 {
		cfg.KeywordWeight = 2.0
	}
	if cfg.AbstractWeight == 0 {
		cfg.AbstractWeight = 1.0
	}
	if cfg.AuthorWeight == 0 {
		cfg.AuthorWeight = 1.5
	}
	if cfg.VenueWeight == 0 {
		cfg.VenueWeight = 1.0
	}
	if cfg.PhraseBonus == 0 {
		cfg.PhraseBonus = 2.5
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 50
	}

	memo, err := stem.NewMemo(stemCacheSize)
	if err != nil {
		return nil, fmt.Errorf("building scorer: %w", err)
	}
	return &Scorer{cfg: cfg, memo: memo}, nil
}

// QueryTerm is one query token in both matchable forms.
type QueryTerm struct {
	Exact   string
	Stemmed string
}

// CompiledQuery is a query prepared for scoring: tokenized, deduplicated,
// stemmed once. Compile once per search and reuse for every document (R2.1).
type CompiledQuery struct {
	// Raw is the query as given, trimmed.
	Raw string

	// Phrase is the lowercased raw query, checked verbatim against titles.
	Phrase string

	// StemmedPhrase joins the term stems, for diagnostics and saved runs.
	StemmedPhrase string

	// Terms holds the deduplicated query tokens in first-seen order.
	Terms []QueryTerm
}

// Compile tokenizes and stems the query. Repeated tokens collapse to one
// term so a careless query cannot double-count a word.
func (s *Scorer) Compile(query string) *CompiledQuery {
	raw := strings.TrimSpace(query)
	q := &CompiledQuery{
		Raw:    raw,
		Phrase: strings.ToLower(raw),
	}

	seen := make(map[string]struct{})
	stems := make([]string, 0, 8)
	for _, tok := range stem.Tokenize(raw) {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		st := s.memo.Stem(tok)
		q.Terms = append(q.Terms, QueryTerm{Exact: tok, Stemmed: st})
		stems = append(stems, st)
	}
	q.StemmedPhrase = strings.Join(stems, " ")
	return q
}

// Score computes the relevance of one document to a compiled query.
// Pure: no I/O, no state beyond the shared stem memo, so (q, doc) always
// reproduces the same value (R4.2). Documents with empty fields score
// zero for those fields without error.
func (s *Scorer) Score(q *CompiledQuery, doc types.Document) types.ScoredDocument {
	br := types.ScoreBreakdown{LengthNorm: 1.0}

	if len(q.Terms) > 0 {
		titleToks := stem.Tokenize(doc.Title)
		kwToks := stem.Tokenize(strings.Join(doc.Keywords, " "))
		absToks := stem.Tokenize(doc.Abstract)

		br.LengthNorm = s.lengthNorm(len(absToks))
		br.Title = s.cfg.TitleWeight * s.fieldScore(q.Terms, titleToks, 1.0, true)
		br.Keywords = s.cfg.KeywordWeight * s.fieldScore(q.Terms, kwToks, 1.0, true)
		br.Abstract = s.cfg.AbstractWeight * s.fieldScore(q.Terms, absToks, br.LengthNorm, true)

		// Authors and venues are proper nouns: exact token matches only,
		// never stemmed (R2.4).
		authorToks := stem.Tokenize(strings.Join(doc.Authors, " "))
		venueToks := stem.Tokenize(doc.Venue)
		br.Authors = s.cfg.AuthorWeight * s.fieldScore(q.Terms, authorToks, 1.0, false)
		br.Venue = s.cfg.VenueWeight * s.fieldScore(q.Terms, venueToks, 1.0, false)
	}

	// The phrase bonus rewards the verbatim query appearing in the title.
	// Checked unstemmed (R2.5); single-term queries already score through
	// the title field, so the bonus needs at least two terms.
	if len(q.Terms) >= 2 && q.Phrase != "" &&
		strings.Contains(strings.ToLower(doc.Title), q.Phrase) {
		br.PhraseBonus = s.cfg.PhraseBonus
	}

	total := br.Title + br.Keywords + br.Abstract + br.Authors + br.Venue + br.PhraseBonus
	return types.ScoredDocument{
		Document:       doc,
		RelevanceScore: total,
		Breakdown:      br,
	}
}

// Rank scores every document, drops those under MinScore, orders by score
// descending with deterministic tie-breaks (title contribution, then ID),
// and caps the output at MaxResults (R3.1-R3.3).
func (s *Scorer) Rank(q *CompiledQuery, docs []types.Document) []types.ScoredDocument {
	scored := make([]types.ScoredDocument, 0, len(docs))
	for _, d := range docs {
		sd := s.Score(q, d)
		if sd.RelevanceScore < s.cfg.MinScore {
			continue
		}
		scored = append(scored, sd)
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].RelevanceScore != scored[j].RelevanceScore {
			return scored[i].RelevanceScore > scored[j].RelevanceScore
		}
		if scored[i].Breakdown.Title != scored[j].Breakdown.Title {
			return scored[i].Breakdown.Title > scored[j].Breakdown.Title
		}
		return scored[i].ID < scored[j].ID
	})

	if s.cfg.MaxResults > 0 && len(scored) > s.cfg.MaxResults {
		scored = scored[:s.cfg.MaxResults]
	}
	return scored
}

// fieldScore sums per-term saturated frequencies over one field's tokens.
// Exact matches count first; a term with no exact hit falls back to its
// stemmed frequency at the configured discount, so an exact match always
// outranks a stemmed-only match for the same term (R2.2, R2.3).
func (s *Scorer) fieldScore(terms []QueryTerm, fieldToks []string, norm float64, stemming bool) float64 {
	if len(fieldToks) == 0 {
		return 0
	}

	exact := make(map[string]int, len(fieldToks))
	for _, tok := range fieldToks {
		exact[tok]++
	}
	var stemmed map[string]int
	if stemming {
		stemmed = make(map[string]int, len(fieldToks))
		for _, tok := range fieldToks {
			stemmed[s.memo.Stem(tok)]++
		}
	}

	var score float64
	for _, t := range terms {
		if tf := exact[t.Exact]; tf > 0 {
			score += s.saturate(float64(tf), norm)
			continue
		}
		if stemming {
			if tf := stemmed[t.Stemmed]; tf > 0 {
				score += s.cfg.StemmedDiscount * s.saturate(float64(tf), norm)
			}
		}
	}
	return score
}

// saturate applies BM25 term-frequency saturation: monotone in tf with
// diminishing returns, shrunk by the field's length factor.
func (s *Scorer) saturate(tf, norm float64) float64 {
	return tf * (s.cfg.K1 + 1) / (tf + s.cfg.K1*norm)
}

// lengthNorm is the BM25 length factor for a field of n tokens: 1.0 at the
// configured pivot, larger for longer fields so volume alone cannot win (R2.7).
func (s *Scorer) lengthNorm(n int) float64 {
	if n == 0 {
		return 1.0
	}
	return 1 - s.cfg.B + s.cfg.B*float64(n)/float64(s.cfg.PivotLength)
}
