// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/theme-engine/pkg/types"
)

// PoolFile is the on-disk representation of a candidate document pool and
// the ranked output produced from it. A researcher assembles a pool once
// and ranks it repeatedly with different queries.
// Implements: prd001-ranking R1.6, R4.6.
type PoolFile struct {
	Query     PoolQuery              `yaml:"query,omitempty"`
	Config    PoolConfig             `yaml:"config,omitempty"`
	Documents []types.Document       `yaml:"documents"`
	Ranked    []types.ScoredDocument `yaml:"ranked,omitempty"`
	Summary   PoolSummary            `yaml:"summary,omitempty"`
}

// PoolQuery stores the query that produced Ranked, in both forms.
type PoolQuery struct {
	Text    string `yaml:"text,omitempty"`
	Stemmed string `yaml:"stemmed,omitempty"`
}

// PoolConfig stores the ranking configuration that produced the results.
type PoolConfig struct {
	MinScore   float64 `yaml:"min_score"`
	MaxResults int     `yaml:"max_results"`
}

// PoolSummary stores ranking statistics and a timestamp.
type PoolSummary struct {
	Candidates int       `yaml:"candidates"`
	Ranked     int       `yaml:"ranked"`
	Filtered   int       `yaml:"filtered"`
	Timestamp  time.Time `yaml:"timestamp"`
}

// ReadPoolFile loads a document pool from disk.
func ReadPoolFile(path string) (*PoolFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pool file: %w", err)
	}
	var pf PoolFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing pool file: %w", err)
	}
	return &pf, nil
}

// WritePoolFile saves a pool, its query, and its ranked results to a YAML file.
func WritePoolFile(path string, q *CompiledQuery, cfg types.RankConfig, docs []types.Document, ranked []types.ScoredDocument) error {
	pf := PoolFile{
		Config: PoolConfig{
			MinScore:   cfg.MinScore,
			MaxResults: cfg.MaxResults,
		},
		Documents: docs,
		Ranked:    ranked,
		Summary: PoolSummary{
			Candidates: len(docs),
			Ranked:     len(ranked),
			Filtered:   len(docs) - len(ranked),
			Timestamp:  time.Now(),
		},
	}
	if q != nil {
		pf.Query = PoolQuery{Text: q.Raw, Stemmed: q.StemmedPhrase}
	}

	data, err := yaml.Marshal(&pf)
	if err != nil {
		return fmt.Errorf("marshaling pool file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// RewritePoolFile saves a previously loaded pool back to disk with updated
// documents, keeping the recorded query and ranking configuration intact.
// Stages that enrich a pool without re-ranking it (full-text acquisition)
// write through here so ranking provenance survives the round trip.
func RewritePoolFile(path string, pf *PoolFile) error {
	pf.Summary.Candidates = len(pf.Documents)
	pf.Summary.Ranked = len(pf.Ranked)
	pf.Summary.Timestamp = time.Now()

	data, err := yaml.Marshal(pf)
	if err != nil {
		return fmt.Errorf("marshaling pool file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
