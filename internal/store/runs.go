// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pdiddy/theme-engine/pkg/types"
)

// Run is one persisted extraction run: the options it ran with, the unified
// themes it produced, and its summary statistics.
type Run struct {
	ID        string                  `json:"id" yaml:"id"`
	CreatedAt time.Time               `json:"created_at" yaml:"created_at"`
	Options   types.ExtractionOptions `json:"options" yaml:"options"`
	Themes    []types.UnifiedTheme    `json:"themes" yaml:"themes"`
	Stats     types.RunStats          `json:"stats" yaml:"stats"`
}

// SaveRun persists a run and its themes in one transaction. Saving the same
// run ID again replaces its themes.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	optionsJSON, err := json.Marshal(run.Options)
	if err != nil {
		return fmt.Errorf("marshaling options: %w", err)
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, options, stats) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			created_at=excluded.created_at, options=excluded.options, stats=excluded.stats`,
		run.ID, createdAt.UTC().Format(time.RFC3339Nano), string(optionsJSON), string(statsJSON),
	)
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	// Replace the run's themes wholesale.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM theme_sources WHERE theme_rowid IN (SELECT rowid FROM themes WHERE run_id = ?)`,
		run.ID,
	); err != nil {
		return fmt.Errorf("deleting old theme sources: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM themes WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("deleting old themes: %w", err)
	}

	themeStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO themes (run_id, theme_id, label, description, keywords,
			weight, confidence, controversial, provenance, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing theme insert: %w", err)
	}
	defer themeStmt.Close()

	sourceStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO theme_sources (theme_rowid, source_type, source_id, source_title,
			influence, keyword_matches, excerpts, doi, authors, year)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing source insert: %w", err)
	}
	defer sourceStmt.Close()

	for pos, theme := range run.Themes {
		keywordsJSON, _ := json.Marshal(theme.Keywords)
		provenanceJSON, _ := json.Marshal(theme.Provenance)
		res, err := themeStmt.ExecContext(ctx,
			run.ID, theme.ID, theme.Label, theme.Description, string(keywordsJSON),
			theme.Weight, theme.Confidence, theme.Controversial, string(provenanceJSON), pos,
		)
		if err != nil {
			return fmt.Errorf("inserting theme %s: %w", theme.ID, err)
		}
		themeRowID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading theme rowid: %w", err)
		}

		for _, src := range theme.Sources {
			excerptsJSON, _ := json.Marshal(src.Excerpts)
			authorsJSON, _ := json.Marshal(src.Authors)
			_, err := sourceStmt.ExecContext(ctx,
				themeRowID, string(src.SourceType), src.SourceID, src.SourceTitle,
				src.Influence, src.KeywordMatches, string(excerptsJSON),
				src.DOI, string(authorsJSON), src.Year,
			)
			if err != nil {
				return fmt.Errorf("inserting source %s for theme %s: %w", src.SourceID, theme.ID, err)
			}
		}
	}

	return tx.Commit()
}

// GetRun loads one run with its themes. An empty runID loads the most
// recent run.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	if runID == "" {
		var err error
		runID, err = s.latestRunID(ctx)
		if err != nil {
			return nil, err
		}
	}

	var run Run
	var createdAt, optionsJSON, statsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, options, stats FROM runs WHERE id = ?`, runID,
	).Scan(&run.ID, &createdAt, &optionsJSON, &statsJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		run.CreatedAt = t
	}
	if err := json.Unmarshal([]byte(optionsJSON), &run.Options); err != nil {
		return nil, fmt.Errorf("parsing run options: %w", err)
	}
	if err := json.Unmarshal([]byte(statsJSON), &run.Stats); err != nil {
		return nil, fmt.Errorf("parsing run stats: %w", err)
	}

	run.Themes, err = s.ListThemes(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) latestRunID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM runs ORDER BY created_at DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no runs stored")
	}
	if err != nil {
		return "", fmt.Errorf("finding latest run: %w", err)
	}
	return id, nil
}

// ListThemes returns a run's themes in their saved order. An empty runID
// lists the most recent run's themes.
func (s *Store) ListThemes(ctx context.Context, runID string) ([]types.UnifiedTheme, error) {
	if runID == "" {
		var err error
		runID, err = s.latestRunID(ctx)
		if err != nil {
			return nil, err
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT rowid, theme_id, label, description, keywords, weight,
			confidence, controversial, provenance
		 FROM themes WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying themes: %w", err)
	}
	defer rows.Close()

	var themes []types.UnifiedTheme
	var rowIDs []int64
	for rows.Next() {
		var (
			theme          types.UnifiedTheme
			rowID          int64
			description    sql.NullString
			keywordsJSON   sql.NullString
			provenanceJSON sql.NullString
		)
		if err := rows.Scan(
			&rowID, &theme.ID, &theme.Label, &description, &keywordsJSON,
			&theme.Weight, &theme.Confidence, &theme.Controversial, &provenanceJSON,
		); err != nil {
			return nil, fmt.Errorf("scanning theme row: %w", err)
		}
		theme.Description = description.String
		if keywordsJSON.Valid {
			json.Unmarshal([]byte(keywordsJSON.String), &theme.Keywords)
		}
		if provenanceJSON.Valid {
			json.Unmarshal([]byte(provenanceJSON.String), &theme.Provenance)
		}
		themes = append(themes, theme)
		rowIDs = append(rowIDs, rowID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, rowID := range rowIDs {
		sources, err := s.themeSources(ctx, rowID)
		if err != nil {
			return nil, err
		}
		themes[i].Sources = sources
	}
	return themes, nil
}

func (s *Store) themeSources(ctx context.Context, themeRowID int64) ([]types.ThemeSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_type, source_id, source_title, influence, keyword_matches,
			excerpts, doi, authors, year
		 FROM theme_sources WHERE theme_rowid = ?`, themeRowID)
	if err != nil {
		return nil, fmt.Errorf("querying theme sources: %w", err)
	}
	defer rows.Close()

	var sources []types.ThemeSource
	for rows.Next() {
		var (
			src          types.ThemeSource
			sourceType   string
			title        sql.NullString
			excerptsJSON sql.NullString
			doi          sql.NullString
			authorsJSON  sql.NullString
			year         sql.NullInt64
		)
		if err := rows.Scan(
			&sourceType, &src.SourceID, &title, &src.Influence, &src.KeywordMatches,
			&excerptsJSON, &doi, &authorsJSON, &year,
		); err != nil {
			return nil, fmt.Errorf("scanning theme source row: %w", err)
		}
		src.SourceType = types.SourceType(sourceType)
		src.SourceTitle = title.String
		src.DOI = doi.String
		src.Year = int(year.Int64)
		if excerptsJSON.Valid {
			json.Unmarshal([]byte(excerptsJSON.String), &src.Excerpts)
		}
		if authorsJSON.Valid {
			json.Unmarshal([]byte(authorsJSON.String), &src.Authors)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// ListRuns returns run summaries (no themes) newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, options, stats FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var createdAt, optionsJSON, statsJSON string
		if err := rows.Scan(&run.ID, &createdAt, &optionsJSON, &statsJSON); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			run.CreatedAt = t
		}
		json.Unmarshal([]byte(optionsJSON), &run.Options)
		json.Unmarshal([]byte(statsJSON), &run.Stats)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
