// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists documents, cached full text, and extraction runs in
// SQLite, with an FTS5 index over document text.
// Implements: prd007-store (R1-R4); docs/ARCHITECTURE § Store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/theme-engine/pkg/types"
)

// Store manages the theme-engine SQLite database plus the run and export
// directories next to it.
type Store struct {
	db        *sql.DB
	runsDir   string
	themesDir string
}

// NewStore opens or creates the database at cfg.DBPath and ensures the
// snapshot and export directories exist. It creates the schema if it does
// not exist.
func NewStore(cfg types.StoreConfig) (*Store, error) {
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "theme-engine.db"
	}
	runsDir := cfg.RunsDir
	if runsDir == "" {
		runsDir = "runs"
	}
	themesDir := cfg.ThemesDir
	if themesDir == "" {
		themesDir = "themes"
	}

	for _, dir := range []string{filepath.Dir(dbPath), runsDir, themesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, runsDir: runsDir, themesDir: themesDir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT,
			abstract TEXT,
			keywords TEXT,
			authors TEXT,
			venue TEXT,
			year INTEGER,
			doi TEXT,
			pmid TEXT,
			pmcid TEXT,
			url TEXT,
			full_text TEXT,
			full_text_status TEXT NOT NULL DEFAULT 'not_fetched',
			full_text_source TEXT,
			word_count INTEGER,
			fetched_at TEXT,
			fetch_error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(full_text_status)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			options TEXT NOT NULL,
			stats TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS themes (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			theme_id TEXT NOT NULL,
			label TEXT NOT NULL,
			description TEXT,
			keywords TEXT,
			weight REAL,
			confidence REAL,
			controversial INTEGER,
			provenance TEXT,
			position INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_themes_run_id ON themes(run_id)`,
		`CREATE TABLE IF NOT EXISTS theme_sources (
			theme_rowid INTEGER NOT NULL REFERENCES themes(rowid),
			source_type TEXT NOT NULL,
			source_id TEXT NOT NULL,
			source_title TEXT,
			influence REAL,
			keyword_matches INTEGER,
			excerpts TEXT,
			doi TEXT,
			authors TEXT,
			year INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_theme_sources_theme ON theme_sources(theme_rowid)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='documents_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE documents_fts USING fts5(title, abstract, full_text, content=documents, content_rowid=rowid)`,
			`CREATE TRIGGER documents_ai AFTER INSERT ON documents BEGIN
				INSERT INTO documents_fts(rowid, title, abstract, full_text)
				VALUES (new.rowid, new.title, new.abstract, new.full_text);
			END`,
			`CREATE TRIGGER documents_ad AFTER DELETE ON documents BEGIN
				INSERT INTO documents_fts(documents_fts, rowid, title, abstract, full_text)
				VALUES('delete', old.rowid, old.title, old.abstract, old.full_text);
			END`,
			`CREATE TRIGGER documents_au AFTER UPDATE ON documents BEGIN
				INSERT INTO documents_fts(documents_fts, rowid, title, abstract, full_text)
				VALUES('delete', old.rowid, old.title, old.abstract, old.full_text);
				INSERT INTO documents_fts(rowid, title, abstract, full_text)
				VALUES (new.rowid, new.title, new.abstract, new.full_text);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// UpsertDocument writes a document's metadata, preserving any full-text
// enrichment already stored for the same ID. Metadata is immutable once a
// document enters the pool, so a re-upsert only fills fields.
func (s *Store) UpsertDocument(ctx context.Context, doc *types.Document) error {
	keywordsJSON, _ := json.Marshal(doc.Keywords)
	authorsJSON, _ := json.Marshal(doc.Authors)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, abstract, keywords, authors, venue, year, doi, pmid, pmcid, url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, abstract=excluded.abstract,
			keywords=excluded.keywords, authors=excluded.authors,
			venue=excluded.venue, year=excluded.year,
			doi=excluded.doi, pmid=excluded.pmid, pmcid=excluded.pmcid,
			url=excluded.url`,
		doc.ID, doc.Title, doc.Abstract, string(keywordsJSON), string(authorsJSON),
		doc.Venue, doc.Year, doc.ExternalIDs.DOI, doc.ExternalIDs.PMID,
		doc.ExternalIDs.PMCID, doc.URL,
	)
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument loads one document by ID. Returns sql.ErrNoRows wrapped when
// the ID is unknown.
func (s *Store) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, abstract, keywords, authors, venue, year,
			doi, pmid, pmcid, url, full_text, full_text_status,
			full_text_source, word_count, fetched_at
		 FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("document %s not found", id)
		}
		return nil, fmt.Errorf("loading document %s: %w", id, err)
	}
	return doc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*types.Document, error) {
	var (
		doc          types.Document
		keywordsJSON sql.NullString
		authorsJSON  sql.NullString
		title        sql.NullString
		abstract     sql.NullString
		venue        sql.NullString
		year         sql.NullInt64
		doi          sql.NullString
		pmid         sql.NullString
		pmcid        sql.NullString
		url          sql.NullString
		fullText     sql.NullString
		status       string
		source       sql.NullString
		wordCount    sql.NullInt64
		fetchedAt    sql.NullString
	)

	if err := row.Scan(
		&doc.ID, &title, &abstract, &keywordsJSON, &authorsJSON, &venue, &year,
		&doi, &pmid, &pmcid, &url, &fullText, &status, &source, &wordCount, &fetchedAt,
	); err != nil {
		return nil, err
	}

	doc.Title = title.String
	doc.Abstract = abstract.String
	doc.Venue = venue.String
	doc.Year = int(year.Int64)
	doc.ExternalIDs = types.ExternalIDs{DOI: doi.String, PMID: pmid.String, PMCID: pmcid.String}
	doc.URL = url.String
	doc.FullText = fullText.String
	doc.FullTextStatus = types.FullTextStatus(status)
	doc.FullTextSource = types.FullTextSource(source.String)
	doc.WordCount = int(wordCount.Int64)
	if keywordsJSON.Valid {
		json.Unmarshal([]byte(keywordsJSON.String), &doc.Keywords)
	}
	if authorsJSON.Valid {
		json.Unmarshal([]byte(authorsJSON.String), &doc.Authors)
	}
	if fetchedAt.Valid && fetchedAt.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, fetchedAt.String); err == nil {
			doc.FetchedAt = t
		}
	}
	return &doc, nil
}

// SearchDocuments runs an FTS5 query over title, abstract, and full text,
// ranked by relevance. Limit zero means 20.
func (s *Store) SearchDocuments(ctx context.Context, query string, limit int) ([]*types.Document, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.title, d.abstract, d.keywords, d.authors, d.venue, d.year,
			d.doi, d.pmid, d.pmcid, d.url, d.full_text, d.full_text_status,
			d.full_text_source, d.word_count, d.fetched_at
		 FROM documents_fts
		 JOIN documents d ON d.rowid = documents_fts.rowid
		 WHERE documents_fts MATCH ?
		 ORDER BY documents_fts.rank
		 LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []*types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// --- fulltext.DocumentStore ---

// CachedFullText returns previously fetched text for the document, or ""
// when no successful fetch is stored.
func (s *Store) CachedFullText(ctx context.Context, docID string) (string, types.FullTextSource, error) {
	var text, source sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT full_text, full_text_source FROM documents
		 WHERE id = ? AND full_text_status = ?`, docID, string(types.FullTextSuccess),
	).Scan(&text, &source)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("looking up cached text for %s: %w", docID, err)
	}
	return text.String, types.FullTextSource(source.String), nil
}

// MarkFetching records that a fetch attempt started. The document row is
// created if ranking never persisted it.
func (s *Store) MarkFetching(ctx context.Context, docID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, full_text_status, fetched_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			full_text_status=excluded.full_text_status,
			fetched_at=excluded.fetched_at,
			fetch_error=NULL`,
		docID, string(types.FullTextFetching), at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("marking %s fetching: %w", docID, err)
	}
	return nil
}

// MarkFetched persists the document's full-text enrichment after a
// successful fetch.
func (s *Store) MarkFetched(ctx context.Context, doc *types.Document) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET
			full_text = ?, full_text_status = ?, full_text_source = ?,
			word_count = ?, fetched_at = ?, fetch_error = NULL
		 WHERE id = ?`,
		doc.FullText, string(types.FullTextSuccess), string(doc.FullTextSource),
		doc.WordCount, doc.FetchedAt.UTC().Format(time.RFC3339Nano), doc.ID,
	)
	if err != nil {
		return fmt.Errorf("marking %s fetched: %w", doc.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("marking %s fetched: document not in store", doc.ID)
	}
	return nil
}

// MarkFailed records a terminal fetch failure with its reason.
func (s *Store) MarkFailed(ctx context.Context, docID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, full_text_status, fetch_error, fetched_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			full_text_status=excluded.full_text_status,
			fetch_error=excluded.fetch_error,
			fetched_at=excluded.fetched_at`,
		docID, string(types.FullTextFailed), reason, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("marking %s failed: %w", docID, err)
	}
	return nil
}

// ReconcileStuck flips documents stuck in the fetching state since before
// the cutoff to failed, returning how many were flipped.
func (s *Store) ReconcileStuck(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET full_text_status = ?, fetch_error = 'stuck fetch reconciled'
		 WHERE full_text_status = ? AND fetched_at < ?`,
		string(types.FullTextFailed), string(types.FullTextFetching),
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reconciling stuck fetches: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting reconciled rows: %w", err)
	}
	return int(n), nil
}
