// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package library persists search results in a local SQLite database with a
// full-text index over titles and abstracts. Every saved search run is
// recorded with the rank of each paper it returned.
//
// The full-text index needs the sqlite_fts5 build tag.
package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/litfetch/pkg/types"
)

const (
	DefaultDir        = "library"
	DefaultMaxResults = 20

	dbFile = "litfetch.db"
)

// Store manages the library SQLite database.
type Store struct {
	db         *sql.DB
	dir        string
	maxResults int
	now        func() time.Time
}

// Open opens or creates the library database at cfg.Dir/litfetch.db and
// creates the schema if it does not exist.
func Open(cfg types.LibraryConfig) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating library directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	s := &Store{
		db:         db,
		dir:        dir,
		maxResults: maxResults,
		now:        time.Now,
	}

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

// Dir returns the library directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			pmid TEXT NOT NULL DEFAULT '',
			doi TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			authors TEXT,
			abstract TEXT NOT NULL DEFAULT '',
			journal TEXT NOT NULL DEFAULT '',
			date TEXT NOT NULL DEFAULT '',
			year INTEGER NOT NULL DEFAULT 0,
			sources TEXT NOT NULL DEFAULT '',
			score REAL NOT NULL DEFAULT 0,
			first_seen TEXT NOT NULL,
			last_seen TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_pmid ON papers(pmid)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_doi ON papers(doi)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_year ON papers(year)`,
		`CREATE TABLE IF NOT EXISTS searches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			query TEXT NOT NULL,
			ran_at TEXT NOT NULL,
			result_count INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS search_results (
			search_id INTEGER NOT NULL REFERENCES searches(id) ON DELETE CASCADE,
			paper_id TEXT NOT NULL REFERENCES papers(id),
			rank INTEGER NOT NULL,
			score REAL NOT NULL,
			source TEXT NOT NULL,
			PRIMARY KEY (search_id, paper_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='papers_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		return nil
	}

	ftsStatements := []string{
		`CREATE VIRTUAL TABLE papers_fts USING fts5(title, abstract, content=papers, content_rowid=rowid)`,
		`CREATE TRIGGER papers_ai AFTER INSERT ON papers BEGIN
			INSERT INTO papers_fts(rowid, title, abstract) VALUES (new.rowid, new.title, new.abstract);
		END`,
		`CREATE TRIGGER papers_ad AFTER DELETE ON papers BEGIN
			INSERT INTO papers_fts(papers_fts, rowid, title, abstract) VALUES('delete', old.rowid, old.title, old.abstract);
		END`,
		`CREATE TRIGGER papers_au AFTER UPDATE ON papers BEGIN
			INSERT INTO papers_fts(papers_fts, rowid, title, abstract) VALUES('delete', old.rowid, old.title, old.abstract);
			INSERT INTO papers_fts(rowid, title, abstract) VALUES (new.rowid, new.title, new.abstract);
		END`,
	}
	for _, stmt := range ftsStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	return nil
}

// SaveSummary holds the counts of one Save call.
type SaveSummary struct {
	SearchID int64
	Added    int
	Updated  int
}

// Save records a search run and upserts its results. A result matches an
// existing paper by DOI, then PMID, then paper ID; matched papers keep their
// non-empty fields and gain the new ones.
func (s *Store) Save(ctx context.Context, query string, results []types.SearchResult) (SaveSummary, error) {
	now := s.now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveSummary{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO searches (query, ran_at, result_count) VALUES (?, ?, ?)`,
		query, now, len(results))
	if err != nil {
		return SaveSummary{}, fmt.Errorf("recording search: %w", err)
	}
	searchID, err := res.LastInsertId()
	if err != nil {
		return SaveSummary{}, fmt.Errorf("reading search id: %w", err)
	}

	summary := SaveSummary{SearchID: searchID}
	for i, r := range results {
		id, existing, err := lookupPaper(ctx, tx, r)
		if err != nil {
			return summary, err
		}
		if existing != nil {
			if err := updatePaper(ctx, tx, id, *existing, r, now); err != nil {
				return summary, err
			}
			summary.Updated++
		} else {
			id = paperID(r)
			if err := insertPaper(ctx, tx, id, r, now); err != nil {
				return summary, err
			}
			summary.Added++
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO search_results (search_id, paper_id, rank, score, source)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(search_id, paper_id) DO NOTHING`,
			searchID, id, i+1, r.RelevanceScore, r.Source)
		if err != nil {
			return summary, fmt.Errorf("linking %s to search: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("committing: %w", err)
	}
	return summary, nil
}

// paperID derives the library key of a new paper.
func paperID(r types.SearchResult) string {
	switch {
	case r.DOI != "":
		return "doi:" + strings.ToLower(r.DOI)
	case r.PMID != "":
		return "pmid:" + r.PMID
	case r.Identifier != "":
		return r.Source + ":" + r.Identifier
	default:
		return "title:" + strings.ToLower(strings.Join(strings.Fields(r.Title), " "))
	}
}

type storedPaper struct {
	pmid, doi, title, abstract, journal, date, sources string
	authors                                            sql.NullString
	score                                              float64
}

func lookupPaper(ctx context.Context, tx *sql.Tx, r types.SearchResult) (string, *storedPaper, error) {
	var (
		id string
		p  storedPaper
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, pmid, doi, title, authors, abstract, journal, date, sources, score
		 FROM papers
		 WHERE (? != '' AND lower(doi) = lower(?))
		    OR (? != '' AND pmid = ?)
		    OR id = ?
		 ORDER BY CASE WHEN lower(doi) = lower(?) THEN 0 WHEN pmid = ? THEN 1 ELSE 2 END
		 LIMIT 1`,
		r.DOI, r.DOI, r.PMID, r.PMID, paperID(r), r.DOI, r.PMID,
	).Scan(&id, &p.pmid, &p.doi, &p.title, &p.authors, &p.abstract, &p.journal, &p.date, &p.sources, &p.score)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("looking up paper: %w", err)
	}
	return id, &p, nil
}

func insertPaper(ctx context.Context, tx *sql.Tx, id string, r types.SearchResult, now string) error {
	authorsJSON, _ := json.Marshal(r.Authors)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO papers (id, pmid, doi, title, authors, abstract, journal, date, year, sources, score, first_seen, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.PMID, r.DOI, r.Title, string(authorsJSON), r.Abstract, r.Journal,
		formatDate(r.Date), year(r.Date), r.Source, r.RelevanceScore, now, now)
	if err != nil {
		return fmt.Errorf("inserting paper %s: %w", id, err)
	}
	return nil
}

func updatePaper(ctx context.Context, tx *sql.Tx, id string, old storedPaper, r types.SearchResult, now string) error {
	authors := old.authors.String
	if !old.authors.Valid || authors == "" || authors == "null" || authors == "[]" {
		data, _ := json.Marshal(r.Authors)
		authors = string(data)
	}
	date := firstNonEmpty(old.date, formatDate(r.Date))
	score := old.score
	if r.RelevanceScore > score {
		score = r.RelevanceScore
	}

	var y int
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		y = t.Year()
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE papers SET pmid = ?, doi = ?, title = ?, authors = ?, abstract = ?, journal = ?,
			date = ?, year = ?, sources = ?, score = ?, last_seen = ?
		 WHERE id = ?`,
		firstNonEmpty(old.pmid, r.PMID),
		firstNonEmpty(old.doi, r.DOI),
		firstNonEmpty(old.title, r.Title),
		authors,
		firstNonEmpty(old.abstract, r.Abstract),
		firstNonEmpty(old.journal, r.Journal),
		date, y,
		mergeSources(old.sources, r.Source),
		score, now, id)
	if err != nil {
		return fmt.Errorf("updating paper %s: %w", id, err)
	}
	return nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// mergeSources adds the comma-separated names in add to list, keeping order.
func mergeSources(list, add string) string {
	var out []string
	seen := map[string]bool{}
	for _, s := range append(strings.Split(list, ","), strings.Split(add, ",")...) {
		if s = strings.TrimSpace(s); s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return strings.Join(out, ",")
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func year(t time.Time) int {
	if t.IsZero() {
		return 0
	}
	return t.Year()
}
