// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/litfetch/pkg/types"
)

// FindOptions holds the library query parameters. All set fields must match.
type FindOptions struct {
	// Query is an FTS5 match expression over title and abstract.
	Query string

	// Source keeps papers found by this backend (e.g. "pubmed").
	Source string

	// Year keeps papers published in this year.
	Year int

	// SearchID keeps papers returned by one saved search run.
	SearchID int64

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// Paper is a saved paper with its library bookkeeping.
type Paper struct {
	types.SearchResult `yaml:",inline"`

	// ID is the library key ("doi:...", "pmid:...", or "<source>:<id>").
	ID        string    `json:"id" yaml:"id"`
	FirstSeen time.Time `json:"first_seen" yaml:"first_seen"`
	LastSeen  time.Time `json:"last_seen" yaml:"last_seen"`
}

// Find queries the library. Full-text queries are ranked by FTS relevance,
// search-run queries by the rank the run returned, and anything else by
// most recently seen.
func (s *Store) Find(ctx context.Context, opts FindOptions) ([]Paper, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = strings.TrimSpace(opts.Query) != ""
	)

	qb.WriteString(`SELECT p.id, p.pmid, p.doi, p.title, p.authors, p.abstract, p.journal,
		p.date, p.sources, p.score, p.first_seen, p.last_seen FROM `)
	if useFTS {
		qb.WriteString(`papers_fts JOIN papers p ON p.rowid = papers_fts.rowid`)
	} else {
		qb.WriteString(`papers p`)
	}
	if opts.SearchID != 0 {
		qb.WriteString(` JOIN search_results sr ON sr.paper_id = p.id AND sr.search_id = ?`)
		args = append(args, opts.SearchID)
	}
	qb.WriteString(` WHERE 1=1`)

	if useFTS {
		qb.WriteString(` AND papers_fts MATCH ?`)
		args = append(args, opts.Query)
	}
	if opts.Source != "" {
		qb.WriteString(` AND (',' || p.sources || ',') LIKE ?`)
		args = append(args, "%,"+opts.Source+",%")
	}
	if opts.Year != 0 {
		qb.WriteString(` AND p.year = ?`)
		args = append(args, opts.Year)
	}

	switch {
	case useFTS:
		qb.WriteString(` ORDER BY papers_fts.rank`)
	case opts.SearchID != 0:
		qb.WriteString(` ORDER BY sr.rank`)
	default:
		qb.WriteString(` ORDER BY p.last_seen DESC, p.score DESC, p.rowid`)
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying library: %w", err)
	}
	defer rows.Close()

	var papers []Paper
	for rows.Next() {
		var (
			p                 Paper
			authorsJSON       sql.NullString
			date, first, last string
		)
		if err := rows.Scan(
			&p.ID, &p.PMID, &p.DOI, &p.Title, &authorsJSON, &p.Abstract, &p.Journal,
			&date, &p.Source, &p.RelevanceScore, &first, &last,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if authorsJSON.Valid {
			json.Unmarshal([]byte(authorsJSON.String), &p.Authors)
		}
		p.Identifier = displayIdentifier(p)
		p.Date, _ = time.Parse(time.RFC3339, date)
		p.FirstSeen, _ = time.Parse(time.RFC3339, first)
		p.LastSeen, _ = time.Parse(time.RFC3339, last)
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

// displayIdentifier picks the identifier shown to the user: DOI, then
// PMID, then the library key.
func displayIdentifier(p Paper) string {
	switch {
	case p.DOI != "":
		return p.DOI
	case p.PMID != "":
		return p.PMID
	default:
		return p.ID
	}
}

// SearchRun is one saved search.
type SearchRun struct {
	ID          int64     `json:"id" yaml:"id"`
	Query       string    `json:"query" yaml:"query"`
	RanAt       time.Time `json:"ran_at" yaml:"ran_at"`
	ResultCount int       `json:"result_count" yaml:"result_count"`
}

// Searches returns the saved search runs, newest first.
func (s *Store) Searches(ctx context.Context) ([]SearchRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, ran_at, result_count FROM searches ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying searches: %w", err)
	}
	defer rows.Close()

	var runs []SearchRun
	for rows.Next() {
		var (
			run   SearchRun
			ranAt string
		)
		if err := rows.Scan(&run.ID, &run.Query, &ranAt, &run.ResultCount); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		run.RanAt, _ = time.Parse(time.RFC3339, ranAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
