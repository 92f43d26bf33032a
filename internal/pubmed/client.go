// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pubmed is a client for the NCBI E-utilities API (esearch, efetch,
// elink). Every call goes through a rate-limited fetcher so that all users of
// one Client share the NCBI allowance of 3 requests per second (10 with an
// API key).
package pubmed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/litfetch/internal/ratefetch"
	"github.com/pdiddy/litfetch/pkg/types"
)

const (
	DefaultBaseURL    = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	DefaultTool       = "litfetch"
	DefaultMaxResults = 20

	// maxRetMax is the largest page esearch accepts.
	maxRetMax = 10000

	// efetchBatch bounds the number of PMIDs sent in one efetch URL.
	efetchBatch = 200
)

// ErrDisabled is returned when the client has no fetcher.
var ErrDisabled = errors.New("pubmed client has no fetcher")

// Fetcher is the subset of *ratefetch.Fetcher the client needs.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts ratefetch.RequestOptions) (*ratefetch.Response, error)
}

// APIError reports a non-200 response or an error document from E-utilities.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("pubmed %s returned HTTP %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("pubmed %s: %s", e.Endpoint, e.Message)
}

// Client calls E-utilities through a Fetcher.
type Client struct {
	cfg     types.PubMedConfig
	fetcher Fetcher
}

// New returns a Client. Zero config fields take the package defaults.
func New(cfg types.PubMedConfig, f Fetcher) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Tool == "" {
		cfg.Tool = DefaultTool
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	return &Client{cfg: cfg, fetcher: f}
}

// Term is an esearch query.
type Term struct {
	Query      string
	DateFrom   time.Time
	DateTo     time.Time
	MaxResults int
	Offset     int
}

// ESearch returns the PMIDs matching term. A phrase PubMed does not know is
// reported as an empty result, not an error.
func (c *Client) ESearch(ctx context.Context, term Term) (*ESearchResult, error) {
	if strings.TrimSpace(term.Query) == "" {
		return nil, fmt.Errorf("esearch: empty query")
	}

	retmax := term.MaxResults
	if retmax <= 0 {
		retmax = c.cfg.MaxResults
	}
	if retmax > maxRetMax {
		retmax = maxRetMax
	}

	q := url.Values{
		"db":      {"pubmed"},
		"term":    {term.Query},
		"retmode": {"xml"},
		"retmax":  {strconv.Itoa(retmax)},
	}
	if term.Offset > 0 {
		q.Set("retstart", strconv.Itoa(term.Offset))
	}
	if !term.DateFrom.IsZero() || !term.DateTo.IsZero() {
		q.Set("datetype", "pdat")
		from, to := term.DateFrom, term.DateTo
		if from.IsZero() {
			from = time.Date(1800, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		if to.IsZero() {
			to = time.Date(3000, 12, 31, 0, 0, 0, 0, time.UTC)
		}
		q.Set("mindate", from.Format("2006/01/02"))
		q.Set("maxdate", to.Format("2006/01/02"))
	}

	var result ESearchResult
	if err := c.get(ctx, "esearch", q, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, &APIError{Endpoint: "esearch", Message: result.Error}
	}
	if result.ErrorList != nil && len(result.ErrorList.PhraseNotFound) > 0 && len(result.IDs) == 0 {
		return &ESearchResult{Count: 0}, nil
	}
	return &result, nil
}

// EFetch returns the article records for pmids, in batches.
func (c *Client) EFetch(ctx context.Context, pmids []string) ([]Article, error) {
	var articles []Article
	for start := 0; start < len(pmids); start += efetchBatch {
		end := start + efetchBatch
		if end > len(pmids) {
			end = len(pmids)
		}

		q := url.Values{
			"db":      {"pubmed"},
			"id":      {strings.Join(pmids[start:end], ",")},
			"retmode": {"xml"},
			"rettype": {"abstract"},
		}
		var set ArticleSet
		if err := c.get(ctx, "efetch", q, &set); err != nil {
			return nil, err
		}
		articles = append(articles, set.Articles...)
	}
	return articles, nil
}

// LinkParams selects an elink query. DB defaults to pubmed and DBFrom to
// pubmed; LinkName narrows the result (e.g. "pubmed_pubmed" for similar
// articles, "pubmed_pubmed_citedin" for citing articles).
type LinkParams struct {
	DBFrom   string
	DB       string
	IDs      []string
	LinkName string
}

// ELink returns the link sets for the given IDs.
func (c *Client) ELink(ctx context.Context, p LinkParams) ([]LinkSet, error) {
	if len(p.IDs) == 0 {
		return nil, fmt.Errorf("elink: no ids")
	}
	if p.DBFrom == "" {
		p.DBFrom = "pubmed"
	}
	if p.DB == "" {
		p.DB = "pubmed"
	}

	q := url.Values{
		"dbfrom":  {p.DBFrom},
		"db":      {p.DB},
		"id":      {strings.Join(p.IDs, ",")},
		"retmode": {"xml"},
	}
	if p.LinkName != "" {
		q.Set("linkname", p.LinkName)
	}

	var result LinkResult
	if err := c.get(ctx, "elink", q, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, &APIError{Endpoint: "elink", Message: result.Error}
	}
	for _, ls := range result.LinkSets {
		if ls.Error != "" {
			return nil, &APIError{Endpoint: "elink", Message: ls.Error}
		}
	}
	return result.LinkSets, nil
}

// Search runs esearch followed by efetch and returns results ranked in
// esearch order. total is the esearch hit count.
func (c *Client) Search(ctx context.Context, term Term) (results []types.SearchResult, total int, err error) {
	sr, err := c.ESearch(ctx, term)
	if err != nil {
		return nil, 0, err
	}
	if len(sr.IDs) == 0 {
		return nil, sr.Count, nil
	}

	articles, err := c.EFetch(ctx, sr.IDs)
	if err != nil {
		return nil, sr.Count, err
	}

	byPMID := make(map[string]Article, len(articles))
	for _, a := range articles {
		byPMID[strings.TrimSpace(a.Citation.PMID)] = a
	}

	n := len(sr.IDs)
	for i, id := range sr.IDs {
		a, ok := byPMID[id]
		if !ok {
			continue
		}
		r := ToSearchResult(a)
		if n > 1 {
			r.RelevanceScore = 1.0 - float64(i)/float64(n-1)*0.9
		} else {
			r.RelevanceScore = 1.0
		}
		results = append(results, r)
	}
	return results, sr.Count, nil
}

// URL returns the E-utilities URL for endpoint with q plus the identifying
// parameters (tool, email, api_key).
func (c *Client) URL(endpoint string, q url.Values) string {
	q.Set("tool", c.cfg.Tool)
	if c.cfg.Email != "" {
		q.Set("email", c.cfg.Email)
	}
	if c.cfg.APIKey != "" {
		q.Set("api_key", c.cfg.APIKey)
	}
	return c.cfg.BaseURL + "/" + endpoint + ".fcgi?" + q.Encode()
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, v any) error {
	if c.fetcher == nil {
		return ErrDisabled
	}
	resp, err := c.fetcher.Fetch(ctx, c.URL(endpoint, q), ratefetch.RequestOptions{})
	if err != nil {
		return fmt.Errorf("pubmed %s: %w", endpoint, err)
	}
	if !resp.OK() {
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: snippet(resp.Body)}
	}
	return resp.DecodeXML(v)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:197] + "..."
	}
	return s
}
