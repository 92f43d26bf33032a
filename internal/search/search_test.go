// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/litfetch/internal/pubmed"
	"github.com/pdiddy/litfetch/internal/ratefetch"
	"github.com/pdiddy/litfetch/pkg/types"
)

// --- mock backend ---

type mockBackend struct {
	name    string
	results []types.SearchResult
	err     error
	delay   time.Duration
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Search(_ context.Context, _ Query, _ types.SearchConfig) ([]types.SearchResult, error) {
	time.Sleep(m.delay)
	return m.results, m.err
}

func testCfg() types.SearchConfig {
	return types.SearchConfig{
		MaxResults:        20,
		RecencyBiasWindow: 2 * 365 * 24 * time.Hour,
	}
}

// testFetcher returns a fast rate-limited fetcher closed at test end.
func testFetcher(t *testing.T) *ratefetch.Fetcher {
	t.Helper()
	f := ratefetch.New(types.FetchConfig{
		MinInterval: time.Millisecond,
		MaxRetries:  3,
		BaseDelay:   5 * time.Millisecond,
	}, ratefetch.WithName(t.Name()))
	t.Cleanup(func() { f.Close() })
	return f
}

// --- Query ---

func TestQueryIsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  bool
	}{
		{"empty", Query{}, true},
		{"free text", Query{FreeText: "attention"}, false},
		{"author only", Query{Author: "Smith"}, false},
		{"keywords only", Query{Keywords: []string{"ml"}}, false},
		{"date only is empty", Query{DateFrom: time.Now()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.query.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

// --- Deduplication ---

func TestDeduplicateByIdentifier(t *testing.T) {
	results := []types.SearchResult{
		{Identifier: "W1", Title: "Paper A", Source: "openalex", RelevanceScore: 0.9},
		{Identifier: "W1", Title: "Paper A (from S2)", Source: "semantic_scholar", RelevanceScore: 0.8},
		{Identifier: "W2", Title: "Paper B", Source: "openalex", RelevanceScore: 0.7},
	}

	deduped, removed := deduplicate(results)
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if len(deduped) != 2 {
		t.Fatalf("len(deduped) = %d, want 2", len(deduped))
	}
	if deduped[0].RelevanceScore != 0.9 {
		t.Errorf("merged score = %f, want 0.9", deduped[0].RelevanceScore)
	}
	if deduped[0].Source != "openalex,semantic_scholar" {
		t.Errorf("merged source = %q, should contain both backends", deduped[0].Source)
	}
}

func TestDeduplicateByDOIAcrossIdentifiers(t *testing.T) {
	// PubMed keys on PMID, OpenAlex on DOI; the shared DOI links them and
	// the merged record then also absorbs the S2 hit that only has the PMID.
	results := []types.SearchResult{
		{Identifier: "31452104", PMID: "31452104", DOI: "10.1016/J.CELL.2019.07.001", Title: "Base editing", Source: "pubmed"},
		{Identifier: "10.1016/j.cell.2019.07.001", DOI: "10.1016/j.cell.2019.07.001", Title: "Base Editing.", Source: "openalex"},
		{Identifier: "31452104", PMID: "31452104", Title: "Different title formatting", Source: "semantic_scholar"},
	}

	deduped, removed := deduplicate(results)
	if removed != 2 || len(deduped) != 1 {
		t.Fatalf("removed = %d, len = %d, want 2 and 1", removed, len(deduped))
	}
	if deduped[0].Source != "pubmed,openalex,semantic_scholar" {
		t.Errorf("Source = %q", deduped[0].Source)
	}
}

func TestDeduplicateByTitle(t *testing.T) {
	results := []types.SearchResult{
		{Identifier: "W1", Title: "Attention Is All You Need", Source: "openalex"},
		{Identifier: "abc", Title: "attention is all you need!", Source: "semantic_scholar"},
	}

	deduped, removed := deduplicate(results)
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if len(deduped) != 1 {
		t.Fatalf("len(deduped) = %d, want 1", len(deduped))
	}
}

func TestDeduplicateNoDuplicates(t *testing.T) {
	results := []types.SearchResult{
		{Identifier: "W1", Title: "Paper A", Source: "openalex"},
		{Identifier: "W2", Title: "Paper B", Source: "openalex"},
	}

	deduped, removed := deduplicate(results)
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
	if len(deduped) != 2 {
		t.Errorf("len(deduped) = %d, want 2", len(deduped))
	}
}

// --- Ranking ---

func TestApplyRecencyBias(t *testing.T) {
	window := 2 * 365 * 24 * time.Hour
	results := []types.SearchResult{
		{Title: "Recent", Date: time.Now().Add(-30 * 24 * time.Hour), RelevanceScore: 0.5},
		{Title: "Old", Date: time.Now().Add(-5 * 365 * 24 * time.Hour), RelevanceScore: 0.5},
		{Title: "No date", RelevanceScore: 0.5},
	}

	applyRecencyBias(results, window)

	if results[0].RelevanceScore <= 0.5 {
		t.Errorf("recent paper should be boosted, got %f", results[0].RelevanceScore)
	}
	if results[1].RelevanceScore != 0.5 {
		t.Errorf("old paper should not be boosted, got %f", results[1].RelevanceScore)
	}
	if results[2].RelevanceScore != 0.5 {
		t.Errorf("no-date paper should not be boosted, got %f", results[2].RelevanceScore)
	}
	if results[0].RelevanceScore > 1.0 {
		t.Errorf("score should not exceed 1.0, got %f", results[0].RelevanceScore)
	}
}

func TestPositionScore(t *testing.T) {
	if got := positionScore(0, 1); got != 1.0 {
		t.Errorf("positionScore(0, 1) = %f", got)
	}
	if got := positionScore(0, 5); got != 1.0 {
		t.Errorf("positionScore(0, 5) = %f", got)
	}
	if got := positionScore(4, 5); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("positionScore(4, 5) = %f, want 0.1", got)
	}
}

// --- Search integration ---

func TestSearchEmptyQuery(t *testing.T) {
	var buf bytes.Buffer
	_, err := Search(context.Background(), Query{}, []Backend{&mockBackend{name: "mock"}}, testCfg(), false, &buf)
	if err == nil || !strings.Contains(err.Error(), "empty") {
		t.Errorf("expected empty query error, got: %v", err)
	}
}

func TestSearchNoBackends(t *testing.T) {
	var buf bytes.Buffer
	_, err := Search(context.Background(), Query{FreeText: "test"}, nil, testCfg(), false, &buf)
	if err == nil || !strings.Contains(err.Error(), "no search backends") {
		t.Errorf("expected no backends error, got: %v", err)
	}
}

func TestSearchContinuesAfterBackendFailure(t *testing.T) {
	failing := &mockBackend{name: "failing", err: fmt.Errorf("network error")}
	working := &mockBackend{
		name: "working",
		results: []types.SearchResult{
			{Identifier: "W1", Title: "Paper A", Source: "working", RelevanceScore: 0.9},
		},
	}

	var buf bytes.Buffer
	out, err := Search(context.Background(), Query{FreeText: "test"}, []Backend{failing, working}, testCfg(), false, &buf)
	if err != nil {
		t.Fatalf("Search should not fail entirely: %v", err)
	}
	if len(out.Results) != 1 {
		t.Errorf("len(Results) = %d, want 1", len(out.Results))
	}
	if len(out.BackendErrors) != 1 || !strings.HasPrefix(out.BackendErrors[0], "failing:") {
		t.Errorf("BackendErrors = %v", out.BackendErrors)
	}
	if !strings.Contains(buf.String(), "warning:") {
		t.Error("output should contain warning about failed backend")
	}
}

func TestSearchDedupAndRank(t *testing.T) {
	backend1 := &mockBackend{
		name: "b1",
		results: []types.SearchResult{
			{Identifier: "W1", Title: "Paper A", Source: "b1", RelevanceScore: 0.9},
			{Identifier: "W3", Title: "Paper C", Source: "b1", RelevanceScore: 0.6},
		},
	}
	backend2 := &mockBackend{
		name: "b2",
		results: []types.SearchResult{
			{Identifier: "W1", Title: "Paper A (dup)", Source: "b2", RelevanceScore: 0.8},
			{Identifier: "W2", Title: "Paper B", Source: "b2", RelevanceScore: 0.95},
		},
	}

	var buf bytes.Buffer
	out, err := Search(context.Background(), Query{FreeText: "test"}, []Backend{backend1, backend2}, testCfg(), false, &buf)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if out.DupsRemoved != 1 {
		t.Errorf("DupsRemoved = %d, want 1", out.DupsRemoved)
	}
	if len(out.Results) != 3 {
		t.Fatalf("len(Results) = %d, want 3", len(out.Results))
	}
	for i := 1; i < len(out.Results); i++ {
		if out.Results[i].RelevanceScore > out.Results[i-1].RelevanceScore {
			t.Errorf("results not sorted: [%d].Score=%f > [%d].Score=%f",
				i, out.Results[i].RelevanceScore, i-1, out.Results[i-1].RelevanceScore)
		}
	}
}

func TestSearchMergeOrderFollowsBackendOrder(t *testing.T) {
	// b1 finishes last but is listed first, so its record survives the merge.
	b1 := &mockBackend{name: "b1", delay: 20 * time.Millisecond, results: []types.SearchResult{
		{Identifier: "W1", Title: "From b1", Source: "b1", RelevanceScore: 0.5},
	}}
	b2 := &mockBackend{name: "b2", results: []types.SearchResult{
		{Identifier: "W1", Title: "From b2", Source: "b2", RelevanceScore: 0.5},
	}}

	var buf bytes.Buffer
	out, err := Search(context.Background(), Query{FreeText: "test"}, []Backend{b1, b2}, testCfg(), false, &buf)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out.Results) != 1 || out.Results[0].Title != "From b1" {
		t.Errorf("Results = %+v, want b1's record", out.Results)
	}
}

func TestSearchMaxResults(t *testing.T) {
	var results []types.SearchResult
	for i := 0; i < 30; i++ {
		results = append(results, types.SearchResult{
			Identifier:     fmt.Sprintf("id-%d", i),
			Title:          fmt.Sprintf("Paper %d", i),
			Source:         "mock",
			RelevanceScore: 1.0 - float64(i)/30.0,
		})
	}

	cfg := testCfg()
	cfg.MaxResults = 10
	var buf bytes.Buffer
	out, err := Search(context.Background(), Query{FreeText: "test"}, []Backend{&mockBackend{name: "mock", results: results}}, cfg, false, &buf)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out.Results) != 10 {
		t.Errorf("len(Results) = %d, want 10", len(out.Results))
	}
}

// --- PubMed backend ---

func TestBuildPubMedTerm(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{"free text", Query{FreeText: "crispr"}, "crispr"},
		{"author", Query{Author: "Doudna J"}, "Doudna J[au]"},
		{"all fields", Query{FreeText: "crispr", Author: "Doudna", Keywords: []string{"base editing", " "}}, "crispr AND Doudna[au] AND base editing"},
		{"empty", Query{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildPubMedTerm(tt.query); got != tt.want {
				t.Errorf("buildPubMedTerm() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPubMedBackendSearch(t *testing.T) {
	var term, retmax string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/esearch.fcgi"):
			term, retmax = r.URL.Query().Get("term"), r.URL.Query().Get("retmax")
			fmt.Fprint(w, `<eSearchResult><Count>1</Count><IdList><Id>111</Id></IdList></eSearchResult>`)
		case strings.HasSuffix(r.URL.Path, "/efetch.fcgi"):
			fmt.Fprint(w, `<PubmedArticleSet><PubmedArticle><MedlineCitation><PMID>111</PMID>
<Article><ArticleTitle>Gene drives.</ArticleTitle><Journal><Title>Science</Title>
<JournalIssue><PubDate><Year>2020</Year></PubDate></JournalIssue></Journal></Article>
</MedlineCitation><PubmedData><ArticleIdList><ArticleId IdType="doi">10.1/gd</ArticleId></ArticleIdList></PubmedData>
</PubmedArticle></PubmedArticleSet>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	client := pubmed.New(types.PubMedConfig{BaseURL: ts.URL}, testFetcher(t))
	b := &PubMedBackend{Client: client}
	if b.Name() != "pubmed" {
		t.Errorf("Name() = %q", b.Name())
	}

	cfg := testCfg()
	cfg.MaxResults = 7
	results, err := b.Search(context.Background(), Query{FreeText: "gene drive", Author: "Esvelt"}, cfg)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if term != "gene drive AND Esvelt[au]" || retmax != "7" {
		t.Errorf("term/retmax = %q/%q", term, retmax)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	r := results[0]
	if r.PMID != "111" || r.DOI != "10.1/gd" || r.Title != "Gene drives" || r.Journal != "Science" || r.Source != "pubmed" {
		t.Errorf("result = %+v", r)
	}
}

// --- Output formatting ---

func TestFormatTable(t *testing.T) {
	out := SearchOutput{
		Results: []types.SearchResult{
			{Title: "Paper A", Authors: []string{"Smith"}, Date: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), Source: "pubmed", RelevanceScore: 0.95},
			{Title: "Paper B", Authors: []string{"Jones", "Doe"}, Date: time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC), Source: "semantic_scholar", RelevanceScore: 0.80},
		},
		DupsRemoved: 1,
	}

	var buf bytes.Buffer
	FormatTable(out, &buf)
	s := buf.String()

	for _, want := range []string{"Paper A", "Paper B", "Jones et al.", "2023", "1 duplicates removed"} {
		if !strings.Contains(s, want) {
			t.Errorf("table should contain %q:\n%s", want, s)
		}
	}
}

func TestFormatTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	FormatTable(SearchOutput{}, &buf)
	if !strings.Contains(buf.String(), "No results") {
		t.Error("empty output should say 'No results'")
	}
}

func TestFormatJSON(t *testing.T) {
	out := SearchOutput{
		Results: []types.SearchResult{
			{Identifier: "10.1/a", DOI: "10.1/a", Title: "Paper A", Source: "openalex", RelevanceScore: 0.9},
		},
	}

	var buf bytes.Buffer
	if err := FormatJSON(out, &buf); err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}

	var parsed []types.SearchResult
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if len(parsed) != 1 || parsed[0].DOI != "10.1/a" {
		t.Errorf("parsed = %+v", parsed)
	}
}

// --- Query files ---

func TestQueryFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries", "crispr.yaml")
	q := Query{
		FreeText: "crispr",
		Author:   "Doudna",
		Keywords: []string{"base editing"},
		DateFrom: time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	cfg := testCfg()
	cfg.Sources = []string{"pubmed", "openalex"}
	out := SearchOutput{
		Results: []types.SearchResult{
			{Identifier: "111", PMID: "111", Title: "Paper", Source: "pubmed,openalex"},
			{Identifier: "W2", Title: "Other", Source: "openalex"},
		},
		DupsRemoved:   2,
		BackendErrors: []string{"openalex: HTTP 500"},
	}

	if err := WriteQueryFile(path, q, cfg, true, out); err != nil {
		t.Fatalf("WriteQueryFile: %v", err)
	}
	qf, err := ReadQueryFile(path)
	if err != nil {
		t.Fatalf("ReadQueryFile: %v", err)
	}

	if qf.Config.MaxResults != 20 || !qf.Config.RecencyBias || len(qf.Config.Sources) != 2 {
		t.Errorf("Config = %+v", qf.Config)
	}
	if qf.Summary.Total != 2 || qf.Summary.DuplicatesRemoved != 2 || len(qf.Summary.BackendErrors) != 1 {
		t.Errorf("Summary = %+v", qf.Summary)
	}
	if qf.Summary.BySource["pubmed"] != 1 || qf.Summary.BySource["openalex"] != 2 {
		t.Errorf("BySource = %v, want pubmed:1 openalex:2", qf.Summary.BySource)
	}
	if len(qf.Results) != 2 || qf.Results[0].PMID != "111" {
		t.Errorf("Results = %+v", qf.Results)
	}
	if got := qf.Output(); got.DupsRemoved != 2 || len(got.Results) != 2 || len(got.BackendErrors) != 1 {
		t.Errorf("Output() = %+v", got)
	}

	back, err := qf.Query.ToQuery()
	if err != nil {
		t.Fatalf("ToQuery: %v", err)
	}
	if back.FreeText != "crispr" || back.Author != "Doudna" || !back.DateFrom.Equal(q.DateFrom) || !back.DateTo.IsZero() {
		t.Errorf("ToQuery = %+v", back)
	}
}

func TestQueryParamsInvalidDate(t *testing.T) {
	_, err := QueryParams{FreeText: "x", DateFrom: "2020/01/01"}.ToQuery()
	if err == nil || !strings.Contains(err.Error(), "date_from") {
		t.Errorf("expected date_from error, got %v", err)
	}
}

// --- Helper functions ---

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Attention Is All You Need", "attention is all you need"},
		{"attention is all you need!", "attention is all you need"},
		{"  BERT:  Pre-training  ", "bert pretraining"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := normalizeTitle(tt.input)
			if got != tt.want {
				t.Errorf("normalizeTitle(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMergeInto(t *testing.T) {
	dst := types.SearchResult{
		Identifier:     "111",
		PMID:           "111",
		Title:          "Paper A",
		Source:         "pubmed",
		RelevanceScore: 0.8,
	}
	src := types.SearchResult{
		Identifier:     "10.1/a",
		DOI:            "10.1/a",
		Title:          "Paper A (extended)",
		Authors:        []string{"Smith", "Jones"},
		Abstract:       "An abstract.",
		Journal:        "Cell",
		Source:         "semantic_scholar",
		RelevanceScore: 0.9,
		Date:           time.Date(2023, 1, 17, 0, 0, 0, 0, time.UTC),
	}

	mergeInto(&dst, src)

	if dst.Title != "Paper A" {
		t.Errorf("Title should be kept, got %q", dst.Title)
	}
	if len(dst.Authors) != 2 || dst.Abstract != "An abstract." || dst.Journal != "Cell" {
		t.Errorf("empty fields should be filled from src: %+v", dst)
	}
	if dst.DOI != "10.1/a" || dst.PMID != "111" {
		t.Errorf("DOI/PMID = %q/%q", dst.DOI, dst.PMID)
	}
	if !dst.Date.Equal(time.Date(2023, 1, 17, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date should be filled from src")
	}
	if math.Abs(dst.RelevanceScore-0.9) > 0.001 {
		t.Errorf("RelevanceScore should be max(0.8, 0.9) = 0.9, got %f", dst.RelevanceScore)
	}
	if dst.Source != "pubmed,semantic_scholar" {
		t.Errorf("Source should contain both backends, got %q", dst.Source)
	}

	// Merging the same source again does not repeat it.
	mergeInto(&dst, types.SearchResult{Source: "pubmed"})
	if dst.Source != "pubmed,semantic_scholar" {
		t.Errorf("Source = %q after repeat merge", dst.Source)
	}
}
