// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litfetch/internal/ratefetch"
	"github.com/pdiddy/litfetch/internal/search"
	"github.com/pdiddy/litfetch/internal/secrets"
	"github.com/pdiddy/litfetch/pkg/types"
)

// --- config ---

func TestDecodeConfigDefaults(t *testing.T) {
	v := viper.New()
	registerDefaults(v)

	var c types.Config
	require.NoError(t, decodeConfig(v, &c))

	assert.Equal(t, ratefetch.DefaultMinInterval, c.Fetch.MinInterval)
	assert.Equal(t, ratefetch.DefaultMaxRetries, c.Fetch.MaxRetries)
	assert.Equal(t, int64(ratefetch.DefaultMaxBodyBytes), c.Fetch.MaxBodyBytes)
	assert.Equal(t, 350*time.Millisecond, c.PubMed.Fetch.MinInterval)
	assert.Equal(t, time.Second, c.SemanticScholar.Fetch.MinInterval)
	assert.Equal(t, defaultSources, c.Search.Sources)
	assert.Equal(t, "library", c.Library.Dir)
	assert.Equal(t, "warn", c.Logging.Level)
}

func TestDecodeConfigFromYAML(t *testing.T) {
	v := viper.New()
	registerDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
fetch:
  base_delay: 250ms
  max_retries: 5
openalex:
  email: me@example.org
  fetch:
    min_interval: 2s
search:
  sources: [pubmed]
logging:
  format: json
`)))

	var c types.Config
	require.NoError(t, decodeConfig(v, &c))

	assert.Equal(t, 250*time.Millisecond, c.Fetch.BaseDelay)
	assert.Equal(t, 5, c.Fetch.MaxRetries)
	assert.Equal(t, 2*time.Second, c.OpenAlex.Fetch.MinInterval)
	assert.Equal(t, "me@example.org", c.OpenAlex.Email)
	assert.Equal(t, []string{"pubmed"}, c.Search.Sources)
	assert.Equal(t, "json", c.Logging.Format)
	assert.Equal(t, ratefetch.DefaultTimeout, c.Fetch.Timeout, "unset keys keep defaults")
}

func TestApplySecrets(t *testing.T) {
	c := types.Config{
		PubMed:   types.PubMedConfig{Fetch: types.FetchConfig{MinInterval: 350 * time.Millisecond}},
		OpenAlex: types.OpenAlexConfig{Email: "configured@example.org"},
	}
	applySecrets(&c, secrets.Secrets{
		secrets.NCBIAPIKey:            "ncbi",
		secrets.OpenAlexEmail:         "secret@example.org",
		secrets.SemanticScholarAPIKey: "s2",
	})

	assert.Equal(t, "ncbi", c.PubMed.APIKey)
	assert.Equal(t, 100*time.Millisecond, c.PubMed.Fetch.MinInterval, "API key raises the NCBI allowance")
	assert.Equal(t, "configured@example.org", c.OpenAlex.Email, "config wins over secrets")
	assert.Equal(t, "s2", c.SemanticScholar.APIKey)
	assert.Empty(t, c.PubMed.Email)
}

func TestHostFetchConfig(t *testing.T) {
	base := types.FetchConfig{
		MinInterval: time.Second,
		MaxRetries:  3,
		BaseDelay:   time.Second,
		Timeout:     30 * time.Second,
		UserAgent:   "litfetch/test",
	}
	got := hostFetchConfig(base, types.FetchConfig{MinInterval: 100 * time.Millisecond, MaxRetries: 6})

	assert.Equal(t, 100*time.Millisecond, got.MinInterval)
	assert.Equal(t, 6, got.MaxRetries)
	assert.Equal(t, time.Second, got.BaseDelay)
	assert.Equal(t, "litfetch/test", got.UserAgent)

	got = hostFetchConfig(base, types.FetchConfig{MaxRetries: -1})
	assert.Equal(t, -1, got.MaxRetries, "negative host value disables retries")
}

// --- backends ---

func TestBuildBackends(t *testing.T) {
	cfg = types.Config{}
	var fs fetcherSet
	defer fs.Close()

	backends, err := fs.buildBackends([]string{"Semantic-Scholar", "pubmed", "s2", " openalex "})
	require.NoError(t, err)

	var names []string
	for _, b := range backends {
		names = append(names, b.Name())
	}
	assert.Equal(t, []string{"semantic_scholar", "pubmed", "openalex"}, names)
	assert.Len(t, fs.fetchers, 3, "one fetcher per host")

	_, isPubMed := backends[1].(*search.PubMedBackend)
	assert.True(t, isPubMed)
}

func TestBuildBackendsErrors(t *testing.T) {
	cfg = types.Config{}
	var fs fetcherSet
	defer fs.Close()

	_, err := fs.buildBackends([]string{"arxiv"})
	assert.ErrorContains(t, err, `unknown source "arxiv"`)

	_, err = fs.buildBackends([]string{" ", ""})
	assert.ErrorContains(t, err, "no sources selected")

	backends, err := fs.buildBackends(nil)
	require.NoError(t, err)
	assert.Len(t, backends, len(defaultSources))
}

// --- fetch ---

func fastFetcher(t *testing.T) *ratefetch.Fetcher {
	t.Helper()
	f := ratefetch.New(types.FetchConfig{
		MinInterval: time.Millisecond,
		MaxRetries:  2,
		BaseDelay:   5 * time.Millisecond,
	}, ratefetch.WithName(t.Name()))
	t.Cleanup(func() { f.Close() })
	return f
}

func TestFetchAllCoalescesDuplicates(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	urls := []string{srv.URL + "/a", srv.URL + "/a", srv.URL + "/a", srv.URL + "/b"}
	outcomes := fetchAll(context.Background(), fastFetcher(t), urls, ratefetch.RequestOptions{})

	require.Len(t, outcomes, 4)
	for i, o := range outcomes {
		require.NoError(t, o.err)
		assert.Equal(t, urls[i], o.url, "outcomes keep argument order")
	}
	assert.Equal(t, "/b", string(outcomes[3].resp.Body))
	assert.Same(t, outcomes[0].resp, outcomes[1].resp, "duplicates share one response")
	assert.Equal(t, int32(2), hits.Load())
}

func TestReportFetches(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	outcomes := []fetchOutcome{
		{url: "https://api.example.org/works/W1", resp: &ratefetch.Response{StatusCode: 200, Body: []byte("one")}},
		{url: "https://api.example.org/missing", resp: &ratefetch.Response{StatusCode: 404, Body: []byte("nope")}},
		{url: "https://api.example.org/slow", err: ratefetch.ErrRateLimitExceeded},
	}

	var buf bytes.Buffer
	err := reportFetches(&buf, outcomes, dir)
	assert.EqualError(t, err, "2 of 3 fetches failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "200 "))
	assert.Contains(t, lines[1], "404")
	assert.Contains(t, lines[2], "ERR")
	assert.Contains(t, lines[2], "rate limit exceeded")

	data, err := os.ReadFile(filepath.Join(dir, "001-api.example.org_works_W1"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
}

func TestParseHeaders(t *testing.T) {
	h, err := parseHeaders([]string{"Accept: application/json", "X-Api-Key:abc", "Accept: text/xml"})
	require.NoError(t, err)
	assert.Equal(t, []string{"application/json", "text/xml"}, h.Values("Accept"))
	assert.Equal(t, "abc", h.Get("X-Api-Key"))

	_, err = parseHeaders([]string{"no colon"})
	assert.Error(t, err)

	h, err = parseHeaders(nil)
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestReadBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"q":1}`), 0o644))

	b, err := readBody("@" + path)
	require.NoError(t, err)
	assert.Equal(t, `{"q":1}`, string(b))

	b, err = readBody("inline")
	require.NoError(t, err)
	assert.Equal(t, "inline", string(b))

	b, err = readBody("")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestSplitIDs(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, splitIDs([]string{"1,2", " 3 ", ","}))
}

func TestFetchCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"fetch", "-H", "X-Test: yes", srv.URL + "/hello"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "200")
	assert.Contains(t, buf.String(), "5 bytes")
}
