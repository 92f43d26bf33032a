// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"

	"github.com/pdiddy/litfetch/internal/pubmed"
	"github.com/pdiddy/litfetch/internal/ratefetch"
	"github.com/pdiddy/litfetch/internal/search"
	"github.com/pdiddy/litfetch/pkg/types"
)

// Source names accepted by --sources.
const (
	sourcePubMed          = pubmed.SourceName
	sourceOpenAlex        = "openalex"
	sourceSemanticScholar = "semantic_scholar"
)

var defaultSources = []string{sourcePubMed, sourceOpenAlex, sourceSemanticScholar}

// hostFetchConfig overlays the per-host settings on the shared fetch
// settings. Zero host fields inherit from base; a negative MaxRetries
// disables retries for that host.
func hostFetchConfig(base, host types.FetchConfig) types.FetchConfig {
	out := base
	if host.MinInterval > 0 {
		out.MinInterval = host.MinInterval
	}
	if host.MaxRetries != 0 {
		out.MaxRetries = host.MaxRetries
	}
	if host.BaseDelay > 0 {
		out.BaseDelay = host.BaseDelay
	}
	if host.MaxBodyBytes > 0 {
		out.MaxBodyBytes = host.MaxBodyBytes
	}
	if host.Timeout > 0 {
		out.Timeout = host.Timeout
	}
	if host.UserAgent != "" {
		out.UserAgent = host.UserAgent
	}
	return out
}

// fetcherSet owns the fetchers a command creates, one per upstream host.
type fetcherSet struct {
	fetchers []*ratefetch.Fetcher
}

// get returns a new fetcher named name that reports into the shared
// metrics registry.
func (s *fetcherSet) get(name string, host types.FetchConfig) *ratefetch.Fetcher {
	f := ratefetch.New(hostFetchConfig(cfg.Fetch, host),
		ratefetch.WithName(name),
		ratefetch.WithLogger(log),
		ratefetch.WithMetrics(fetchMetrics),
	)
	s.fetchers = append(s.fetchers, f)
	return f
}

// Close closes every fetcher and logs their final counters.
func (s *fetcherSet) Close() {
	for _, f := range s.fetchers {
		st := f.Stats()
		log.Debug().Str("fetcher", f.Name()).Int64("dispatched", st.Dispatched).Msg("fetcher closed")
		f.Close()
	}
	s.fetchers = nil
}

// pubmedClient returns an E-utilities client on its own fetcher.
func (s *fetcherSet) pubmedClient() *pubmed.Client {
	return pubmed.New(cfg.PubMed, s.get(sourcePubMed, cfg.PubMed.Fetch))
}

// buildBackends returns a backend per source name, in the order given.
// Repeated names are ignored.
func (s *fetcherSet) buildBackends(sources []string) ([]search.Backend, error) {
	if len(sources) == 0 {
		sources = defaultSources
	}

	seen := make(map[string]bool, len(sources))
	var backends []search.Backend
	for _, raw := range sources {
		name := normalizeSource(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case sourcePubMed:
			backends = append(backends, &search.PubMedBackend{Client: s.pubmedClient()})
		case sourceOpenAlex:
			backends = append(backends, &search.OpenAlexBackend{
				Fetcher: s.get(sourceOpenAlex, cfg.OpenAlex.Fetch),
				Email:   cfg.OpenAlex.Email,
			})
		case sourceSemanticScholar:
			backends = append(backends, &search.SemanticScholarBackend{
				Fetcher: s.get(sourceSemanticScholar, cfg.SemanticScholar.Fetch),
				APIKey:  cfg.SemanticScholar.APIKey,
			})
		default:
			return nil, fmt.Errorf("unknown source %q (want %s)", raw, strings.Join(defaultSources, ", "))
		}
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no sources selected")
	}
	return backends, nil
}

// normalizeSource maps accepted spellings onto the canonical source name.
func normalizeSource(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "semantic-scholar", "semanticscholar", "s2":
		return sourceSemanticScholar
	default:
		return s
	}
}
