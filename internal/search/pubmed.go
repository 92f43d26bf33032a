// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/litfetch/internal/pubmed"
	"github.com/pdiddy/litfetch/pkg/types"
)

// PubMedBackend searches PubMed through the E-utilities client.
type PubMedBackend struct {
	Client *pubmed.Client
}

// Name returns the backend identifier.
func (b *PubMedBackend) Name() string { return pubmed.SourceName }

// Search runs esearch + efetch for the query.
func (b *PubMedBackend) Search(ctx context.Context, query Query, cfg types.SearchConfig) ([]types.SearchResult, error) {
	term := buildPubMedTerm(query)
	if term == "" {
		return nil, fmt.Errorf("empty PubMed query")
	}
	results, _, err := b.Client.Search(ctx, pubmed.Term{
		Query:      term,
		DateFrom:   query.DateFrom,
		DateTo:     query.DateTo,
		MaxResults: cfg.MaxResults,
	})
	return results, err
}

// buildPubMedTerm maps the query onto PubMed field tags: the author goes to
// [au], keywords are ANDed as free terms.
func buildPubMedTerm(q Query) string {
	var parts []string
	if q.FreeText != "" {
		parts = append(parts, q.FreeText)
	}
	if q.Author != "" {
		parts = append(parts, q.Author+"[au]")
	}
	for _, kw := range q.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			parts = append(parts, kw)
		}
	}
	return strings.Join(parts, " AND ")
}
