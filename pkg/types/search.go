// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures and configuration for litfetch.
package types

import "time"

// SearchResult represents a candidate paper returned by a literature API.
type SearchResult struct {
	// Identifier is the canonical ID from the source (PMID, DOI, or source ID).
	Identifier string `json:"identifier" yaml:"identifier"`

	// PMID is the PubMed identifier when known.
	PMID string `json:"pmid,omitempty" yaml:"pmid,omitempty"`

	// DOI is the bare DOI (no https://doi.org/ prefix) when known.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// Title is the paper title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Abstract is the paper abstract or summary.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Journal is the journal or venue name.
	Journal string `json:"journal,omitempty" yaml:"journal,omitempty"`

	// Date is the publication date.
	Date time.Time `json:"date" yaml:"date"`

	// Source identifies which backend found this result (e.g. "pubmed", "openalex").
	Source string `json:"source" yaml:"source"`

	// RelevanceScore is a value between 0.0 and 1.0 indicating relevance to the query.
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`
}
