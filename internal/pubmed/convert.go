// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pubmed

import (
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/litfetch/pkg/types"
)

// SourceName is the SearchResult.Source value for PubMed records.
const SourceName = "pubmed"

// ToSearchResult converts an efetch record to the common result type. The
// PMID is the identifier; the DOI comes from ArticleIdList, then ELocationID.
func ToSearchResult(a Article) types.SearchResult {
	pmid := strings.TrimSpace(a.Citation.PMID)
	info := a.Citation.Article

	authors := make([]string, 0, len(info.Authors))
	for _, au := range info.Authors {
		if name := strings.TrimSpace(au.Name()); name != "" {
			authors = append(authors, name)
		}
	}

	return types.SearchResult{
		Identifier: pmid,
		PMID:       pmid,
		DOI:        articleDOI(a),
		Title:      strings.TrimSuffix(info.Title.Text(), "."),
		Authors:    authors,
		Abstract:   abstractText(info.Abstract),
		Journal:    info.Journal.Title,
		Date:       articleDate(a),
		Source:     SourceName,
	}
}

func articleDOI(a Article) string {
	for _, id := range a.Data.ArticleIDs {
		if strings.EqualFold(id.Type, "doi") {
			return strings.TrimSpace(id.Value)
		}
	}
	for _, el := range a.Citation.Article.ELocationIDs {
		if strings.EqualFold(el.Type, "doi") {
			return strings.TrimSpace(el.Value)
		}
	}
	return ""
}

// abstractText joins the sections, prefixing labelled ones ("METHODS: ...").
func abstractText(sections []AbstractText) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		text := s.Text()
		if text == "" {
			continue
		}
		if s.Label != "" {
			text = s.Label + ": " + text
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}

// articleDate prefers the electronic ArticleDate, then the journal PubDate,
// then the first year found in MedlineDate.
func articleDate(a Article) time.Time {
	for _, d := range a.Citation.Article.ArticleDates {
		if t := buildDate(d.Year, d.Month, d.Day); !t.IsZero() {
			return t
		}
	}
	pd := a.Citation.Article.Journal.PubDate
	if t := buildDate(pd.Year, pd.Month, pd.Day); !t.IsZero() {
		return t
	}
	for _, f := range strings.Fields(pd.MedlineDate) {
		if len(f) >= 4 {
			if t := buildDate(f[:4], "", ""); !t.IsZero() {
				return t
			}
		}
	}
	return time.Time{}
}

func buildDate(year, month, day string) time.Time {
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil || y <= 0 {
		return time.Time{}
	}
	m := parseMonth(month)
	d, err := strconv.Atoi(strings.TrimSpace(day))
	if err != nil || d < 1 || d > 31 {
		d = 1
	}
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseMonth accepts "03", "3", "Mar" or "March"; anything else is January.
func parseMonth(s string) time.Month {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.January
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 1 && n <= 12 {
			return time.Month(n)
		}
		return time.January
	}
	if len(s) >= 3 {
		prefix := strings.ToLower(s[:3])
		for m := time.January; m <= time.December; m++ {
			if strings.ToLower(m.String()[:3]) == prefix {
				return m
			}
		}
	}
	return time.January
}
