// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pubmed

import (
	"encoding/xml"
	"html"
	"strings"
)

// ESearchResult is the esearch.fcgi response: the hit count and one page of PMIDs.
type ESearchResult struct {
	XMLName   xml.Name   `xml:"eSearchResult"`
	Count     int        `xml:"Count"`
	RetMax    int        `xml:"RetMax"`
	RetStart  int        `xml:"RetStart"`
	IDs       []string   `xml:"IdList>Id"`
	ErrorList *ErrorList `xml:"ErrorList,omitempty"`
	Error     string     `xml:"ERROR,omitempty"`
}

// ErrorList holds the soft errors esearch reports alongside results.
type ErrorList struct {
	PhraseNotFound []string `xml:"PhraseNotFound,omitempty"`
	FieldNotFound  []string `xml:"FieldNotFound,omitempty"`
}

// ArticleSet is the efetch.fcgi response for db=pubmed.
type ArticleSet struct {
	XMLName  xml.Name  `xml:"PubmedArticleSet"`
	Articles []Article `xml:"PubmedArticle"`
}

// Article is one PubmedArticle record.
type Article struct {
	Citation MedlineCitation `xml:"MedlineCitation"`
	Data     PubmedData      `xml:"PubmedData"`
}

// MedlineCitation holds the bibliographic record.
type MedlineCitation struct {
	PMID        string      `xml:"PMID"`
	Article     ArticleInfo `xml:"Article"`
	KeywordList []string    `xml:"KeywordList>Keyword"`
	MeshHeading []MeshDesc  `xml:"MeshHeadingList>MeshHeading>DescriptorName"`
}

// ArticleInfo is the Article element inside a MedlineCitation.
type ArticleInfo struct {
	Journal      Journal        `xml:"Journal"`
	Title        Markup         `xml:"ArticleTitle"`
	Abstract     []AbstractText `xml:"Abstract>AbstractText"`
	Authors      []Author       `xml:"AuthorList>Author"`
	ELocationIDs []ELocationID  `xml:"ELocationID"`
	ArticleDates []Date         `xml:"ArticleDate"`
}

// Journal holds the journal title and issue date.
type Journal struct {
	Title           string  `xml:"Title"`
	ISOAbbreviation string  `xml:"ISOAbbreviation"`
	PubDate         PubDate `xml:"JournalIssue>PubDate"`
}

// PubDate is a journal issue date. MedlineDate carries free-form ranges
// such as "1998 Dec-1999 Jan" when Year is absent.
type PubDate struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	Day         string `xml:"Day"`
	MedlineDate string `xml:"MedlineDate"`
}

// Date is a fully numeric date such as ArticleDate.
type Date struct {
	Year  string `xml:"Year"`
	Month string `xml:"Month"`
	Day   string `xml:"Day"`
}

// Markup is element text that may contain inline tags (<i>, <sup>, ...).
type Markup struct {
	Inner string `xml:",innerxml"`
}

// Text returns the element text with inline tags removed, entities decoded
// and whitespace collapsed.
func (m Markup) Text() string {
	var b strings.Builder
	inTag := false
	for _, r := range m.Inner {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(html.UnescapeString(b.String())), " ")
}

// AbstractText is one (possibly labelled) abstract section.
type AbstractText struct {
	Label string `xml:"Label,attr"`
	Inner string `xml:",innerxml"`
}

// Text returns the section text without inline markup.
func (a AbstractText) Text() string {
	return Markup{Inner: a.Inner}.Text()
}

// Author is one author or a collective.
type Author struct {
	LastName       string `xml:"LastName"`
	ForeName       string `xml:"ForeName"`
	Initials       string `xml:"Initials"`
	CollectiveName string `xml:"CollectiveName"`
}

// Name returns "ForeName LastName", falling back to initials or the collective name.
func (a Author) Name() string {
	switch {
	case a.CollectiveName != "":
		return a.CollectiveName
	case a.ForeName != "":
		return a.ForeName + " " + a.LastName
	case a.Initials != "":
		return a.Initials + " " + a.LastName
	default:
		return a.LastName
	}
}

// ELocationID is an electronic location (DOI or PII).
type ELocationID struct {
	Type  string `xml:"EIdType,attr"`
	Value string `xml:",chardata"`
}

// MeshDesc is a MeSH descriptor name.
type MeshDesc struct {
	Value string `xml:",chardata"`
}

// PubmedData holds the identifiers assigned by PubMed.
type PubmedData struct {
	ArticleIDs []ArticleID `xml:"ArticleIdList>ArticleId"`
}

// ArticleID is one identifier (pubmed, doi, pmc, ...).
type ArticleID struct {
	Type  string `xml:"IdType,attr"`
	Value string `xml:",chardata"`
}

// LinkResult is the elink.fcgi response.
type LinkResult struct {
	XMLName  xml.Name  `xml:"eLinkResult"`
	LinkSets []LinkSet `xml:"LinkSet"`
	Error    string    `xml:"ERROR,omitempty"`
}

// LinkSet groups the links found for the source IDs.
type LinkSet struct {
	DBFrom string      `xml:"DbFrom"`
	IDs    []string    `xml:"IdList>Id"`
	DBs    []LinkSetDB `xml:"LinkSetDb"`
	Error  string      `xml:"ERROR,omitempty"`
}

// LinkSetDB lists the linked IDs for one link name (e.g. pubmed_pubmed).
type LinkSetDB struct {
	DBTo     string   `xml:"DbTo"`
	LinkName string   `xml:"LinkName"`
	IDs      []string `xml:"Link>Id"`
}
