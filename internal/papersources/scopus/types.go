package scopus

import (
	"encoding/json"
	"strings"
)

// SearchResponse represents the top-level Scopus search API response.
type SearchResponse struct {
	SearchResults SearchResults `json:"search-results"`
}

// SearchResults contains the search result metadata and entries.
type SearchResults struct {
	TotalResults string  `json:"opensearch:totalResults"`
	StartIndex   string  `json:"opensearch:startIndex"`
	ItemsPerPage string  `json:"opensearch:itemsPerPage"`
	Entries      []Entry `json:"entry"`
}

// Entry represents a single document in the Scopus search results.
// An empty result set is reported as a single entry carrying only Error.
type Entry struct {
	Identifier string `json:"dc:identifier"` // "SCOPUS_ID:85012345678"
	Title      string `json:"dc:title"`
	CoverDate  string `json:"prism:coverDate"` // "2024-01-15"
	Error      string `json:"error"`
}

// ScopusID strips the "SCOPUS_ID:" prefix from the entry identifier.
func (e *Entry) ScopusID() string {
	return strings.TrimSpace(strings.TrimPrefix(e.Identifier, "SCOPUS_ID:"))
}

// AbstractResponse is the envelope of the abstract retrieval API.
type AbstractResponse struct {
	Retrieval AbstractRetrieval `json:"abstracts-retrieval-response"`
}

// AbstractRetrieval holds the FULL view of one document.
type AbstractRetrieval struct {
	Coredata     Coredata     `json:"coredata"`
	AuthKeywords AuthKeywords `json:"authkeywords"`
	Authors      Authors      `json:"authors"`
}

// Coredata carries bibliographic fields.
type Coredata struct {
	Title       string `json:"dc:title"`
	CoverDate   string `json:"prism:coverDate"`
	Description string `json:"dc:description"`
	DOI         string `json:"prism:doi"`
	Links       []Link `json:"link"`
}

// Link is one of the typed links attached to a document.
type Link struct {
	Ref  string `json:"@ref"`
	Href string `json:"@href"`
}

// LinkByRef returns the href of the first link with the given ref.
func (c *Coredata) LinkByRef(ref string) string {
	for _, l := range c.Links {
		if l.Ref == ref {
			return strings.TrimSpace(l.Href)
		}
	}
	return ""
}

// AuthKeywords holds author keywords. Scopus serialises a single keyword as
// an object and several as an array, so decoding is deferred.
type AuthKeywords struct {
	Keyword json.RawMessage `json:"author-keyword"`
}

// Keyword is a single author keyword.
type Keyword struct {
	Value string `json:"$"`
}

// Values decodes the keyword list regardless of its JSON shape.
func (k AuthKeywords) Values() []string {
	if len(k.Keyword) == 0 {
		return nil
	}
	var many []Keyword
	if err := json.Unmarshal(k.Keyword, &many); err != nil {
		var one Keyword
		if err := json.Unmarshal(k.Keyword, &one); err != nil {
			return nil
		}
		many = []Keyword{one}
	}
	out := make([]string, 0, len(many))
	for _, kw := range many {
		if v := strings.TrimSpace(kw.Value); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Authors wraps the author list. A single author may be serialised as an object.
type Authors struct {
	Author json.RawMessage `json:"author"`
}

// Author is one entry of the document's author list.
type Author struct {
	AUID string `json:"@auid"`
	Seq  string `json:"@seq"`
}

// List decodes the author list regardless of its JSON shape.
func (a Authors) List() []Author {
	if len(a.Author) == 0 {
		return nil
	}
	var many []Author
	if err := json.Unmarshal(a.Author, &many); err != nil {
		var one Author
		if err := json.Unmarshal(a.Author, &one); err != nil {
			return nil
		}
		many = []Author{one}
	}
	return many
}
