package domain

import "time"

// Summary holds the row counts shown on the index page.
type Summary struct {
	Authors            int64 `json:"authors_count"`
	Publications       int64 `json:"publications_count"`
	ResearchGroups     int64 `json:"research_groups_count"`
	AuthorPublications int64 `json:"author_publications_count"`
}

// NewPublications lists publications dated strictly after Since.
type NewPublications struct {
	Since        time.Time      `json:"since"`
	Count        int            `json:"count"`
	Publications []*Publication `json:"papers"`
}

// KeywordCount is the number of publications carrying a keyword.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int64  `json:"count"`
}

// GroupKeywordCounts are the keyword counts over one group's publications.
type GroupKeywordCounts struct {
	Group    string         `json:"group"`
	Keywords []KeywordCount `json:"keywords"`
}

// MultiGroupPublication is a publication co-authored across research groups.
type MultiGroupPublication struct {
	Publication
	Groups []string `json:"groups"`
}

// AuthorMultiGroupCount is how many multi-group publications an author of
// Group is linked to.
type AuthorMultiGroupCount struct {
	Group  string `json:"group"`
	Author string `json:"author"`
	Count  int64  `json:"count"`
}

// GroupPublications lists the distinct publications of one group's authors.
type GroupPublications struct {
	Group        string         `json:"group"`
	Total        int            `json:"total"`
	Publications []*Publication `json:"publications"`
}
