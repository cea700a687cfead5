package domain

import (
	"regexp"
	"strings"
	"time"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Publication is a persisted publication shared by every author linked to it.
// Identity is (Title, PublicationDate). DateAdded is set once on insert.
type Publication struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	PublicationDate time.Time `json:"publication_date"`
	Keywords        string    `json:"keywords"`
	Abstract        string    `json:"abstract"`
	DateAdded       time.Time `json:"date_added"`
	URL             string    `json:"url"`
	Source          string    `json:"source"`
}

// KeywordList splits the stored keyword string into normalized keywords.
func (p *Publication) KeywordList() []string {
	return SplitKeywords(p.Keywords)
}

// AuthorPublication links an author to a publication at a given author position.
type AuthorPublication struct {
	ID            int64 `json:"id"`
	AuthorID      int64 `json:"author_id"`
	PublicationID int64 `json:"publication_id"`
	AuthorOrder   int   `json:"author_order"`
}

// PublicationRecord is the canonical, source-independent shape of a fetched
// publication. It is never persisted directly.
type PublicationRecord struct {
	Title           string
	PublicationDate time.Time
	Keywords        string
	Abstract        string
	URL             string
	Source          SourceTag
	AuthorOrder     int
}

// Year returns the publication year, or 0 when the date is unset.
func (r PublicationRecord) Year() int {
	if r.PublicationDate.IsZero() {
		return 0
	}
	return r.PublicationDate.Year()
}

// KeywordSeparator joins normalized keywords in the stored keyword string.
const KeywordSeparator = ", "

// NormalizeKeyword lowercases a keyword, trims it and collapses inner whitespace.
func NormalizeKeyword(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return whitespaceRegex.ReplaceAllString(strings.ToLower(s), " ")
}

// SplitKeywords splits a comma-joined keyword string into normalized, non-empty keywords.
func SplitKeywords(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if kw := NormalizeKeyword(p); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
