package orcid

import "strings"

// WorksResponse is the body of GET /{orcid}/works.
type WorksResponse struct {
	Groups []WorkGroup `json:"group"`
}

// WorkGroup groups the summaries that ORCID considers the same work.
type WorkGroup struct {
	Summaries []WorkSummary `json:"work-summary"`
}

// WorkSummary is one source's view of a work.
type WorkSummary struct {
	Title           *WorkTitle       `json:"title"`
	PublicationDate *PublicationDate `json:"publication-date"`
	URL             *Value           `json:"url"`
	ExternalIDs     *ExternalIDs     `json:"external-ids"`
	Type            string           `json:"type"`
}

// WorkTitle wraps the work title.
type WorkTitle struct {
	Title *Value `json:"title"`
}

// Value is ORCID's {"value": "..."} wrapper.
type Value struct {
	Value string `json:"value"`
}

// PublicationDate carries optional year, month and day parts.
type PublicationDate struct {
	Year  *Value `json:"year"`
	Month *Value `json:"month"`
	Day   *Value `json:"day"`
}

// ExternalIDs lists identifiers such as DOIs.
type ExternalIDs struct {
	IDs []ExternalID `json:"external-id"`
}

// ExternalID is a typed external identifier.
type ExternalID struct {
	Type  string `json:"external-id-type"`
	Value string `json:"external-id-value"`
}

// TitleText returns the trimmed title or "".
func (w *WorkSummary) TitleText() string {
	if w.Title == nil || w.Title.Title == nil {
		return ""
	}
	return strings.TrimSpace(w.Title.Title.Value)
}

// DOI returns the first DOI external identifier or "".
func (w *WorkSummary) DOI() string {
	if w.ExternalIDs == nil {
		return ""
	}
	for _, id := range w.ExternalIDs.IDs {
		if strings.EqualFold(id.Type, "doi") {
			return strings.TrimSpace(id.Value)
		}
	}
	return ""
}

func (v *Value) text() string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(v.Value)
}
