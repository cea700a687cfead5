package domain

import "strings"

// ResearchGroup is an organisational unit that authors belong to.
type ResearchGroup struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Author is a roster member together with their external source identifiers.
// Empty identifiers mean the author has no account on that source.
type Author struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	GroupID   int64  `json:"research_group_id"`
	GroupName string `json:"research_group"`
	ScopusID  string `json:"scopus_id"`
	ScholarID string `json:"scholar_id"`
	ORCIDID   string `json:"orcid_id"`
	StaffURL  string `json:"staff_url"`
}

// FullName returns "First Last".
func (a *Author) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Identifier returns the author's identifier for the given source.
func (a *Author) Identifier(tag SourceTag) string {
	switch tag {
	case SourceCitationIndex:
		return strings.TrimSpace(a.ScopusID)
	case SourceProfileAggregator:
		return strings.TrimSpace(a.ScholarID)
	case SourceIdentifierRegistry:
		return strings.TrimSpace(a.ORCIDID)
	default:
		return ""
	}
}

// HasIdentifiers reports whether at least one source identifier is set.
func (a *Author) HasIdentifiers() bool {
	for _, tag := range AllSourceTags() {
		if a.Identifier(tag) != "" {
			return true
		}
	}
	return false
}

// AuthorInput is a roster row as accepted by ingestion adapters.
type AuthorInput struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Group     string `json:"group" validate:"required,max=255"`
	ScopusID  string `json:"scopus_id,omitempty" validate:"max=100"`
	ScholarID string `json:"scholar_id,omitempty" validate:"max=100"`
	ORCIDID   string `json:"orcid_id,omitempty" validate:"max=100"`
	StaffURL  string `json:"staff_url,omitempty" validate:"omitempty,url,max=255"`
}

// Trimmed returns a copy of the input with whitespace removed from every field.
func (in AuthorInput) Trimmed() AuthorInput {
	return AuthorInput{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Group:     strings.TrimSpace(in.Group),
		ScopusID:  strings.TrimSpace(in.ScopusID),
		ScholarID: strings.TrimSpace(in.ScholarID),
		ORCIDID:   strings.TrimSpace(in.ORCIDID),
		StaffURL:  strings.TrimSpace(in.StaffURL),
	}
}
