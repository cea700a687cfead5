// Package domain provides the entities and shared types of the publication tracker.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// SourceTag identifies which external data source produced a publication record.
// The string values are stable and used in configuration, metrics labels and job payloads.
type SourceTag string

const (
	SourceCitationIndex      SourceTag = "citation_index"
	SourceProfileAggregator  SourceTag = "profile_aggregator"
	SourceIdentifierRegistry SourceTag = "identifier_registry"
)

// AllSourceTags returns every source tag in precedence order.
func AllSourceTags() []SourceTag {
	return []SourceTag{SourceCitationIndex, SourceProfileAggregator, SourceIdentifierRegistry}
}

// Precedence returns the merge rank of the source. Lower ranks win when two
// sources describe the same publication.
func (t SourceTag) Precedence() int {
	switch t {
	case SourceCitationIndex:
		return 0
	case SourceProfileAggregator:
		return 1
	case SourceIdentifierRegistry:
		return 2
	default:
		return 99
	}
}

// Label returns the human-readable source name persisted on publications.
func (t SourceTag) Label() string {
	switch t {
	case SourceCitationIndex:
		return "Scopus"
	case SourceProfileAggregator:
		return "Google Scholar"
	case SourceIdentifierRegistry:
		return "ORCID"
	default:
		return ""
	}
}

// IsValid reports whether t is a known source tag.
func (t SourceTag) IsValid() bool {
	return t.Precedence() < 99
}

// ParseSourceTag accepts either a tag value ("citation_index") or its label ("Scopus").
func ParseSourceTag(s string) (SourceTag, error) {
	s = strings.TrimSpace(s)
	for _, tag := range AllSourceTags() {
		if strings.EqualFold(s, string(tag)) || strings.EqualFold(s, tag.Label()) {
			return tag, nil
		}
	}
	return "", NewValidationError("source", fmt.Sprintf("unknown source %q", s))
}

// JobStatus is the externally visible state of a reconciliation job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal returns true if the status will not change anymore.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// JobKind distinguishes single-author jobs from fan-out jobs.
type JobKind string

const (
	JobKindAuthor JobKind = "author"
	JobKindFanOut JobKind = "fan_out"
)

// Job is the unit of work accepted by a job scheduler: reconcile one author's
// publications dated strictly after Since.
type Job struct {
	AuthorID int64     `json:"author_id" validate:"required,gt=0"`
	Since    time.Time `json:"since_date"`
}

// JobRef identifies a submitted job.
type JobRef struct {
	ID       string  `json:"job_id"`
	Kind     JobKind `json:"kind"`
	AuthorID int64   `json:"author_id,omitempty"`
}

// DateLayout is the calendar-date format used across the API and CLI.
const DateLayout = "2006-01-02"

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, NewValidationError("date", fmt.Sprintf("expected YYYY-MM-DD, got %q", s))
	}
	return t, nil
}

// AfterSince reports whether published falls strictly after since, compared by calendar date.
func AfterSince(published, since time.Time) bool {
	return DateOnly(published).After(DateOnly(since))
}
