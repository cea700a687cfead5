// Package papersources provides clients that fetch an author's publications
// from external bibliographic sources.
//
// Every source implements SourceClient. A client never returns an error:
// network failures, non-2xx responses and undecodable payloads are logged,
// counted and turn into an empty (or, for paginated sources, truncated)
// result. Records dated on or before the requested since date are dropped
// by the client itself.
//
// Example usage:
//
//	client := orcid.New(cfg, logger, metrics)
//	records := client.Fetch(ctx, "0000-0002-8265-0503", since)
package papersources

import (
	"context"
	"strings"
	"time"

	"github.com/yohaboy/research-tracker/internal/domain"
)

// RawRecord is a publication as reported by one source, before normalization.
// Nil pointers mean the source did not report the field at all.
type RawRecord struct {
	// Title is the publication title as published by the source.
	Title string

	// Published is the publication date. Sources with year-only precision
	// report January 1 of that year.
	Published time.Time

	// Year is the publication year as listed by the source.
	Year int

	// Keywords are author keywords, possibly with inconsistent casing.
	Keywords []string

	// Abstract is the abstract text, when the source provides one.
	Abstract *string

	// URL links to the publication landing page.
	URL *string

	// DOI is the digital object identifier without the resolver prefix.
	DOI string

	// AuthorOrder is the author's 1-based position in the author list.
	// Zero means unknown.
	AuthorOrder int
}

// SourceClient fetches publications for one author identifier from a single source.
type SourceClient interface {
	// Tag identifies the source for precedence and attribution.
	Tag() domain.SourceTag

	// Fetch returns records published strictly after since. It never fails;
	// on error it returns whatever was collected before the failure.
	Fetch(ctx context.Context, identifier string, since time.Time) []RawRecord
}

// StringPtr returns a pointer to s, or nil when s is empty after trimming.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
