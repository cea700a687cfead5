package normalize

import (
	"slices"
	"strings"

	"github.com/yohaboy/research-tracker/internal/domain"
)

// Key is the canonical identity used to match records across sources.
type Key struct {
	Title string
	Year  int
}

// KeyOf returns the dedup key of rec and whether it has one. Records without
// a title or a date have no key.
func KeyOf(rec domain.PublicationRecord) (Key, bool) {
	title := strings.ToLower(strings.TrimSpace(rec.Title))
	year := rec.Year()
	if title == "" || year == 0 {
		return Key{}, false
	}
	return Key{Title: title, Year: year}, true
}

// DedupeStats counts the records Dedupe removed.
type DedupeStats struct {
	// NoKey counts records dropped for a missing title or date.
	NoKey int
	// Duplicates counts records that lost to an earlier record with the same key.
	Duplicates int
}

// Total returns the number of dropped records.
func (s DedupeStats) Total() int {
	return s.NoKey + s.Duplicates
}

// SortByPrecedence stably orders records by the precedence of their source,
// keeping the fetch order within one source.
func SortByPrecedence(records []domain.PublicationRecord) {
	slices.SortStableFunc(records, func(a, b domain.PublicationRecord) int {
		return a.Source.Precedence() - b.Source.Precedence()
	})
}

// Dedupe keeps the first record of every (title, year) key after ordering the
// input by source precedence, so a citation index record always wins over a
// profile aggregator one, which wins over an identifier registry one,
// whatever order the sources completed in. The input slice is not modified.
func Dedupe(records []domain.PublicationRecord) ([]domain.PublicationRecord, DedupeStats) {
	sorted := slices.Clone(records)
	SortByPrecedence(sorted)

	var stats DedupeStats
	seen := make(map[Key]struct{}, len(sorted))
	kept := make([]domain.PublicationRecord, 0, len(sorted))
	for _, rec := range sorted {
		key, ok := KeyOf(rec)
		if !ok {
			stats.NoKey++
			continue
		}
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, rec)
	}
	return kept, stats
}
