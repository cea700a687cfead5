// Package normalize turns source-specific raw records into canonical
// publication records and removes duplicates across sources.
package normalize

import (
	"strings"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/papersources"
)

// Normalize maps a raw record fetched from the source identified by tag onto
// the canonical record shape. It performs no I/O.
//
// Keywords are normalized and joined with domain.KeywordSeparator, absent
// optional text becomes "", the date is truncated to its calendar day and a
// missing author position defaults to 1.
func Normalize(raw papersources.RawRecord, tag domain.SourceTag) domain.PublicationRecord {
	rec := domain.PublicationRecord{
		Title:       strings.TrimSpace(raw.Title),
		Keywords:    JoinKeywords(raw.Keywords),
		Abstract:    deref(raw.Abstract),
		URL:         deref(raw.URL),
		Source:      tag,
		AuthorOrder: raw.AuthorOrder,
	}
	if !raw.Published.IsZero() {
		rec.PublicationDate = domain.DateOnly(raw.Published)
	}
	if rec.AuthorOrder <= 0 {
		rec.AuthorOrder = 1
	}
	return rec
}

// NormalizeAll normalizes every record of one source.
func NormalizeAll(raws []papersources.RawRecord, tag domain.SourceTag) []domain.PublicationRecord {
	out := make([]domain.PublicationRecord, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Normalize(raw, tag))
	}
	return out
}

// JoinKeywords normalizes keywords and joins the non-empty ones. Entries that
// themselves contain commas are split first.
func JoinKeywords(keywords []string) string {
	var out []string
	for _, kw := range keywords {
		out = append(out, domain.SplitKeywords(kw)...)
	}
	return strings.Join(out, domain.KeywordSeparator)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
