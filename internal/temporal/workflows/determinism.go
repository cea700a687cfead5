package workflows

import (
	"sort"

	"github.com/yohaboy/research-tracker/internal/domain"
)

// Map iteration order is random, so anything a workflow logs or returns from
// a map or an activity-built slice goes through one of these first.

// tagsByPrecedence returns the source tags of a per-source count map in
// precedence order. Unknown tags sort last, by name.
func tagsByPrecedence(counts map[domain.SourceTag]int) []domain.SourceTag {
	tags := make([]domain.SourceTag, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		pi, pj := tags[i].Precedence(), tags[j].Precedence()
		if pi != pj {
			return pi < pj
		}
		return tags[i] < tags[j]
	})
	return tags
}

// sortedJobIDs returns a sorted, de-duplicated copy of ids.
func sortedJobIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
