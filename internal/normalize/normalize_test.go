package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/papersources"
)

func strPtr(s string) *string { return &s }

func TestNormalize(t *testing.T) {
	t.Parallel()

	raw := papersources.RawRecord{
		Title:       "  Graph Embeddings ",
		Published:   time.Date(2023, 4, 2, 17, 30, 0, 0, time.UTC),
		Keywords:    []string{" Machine   Learning", "GRAPHS", "", "a, b"},
		Abstract:    strPtr(" We embed graphs. "),
		AuthorOrder: 0,
	}

	got := Normalize(raw, domain.SourceCitationIndex)

	assert.Equal(t, domain.PublicationRecord{
		Title:           "Graph Embeddings",
		PublicationDate: time.Date(2023, 4, 2, 0, 0, 0, 0, time.UTC),
		Keywords:        "machine learning, graphs, a, b",
		Abstract:        "We embed graphs.",
		URL:             "",
		Source:          domain.SourceCitationIndex,
		AuthorOrder:     1,
	}, got)
}

func TestNormalize_KeepsExplicitOrderAndURL(t *testing.T) {
	t.Parallel()

	got := Normalize(papersources.RawRecord{
		Title:       "X",
		URL:         strPtr("https://x"),
		AuthorOrder: 3,
	}, domain.SourceIdentifierRegistry)

	assert.Equal(t, "https://x", got.URL)
	assert.Equal(t, 3, got.AuthorOrder)
	assert.True(t, got.PublicationDate.IsZero())
	assert.Empty(t, got.Keywords)
	assert.Equal(t, domain.SourceIdentifierRegistry, got.Source)
}

func TestNormalizeAll(t *testing.T) {
	t.Parallel()

	out := NormalizeAll([]papersources.RawRecord{{Title: "a"}, {Title: "b"}}, domain.SourceProfileAggregator)
	assert.Len(t, out, 2)
	for _, rec := range out {
		assert.Equal(t, domain.SourceProfileAggregator, rec.Source)
	}
	assert.Empty(t, NormalizeAll(nil, domain.SourceProfileAggregator))
}

func TestJoinKeywords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want string
	}{
		{"nil", nil, ""},
		{"only blanks", []string{" ", ""}, ""},
		{"lowercased and collapsed", []string{"Deep\tLearning", " NLP "}, "deep learning, nlp"},
		{"embedded commas", []string{"x,y", "z"}, "x, y, z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JoinKeywords(tt.in))
		})
	}
}
