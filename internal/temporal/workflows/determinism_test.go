package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yohaboy/research-tracker/internal/domain"
)

func TestTagsByPrecedence(t *testing.T) {
	t.Run("orders known tags by precedence", func(t *testing.T) {
		counts := map[domain.SourceTag]int{
			domain.SourceIdentifierRegistry: 1,
			domain.SourceCitationIndex:      4,
			domain.SourceProfileAggregator:  2,
		}
		assert.Equal(t, []domain.SourceTag{
			domain.SourceCitationIndex,
			domain.SourceProfileAggregator,
			domain.SourceIdentifierRegistry,
		}, tagsByPrecedence(counts))
	})

	t.Run("unknown tags sort last by name", func(t *testing.T) {
		counts := map[domain.SourceTag]int{"zeta": 1, "alpha": 1, domain.SourceProfileAggregator: 1}
		assert.Equal(t, []domain.SourceTag{domain.SourceProfileAggregator, "alpha", "zeta"}, tagsByPrecedence(counts))
	})

	t.Run("empty map", func(t *testing.T) {
		assert.Empty(t, tagsByPrecedence(nil))
	})
}

func TestSortedJobIDs(t *testing.T) {
	t.Run("sorts without mutating the input", func(t *testing.T) {
		ids := []string{"reconcile-author-3-c", "reconcile-author-1-a", "reconcile-author-2-b"}
		assert.Equal(t, []string{"reconcile-author-1-a", "reconcile-author-2-b", "reconcile-author-3-c"}, sortedJobIDs(ids))
		assert.Equal(t, "reconcile-author-3-c", ids[0])
	})

	t.Run("drops duplicates", func(t *testing.T) {
		assert.Equal(t, []string{"a", "b"}, sortedJobIDs([]string{"b", "a", "b"}))
	})

	t.Run("nil yields empty slice", func(t *testing.T) {
		got := sortedJobIDs(nil)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}
