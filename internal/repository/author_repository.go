package repository

import (
	"context"

	"github.com/yohaboy/research-tracker/internal/domain"
)

// AuthorRepository handles roster persistence.
type AuthorRepository interface {
	// Upsert creates or updates the author identified by (first name, last
	// name, group). Identifiers are overwritten only by non-empty incoming
	// values. created reports whether a new row was inserted.
	Upsert(ctx context.Context, group *domain.ResearchGroup, in domain.AuthorInput) (author *domain.Author, created bool, err error)

	// Get retrieves an author with its group name.
	// Returns domain.ErrNotFound if no author has this ID.
	Get(ctx context.Context, id int64) (*domain.Author, error)

	// List returns authors matching the filter and the total match count.
	List(ctx context.Context, filter AuthorFilter) ([]*domain.Author, int64, error)

	// ListIDs returns every author ID in ascending order.
	ListIDs(ctx context.Context) ([]int64, error)

	// Count returns the number of authors.
	Count(ctx context.Context) (int64, error)
}

// AuthorFilter specifies criteria for listing authors.
type AuthorFilter struct {
	// Search matches first or last name case-insensitively (optional).
	Search string

	// GroupID restricts the result to one research group (optional).
	GroupID *int64

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate checks if the filter has valid values and sets defaults.
func (f *AuthorFilter) Validate() error {
	p := page{f.Limit, f.Offset}.clamp()
	f.Limit, f.Offset = p.limit, p.offset
	return nil
}
