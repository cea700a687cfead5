package repository

import (
	"context"
	"time"

	"github.com/yohaboy/research-tracker/internal/domain"
)

// PublicationRepository handles publications and their author links.
type PublicationRepository interface {
	// UpsertPublication inserts rec keyed by (title, publication_date). An
	// existing row keeps every field except an empty url, which is back-filled
	// from rec. created reports whether a new row was inserted.
	UpsertPublication(ctx context.Context, rec domain.PublicationRecord) (pub *domain.Publication, created bool, err error)

	// GetByKey retrieves the publication with the given natural key.
	// Returns domain.ErrNotFound if it does not exist.
	GetByKey(ctx context.Context, title string, date time.Time) (*domain.Publication, error)

	// LinkAuthor links an author to a publication at a position. Linking the
	// same triple twice is a no-op; created reports whether a row was added.
	LinkAuthor(ctx context.Context, authorID, publicationID int64, order int) (created bool, err error)

	// List retrieves distinct publications matching the filter and the total count.
	List(ctx context.Context, filter PublicationFilter) ([]*domain.Publication, int64, error)

	// Count returns the number of publications.
	Count(ctx context.Context) (int64, error)

	// CountLinks returns the number of author links.
	CountLinks(ctx context.Context) (int64, error)

	// Reset deletes every link, publication, author and group.
	Reset(ctx context.Context) error
}

// PublicationFilter specifies criteria for listing publications.
type PublicationFilter struct {
	// GroupID keeps publications with at least one author in the group (optional).
	GroupID *int64

	// AuthorID keeps publications linked to the author (optional).
	AuthorID *int64

	// Source keeps publications first stored from this source (optional).
	Source *domain.SourceTag

	// PublishedAfter keeps publications dated strictly after this day (optional).
	PublishedAfter *time.Time

	// PublishedUntil keeps publications dated on or before this day (optional).
	PublishedUntil *time.Time

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate checks if the filter has valid values and sets defaults.
func (f *PublicationFilter) Validate() error {
	if f.Source != nil && !f.Source.IsValid() {
		return domain.NewValidationError("source", "unknown source")
	}
	if f.PublishedAfter != nil && f.PublishedUntil != nil && f.PublishedUntil.Before(*f.PublishedAfter) {
		return domain.NewValidationError("to", "must not be before from")
	}
	p := page{f.Limit, f.Offset}.clamp()
	f.Limit, f.Offset = p.limit, p.offset
	return nil
}

// SaveResult describes what committing one record changed.
type SaveResult struct {
	Publication *domain.Publication
	Created     bool
	Linked      bool
}
