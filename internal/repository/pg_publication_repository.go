package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yohaboy/research-tracker/internal/domain"
)

// Compile-time interface verification.
var _ PublicationRepository = (*PgPublicationRepository)(nil)

const publicationColumns = `p.id, p.title, p.publication_date, p.keywords, p.abstract, p.date_added, p.url, p.source`

// PgPublicationRepository is a PostgreSQL implementation of PublicationRepository.
type PgPublicationRepository struct {
	db DBTX
}

// NewPgPublicationRepository creates a new PostgreSQL publication repository.
func NewPgPublicationRepository(db DBTX) *PgPublicationRepository {
	return &PgPublicationRepository{db: db}
}

// UpsertPublication inserts or back-fills a publication in one statement.
// RETURNING yields the stored row in both cases and xmax = 0 tells a fresh
// insert from a conflict update.
func (r *PgPublicationRepository) UpsertPublication(ctx context.Context, rec domain.PublicationRecord) (*domain.Publication, bool, error) {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		return nil, false, domain.NewValidationError("title", "title is required")
	}
	if rec.PublicationDate.IsZero() {
		return nil, false, domain.NewValidationError("publication_date", "publication date is required")
	}

	query := `
		INSERT INTO publications AS p (title, publication_date, keywords, abstract, url, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (title, publication_date) DO UPDATE SET
			url = CASE WHEN p.url = '' THEN EXCLUDED.url ELSE p.url END
		RETURNING ` + publicationColumns + `, (p.xmax = 0) AS created`

	var pub domain.Publication
	var created bool
	err := r.db.QueryRow(ctx, query,
		title,
		domain.DateOnly(rec.PublicationDate),
		rec.Keywords,
		rec.Abstract,
		rec.URL,
		rec.Source.Label(),
	).Scan(
		&pub.ID, &pub.Title, &pub.PublicationDate, &pub.Keywords, &pub.Abstract,
		&pub.DateAdded, &pub.URL, &pub.Source, &created,
	)
	if err != nil {
		if isConflict(err) {
			return nil, false, fmt.Errorf("upsert publication %q: %w", title, domain.ErrStorageConflict)
		}
		return nil, false, fmt.Errorf("failed to upsert publication: %w", err)
	}
	return &pub, created, nil
}

// GetByKey retrieves the publication with the given natural key.
func (r *PgPublicationRepository) GetByKey(ctx context.Context, title string, date time.Time) (*domain.Publication, error) {
	title = strings.TrimSpace(title)
	query := `
		SELECT ` + publicationColumns + `
		FROM publications p
		WHERE p.title = $1 AND p.publication_date = $2`

	pub, err := scanPublication(r.db.QueryRow(ctx, query, title, domain.DateOnly(date)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("publication", fmt.Sprintf("%s (%s)", title, date.Format(domain.DateLayout)))
		}
		return nil, fmt.Errorf("failed to get publication: %w", err)
	}
	return pub, nil
}

// LinkAuthor inserts an author link unless it already exists.
func (r *PgPublicationRepository) LinkAuthor(ctx context.Context, authorID, publicationID int64, order int) (bool, error) {
	if order <= 0 {
		order = 1
	}

	query := `
		INSERT INTO author_publications (author_id, publication_id, author_order)
		VALUES ($1, $2, $3)
		ON CONFLICT (author_id, publication_id, author_order) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, authorID, publicationID, order)
	if err != nil {
		switch {
		case pgErrorCode(err) == pgForeignKeyViolation:
			return false, domain.NewNotFoundError("author or publication", fmt.Sprintf("%d/%d", authorID, publicationID))
		case isConflict(err):
			return false, fmt.Errorf("link author %d: %w", authorID, domain.ErrStorageConflict)
		}
		return false, fmt.Errorf("failed to link author: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// List retrieves distinct publications matching the filter, newest first.
func (r *PgPublicationRepository) List(ctx context.Context, filter PublicationFilter) ([]*domain.Publication, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter.GroupID != nil {
		conditions = append(conditions, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM author_publications ap
			JOIN authors a ON a.id = ap.author_id
			WHERE ap.publication_id = p.id AND a.research_group_id = $%d)`, argIndex))
		args = append(args, *filter.GroupID)
		argIndex++
	}
	if filter.AuthorID != nil {
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM author_publications ap WHERE ap.publication_id = p.id AND ap.author_id = $%d)", argIndex))
		args = append(args, *filter.AuthorID)
		argIndex++
	}
	if filter.Source != nil {
		conditions = append(conditions, fmt.Sprintf("p.source = $%d", argIndex))
		args = append(args, filter.Source.Label())
		argIndex++
	}
	if filter.PublishedAfter != nil {
		conditions = append(conditions, fmt.Sprintf("p.publication_date > $%d", argIndex))
		args = append(args, domain.DateOnly(*filter.PublishedAfter))
		argIndex++
	}
	if filter.PublishedUntil != nil {
		conditions = append(conditions, fmt.Sprintf("p.publication_date <= $%d", argIndex))
		args = append(args, domain.DateOnly(*filter.PublishedUntil))
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM publications p %s", whereClause)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count publications: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM publications p
		%s
		ORDER BY p.publication_date DESC, p.id DESC
		LIMIT $%d OFFSET $%d`,
		publicationColumns, whereClause, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list publications: %w", err)
	}
	pubs, err := collectPublications(rows)
	if err != nil {
		return nil, 0, err
	}
	return pubs, total, nil
}

// Count returns the number of publications.
func (r *PgPublicationRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM publications`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count publications: %w", err)
	}
	return n, nil
}

// CountLinks returns the number of author links.
func (r *PgPublicationRepository) CountLinks(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM author_publications`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count author links: %w", err)
	}
	return n, nil
}

// Reset truncates every table and restarts the ID sequences.
func (r *PgPublicationRepository) Reset(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `TRUNCATE author_publications, publications, authors, research_groups RESTART IDENTITY`); err != nil {
		return fmt.Errorf("failed to reset data: %w", err)
	}
	return nil
}

// scanPublication scans one row selected with publicationColumns.
func scanPublication(row pgx.Row) (*domain.Publication, error) {
	var p domain.Publication
	err := row.Scan(&p.ID, &p.Title, &p.PublicationDate, &p.Keywords, &p.Abstract, &p.DateAdded, &p.URL, &p.Source)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// collectPublications drains rows selected with publicationColumns.
func collectPublications(rows pgx.Rows) ([]*domain.Publication, error) {
	defer rows.Close()

	pubs := []*domain.Publication{}
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan publication: %w", err)
		}
		pubs = append(pubs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating publications: %w", err)
	}
	return pubs, nil
}
