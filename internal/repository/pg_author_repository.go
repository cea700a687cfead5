package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/yohaboy/research-tracker/internal/domain"
)

// Compile-time interface verification.
var _ AuthorRepository = (*PgAuthorRepository)(nil)

const authorColumns = `a.id, a.first_name, a.last_name, a.research_group_id, g.name,
			a.scopus_id, a.scholar_id, a.orcid_id, a.staff_url`

// PgAuthorRepository is a PostgreSQL implementation of AuthorRepository.
type PgAuthorRepository struct {
	db DBTX
}

// NewPgAuthorRepository creates a new PostgreSQL author repository.
func NewPgAuthorRepository(db DBTX) *PgAuthorRepository {
	return &PgAuthorRepository{db: db}
}

// Upsert creates or updates an author keyed by (first name, last name, group).
func (r *PgAuthorRepository) Upsert(ctx context.Context, group *domain.ResearchGroup, in domain.AuthorInput) (*domain.Author, bool, error) {
	if group == nil || group.ID == 0 {
		return nil, false, domain.NewValidationError("group", "group is required")
	}
	in = in.Trimmed()
	if in.FirstName == "" || in.LastName == "" {
		return nil, false, domain.NewValidationError("name", "first and last name are required")
	}

	query := `
		INSERT INTO authors (
			first_name, last_name, research_group_id,
			scopus_id, scholar_id, orcid_id, staff_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (first_name, last_name, research_group_id) DO UPDATE SET
			scopus_id = CASE WHEN EXCLUDED.scopus_id <> '' THEN EXCLUDED.scopus_id ELSE authors.scopus_id END,
			scholar_id = CASE WHEN EXCLUDED.scholar_id <> '' THEN EXCLUDED.scholar_id ELSE authors.scholar_id END,
			orcid_id = CASE WHEN EXCLUDED.orcid_id <> '' THEN EXCLUDED.orcid_id ELSE authors.orcid_id END,
			staff_url = CASE WHEN EXCLUDED.staff_url <> '' THEN EXCLUDED.staff_url ELSE authors.staff_url END,
			updated_at = NOW()
		RETURNING id, first_name, last_name, research_group_id,
			scopus_id, scholar_id, orcid_id, staff_url, (xmax = 0) AS created`

	a := domain.Author{GroupName: group.Name}
	var created bool
	err := r.db.QueryRow(ctx, query,
		in.FirstName, in.LastName, group.ID,
		in.ScopusID, in.ScholarID, in.ORCIDID, in.StaffURL,
	).Scan(
		&a.ID, &a.FirstName, &a.LastName, &a.GroupID,
		&a.ScopusID, &a.ScholarID, &a.ORCIDID, &a.StaffURL, &created,
	)
	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return nil, false, domain.NewNotFoundError("research group", strconv.FormatInt(group.ID, 10))
		}
		return nil, false, fmt.Errorf("failed to upsert author: %w", err)
	}
	return &a, created, nil
}

// Get retrieves an author with its group name.
func (r *PgAuthorRepository) Get(ctx context.Context, id int64) (*domain.Author, error) {
	query := `
		SELECT ` + authorColumns + `
		FROM authors a
		JOIN research_groups g ON g.id = a.research_group_id
		WHERE a.id = $1`

	a, err := scanAuthor(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("author", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("failed to get author: %w", err)
	}
	return a, nil
}

// List returns authors matching the filter ordered by last then first name.
func (r *PgAuthorRepository) List(ctx context.Context, filter AuthorFilter) ([]*domain.Author, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	var conditions []string
	var args []interface{}
	argIndex := 1

	if s := strings.TrimSpace(filter.Search); s != "" {
		conditions = append(conditions, fmt.Sprintf("(a.first_name ILIKE $%d OR a.last_name ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+s+"%")
		argIndex++
	}
	if filter.GroupID != nil {
		conditions = append(conditions, fmt.Sprintf("a.research_group_id = $%d", argIndex))
		args = append(args, *filter.GroupID)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM authors a %s", whereClause)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count authors: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM authors a
		JOIN research_groups g ON g.id = a.research_group_id
		%s
		ORDER BY a.last_name, a.first_name, a.id
		LIMIT $%d OFFSET $%d`,
		authorColumns, whereClause, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list authors: %w", err)
	}
	defer rows.Close()

	authors := make([]*domain.Author, 0, filter.Limit)
	for rows.Next() {
		a, err := scanAuthor(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan author: %w", err)
		}
		authors = append(authors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating authors: %w", err)
	}
	return authors, total, nil
}

// ListIDs returns every author ID in ascending order.
func (r *PgAuthorRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM authors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list author IDs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan author IDs: %w", err)
	}
	return ids, nil
}

// Count returns the number of authors.
func (r *PgAuthorRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM authors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count authors: %w", err)
	}
	return n, nil
}

// scanAuthor scans one row selected with authorColumns.
func scanAuthor(row pgx.Row) (*domain.Author, error) {
	var a domain.Author
	err := row.Scan(
		&a.ID, &a.FirstName, &a.LastName, &a.GroupID, &a.GroupName,
		&a.ScopusID, &a.ScholarID, &a.ORCIDID, &a.StaffURL,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
