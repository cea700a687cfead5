package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yohaboy/research-tracker/internal/domain"
)

// ReportRepository runs the read-only aggregate queries behind the reports.
// Keywords are stored normalized, so splitting on commas and trimming is
// enough to count them.
type ReportRepository interface {
	Summary(ctx context.Context) (*domain.Summary, error)
	NewPublications(ctx context.Context, since time.Time) (*domain.NewPublications, error)
	KeywordCounts(ctx context.Context, since *time.Time) ([]domain.KeywordCount, error)
	KeywordCountsPerGroup(ctx context.Context) ([]domain.GroupKeywordCounts, error)
	MultiGroupPublications(ctx context.Context) ([]*domain.MultiGroupPublication, error)
	GroupAuthorMultiGroup(ctx context.Context) ([]domain.AuthorMultiGroupCount, error)
	TotalPapersPerGroup(ctx context.Context) ([]domain.GroupPublications, error)
}

// Compile-time interface verification.
var _ ReportRepository = (*PgReportRepository)(nil)

// multiGroupCTE selects the IDs of publications whose authors span more than
// one research group.
const multiGroupCTE = `
		WITH multi AS (
			SELECT ap.publication_id
			FROM author_publications ap
			JOIN authors a ON a.id = ap.author_id
			JOIN research_groups g ON g.id = a.research_group_id
			GROUP BY ap.publication_id
			HAVING COUNT(DISTINCT g.name) > 1
		)`

// PgReportRepository is a PostgreSQL implementation of ReportRepository.
type PgReportRepository struct {
	db DBTX
}

// NewPgReportRepository creates a new PostgreSQL report repository.
func NewPgReportRepository(db DBTX) *PgReportRepository {
	return &PgReportRepository{db: db}
}

// Summary returns the row count of every table.
func (r *PgReportRepository) Summary(ctx context.Context) (*domain.Summary, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM authors),
			(SELECT COUNT(*) FROM publications),
			(SELECT COUNT(*) FROM research_groups),
			(SELECT COUNT(*) FROM author_publications)`

	var s domain.Summary
	if err := r.db.QueryRow(ctx, query).Scan(&s.Authors, &s.Publications, &s.ResearchGroups, &s.AuthorPublications); err != nil {
		return nil, fmt.Errorf("failed to load summary: %w", err)
	}
	return &s, nil
}

// NewPublications lists publications dated strictly after since.
func (r *PgReportRepository) NewPublications(ctx context.Context, since time.Time) (*domain.NewPublications, error) {
	since = domain.DateOnly(since)
	query := `
		SELECT ` + publicationColumns + `
		FROM publications p
		WHERE p.publication_date > $1
		ORDER BY p.publication_date DESC, p.id DESC`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query new publications: %w", err)
	}
	pubs, err := collectPublications(rows)
	if err != nil {
		return nil, err
	}
	return &domain.NewPublications{Since: since, Count: len(pubs), Publications: pubs}, nil
}

// KeywordCounts counts publications per keyword, optionally only those dated
// strictly after since.
func (r *PgReportRepository) KeywordCounts(ctx context.Context, since *time.Time) ([]domain.KeywordCount, error) {
	where := ""
	var args []interface{}
	if since != nil {
		where = "WHERE p.publication_date > $1"
		args = append(args, domain.DateOnly(*since))
	}

	query := fmt.Sprintf(`
		SELECT kw, COUNT(*) FROM (
			SELECT DISTINCT p.id, lower(btrim(k)) AS kw
			FROM publications p, unnest(string_to_array(p.keywords, ',')) AS k
			%s
		) t
		WHERE kw <> ''
		GROUP BY kw
		ORDER BY COUNT(*) DESC, kw`, where)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count keywords: %w", err)
	}
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.KeywordCount, error) {
		var kc domain.KeywordCount
		err := row.Scan(&kc.Keyword, &kc.Count)
		return kc, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan keyword counts: %w", err)
	}
	return counts, nil
}

// KeywordCountsPerGroup counts keywords over the distinct publications of each
// group's authors. Every group is listed, including those without keywords.
func (r *PgReportRepository) KeywordCountsPerGroup(ctx context.Context) ([]domain.GroupKeywordCounts, error) {
	names, err := r.groupNames(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT group_name, kw, COUNT(*) FROM (
			SELECT DISTINCT g.name AS group_name, p.id, lower(btrim(k)) AS kw
			FROM research_groups g
			JOIN authors a ON a.research_group_id = g.id
			JOIN author_publications ap ON ap.author_id = a.id
			JOIN publications p ON p.id = ap.publication_id,
			unnest(string_to_array(p.keywords, ',')) AS k
		) t
		WHERE kw <> ''
		GROUP BY group_name, kw
		ORDER BY group_name, COUNT(*) DESC, kw`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count keywords per group: %w", err)
	}
	defer rows.Close()

	byGroup := make(map[string][]domain.KeywordCount, len(names))
	for rows.Next() {
		var group string
		var kc domain.KeywordCount
		if err := rows.Scan(&group, &kc.Keyword, &kc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan keyword count: %w", err)
		}
		byGroup[group] = append(byGroup[group], kc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keyword counts: %w", err)
	}

	out := make([]domain.GroupKeywordCounts, 0, len(names))
	for _, name := range names {
		kws := byGroup[name]
		if kws == nil {
			kws = []domain.KeywordCount{}
		}
		out = append(out, domain.GroupKeywordCounts{Group: name, Keywords: kws})
	}
	return out, nil
}

// MultiGroupPublications lists publications linked to authors of more than
// one research group, with the sorted group names.
func (r *PgReportRepository) MultiGroupPublications(ctx context.Context) ([]*domain.MultiGroupPublication, error) {
	query := multiGroupCTE + `
		SELECT ` + publicationColumns + `,
			ARRAY(
				SELECT DISTINCT g.name
				FROM author_publications ap
				JOIN authors a ON a.id = ap.author_id
				JOIN research_groups g ON g.id = a.research_group_id
				WHERE ap.publication_id = p.id
				ORDER BY g.name
			) AS groups
		FROM publications p
		JOIN multi m ON m.publication_id = p.id
		ORDER BY p.publication_date DESC, p.id DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query multi-group publications: %w", err)
	}
	defer rows.Close()

	out := []*domain.MultiGroupPublication{}
	for rows.Next() {
		var m domain.MultiGroupPublication
		p := &m.Publication
		if err := rows.Scan(&p.ID, &p.Title, &p.PublicationDate, &p.Keywords, &p.Abstract, &p.DateAdded, &p.URL, &p.Source, &m.Groups); err != nil {
			return nil, fmt.Errorf("failed to scan multi-group publication: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating multi-group publications: %w", err)
	}
	return out, nil
}

// GroupAuthorMultiGroup counts, per group and author, the author's links to
// multi-group publications. Authors without any are omitted.
func (r *PgReportRepository) GroupAuthorMultiGroup(ctx context.Context) ([]domain.AuthorMultiGroupCount, error) {
	query := multiGroupCTE + `
		SELECT g.name, a.first_name || ' ' || a.last_name, COUNT(*)
		FROM authors a
		JOIN research_groups g ON g.id = a.research_group_id
		JOIN author_publications ap ON ap.author_id = a.id
		JOIN multi m ON m.publication_id = ap.publication_id
		GROUP BY g.name, a.id, a.first_name, a.last_name
		ORDER BY g.name, COUNT(*) DESC, a.last_name, a.first_name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query group author counts: %w", err)
	}
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuthorMultiGroupCount, error) {
		var c domain.AuthorMultiGroupCount
		err := row.Scan(&c.Group, &c.Author, &c.Count)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan group author counts: %w", err)
	}
	return counts, nil
}

// TotalPapersPerGroup lists the distinct publications of each group's authors.
// Every group is listed, including those without publications.
func (r *PgReportRepository) TotalPapersPerGroup(ctx context.Context) ([]domain.GroupPublications, error) {
	names, err := r.groupNames(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT DISTINCT g.name, ` + publicationColumns + `
		FROM research_groups g
		JOIN authors a ON a.research_group_id = g.id
		JOIN author_publications ap ON ap.author_id = a.id
		JOIN publications p ON p.id = ap.publication_id
		ORDER BY g.name, p.publication_date DESC, p.id DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query papers per group: %w", err)
	}
	defer rows.Close()

	byGroup := make(map[string][]*domain.Publication, len(names))
	for rows.Next() {
		var group string
		var p domain.Publication
		if err := rows.Scan(&group, &p.ID, &p.Title, &p.PublicationDate, &p.Keywords, &p.Abstract, &p.DateAdded, &p.URL, &p.Source); err != nil {
			return nil, fmt.Errorf("failed to scan group publication: %w", err)
		}
		byGroup[group] = append(byGroup[group], &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating group publications: %w", err)
	}

	out := make([]domain.GroupPublications, 0, len(names))
	for _, name := range names {
		pubs := byGroup[name]
		if pubs == nil {
			pubs = []*domain.Publication{}
		}
		out = append(out, domain.GroupPublications{Group: name, Total: len(pubs), Publications: pubs})
	}
	return out, nil
}

func (r *PgReportRepository) groupNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT name FROM research_groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list group names: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan group names: %w", err)
	}
	return names, nil
}
