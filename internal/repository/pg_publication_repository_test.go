package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohaboy/research-tracker/internal/domain"
)

var publicationRowColumns = []string{
	"id", "title", "publication_date", "keywords", "abstract", "date_added", "url", "source",
}

func newTestRecord() domain.PublicationRecord {
	return domain.PublicationRecord{
		Title:           "Graph Embeddings",
		PublicationDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Keywords:        "graphs, machine learning",
		Abstract:        "We embed graphs.",
		URL:             "https://example.org/graph",
		Source:          domain.SourceCitationIndex,
		AuthorOrder:     2,
	}
}

func upsertRows(id int64, rec domain.PublicationRecord, storedURL string, created bool) *pgxmock.Rows {
	return pgxmock.NewRows(append(publicationRowColumns, "created")).
		AddRow(id, rec.Title, rec.PublicationDate, rec.Keywords, rec.Abstract, time.Now().UTC(), storedURL, rec.Source.Label(), created)
}

func TestPgPublicationRepository_UpsertPublication(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts a new publication", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rec := newTestRecord()
		mock.ExpectQuery(`INSERT INTO publications AS p .* ON CONFLICT \(title, publication_date\) DO UPDATE SET url = CASE WHEN p.url = '' THEN EXCLUDED.url ELSE p.url END`).
			WithArgs(rec.Title, rec.PublicationDate, rec.Keywords, rec.Abstract, rec.URL, "Scopus").
			WillReturnRows(upsertRows(10, rec, rec.URL, true))

		pub, created, err := NewPgPublicationRepository(mock).UpsertPublication(ctx, rec)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, int64(10), pub.ID)
		assert.Equal(t, "Scopus", pub.Source)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing row keeps its url", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rec := newTestRecord()
		mock.ExpectQuery(`INSERT INTO publications`).
			WithArgs(rec.Title, rec.PublicationDate, rec.Keywords, rec.Abstract, rec.URL, "Scopus").
			WillReturnRows(upsertRows(10, rec, "https://first.example/graph", false))

		pub, created, err := NewPgPublicationRepository(mock).UpsertPublication(ctx, rec)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "https://first.example/graph", pub.URL)
	})

	t.Run("truncates the date and trims the title", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rec := newTestRecord()
		rec.Title = "  Graph Embeddings "
		rec.PublicationDate = time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`INSERT INTO publications`).
			WithArgs("Graph Embeddings", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), rec.Keywords, rec.Abstract, rec.URL, "Scopus").
			WillReturnRows(upsertRows(1, newTestRecord(), rec.URL, true))

		_, _, err = NewPgPublicationRepository(mock).UpsertPublication(ctx, rec)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation maps to storage conflict", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rec := newTestRecord()
		mock.ExpectQuery(`INSERT INTO publications`).
			WithArgs(rec.Title, rec.PublicationDate, rec.Keywords, rec.Abstract, rec.URL, "Scopus").
			WillReturnError(&pgconn.PgError{Code: "23505"})

		_, _, err = NewPgPublicationRepository(mock).UpsertPublication(ctx, rec)
		assert.True(t, errors.Is(err, domain.ErrStorageConflict))
	})

	t.Run("rejects records without a key", func(t *testing.T) {
		repo := NewPgPublicationRepository(nil)

		rec := newTestRecord()
		rec.Title = " "
		_, _, err := repo.UpsertPublication(ctx, rec)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))

		rec = newTestRecord()
		rec.PublicationDate = time.Time{}
		_, _, err = repo.UpsertPublication(ctx, rec)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})
}

func TestPgPublicationRepository_GetByKey(t *testing.T) {
	ctx := context.Background()
	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT .* FROM publications p WHERE p.title = \$1 AND p.publication_date = \$2`).
			WithArgs("Graph Embeddings", date).
			WillReturnRows(pgxmock.NewRows(publicationRowColumns).
				AddRow(int64(10), "Graph Embeddings", date, "", "", time.Now(), "", "ORCID"))

		pub, err := NewPgPublicationRepository(mock).GetByKey(ctx, "Graph Embeddings", date)
		require.NoError(t, err)
		assert.Equal(t, int64(10), pub.ID)
	})

	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT .* FROM publications p`).
			WithArgs("Missing", date).
			WillReturnError(pgx.ErrNoRows)

		_, err = NewPgPublicationRepository(mock).GetByKey(ctx, "Missing", date)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestPgPublicationRepository_LinkAuthor(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		order       int
		wantOrder   int
		result      pgconn.CommandTag
		err         error
		wantCreated bool
		wantErr     error
	}{
		{name: "new link", order: 2, wantOrder: 2, result: pgxmock.NewResult("INSERT", 1), wantCreated: true},
		{name: "existing link", order: 1, wantOrder: 1, result: pgxmock.NewResult("INSERT", 0)},
		{name: "order defaults to 1", order: 0, wantOrder: 1, result: pgxmock.NewResult("INSERT", 1), wantCreated: true},
		{name: "missing author", order: 1, wantOrder: 1, err: &pgconn.PgError{Code: "23503"}, wantErr: domain.ErrNotFound},
		{name: "deadlock", order: 1, wantOrder: 1, err: &pgconn.PgError{Code: "40P01"}, wantErr: domain.ErrStorageConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			exp := mock.ExpectExec(`INSERT INTO author_publications .* ON CONFLICT \(author_id, publication_id, author_order\) DO NOTHING`).
				WithArgs(int64(1), int64(10), tt.wantOrder)
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnResult(tt.result)
			}

			created, err := NewPgPublicationRepository(mock).LinkAuthor(ctx, 1, 10, tt.order)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCreated, created)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPgPublicationRepository_List(t *testing.T) {
	ctx := context.Background()

	t.Run("applies every filter", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		groupID, authorID := int64(2), int64(3)
		source := domain.SourceIdentifierRegistry
		from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM publications p WHERE EXISTS .* a.research_group_id = \$1\) AND EXISTS .* ap.author_id = \$2\) AND p.source = \$3 AND p.publication_date > \$4 AND p.publication_date <= \$5`).
			WithArgs(groupID, authorID, "ORCID", from, to).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
		mock.ExpectQuery(`SELECT .* FROM publications p WHERE .* LIMIT \$6 OFFSET \$7`).
			WithArgs(groupID, authorID, "ORCID", from, to, 50, 0).
			WillReturnRows(pgxmock.NewRows(publicationRowColumns).
				AddRow(int64(10), "T", to, "", "", time.Now(), "", "ORCID"))

		pubs, total, err := NewPgPublicationRepository(mock).List(ctx, PublicationFilter{
			GroupID:        &groupID,
			AuthorID:       &authorID,
			Source:         &source,
			PublishedAfter: &from,
			PublishedUntil: &to,
			Limit:          50,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Len(t, pubs, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no filters", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM publications p$`).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
		mock.ExpectQuery(`SELECT .* FROM publications p ORDER BY .* LIMIT \$1 OFFSET \$2`).
			WithArgs(listPage.fallback, 0).
			WillReturnRows(pgxmock.NewRows(publicationRowColumns))

		pubs, total, err := NewPgPublicationRepository(mock).List(ctx, PublicationFilter{})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.NotNil(t, pubs)
		assert.Empty(t, pubs)
	})

	t.Run("rejects inverted range", func(t *testing.T) {
		from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(0, 0, -1)
		_, _, err := NewPgPublicationRepository(nil).List(ctx, PublicationFilter{PublishedAfter: &from, PublishedUntil: &to})
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})
}

func TestPgPublicationRepository_CountsAndReset(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM publications`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(4)))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM author_publications`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(6)))
	mock.ExpectExec(`TRUNCATE author_publications, publications, authors, research_groups RESTART IDENTITY`).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))

	repo := NewPgPublicationRepository(mock)
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	links, err := repo.CountLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), links)

	require.NoError(t, repo.Reset(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}
