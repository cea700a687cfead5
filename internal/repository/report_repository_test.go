package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohaboy/research-tracker/internal/domain"
)

func TestPgReportRepository_Summary(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT \(SELECT COUNT\(\*\) FROM authors\)`).
		WillReturnRows(pgxmock.NewRows([]string{"a", "p", "g", "ap"}).AddRow(int64(3), int64(5), int64(2), int64(7)))

	s, err := NewPgReportRepository(mock).Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &domain.Summary{Authors: 3, Publications: 5, ResearchGroups: 2, AuthorPublications: 7}, s)
}

func TestPgReportRepository_NewPublications(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`WHERE p.publication_date > \$1`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows(publicationRowColumns).
			AddRow(int64(1), "A", since.AddDate(0, 0, 1), "", "", time.Now(), "", "Scopus").
			AddRow(int64(2), "B", since.AddDate(0, 2, 0), "", "", time.Now(), "", "ORCID"))

	got, err := NewPgReportRepository(mock).NewPublications(context.Background(), since.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, since, got.Since)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgReportRepository_KeywordCounts(t *testing.T) {
	ctx := context.Background()

	t.Run("all time", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`unnest\(string_to_array\(p.keywords, ','\)\) AS k\s*\) t WHERE kw <> ''`).
			WillReturnRows(pgxmock.NewRows([]string{"kw", "count"}).
				AddRow("graphs", int64(3)).
				AddRow("nlp", int64(1)))

		counts, err := NewPgReportRepository(mock).KeywordCounts(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []domain.KeywordCount{{Keyword: "graphs", Count: 3}, {Keyword: "nlp", Count: 1}}, counts)
	})

	t.Run("since filter", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`WHERE p.publication_date > \$1`).
			WithArgs(since).
			WillReturnRows(pgxmock.NewRows([]string{"kw", "count"}))

		counts, err := NewPgReportRepository(mock).KeywordCounts(ctx, &since)
		require.NoError(t, err)
		assert.Empty(t, counts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgReportRepository_KeywordCountsPerGroup(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT name FROM research_groups ORDER BY name`).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("AI").AddRow("Empty"))
	mock.ExpectQuery(`SELECT group_name, kw, COUNT\(\*\)`).
		WillReturnRows(pgxmock.NewRows([]string{"group_name", "kw", "count"}).
			AddRow("AI", "graphs", int64(2)).
			AddRow("AI", "nlp", int64(1)))

	got, err := NewPgReportRepository(mock).KeywordCountsPerGroup(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "AI", got[0].Group)
	assert.Len(t, got[0].Keywords, 2)
	assert.Equal(t, "Empty", got[1].Group)
	assert.NotNil(t, got[1].Keywords)
	assert.Empty(t, got[1].Keywords)
}

func TestPgReportRepository_MultiGroupPublications(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	d := time.Date(2024, 4, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`WITH multi AS .* HAVING COUNT\(DISTINCT g.name\) > 1`).
		WillReturnRows(pgxmock.NewRows(append(publicationRowColumns, "groups")).
			AddRow(int64(9), "Shared", d, "", "", time.Now(), "", "Scopus", []string{"AI", "Robotics"}))

	got, err := NewPgReportRepository(mock).MultiGroupPublications(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Shared", got[0].Title)
	assert.Equal(t, []string{"AI", "Robotics"}, got[0].Groups)
}

func TestPgReportRepository_GroupAuthorMultiGroup(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`WITH multi AS .* SELECT g.name, a.first_name \|\| ' ' \|\| a.last_name, COUNT\(\*\)`).
		WillReturnRows(pgxmock.NewRows([]string{"name", "author", "count"}).
			AddRow("AI", "Jane Doe", int64(2)).
			AddRow("Robotics", "Ann Lee", int64(1)))

	got, err := NewPgReportRepository(mock).GroupAuthorMultiGroup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.AuthorMultiGroupCount{
		{Group: "AI", Author: "Jane Doe", Count: 2},
		{Group: "Robotics", Author: "Ann Lee", Count: 1},
	}, got)
}

func TestPgReportRepository_TotalPapersPerGroup(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	d := time.Date(2024, 4, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT name FROM research_groups ORDER BY name`).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("AI").AddRow("Robotics"))
	mock.ExpectQuery(`SELECT DISTINCT g.name,`).
		WillReturnRows(pgxmock.NewRows(append([]string{"name"}, publicationRowColumns...)).
			AddRow("AI", int64(1), "A", d, "", "", time.Now(), "", "Scopus").
			AddRow("AI", int64(2), "B", d, "", "", time.Now(), "", "ORCID"))

	got, err := NewPgReportRepository(mock).TotalPapersPerGroup(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Total)
	assert.Equal(t, "Robotics", got[1].Group)
	assert.Zero(t, got[1].Total)
	assert.NotNil(t, got[1].Publications)
}
