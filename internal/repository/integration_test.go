//go:build integration

package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohaboy/research-tracker/internal/database/dbtest"
	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/repository"
)

func TestRepositories_Postgres(t *testing.T) {
	db := dbtest.Start(t)
	ctx := context.Background()

	groups := repository.NewPgGroupRepository(db)
	authors := repository.NewPgAuthorRepository(db)
	pubs := repository.NewPgPublicationRepository(db)
	reports := repository.NewPgReportRepository(db)
	store := repository.NewPgRecordStore(db)

	newAuthor := func(t *testing.T, first, last, group string) *domain.Author {
		t.Helper()
		g, err := groups.GetOrCreate(ctx, group)
		require.NoError(t, err)
		a, _, err := authors.Upsert(ctx, g, domain.AuthorInput{FirstName: first, LastName: last, Group: group})
		require.NoError(t, err)
		return a
	}

	rec := domain.PublicationRecord{
		Title:           "Graph Embeddings",
		PublicationDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		Keywords:        "graphs, machine learning",
		Abstract:        "index abstract",
		Source:          domain.SourceCitationIndex,
		AuthorOrder:     1,
	}

	t.Run("author upsert keeps identifiers unless replaced", func(t *testing.T) {
		dbtest.Truncate(t, db)

		g, err := groups.GetOrCreate(ctx, "AI")
		require.NoError(t, err)
		again, err := groups.GetOrCreate(ctx, "AI")
		require.NoError(t, err)
		assert.Equal(t, g.ID, again.ID)

		a, created, err := authors.Upsert(ctx, g, domain.AuthorInput{FirstName: "Jane", LastName: "Doe", ScopusID: "1", ORCIDID: "o"})
		require.NoError(t, err)
		assert.True(t, created)

		b, created, err := authors.Upsert(ctx, g, domain.AuthorInput{FirstName: "Jane", LastName: "Doe", ScholarID: "s"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, a.ID, b.ID)
		assert.Equal(t, "1", b.ScopusID)
		assert.Equal(t, "s", b.ScholarID)
		assert.Equal(t, "o", b.ORCIDID)
	})

	t.Run("saving twice is idempotent", func(t *testing.T) {
		dbtest.Truncate(t, db)
		a := newAuthor(t, "Jane", "Doe", "AI")

		first, err := store.SaveRecord(ctx, a.ID, rec)
		require.NoError(t, err)
		assert.True(t, first.Created)
		assert.True(t, first.Linked)

		second, err := store.SaveRecord(ctx, a.ID, rec)
		require.NoError(t, err)
		assert.False(t, second.Created)
		assert.False(t, second.Linked)
		assert.Equal(t, first.Publication.ID, second.Publication.ID)
		assert.Equal(t, first.Publication.DateAdded, second.Publication.DateAdded)

		n, err := pubs.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		links, err := pubs.CountLinks(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), links)
	})

	t.Run("url is back-filled but never replaced", func(t *testing.T) {
		dbtest.Truncate(t, db)
		a := newAuthor(t, "Jane", "Doe", "AI")

		noURL := rec
		_, err := store.SaveRecord(ctx, a.ID, noURL)
		require.NoError(t, err)

		withURL := rec
		withURL.URL = "https://first.example"
		withURL.Abstract = "other abstract"
		res, err := store.SaveRecord(ctx, a.ID, withURL)
		require.NoError(t, err)
		assert.Equal(t, "https://first.example", res.Publication.URL)
		assert.Equal(t, "index abstract", res.Publication.Abstract)

		otherURL := rec
		otherURL.URL = "https://second.example"
		res, err = store.SaveRecord(ctx, a.ID, otherURL)
		require.NoError(t, err)
		assert.Equal(t, "https://first.example", res.Publication.URL)
	})

	t.Run("concurrent co-authors share one publication", func(t *testing.T) {
		dbtest.Truncate(t, db)
		a := newAuthor(t, "Jane", "Doe", "AI")
		b := newAuthor(t, "Ann", "Lee", "Robotics")

		var wg sync.WaitGroup
		errs := make(chan error, 2)
		for _, id := range []int64{a.ID, b.ID} {
			wg.Add(1)
			go func(authorID int64) {
				defer wg.Done()
				if _, err := store.SaveRecord(ctx, authorID, rec); err != nil {
					_, err = store.AttachExisting(ctx, authorID, rec)
					errs <- err
				}
			}(id)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		n, err := pubs.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		multi, err := reports.MultiGroupPublications(ctx)
		require.NoError(t, err)
		require.Len(t, multi, 1)
		assert.Equal(t, []string{"AI", "Robotics"}, multi[0].Groups)

		perAuthor, err := reports.GroupAuthorMultiGroup(ctx)
		require.NoError(t, err)
		assert.Len(t, perAuthor, 2)

		perGroup, err := reports.TotalPapersPerGroup(ctx)
		require.NoError(t, err)
		require.Len(t, perGroup, 2)
		assert.Equal(t, 1, perGroup[0].Total)
	})

	t.Run("reports", func(t *testing.T) {
		dbtest.Truncate(t, db)
		a := newAuthor(t, "Jane", "Doe", "AI")

		onSince := rec
		onSince.Title = "On Since"
		onSince.PublicationDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		onSince.Keywords = "graphs"
		after := rec
		after.Title = "After Since"
		after.PublicationDate = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
		after.Keywords = "graphs, nlp"
		for _, r := range []domain.PublicationRecord{onSince, after} {
			_, err := store.SaveRecord(ctx, a.ID, r)
			require.NoError(t, err)
		}

		since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		np, err := reports.NewPublications(ctx, since)
		require.NoError(t, err)
		require.Equal(t, 1, np.Count)
		assert.Equal(t, "After Since", np.Publications[0].Title)

		kws, err := reports.KeywordCounts(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.KeywordCount{Keyword: "graphs", Count: 2}, kws[0])

		kws, err = reports.KeywordCounts(ctx, &since)
		require.NoError(t, err)
		assert.Len(t, kws, 2)

		summary, err := reports.Summary(ctx)
		require.NoError(t, err)
		assert.Equal(t, &domain.Summary{Authors: 1, Publications: 2, ResearchGroups: 1, AuthorPublications: 2}, summary)

		require.NoError(t, pubs.Reset(ctx))
		summary, err = reports.Summary(ctx)
		require.NoError(t, err)
		assert.Equal(t, &domain.Summary{}, summary)
	})
}
