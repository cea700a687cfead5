package activities

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/reconcile"
)

// ---------------------------------------------------------------------------
// Mock: Reconciler
// ---------------------------------------------------------------------------

type mockReconciler struct {
	result   *reconcile.Result
	refs     []domain.JobRef
	err      error
	authorID int64
	since    time.Time
	jobID    string
}

func (m *mockReconciler) ReconcileAuthor(ctx context.Context, authorID int64, since time.Time) (*reconcile.Result, error) {
	m.authorID = authorID
	m.since = since
	return m.result, m.err
}

func (m *mockReconciler) ReconcileAll(_ context.Context, since time.Time) ([]domain.JobRef, error) {
	m.since = since
	return m.refs, m.err
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestReconcileActivities_ReconcileAuthor(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("returns the pipeline result", func(t *testing.T) {
		suite := &testsuite.WorkflowTestSuite{}
		env := suite.NewTestActivityEnvironment()

		rec := &mockReconciler{result: &reconcile.Result{
			AuthorID:     3,
			Fetched:      map[domain.SourceTag]int{domain.SourceCitationIndex: 4},
			Deduplicated: 3,
			Created:      2,
			Existing:     1,
			Linked:       3,
		}}
		act := NewReconcileActivities(rec)
		env.RegisterActivity(act.ReconcileAuthor)

		val, err := env.ExecuteActivity(act.ReconcileAuthor, ReconcileAuthorInput{AuthorID: 3, Since: since})
		require.NoError(t, err)

		var out ReconcileAuthorOutput
		require.NoError(t, val.Get(&out))
		assert.Equal(t, int64(3), out.AuthorID)
		assert.Equal(t, 4, out.Fetched[domain.SourceCitationIndex])
		assert.Equal(t, 2, out.Created)
		assert.Equal(t, 1, out.Existing)
		assert.Equal(t, 3, out.Linked)
		assert.Equal(t, int64(3), rec.authorID)
		assert.True(t, since.Equal(rec.since))
	})

	t.Run("unknown author is not retried", func(t *testing.T) {
		suite := &testsuite.WorkflowTestSuite{}
		env := suite.NewTestActivityEnvironment()

		act := NewReconcileActivities(&mockReconciler{err: domain.NewNotFoundError("author", "9")})
		env.RegisterActivity(act.ReconcileAuthor)

		_, err := env.ExecuteActivity(act.ReconcileAuthor, ReconcileAuthorInput{AuthorID: 9, Since: since})
		require.Error(t, err)

		var appErr *temporal.ApplicationError
		require.True(t, errors.As(err, &appErr))
		assert.True(t, appErr.NonRetryable())
		assert.Equal(t, "not_found", appErr.Type())
	})

	t.Run("invalid author ID is rejected", func(t *testing.T) {
		suite := &testsuite.WorkflowTestSuite{}
		env := suite.NewTestActivityEnvironment()

		rec := &mockReconciler{}
		act := NewReconcileActivities(rec)
		env.RegisterActivity(act.ReconcileAuthor)

		_, err := env.ExecuteActivity(act.ReconcileAuthor, ReconcileAuthorInput{})
		require.Error(t, err)
		assert.Zero(t, rec.authorID)
	})

	t.Run("fatal errors stay retryable", func(t *testing.T) {
		suite := &testsuite.WorkflowTestSuite{}
		env := suite.NewTestActivityEnvironment()

		act := NewReconcileActivities(&mockReconciler{err: errors.New("pipeline failure: connection refused")})
		env.RegisterActivity(act.ReconcileAuthor)

		_, err := env.ExecuteActivity(act.ReconcileAuthor, ReconcileAuthorInput{AuthorID: 1, Since: since})
		require.Error(t, err)

		var appErr *temporal.ApplicationError
		require.True(t, errors.As(err, &appErr))
		assert.False(t, appErr.NonRetryable())
	})
}

func TestReconcileActivities_FanOut(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("returns submitted job IDs", func(t *testing.T) {
		suite := &testsuite.WorkflowTestSuite{}
		env := suite.NewTestActivityEnvironment()

		rec := &mockReconciler{refs: []domain.JobRef{
			{ID: "reconcile-author-1-a", Kind: domain.JobKindAuthor, AuthorID: 1},
			{ID: "reconcile-author-2-b", Kind: domain.JobKindAuthor, AuthorID: 2},
		}}
		act := NewReconcileActivities(rec)
		env.RegisterActivity(act.FanOut)

		val, err := env.ExecuteActivity(act.FanOut, FanOutInput{Since: since})
		require.NoError(t, err)

		var out FanOutOutput
		require.NoError(t, val.Get(&out))
		assert.Equal(t, []string{"reconcile-author-1-a", "reconcile-author-2-b"}, out.JobIDs)
	})

	t.Run("no authors", func(t *testing.T) {
		suite := &testsuite.WorkflowTestSuite{}
		env := suite.NewTestActivityEnvironment()

		act := NewReconcileActivities(&mockReconciler{})
		env.RegisterActivity(act.FanOut)

		val, err := env.ExecuteActivity(act.FanOut, FanOutInput{Since: since})
		require.NoError(t, err)

		var out FanOutOutput
		require.NoError(t, val.Get(&out))
		assert.Empty(t, out.JobIDs)
	})

	t.Run("propagates listing errors", func(t *testing.T) {
		suite := &testsuite.WorkflowTestSuite{}
		env := suite.NewTestActivityEnvironment()

		act := NewReconcileActivities(&mockReconciler{err: errors.New("list authors: connection reset")})
		env.RegisterActivity(act.FanOut)

		_, err := env.ExecuteActivity(act.FanOut, FanOutInput{Since: since})
		assert.Error(t, err)
	})
}
