package workflows

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/temporal/activities"
	"github.com/yohaboy/research-tracker/internal/temporal/resilience"
)

var testSince = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestReconcileAuthorWorkflow_Success(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var reconcileAct *activities.ReconcileActivities
	env.OnActivity(reconcileAct.ReconcileAuthor, mock.Anything, activities.ReconcileAuthorInput{
		AuthorID: 5,
		Since:    testSince,
	}).Return(&activities.ReconcileAuthorOutput{
		AuthorID: 5,
		Fetched: map[domain.SourceTag]int{
			domain.SourceIdentifierRegistry: 2,
			domain.SourceCitationIndex:      3,
		},
		Deduplicated: 4,
		Created:      3,
		Existing:     1,
		Linked:       4,
	}, nil).Once()

	env.ExecuteWorkflow(ReconcileAuthorWorkflow, ReconcileAuthorInput{AuthorID: 5, Since: testSince})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out activities.ReconcileAuthorOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, 3, out.Created)
	assert.Equal(t, 4, out.Linked)
	env.AssertExpectations(t)
}

func TestReconcileAuthorWorkflow_RetriesTransientFailures(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var reconcileAct *activities.ReconcileActivities
	env.OnActivity(reconcileAct.ReconcileAuthor, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset")).Once()
	env.OnActivity(reconcileAct.ReconcileAuthor, mock.Anything, mock.Anything).
		Return(&activities.ReconcileAuthorOutput{AuthorID: 1, Created: 1, Linked: 1}, nil).Once()

	env.ExecuteWorkflow(ReconcileAuthorWorkflow, ReconcileAuthorInput{AuthorID: 1, Since: testSince})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	env.AssertNumberOfCalls(t, "ReconcileAuthor", 2)
}

func TestReconcileAuthorWorkflow_UnknownAuthorFailsWithoutRetry(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var reconcileAct *activities.ReconcileActivities
	env.OnActivity(reconcileAct.ReconcileAuthor, mock.Anything, mock.Anything).
		Return(nil, temporal.NewNonRetryableApplicationError("author not found: 9", resilience.ErrorTypeNotFound, nil))

	env.ExecuteWorkflow(ReconcileAuthorWorkflow, ReconcileAuthorInput{AuthorID: 9, Since: testSince})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile author 9")
	env.AssertNumberOfCalls(t, "ReconcileAuthor", 1)
}

func TestReconcileAuthorWorkflow_GivesUpAfterMaxAttempts(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var reconcileAct *activities.ReconcileActivities
	env.OnActivity(reconcileAct.ReconcileAuthor, mock.Anything, mock.Anything).
		Return(nil, errors.New("pipeline failure: database unavailable"))

	env.ExecuteWorkflow(ReconcileAuthorWorkflow, ReconcileAuthorInput{AuthorID: 2, Since: testSince})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	env.AssertNumberOfCalls(t, "ReconcileAuthor", 3)
}

func TestReconcileAllWorkflow(t *testing.T) {
	t.Run("returns sorted job IDs", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()

		var reconcileAct *activities.ReconcileActivities
		env.OnActivity(reconcileAct.FanOut, mock.Anything, activities.FanOutInput{Since: testSince}).
			Return(&activities.FanOutOutput{JobIDs: []string{"reconcile-author-2-b", "reconcile-author-1-a"}}, nil)

		env.ExecuteWorkflow(ReconcileAllWorkflow, ReconcileAllInput{Since: testSince})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var out activities.FanOutOutput
		require.NoError(t, env.GetWorkflowResult(&out))
		assert.Equal(t, []string{"reconcile-author-1-a", "reconcile-author-2-b"}, out.JobIDs)
	})

	t.Run("fan-out is never retried", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()

		var reconcileAct *activities.ReconcileActivities
		env.OnActivity(reconcileAct.FanOut, mock.Anything, mock.Anything).
			Return(nil, errors.New("list authors: connection reset"))

		env.ExecuteWorkflow(ReconcileAllWorkflow, ReconcileAllInput{Since: testSince})

		require.True(t, env.IsWorkflowCompleted())
		require.Error(t, env.GetWorkflowError())
		env.AssertNumberOfCalls(t, "FanOut", 1)
	})
}
