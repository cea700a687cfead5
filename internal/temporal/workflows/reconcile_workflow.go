// Package workflows defines the Temporal workflows behind reconciliation jobs.
package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	rttemporal "github.com/yohaboy/research-tracker/internal/temporal"
	"github.com/yohaboy/research-tracker/internal/temporal/activities"
	"github.com/yohaboy/research-tracker/internal/temporal/resilience"
)

// Activity timeout constants.
const (
	reconcileActivityTimeout = 10 * time.Minute
	fanOutActivityTimeout    = 5 * time.Minute
)

// ReconcileAuthorInput is an alias for the shared input type defined in the
// parent temporal package, so the scheduler can build inputs without
// importing this package.
type ReconcileAuthorInput = rttemporal.ReconcileAuthorInput

// ReconcileAllInput is an alias for the shared fan-out input type.
type ReconcileAllInput = rttemporal.ReconcileAllInput

// ReconcileAuthorWorkflow reconciles one author's publications.
//
// The reconcile activity is retried with exponential backoff, except for
// unknown authors and invalid input. A failed workflow is reported as a failed
// job; records committed by earlier attempts stay committed.
func ReconcileAuthorWorkflow(ctx workflow.Context, input ReconcileAuthorInput) (*activities.ReconcileAuthorOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("starting author reconciliation",
		"authorID", input.AuthorID,
		"since", input.Since.Format("2006-01-02"),
	)

	timeout := reconcileActivityTimeout
	if input.Timeout > 0 && input.Timeout < timeout {
		timeout = input.Timeout
	}

	actCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        5 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        1 * time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: resilience.NonRetryableErrorTypes(),
		},
	})

	var reconcileAct *activities.ReconcileActivities
	var out activities.ReconcileAuthorOutput
	err := workflow.ExecuteActivity(actCtx, reconcileAct.ReconcileAuthor, activities.ReconcileAuthorInput{
		AuthorID: input.AuthorID,
		Since:    input.Since,
	}).Get(ctx, &out)
	if err != nil {
		logger.Error("author reconciliation failed", "authorID", input.AuthorID, "error", err)
		return nil, fmt.Errorf("reconcile author %d: %w", input.AuthorID, err)
	}

	for _, tag := range tagsByPrecedence(out.Fetched) {
		logger.Debug("source contribution", "source", string(tag), "records", out.Fetched[tag])
	}
	logger.Info("author reconciliation completed",
		"authorID", input.AuthorID,
		"created", out.Created,
		"existing", out.Existing,
		"linked", out.Linked,
		"failed", out.Failed,
	)

	return &out, nil
}

// ReconcileAllWorkflow submits one author job per roster member and completes
// once every submission has been attempted. It does not wait for the author
// jobs themselves.
//
// The fan-out activity runs at most once so that a retry never submits a
// second round of author jobs.
func ReconcileAllWorkflow(ctx workflow.Context, input ReconcileAllInput) (*activities.FanOutOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("starting reconcile-all fan-out", "since", input.Since.Format("2006-01-02"))

	actCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: fanOutActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var reconcileAct *activities.ReconcileActivities
	var out activities.FanOutOutput
	if err := workflow.ExecuteActivity(actCtx, reconcileAct.FanOut, activities.FanOutInput{
		Since: input.Since,
	}).Get(ctx, &out); err != nil {
		logger.Error("reconcile-all fan-out failed", "error", err)
		return nil, fmt.Errorf("fan out: %w", err)
	}

	out.JobIDs = sortedJobIDs(out.JobIDs)
	logger.Info("reconcile-all fan-out completed", "jobs", len(out.JobIDs))
	return &out, nil
}
