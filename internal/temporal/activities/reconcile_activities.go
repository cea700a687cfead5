package activities

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/observability"
	"github.com/yohaboy/research-tracker/internal/reconcile"
	"github.com/yohaboy/research-tracker/internal/temporal/resilience"
)

// Reconciler is the pipeline surface used by the activities.
type Reconciler interface {
	ReconcileAuthor(ctx context.Context, authorID int64, since time.Time) (*reconcile.Result, error)
	ReconcileAll(ctx context.Context, since time.Time) ([]domain.JobRef, error)
}

// ReconcileActivities runs the reconciliation pipeline inside Temporal activities.
// Methods on this struct are registered as Temporal activities via the worker.
type ReconcileActivities struct {
	pipeline Reconciler
}

// NewReconcileActivities creates a new ReconcileActivities.
func NewReconcileActivities(pipeline Reconciler) *ReconcileActivities {
	return &ReconcileActivities{pipeline: pipeline}
}

// ReconcileAuthor reconciles one author's publications.
//
// Unknown authors and invalid input fail with a non-retryable error. Other
// failures are returned as-is and retried according to the workflow policy.
func (a *ReconcileActivities) ReconcileAuthor(ctx context.Context, input ReconcileAuthorInput) (*ReconcileAuthorOutput, error) {
	logger := activity.GetLogger(ctx)
	info := activity.GetInfo(ctx)
	ctx = observability.WithJobID(ctx, info.WorkflowExecution.ID)

	logger.Info("reconciling author",
		"authorID", input.AuthorID,
		"since", input.Since.Format(domain.DateLayout),
		"attempt", info.Attempt,
	)

	if input.AuthorID <= 0 {
		return nil, resilience.ToActivityError(domain.NewValidationError("author_id", "must be positive"))
	}

	result, err := a.pipeline.ReconcileAuthor(ctx, input.AuthorID, input.Since)
	if err != nil {
		logger.Error("author reconciliation failed",
			"authorID", input.AuthorID,
			"category", resilience.Classify(err).String(),
			"error", err,
		)
		return nil, resilience.ToActivityError(err)
	}

	return &ReconcileAuthorOutput{
		AuthorID:     result.AuthorID,
		Fetched:      result.Fetched,
		Deduplicated: result.Deduplicated,
		Created:      result.Created,
		Existing:     result.Existing,
		Linked:       result.Linked,
		Failed:       result.Failed,
	}, nil
}

// FanOut submits one author job per roster member and returns the accepted job IDs.
func (a *ReconcileActivities) FanOut(ctx context.Context, input FanOutInput) (*FanOutOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("fanning out reconciliation", "since", input.Since.Format(domain.DateLayout))

	refs, err := a.pipeline.ReconcileAll(ctx, input.Since)
	if err != nil {
		logger.Error("fan-out failed", "error", err)
		return nil, resilience.ToActivityError(err)
	}

	out := &FanOutOutput{JobIDs: make([]string, 0, len(refs))}
	for _, ref := range refs {
		out.JobIDs = append(out.JobIDs, ref.ID)
	}

	logger.Info("fan-out submitted", "jobs", len(out.JobIDs))
	return out, nil
}
