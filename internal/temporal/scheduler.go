package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/observability"
)

// ReconcileAuthorInput is the input of the author reconciliation workflow.
// It is defined here so the scheduler can build workflow inputs without
// importing the workflows package.
type ReconcileAuthorInput struct {
	// AuthorID is the author to reconcile.
	AuthorID int64

	// Since excludes publications dated on or before this date.
	Since time.Time

	// Timeout bounds the reconcile activity. Zero uses the workflow default.
	Timeout time.Duration
}

// ReconcileAllInput is the input of the fan-out workflow.
type ReconcileAllInput struct {
	// Since is passed to every author job.
	Since time.Time
}

// workflowClient is the subset of client.Client used by the scheduler.
type workflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
	CheckHealth(ctx context.Context, request *client.CheckHealthRequest) (*client.CheckHealthResponse, error)
	Close()
}

// ReconcileScheduler runs reconciliation jobs as Temporal workflows.
// The job ID is the workflow ID.
type ReconcileScheduler struct {
	mu                 sync.RWMutex
	client             workflowClient
	taskQueue          string
	authorJobTimeout   time.Duration
	healthCheckTimeout time.Duration
	metrics            *observability.Metrics
	closed             bool
}

// NewReconcileScheduler creates a scheduler on top of a Temporal client.
func NewReconcileScheduler(c client.Client, cfg ClientConfig, metrics *observability.Metrics) *ReconcileScheduler {
	return newReconcileScheduler(c, cfg, metrics)
}

func newReconcileScheduler(c workflowClient, cfg ClientConfig, metrics *observability.Metrics) *ReconcileScheduler {
	authorTimeout := cfg.AuthorJobTimeout
	if authorTimeout == 0 {
		authorTimeout = DefaultAuthorJobTimeout
	}
	healthTimeout := cfg.HealthCheckTimeout
	if healthTimeout == 0 {
		healthTimeout = DefaultHealthCheckTimeout
	}

	return &ReconcileScheduler{
		client:             c,
		taskQueue:          cfg.TaskQueue,
		authorJobTimeout:   authorTimeout,
		healthCheckTimeout: healthTimeout,
		metrics:            metrics,
	}
}

// Close closes the underlying Temporal client connection.
func (s *ReconcileScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && !s.closed {
		s.client.Close()
		s.closed = true
	}
}

// isClosed returns whether the scheduler has been closed. It is safe for concurrent use.
func (s *ReconcileScheduler) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Health checks the connection health to the Temporal server.
func (s *ReconcileScheduler) Health(ctx context.Context) error {
	if s.isClosed() {
		return &JobError{Op: "Health", Kind: ErrClientClosed}
	}

	checkCtx, cancel := context.WithTimeout(ctx, s.healthCheckTimeout)
	defer cancel()

	if _, err := s.client.CheckHealth(checkCtx, &client.CheckHealthRequest{}); err != nil {
		return jobError("Health", "", err)
	}
	return nil
}

// AuthorWorkflowID returns a new workflow ID for an author job.
func AuthorWorkflowID(authorID int64) string {
	return fmt.Sprintf("reconcile-author-%d-%s", authorID, uuid.NewString())
}

// FanOutWorkflowID returns a new workflow ID for a reconcile-all job.
func FanOutWorkflowID() string {
	return "reconcile-all-" + uuid.NewString()
}

// Submit starts an author reconciliation workflow and returns without waiting.
func (s *ReconcileScheduler) Submit(ctx context.Context, job domain.Job) (domain.JobRef, error) {
	if job.AuthorID <= 0 {
		return domain.JobRef{}, domain.NewValidationError("author_id", "must be positive")
	}

	workflowID := AuthorWorkflowID(job.AuthorID)
	input := ReconcileAuthorInput{
		AuthorID: job.AuthorID,
		Since:    domain.DateOnly(job.Since),
		Timeout:  s.authorJobTimeout,
	}
	if err := s.start(ctx, "Submit", workflowID, WorkflowReconcileAuthor, s.authorJobTimeout, input); err != nil {
		s.metrics.RecordJobSubmitted(string(domain.JobKindAuthor), false)
		return domain.JobRef{}, err
	}

	s.metrics.RecordJobSubmitted(string(domain.JobKindAuthor), true)
	return domain.JobRef{ID: workflowID, Kind: domain.JobKindAuthor, AuthorID: job.AuthorID}, nil
}

// SubmitAll starts a fan-out workflow that submits one author job per roster member.
func (s *ReconcileScheduler) SubmitAll(ctx context.Context, since time.Time) (domain.JobRef, error) {
	workflowID := FanOutWorkflowID()
	input := ReconcileAllInput{Since: domain.DateOnly(since)}
	if err := s.start(ctx, "SubmitAll", workflowID, WorkflowReconcileAll, DefaultFanOutTimeout, input); err != nil {
		s.metrics.RecordJobSubmitted(string(domain.JobKindFanOut), false)
		return domain.JobRef{}, err
	}

	s.metrics.RecordJobSubmitted(string(domain.JobKindFanOut), true)
	return domain.JobRef{ID: workflowID, Kind: domain.JobKindFanOut}, nil
}

func (s *ReconcileScheduler) start(ctx context.Context, op, workflowID, workflowType string, timeout time.Duration, input interface{}) error {
	if s.isClosed() {
		return &JobError{Op: op, Kind: ErrClientClosed, JobID: workflowID}
	}

	options := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                s.taskQueue,
		WorkflowExecutionTimeout: timeout,
	}
	if _, err := s.client.ExecuteWorkflow(ctx, options, workflowType, input); err != nil {
		return jobError(op, workflowID, err)
	}
	return nil
}

// Status reports the state of the latest run of a job.
// Returns domain.ErrJobNotFound for unknown job IDs.
func (s *ReconcileScheduler) Status(ctx context.Context, jobID string) (domain.JobStatus, error) {
	if s.isClosed() {
		return "", &JobError{Op: "Status", Kind: ErrClientClosed, JobID: jobID}
	}

	resp, err := s.client.DescribeWorkflowExecution(ctx, jobID, "")
	if err != nil {
		wrapped := jobError("Status", jobID, err)
		if IsWorkflowNotFound(wrapped) {
			return "", fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
		}
		return "", wrapped
	}

	info := resp.GetWorkflowExecutionInfo()
	return JobStatusOf(info.GetStatus(), info.GetHistoryLength()), nil
}

// pendingHistoryLength is the history length of a started workflow whose
// first workflow task has not been picked up by a worker yet.
const pendingHistoryLength = 2

// JobStatusOf maps a workflow execution status onto a job status.
func JobStatusOf(status enumspb.WorkflowExecutionStatus, historyLength int64) domain.JobStatus {
	switch status {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		if historyLength <= pendingHistoryLength {
			return domain.JobStatusPending
		}
		return domain.JobStatusRunning
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return domain.JobStatusSucceeded
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT,
		enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED:
		return domain.JobStatusFailed
	default:
		return domain.JobStatusPending
	}
}
