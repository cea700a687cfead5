package temporal

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/yohaboy/research-tracker/internal/observability"
)

// WorkerConfig sizes the reconciliation worker. Zero fields take the defaults
// of DefaultWorkerConfig.
type WorkerConfig struct {
	TaskQueue string

	// MaxConcurrentReconciles bounds how many author reconciliations run at
	// once on this worker. Each one holds source rate-limit tokens and a
	// database connection per record commit.
	MaxConcurrentReconciles int

	// MaxConcurrentWorkflowTasks bounds in-flight workflow tasks. Fan-out
	// workflows are cheap, so this is set well above MaxConcurrentReconciles.
	MaxConcurrentWorkflowTasks int

	ActivityPollers int
	WorkflowPollers int
}

// DefaultWorkerConfig returns the worker sizing used in production.
func DefaultWorkerConfig(taskQueue string) WorkerConfig {
	return WorkerConfig{
		TaskQueue:                  taskQueue,
		MaxConcurrentReconciles:    10,
		MaxConcurrentWorkflowTasks: 50,
		ActivityPollers:            4,
		WorkflowPollers:            2,
	}
}

func (c WorkerConfig) options() worker.Options {
	d := DefaultWorkerConfig(c.TaskQueue)
	pick := func(v, def int) int {
		if v > 0 {
			return v
		}
		return def
	}
	return worker.Options{
		MaxConcurrentActivityExecutionSize:     pick(c.MaxConcurrentReconciles, d.MaxConcurrentReconciles),
		MaxConcurrentWorkflowTaskExecutionSize: pick(c.MaxConcurrentWorkflowTasks, d.MaxConcurrentWorkflowTasks),
		MaxConcurrentActivityTaskPollers:       pick(c.ActivityPollers, d.ActivityPollers),
		MaxConcurrentWorkflowTaskPollers:       pick(c.WorkflowPollers, d.WorkflowPollers),
	}
}

// WorkerManager owns the worker that executes reconciliation workflows and
// activities on one task queue.
type WorkerManager struct {
	worker     worker.Worker
	cfg        WorkerConfig
	logger     zerolog.Logger
	workflows  int
	activities int
}

// NewWorkerManager creates a worker polling cfg.TaskQueue.
func NewWorkerManager(c client.Client, cfg WorkerConfig, logger zerolog.Logger) (*WorkerManager, error) {
	if cfg.TaskQueue == "" {
		return nil, errors.New("temporal worker: task queue is required")
	}
	return &WorkerManager{
		worker: worker.New(c, cfg.TaskQueue, cfg.options()),
		cfg:    cfg,
		logger: observability.WithComponent(logger, "temporal-worker"),
	}, nil
}

func (m *WorkerManager) RegisterWorkflow(workflow interface{}) {
	m.worker.RegisterWorkflow(workflow)
	m.workflows++
}

// RegisterActivity registers an activity function, or every exported method
// of an activity struct.
func (m *WorkerManager) RegisterActivity(activity interface{}) {
	m.worker.RegisterActivity(activity)
	m.activities++
}

// Start runs the worker until ctx is cancelled or the worker fails.
func (m *WorkerManager) Start(ctx context.Context) error {
	opts := m.cfg.options()
	m.logger.Info().
		Str("task_queue", m.cfg.TaskQueue).
		Int("workflows", m.workflows).
		Int("activity_sets", m.activities).
		Int("max_concurrent_reconciles", opts.MaxConcurrentActivityExecutionSize).
		Msg("starting temporal worker")
	return runUntilDone(ctx, m.worker)
}

// runner is the part of worker.Worker that runUntilDone drives.
type runner interface {
	Run(interruptCh <-chan interface{}) error
	Stop()
}

// runUntilDone runs w and stops it when ctx ends. The worker also stops on
// SIGINT and SIGTERM through worker.InterruptCh.
func runUntilDone(ctx context.Context, w runner) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(worker.InterruptCh())
	}()

	select {
	case <-ctx.Done():
		w.Stop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
