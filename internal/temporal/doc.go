// Package temporal runs reconciliation jobs on Temporal.
//
// Each author reconciliation is one workflow execution; a reconcile-all
// request is a fan-out workflow that submits one author job per roster
// member. The workflow ID doubles as the job ID returned to callers.
//
// # Client Setup
//
//	c, err := temporal.NewClient(temporal.ClientConfig{
//	    HostPort:  "localhost:7233",
//	    Namespace: "default",
//	    TaskQueue: "publication-reconcile",
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
// # Submitting Jobs
//
//	scheduler := temporal.NewReconcileScheduler(c, cfg, metrics)
//	ref, err := scheduler.Submit(ctx, domain.Job{AuthorID: 7, Since: since})
//	status, err := scheduler.Status(ctx, ref.ID)
//
// # Worker Setup
//
// Workflows and activities live in the workflows and activities
// subpackages and are registered by the worker binary:
//
//	mgr, err := temporal.NewWorkerManager(c, temporal.DefaultWorkerConfig(queue), logger)
//	mgr.RegisterWorkflow(workflows.ReconcileAuthorWorkflow)
//	mgr.RegisterWorkflow(workflows.ReconcileAllWorkflow)
//	mgr.RegisterActivity(activities.NewReconcileActivities(pipeline))
//	err = mgr.Start(ctx)
//
// # Error Handling
//
//	if temporal.IsWorkflowNotFound(err) {
//	    // unknown job ID
//	}
//
// The Temporal client is safe for concurrent use.
package temporal
