package temporal_test

import (
	"github.com/yohaboy/research-tracker/internal/reconcile"
	"github.com/yohaboy/research-tracker/internal/temporal"
)

// Lives outside package temporal: reconcile reaches temporal through config.
var _ reconcile.JobScheduler = (*temporal.ReconcileScheduler)(nil)
