package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/branchgraph/internal/platform/logger"
	"github.com/yungbote/branchgraph/internal/services"
	"github.com/yungbote/branchgraph/internal/temporalx"
	"github.com/yungbote/branchgraph/internal/temporalx/mergerun"
)

// Runner hosts the merge workflow and its activities on the task queue.
type Runner struct {
	log  *logger.Logger
	tc   temporalsdkclient.Client
	cfg  temporalx.Config
	acts *mergerun.Activities
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, cfg temporalx.Config, diff services.DiffService, merge services.MergeService) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if diff == nil || merge == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	log = log.With("component", "TemporalWorker")
	return &Runner{
		log:  log,
		tc:   tc,
		cfg:  cfg,
		acts: &mergerun.Activities{Log: log, Diff: diff, Merge: merge},
	}, nil
}

// Start polls the task queue until ctx is done. Startup failures are retried
// with backoff for cfg.DialMaxWait.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("starting Temporal worker", "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)
	deadline := time.Now().Add(r.cfg.DialMaxWait)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		var missing *serviceerror.NamespaceNotFound
		if errors.As(startErr, &missing) && r.cfg.AutoRegisterNamespace {
			if err := temporalx.EnsureNamespace(ctx, r.log, r.cfg); err != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", err)
			}
		}
		if r.cfg.DialMaxWait <= 0 || time.Now().After(deadline) {
			if errors.As(startErr, &missing) {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr)
			}
			return startErr
		}
		r.log.Warn("Temporal worker failed to start; retrying", "attempt", attempt, "error", startErr)
		time.Sleep(temporalx.Backoff(r.cfg.DialBackoff, r.cfg.DialBackoffMax, attempt))
	}
}

func (r *Runner) newWorker() worker.Worker {
	concurrency := r.cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	w.RegisterWorkflowWithOptions(mergerun.Workflow, workflow.RegisterOptions{Name: mergerun.WorkflowName})
	w.RegisterActivityWithOptions(r.acts.Validate, activity.RegisterOptions{Name: mergerun.ActivityValidate})
	w.RegisterActivityWithOptions(r.acts.Apply, activity.RegisterOptions{Name: mergerun.ActivityApply})
	return w
}
