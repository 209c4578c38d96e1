package durable

import (
	"context"
	"fmt"

	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/outbox"
	"github.com/nounforge/entitykernel/internal/platform/logger"

	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// Runner starts one Temporal worker for exactly one tenant kernel's
// outbox, polling a tenant-scoped task queue (cfg.TaskQueue, suffixed
// with the tenant id). A dedicated queue per tenant keeps Temporal
// from ever routing tenant A's activities to a worker bound to tenant
// B's store. Mirrors the teacher's temporalworker.Runner.
type Runner struct {
	log       *logger.Logger
	tc        temporalsdkclient.Client
	taskQueue string

	store    *outbox.Store
	handlers map[model.OutboxKind]outbox.Handler
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, tenantID string, store *outbox.Store, handlers map[model.OutboxKind]outbox.Handler) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if store == nil {
		return nil, fmt.Errorf("durable worker missing outbox store")
	}
	return &Runner{log: log, tc: tc, taskQueue: TaskQueueForTenant(tenantID), store: store, handlers: handlers}, nil
}

func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.tc == nil {
		return fmt.Errorf("durable worker not initialized")
	}
	if r.log != nil {
		r.log.Info("starting durable outbox worker", "task_queue", r.taskQueue)
	}

	w := worker.New(r.tc, r.taskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     4,
		MaxConcurrentWorkflowTaskExecutionSize: 4,
	})

	acts := &Activities{Log: r.log, Store: r.store, Handlers: r.handlers}
	w.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivityWithOptions(acts.Tick, activity.RegisterOptions{Name: ActivityTick})

	if err := w.Start(); err != nil {
		return fmt.Errorf("durable outbox worker start: %w", err)
	}
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}

// TaskQueueForTenant derives one tenant's dedicated task queue name
// from the configured base queue.
func TaskQueueForTenant(tenantID string) string {
	return LoadConfig().TaskQueue + "-" + tenantID
}

// StartWorkflow kicks off the long-lived drain workflow for one
// tenant's outbox on that tenant's dedicated task queue. A second call
// against the same tenant while its workflow is still running returns
// a WorkflowExecutionAlreadyStarted error from the SDK; callers that
// invoke this on every kernel activation should treat that specific
// error as success.
func StartWorkflow(ctx context.Context, tc temporalsdkclient.Client, tenantID string) error {
	_, err := tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:        "outbox-drain-" + tenantID,
		TaskQueue: TaskQueueForTenant(tenantID),
	}, Workflow)
	return err
}
