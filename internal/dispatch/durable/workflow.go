package durable

import (
	"time"

	"go.temporal.io/sdk/workflow"
)

// Workflow drains the outbox forever, one tick at a time, exactly the
// shape of the teacher's jobrun.Workflow tick loop: poll an activity,
// branch on its result, sleep when idle, continue-as-new once history
// grows past a bound so the workflow never accumulates unbounded
// history on a busy tenant.
func Workflow(ctx workflow.Context) error {
	const (
		busyPollInterval     = 250 * time.Millisecond
		idlePollInterval     = 5 * time.Second
		continueTickLimit    = 5000
		continueHistoryLimit = 20000
	)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
	})

	for tick := 0; ; tick++ {
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityTick).Get(ctx, &out); err != nil {
			return err
		}

		wait := busyPollInterval
		if out.Idle {
			wait = idlePollInterval
		}
		if err := workflow.Sleep(ctx, wait); err != nil {
			return err
		}

		if shouldContinueAsNew(ctx, tick, continueTickLimit, continueHistoryLimit) {
			return workflow.NewContinueAsNewError(ctx, Workflow)
		}
	}
}

func shouldContinueAsNew(ctx workflow.Context, ticks, maxTicks, maxHistory int) bool {
	if maxTicks > 0 && ticks >= maxTicks {
		return true
	}
	info := workflow.GetInfo(ctx)
	if info == nil || maxHistory <= 0 {
		return false
	}
	return info.GetCurrentHistoryLength() >= maxHistory
}
