package durable

import (
	"context"
	"fmt"
	"time"

	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/outbox"
	"github.com/nounforge/entitykernel/internal/platform/logger"

	"go.temporal.io/sdk/activity"
)

const (
	batchSize         = 10
	defaultRetryDelay = 30 * time.Second
	defaultStaleAfter = 2 * time.Minute
)

// Activities wraps the same outbox.Store and outbox.Handler set the
// in-process outbox.Worker uses, so the two drain paths are
// interchangeable: same claim/handle/mark semantics, different
// scheduler (Temporal instead of a ticker goroutine).
type Activities struct {
	Log      *logger.Logger
	Store    *outbox.Store
	Handlers map[model.OutboxKind]outbox.Handler
}

func (a *Activities) Tick(ctx context.Context) (TickResult, error) {
	if a == nil || a.Store == nil {
		return TickResult{}, fmt.Errorf("durable: activities not configured")
	}

	var drained int
	for i := 0; i < batchSize; i++ {
		if activity.IsActivity(ctx) {
			activity.RecordHeartbeat(ctx)
		}

		entry, err := a.Store.ClaimNext(ctx, 5, defaultRetryDelay, defaultStaleAfter)
		if err != nil {
			return TickResult{Drained: drained}, err
		}
		if entry == nil {
			return TickResult{Drained: drained, Idle: true}, nil
		}

		handler, ok := a.Handlers[entry.Kind]
		if !ok {
			_ = a.Store.MarkFailed(ctx, entry.ID, fmt.Errorf("no handler registered for outbox kind %q", entry.Kind))
			drained++
			continue
		}

		if err := a.handleOne(ctx, handler, entry.ID, entry.EventID); err != nil {
			_ = a.Store.MarkFailed(ctx, entry.ID, err)
		} else {
			_ = a.Store.MarkDone(ctx, entry.ID)
		}
		drained++
	}
	return TickResult{Drained: drained}, nil
}

func (a *Activities) handleOne(ctx context.Context, h outbox.Handler, entryID, eventID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if a.Log != nil {
				a.Log.Error("durable outbox handler panic", "entry_id", entryID, "panic", r)
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Handle(ctx, eventID)
}
