package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/logger"
)

// Handler delivers one outbox entry's event to completion (as opposed
// to the in-process fire-and-forget dispatchers, which never report
// success/failure back to a caller).
type Handler interface {
	Handle(ctx context.Context, eventID string) error
}

// Worker drains the outbox on a timer, exactly the way the teacher's
// jobs.Worker.Start drains job runs: claim, dispatch to the registered
// handler for the entry's kind, recover from a handler panic by
// marking the entry failed rather than letting it kill the loop.
type Worker struct {
	store       *Store
	log         *logger.Logger
	handlers    map[model.OutboxKind]Handler
	maxAttempts int
	retryDelay  time.Duration
	staleAfter  time.Duration
}

func NewWorker(store *Store, log *logger.Logger, handlers map[model.OutboxKind]Handler) *Worker {
	return &Worker{
		store:       store,
		log:         log.With("component", "OutboxWorker"),
		handlers:    handlers,
		maxAttempts: 5,
		retryDelay:  30 * time.Second,
		staleAfter:  2 * time.Minute,
	}
}

// Start launches the drain loop in its own goroutine until ctx is
// cancelled, mirroring jobs.Worker.Start's ticker shape.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.drainOne(ctx)
			}
		}
	}()
}

func (w *Worker) drainOne(ctx context.Context) {
	entry, err := w.store.ClaimNext(ctx, w.maxAttempts, w.retryDelay, w.staleAfter)
	if err != nil {
		w.log.Warn("ClaimNext failed", "error", err)
		return
	}
	if entry == nil {
		return
	}

	handler, ok := w.handlers[entry.Kind]
	if !ok {
		_ = w.store.MarkFailed(ctx, entry.ID, fmt.Errorf("no handler registered for outbox kind %q", entry.Kind))
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("outbox handler panic", "entry_id", entry.ID, "kind", entry.Kind, "panic", r)
				_ = w.store.MarkFailed(ctx, entry.ID, fmt.Errorf("panic: %v", r))
			}
		}()

		if err := handler.Handle(ctx, entry.EventID); err != nil {
			w.log.Warn("outbox delivery failed", "entry_id", entry.ID, "kind", entry.Kind, "error", err)
			_ = w.store.MarkFailed(ctx, entry.ID, err)
			return
		}
		if err := w.store.MarkDone(ctx, entry.ID); err != nil {
			w.log.Warn("outbox mark-done failed", "entry_id", entry.ID, "error", err)
		}
	}()
}
