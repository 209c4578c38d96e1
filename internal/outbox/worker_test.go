package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	calls chan string
	err   error
}

func (f *fakeHandler) Handle(ctx context.Context, eventID string) error {
	f.calls <- eventID
	return f.err
}

func TestWorkerDrainsQueuedEntryToSuccess(t *testing.T) {
	s := newTestStore(t)
	enqueue(t, s, "evt_1", model.OutboxKindSubscription)

	h := &fakeHandler{calls: make(chan string, 1)}
	w := NewWorker(s, logger.NewNop(), map[model.OutboxKind]Handler{model.OutboxKindSubscription: h})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	select {
	case id := <-h.calls:
		require.Equal(t, "evt_1", id)
	case <-time.After(3 * time.Second):
		t.Fatal("handler was never invoked")
	}

	require.Eventually(t, func() bool {
		var entry model.OutboxEntry
		require.NoError(t, s.db.First(&entry, "event_id = ?", "evt_1").Error)
		return entry.Status == model.OutboxDone
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWorkerMarksFailedWhenHandlerErrors(t *testing.T) {
	s := newTestStore(t)
	enqueue(t, s, "evt_2", model.OutboxKindIntegration)

	h := &fakeHandler{calls: make(chan string, 1), err: errors.New("downstream unavailable")}
	w := NewWorker(s, logger.NewNop(), map[model.OutboxKind]Handler{model.OutboxKindIntegration: h})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	<-h.calls

	require.Eventually(t, func() bool {
		var entry model.OutboxEntry
		require.NoError(t, s.db.First(&entry, "event_id = ?", "evt_2").Error)
		return entry.Status == model.OutboxFailed && entry.LastError != nil
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWorkerMarksFailedWhenNoHandlerRegistered(t *testing.T) {
	s := newTestStore(t)
	enqueue(t, s, "evt_3", model.OutboxKindIntegration)

	w := NewWorker(s, logger.NewNop(), map[model.OutboxKind]Handler{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.Eventually(t, func() bool {
		var entry model.OutboxEntry
		require.NoError(t, s.db.First(&entry, "event_id = ?", "evt_3").Error)
		return entry.Status == model.OutboxFailed
	}, 3*time.Second, 20*time.Millisecond)
}
