package durable

import (
	"context"
	"errors"
	"testing"

	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/outbox"
	"github.com/nounforge/entitykernel/internal/platform/dbctx"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"github.com/nounforge/entitykernel/internal/storage"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestActivities(t *testing.T, handlers map[model.OutboxKind]outbox.Handler) *Activities {
	t.Helper()
	eng, err := storage.Open(storage.Config{Driver: storage.DriverSQLite, SQLiteDir: t.TempDir()}, "test", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return &Activities{Log: logger.NewNop(), Store: outbox.New(eng.DB, eng.Driver), Handlers: handlers}
}

type fakeHandler struct {
	err error
}

func (f *fakeHandler) Handle(ctx context.Context, eventID string) error { return f.err }

func TestTickReturnsIdleWhenOutboxEmpty(t *testing.T) {
	a := newTestActivities(t, map[model.OutboxKind]outbox.Handler{})
	out, err := a.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, out.Idle)
	require.Equal(t, 0, out.Drained)
}

func TestTickFailsEntryWhenHandlerErrors(t *testing.T) {
	eng, err := storage.Open(storage.Config{Driver: storage.DriverSQLite, SQLiteDir: t.TempDir()}, "test", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	store := outbox.New(eng.DB, eng.Driver)

	require.NoError(t, eng.DB.Transaction(func(tx *gorm.DB) error {
		return store.EnqueueInTx(dbctx.Context{Ctx: context.Background(), Tx: tx}, "evt_1", model.OutboxKindIntegration)
	}))

	a := &Activities{Log: logger.NewNop(), Store: store, Handlers: map[model.OutboxKind]outbox.Handler{
		model.OutboxKindIntegration: &fakeHandler{err: errors.New("downstream unavailable")},
	}}

	out, err := a.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, out.Drained)

	var entry model.OutboxEntry
	require.NoError(t, eng.DB.First(&entry, "event_id = ?", "evt_1").Error)
	require.Equal(t, model.OutboxFailed, entry.Status)
}

func TestTickMarksDoneWhenHandlerSucceeds(t *testing.T) {
	eng, err := storage.Open(storage.Config{Driver: storage.DriverSQLite, SQLiteDir: t.TempDir()}, "test", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	store := outbox.New(eng.DB, eng.Driver)

	require.NoError(t, eng.DB.Transaction(func(tx *gorm.DB) error {
		return store.EnqueueInTx(dbctx.Context{Ctx: context.Background(), Tx: tx}, "evt_2", model.OutboxKindSubscription)
	}))

	a := &Activities{Log: logger.NewNop(), Store: store, Handlers: map[model.OutboxKind]outbox.Handler{
		model.OutboxKindSubscription: &fakeHandler{},
	}}

	out, err := a.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, out.Drained)

	var entry model.OutboxEntry
	require.NoError(t, eng.DB.First(&entry, "event_id = ?", "evt_2").Error)
	require.Equal(t, model.OutboxDone, entry.Status)
}
