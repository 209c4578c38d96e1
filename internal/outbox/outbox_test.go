package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/dbctx"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"github.com/nounforge/entitykernel/internal/storage"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	eng, err := storage.Open(storage.Config{Driver: storage.DriverSQLite, SQLiteDir: t.TempDir()}, "test", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return New(eng.DB, eng.Driver)
}

func enqueue(t *testing.T, s *Store, eventID string, kind model.OutboxKind) {
	t.Helper()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.EnqueueInTx(dbctx.Context{Ctx: context.Background(), Tx: tx}, eventID, kind)
	})
	require.NoError(t, err)
}

func TestEnqueueInTxRequiresActiveTransaction(t *testing.T) {
	s := newTestStore(t)
	err := s.EnqueueInTx(dbctx.Context{Ctx: context.Background()}, "evt_1", model.OutboxKindSubscription)
	require.Error(t, err)
}

func TestClaimNextReturnsQueuedEntryAndMarksRunning(t *testing.T) {
	s := newTestStore(t)
	enqueue(t, s, "evt_1", model.OutboxKindIntegration)

	entry, err := s.ClaimNext(context.Background(), 5, 30*time.Second, 2*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, "evt_1", entry.EventID)
	require.Equal(t, 1, entry.Attempts)

	var reloaded model.OutboxEntry
	require.NoError(t, s.db.First(&reloaded, "id = ?", entry.ID).Error)
	require.Equal(t, model.OutboxRunning, reloaded.Status)
}

func TestClaimNextReturnsNilWhenNothingRunnable(t *testing.T) {
	s := newTestStore(t)
	entry, err := s.ClaimNext(context.Background(), 5, 30*time.Second, 2*time.Minute)
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestClaimNextSkipsRecentlyFailedEntriesWithinRetryDelay(t *testing.T) {
	s := newTestStore(t)
	enqueue(t, s, "evt_1", model.OutboxKindSubscription)

	entry, err := s.ClaimNext(context.Background(), 5, 30*time.Second, 2*time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(context.Background(), entry.ID, errors.New("boom")))

	again, err := s.ClaimNext(context.Background(), 5, 30*time.Second, 2*time.Minute)
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestClaimNextReclaimsAfterRetryDelayElapses(t *testing.T) {
	s := newTestStore(t)
	enqueue(t, s, "evt_1", model.OutboxKindSubscription)

	entry, err := s.ClaimNext(context.Background(), 5, 30*time.Second, 2*time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(context.Background(), entry.ID, errors.New("boom")))

	again, err := s.ClaimNext(context.Background(), 5, 0, 2*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, again)
	require.Equal(t, entry.ID, again.ID)
	require.Equal(t, 2, again.Attempts)
}

func TestMarkDoneSucceeds(t *testing.T) {
	s := newTestStore(t)
	enqueue(t, s, "evt_1", model.OutboxKindSubscription)
	entry, err := s.ClaimNext(context.Background(), 5, 30*time.Second, 2*time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.MarkDone(context.Background(), entry.ID))

	var reloaded model.OutboxEntry
	require.NoError(t, s.db.First(&reloaded, "id = ?", entry.ID).Error)
	require.Equal(t, model.OutboxDone, reloaded.Status)
}
