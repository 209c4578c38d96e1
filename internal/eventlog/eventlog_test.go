package eventlog

import (
	"context"
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
	return New(eng.DB, logger.NewNop())
}

func appendEvent(t *testing.T, s *Store, entityID, verb string) *model.Event {
	t.Helper()
	var out *model.Event
	err := s.db.Transaction(func(tx *gorm.DB) error {
		ev, err := s.AppendInTx(dbctx.Context{Ctx: context.Background(), Tx: tx}, &model.Event{
			EntityType: "Contact",
			EntityID:   entityID,
			Verb:       verb,
			After:      model.Document{"stage": "Lead"},
		})
		out = ev
		return err
	})
	require.NoError(t, err)
	return out
}

func TestAppendInTxAssignsSequentialSequence(t *testing.T) {
	s := newTestStore(t)
	ev1 := appendEvent(t, s, "contact_abc", "create")
	ev2 := appendEvent(t, s, "contact_abc", "update")
	require.Equal(t, 1, ev1.Sequence)
	require.Equal(t, 2, ev2.Sequence)
	require.Equal(t, "Contact.create", ev1.Type)
}

func TestAppendInTxRequiresActiveTransaction(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendInTx(dbctx.Context{Ctx: context.Background()}, &model.Event{
		EntityType: "Contact", EntityID: "contact_x", Verb: "create",
	})
	require.Error(t, err)
}

func TestHistoryOrdersBySequenceAscending(t *testing.T) {
	s := newTestStore(t)
	appendEvent(t, s, "contact_h", "create")
	appendEvent(t, s, "contact_h", "update")
	appendEvent(t, s, "contact_h", "update")

	hist, err := s.History(context.Background(), "Contact", "contact_h")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	require.Equal(t, 1, hist[0].Sequence)
	require.Equal(t, 3, hist[2].Sequence)
}

func TestQueryFiltersByVerbAndOrdersDescending(t *testing.T) {
	s := newTestStore(t)
	appendEvent(t, s, "contact_q1", "create")
	time.Sleep(time.Millisecond)
	appendEvent(t, s, "contact_q2", "create")

	evs, err := s.Query(context.Background(), QueryParams{Verb: "create"})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	require.True(t, evs[0].Timestamp.After(evs[1].Timestamp) || evs[0].Timestamp.Equal(evs[1].Timestamp))
}

func TestGetByIDNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetByID(context.Background(), "evt_doesnotexist")
	require.Error(t, err)
}

func TestGetByIDFindsAppended(t *testing.T) {
	s := newTestStore(t)
	ev := appendEvent(t, s, "contact_g", "create")
	got, err := s.GetByID(context.Background(), ev.ID)
	require.NoError(t, err)
	require.Equal(t, ev.ID, got.ID)
}
