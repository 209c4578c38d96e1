package cdc

import (
	"context"
	"testing"
	"time"

	"github.com/nounforge/entitykernel/internal/entitystore"
	"github.com/nounforge/entitykernel/internal/eventlog"
	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"github.com/nounforge/entitykernel/internal/schema"
	"github.com/nounforge/entitykernel/internal/storage"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*storage.Engine, *entitystore.Store) {
	t.Helper()
	eng, err := storage.Open(storage.Config{Driver: storage.DriverSQLite, SQLiteDir: t.TempDir()}, "test", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	reg := schema.New(eng.DB, logger.NewNop(), nil)
	_, err = reg.DefineNoun(context.Background(), "Contact", schema.Definition{})
	require.NoError(t, err)
	_, err = reg.DefineNoun(context.Background(), "Deal", schema.Definition{})
	require.NoError(t, err)

	events := eventlog.New(eng.DB, logger.NewNop())
	return eng, entitystore.New(eng.DB, logger.NewNop(), nil, reg, events, eng.Driver)
}

func TestPollOrdersByTimestampThenID(t *testing.T) {
	eng, entities := newTestStore(t)
	ctx := context.Background()

	_, _, err := entities.Create(ctx, "Contact", model.Document{"name": "Alice"}, "", "")
	require.NoError(t, err)
	_, _, err = entities.Create(ctx, "Deal", model.Document{"name": "Widget"}, "", "")
	require.NoError(t, err)

	batch, err := Poll(ctx, eng.DB, Params{})
	require.NoError(t, err)
	require.Len(t, batch.Events, 2)
	require.False(t, batch.Heartbeat)
	require.NotEmpty(t, batch.Cursor)
	first, second := batch.Events[0], batch.Events[1]
	require.True(t, first.Timestamp.Before(second.Timestamp) ||
		(first.Timestamp.Equal(second.Timestamp) && first.ID < second.ID))
}

func TestPollResumesStrictlyAfterCursor(t *testing.T) {
	eng, entities := newTestStore(t)
	ctx := context.Background()

	_, _, err := entities.Create(ctx, "Contact", model.Document{"name": "Alice"}, "", "")
	require.NoError(t, err)

	first, err := Poll(ctx, eng.DB, Params{})
	require.NoError(t, err)
	require.Len(t, first.Events, 1)

	_, _, err = entities.Create(ctx, "Contact", model.Document{"name": "Bob"}, "", "")
	require.NoError(t, err)

	second, err := Poll(ctx, eng.DB, Params{Since: []string{first.Cursor}})
	require.NoError(t, err)
	require.Len(t, second.Events, 1)
	require.Equal(t, "Bob", second.Events[0].After["name"])
}

func TestPollReturnsHeartbeatWhenCaughtUp(t *testing.T) {
	eng, entities := newTestStore(t)
	ctx := context.Background()
	_, _, err := entities.Create(ctx, "Contact", model.Document{"name": "Alice"}, "", "")
	require.NoError(t, err)

	first, err := Poll(ctx, eng.DB, Params{})
	require.NoError(t, err)

	second, err := Poll(ctx, eng.DB, Params{Since: []string{first.Cursor}})
	require.NoError(t, err)
	require.True(t, second.Heartbeat)
	require.Empty(t, second.Events)
	require.Equal(t, first.Cursor, second.Cursor)
}

func TestPollFiltersByTypesAndVerbs(t *testing.T) {
	eng, entities := newTestStore(t)
	ctx := context.Background()
	_, _, err := entities.Create(ctx, "Contact", model.Document{"name": "Alice"}, "", "")
	require.NoError(t, err)
	_, _, err = entities.Create(ctx, "Deal", model.Document{"name": "Widget"}, "", "")
	require.NoError(t, err)

	batch, err := Poll(ctx, eng.DB, Params{Types: []string{"Deal"}})
	require.NoError(t, err)
	require.Len(t, batch.Events, 1)
	require.Equal(t, "Deal", batch.Events[0].EntityType)

	batch2, err := Poll(ctx, eng.DB, Params{Verbs: []string{"update"}})
	require.NoError(t, err)
	require.Empty(t, batch2.Events)
}

func TestPollRejectsUnknownCursor(t *testing.T) {
	eng, _ := newTestStore(t)
	_, err := Poll(context.Background(), eng.DB, Params{Since: []string{"evt_ghost"}})
	require.Error(t, err)
}

func TestStreamerRunDeliversBatchesUntilCancelled(t *testing.T) {
	eng, entities := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _, err := entities.Create(context.Background(), "Contact", model.Document{"name": "Alice"}, "", "")
	require.NoError(t, err)

	s := NewStreamer(eng.DB, 20*time.Millisecond, nil)
	batches := make(chan Batch, 8)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, Params{}, func(b Batch) {
			select {
			case batches <- b:
			default:
			}
		})
	}()

	first := <-batches
	require.Len(t, first.Events, 1)

	cancel()
	<-done
}
