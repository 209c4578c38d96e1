package timetravel

import (
	"context"
	"testing"

	"github.com/nounforge/entitykernel/internal/entitystore"
	"github.com/nounforge/entitykernel/internal/eventlog"
	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"github.com/nounforge/entitykernel/internal/schema"
	"github.com/nounforge/entitykernel/internal/storage"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *entitystore.Store) {
	t.Helper()
	eng, err := storage.Open(storage.Config{Driver: storage.DriverSQLite, SQLiteDir: t.TempDir()}, "test", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	reg := schema.New(eng.DB, logger.NewNop(), nil)
	_, err = reg.DefineNoun(context.Background(), "Contact", schema.Definition{})
	require.NoError(t, err)

	events := eventlog.New(eng.DB, logger.NewNop())
	entities := entitystore.New(eng.DB, logger.NewNop(), nil, reg, events, eng.Driver)
	return New(events), entities
}

func TestReconstructAtVersionFoldsHistory(t *testing.T) {
	engine, entities := newTestEngine(t)
	ctx := context.Background()

	entity, _, err := entities.Create(ctx, "Contact", model.Document{"name": "Alice", "stage": "Lead"}, "", "")
	require.NoError(t, err)
	_, _, err = entities.Update(ctx, "Contact", entity.ID, model.Document{"stage": "Qualified"}, nil)
	require.NoError(t, err)
	_, _, err = entities.Update(ctx, "Contact", entity.ID, model.Document{"stage": "Customer"}, nil)
	require.NoError(t, err)

	v1 := 1
	state, err := engine.Reconstruct(ctx, "Contact", entity.ID, ReconstructParams{AtVersion: &v1})
	require.NoError(t, err)
	require.Equal(t, "Lead", state.Data["stage"])

	v2 := 2
	state2, err := engine.Reconstruct(ctx, "Contact", entity.ID, ReconstructParams{AtVersion: &v2})
	require.NoError(t, err)
	require.Equal(t, "Qualified", state2.Data["stage"])
}

func TestReconstructMarksDeletedState(t *testing.T) {
	engine, entities := newTestEngine(t)
	ctx := context.Background()
	entity, _, err := entities.Create(ctx, "Contact", model.Document{"name": "Bob"}, "", "")
	require.NoError(t, err)
	_, _, err = entities.Delete(ctx, "Contact", entity.ID)
	require.NoError(t, err)

	state, err := engine.Reconstruct(ctx, "Contact", entity.ID, ReconstructParams{})
	require.NoError(t, err)
	require.True(t, state.IsDeleted())
}

func TestReconstructNotFoundWhenNoEventsMatch(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.Reconstruct(context.Background(), "Contact", "contact_ghost", ReconstructParams{})
	require.Error(t, err)
}

func TestDiffReportsFieldLevelChanges(t *testing.T) {
	engine, entities := newTestEngine(t)
	ctx := context.Background()
	entity, _, err := entities.Create(ctx, "Contact", model.Document{"name": "Carol", "stage": "Lead"}, "", "")
	require.NoError(t, err)
	_, _, err = entities.Update(ctx, "Contact", entity.ID, model.Document{"stage": "Customer"}, nil)
	require.NoError(t, err)

	changes, between, err := engine.Diff(ctx, "Contact", entity.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, between, 1)
	require.Len(t, changes, 1)
	require.Equal(t, "stage", changes[0].Field)
	require.Equal(t, "Lead", changes[0].From)
	require.Equal(t, "Customer", changes[0].To)
}

func TestDiffRejectsFromNotLessThanTo(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, _, err := engine.Diff(context.Background(), "Contact", "contact_x", 2, 1)
	require.Error(t, err)
}
