package verbexec

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

func newTestExecutor(t *testing.T) (*Executor, *entitystore.Store) {
	t.Helper()
	eng, err := storage.Open(storage.Config{Driver: storage.DriverSQLite, SQLiteDir: t.TempDir()}, "test", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	reg := schema.New(eng.DB, logger.NewNop(), nil)
	_, err = reg.DefineNoun(context.Background(), "Contact", schema.Definition{
		CustomVerbs: []string{"qualify"},
		Fields: map[string]model.FieldDescriptor{
			"stage": {Kind: model.FieldKindEnum, EnumValues: []string{"Lead", "Qualified"}},
		},
	})
	require.NoError(t, err)

	events := eventlog.New(eng.DB, logger.NewNop())
	entities := entitystore.New(eng.DB, logger.NewNop(), nil, reg, events, eng.Driver)
	exec := New(eng.DB, logger.NewNop(), nil, reg, events)
	return exec, entities
}

func TestExecuteCustomVerbMergesPayloadAndBumpsVersion(t *testing.T) {
	exec, entities := newTestExecutor(t)
	ctx := context.Background()

	entity, _, err := entities.Create(ctx, "Contact", model.Document{"name": "Alice", "stage": "Lead"}, "", "")
	require.NoError(t, err)

	updated, ev, err := exec.Execute(ctx, "Contact", entity.ID, "qualify", model.Document{"stage": "Qualified"})
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	require.Equal(t, "Qualified", updated.Data["stage"])
	require.Equal(t, "Contact.qualify", ev.Type)
	require.Equal(t, "Lead", ev.Before["stage"])
	require.Equal(t, "Qualified", ev.After["stage"])
}

func TestExecuteRejectsDefaultVerbs(t *testing.T) {
	exec, entities := newTestExecutor(t)
	ctx := context.Background()
	entity, _, err := entities.Create(ctx, "Contact", model.Document{"name": "Bob"}, "", "")
	require.NoError(t, err)

	_, _, err = exec.Execute(ctx, "Contact", entity.ID, "update", model.Document{"stage": "Qualified"})
	require.Error(t, err)
}

func TestExecuteUnknownVerb(t *testing.T) {
	exec, entities := newTestExecutor(t)
	ctx := context.Background()
	entity, _, err := entities.Create(ctx, "Contact", model.Document{"name": "Carl"}, "", "")
	require.NoError(t, err)

	_, _, err = exec.Execute(ctx, "Contact", entity.ID, "launch", model.Document{})
	require.Error(t, err)
}

func TestExecuteDirectsActivityFormToActionForm(t *testing.T) {
	exec, entities := newTestExecutor(t)
	ctx := context.Background()
	entity, _, err := entities.Create(ctx, "Contact", model.Document{"name": "Dana"}, "", "")
	require.NoError(t, err)

	_, _, err = exec.Execute(ctx, "Contact", entity.ID, "qualifying", model.Document{})
	require.Error(t, err)
}

func TestExecuteNotFoundForMissingEntity(t *testing.T) {
	exec, _ := newTestExecutor(t)
	_, _, err := exec.Execute(context.Background(), "Contact", "contact_ghost", "qualify", model.Document{})
	require.Error(t, err)
}
