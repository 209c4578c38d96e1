package entitystore

import (
	"context"
	"testing"

	"github.com/nounforge/entitykernel/internal/eventlog"
	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"github.com/nounforge/entitykernel/internal/schema"
	"github.com/nounforge/entitykernel/internal/storage"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	eng, err := storage.Open(storage.Config{Driver: storage.DriverSQLite, SQLiteDir: t.TempDir()}, "test", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	reg := schema.New(eng.DB, logger.NewNop(), nil)
	_, err = reg.DefineNoun(context.Background(), "Contact", schema.Definition{
		Fields: map[string]model.FieldDescriptor{
			"name":  {Kind: model.FieldKindScalar, Required: true},
			"stage": {Kind: model.FieldKindEnum, EnumValues: []string{"Lead", "Customer"}},
		},
	})
	require.NoError(t, err)

	events := eventlog.New(eng.DB, logger.NewNop())
	return New(eng.DB, logger.NewNop(), nil, reg, events, eng.Driver)
}

func TestCreateAssignsVersionOneAndAppendsEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entity, ev, err := s.Create(ctx, "Contact", model.Document{"name": "Alice"}, "", "tenant://acme")
	require.NoError(t, err)
	require.Equal(t, 1, entity.Version)
	require.Equal(t, "Alice", entity.Data["name"])
	require.Equal(t, 1, ev.Sequence)
	require.Equal(t, "Contact.create", ev.Type)
}

func TestCreateFailsForUnregisteredNoun(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Create(context.Background(), "Ghost", model.Document{}, "", "")
	require.Error(t, err)
}

func TestCreateStripsReservedFields(t *testing.T) {
	s := newTestStore(t)
	entity, _, err := s.Create(context.Background(), "Contact", model.Document{
		"name":    "Alice",
		"id":      "smuggled",
		"version": 999,
	}, "", "")
	require.NoError(t, err)
	require.NotEqual(t, "smuggled", entity.ID)
	require.NotContains(t, entity.Data, "id")
	require.NotContains(t, entity.Data, "version")
}

func TestGetFiltersDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	entity, _, err := s.Create(ctx, "Contact", model.Document{"name": "Bob"}, "", "")
	require.NoError(t, err)

	_, _, err = s.Delete(ctx, "Contact", entity.ID)
	require.NoError(t, err)

	_, err = s.Get(ctx, "Contact", entity.ID)
	require.Error(t, err)
}

func TestUpdateBumpsVersionAndMergesPatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	entity, _, err := s.Create(ctx, "Contact", model.Document{"name": "Carol", "stage": "Lead"}, "", "")
	require.NoError(t, err)

	updated, ev, err := s.Update(ctx, "Contact", entity.ID, model.Document{"stage": "Customer"}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	require.Equal(t, "Customer", updated.Data["stage"])
	require.Equal(t, "Carol", updated.Data["name"])
	require.Equal(t, "Lead", ev.Before["stage"])
	require.Equal(t, "Customer", ev.After["stage"])
	require.Equal(t, 2, ev.Sequence)
}

func TestUpdateRejectsStaleExpectedVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	entity, _, err := s.Create(ctx, "Contact", model.Document{"name": "Dana"}, "", "")
	require.NoError(t, err)

	stale := 0
	_, _, err = s.Update(ctx, "Contact", entity.ID, model.Document{"stage": "Customer"}, &stale)
	require.Error(t, err)
}

func TestDeleteIsIdempotentAtAPILevel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	entity, _, err := s.Create(ctx, "Contact", model.Document{"name": "Eve"}, "", "")
	require.NoError(t, err)

	_, _, err = s.Delete(ctx, "Contact", entity.ID)
	require.NoError(t, err)

	_, _, err = s.Delete(ctx, "Contact", entity.ID)
	require.Error(t, err)
}

func TestListFiltersAndPaginates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _, err := s.Create(ctx, "Contact", model.Document{"name": "Frank", "stage": "Lead"}, "", "")
	require.NoError(t, err)
	_, _, err = s.Create(ctx, "Contact", model.Document{"name": "Grace", "stage": "Customer"}, "", "")
	require.NoError(t, err)
	_, _, err = s.Create(ctx, "Contact", model.Document{"name": "Hank", "stage": "Lead"}, "", "")
	require.NoError(t, err)

	res, err := s.List(ctx, "Contact", ListParams{Filter: map[string]any{"stage": "Lead"}})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Total)
	require.Len(t, res.Entities, 2)
	require.False(t, res.HasMore)

	page, err := s.List(ctx, "Contact", ListParams{Limit: 1, Offset: 0})
	require.NoError(t, err)
	require.Equal(t, int64(3), page.Total)
	require.True(t, page.HasMore)
}

func TestListInvalidSortFallsBackToCreatedAtDesc(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _, err := s.Create(ctx, "Contact", model.Document{"name": "Ivy"}, "", "")
	require.NoError(t, err)

	res, err := s.List(ctx, "Contact", ListParams{SortField: "bad field!"})
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)
}
