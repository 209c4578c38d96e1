package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"github.com/nounforge/entitykernel/internal/schema"
	"github.com/nounforge/entitykernel/internal/storage"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := storage.Config{Driver: storage.DriverSQLite, SQLiteDir: t.TempDir()}
	m := NewManager(cfg, logger.NewNop(), nil)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestGetConstructsKernelLazilyAndReusesIt(t *testing.T) {
	m := newTestManager(t)

	k1, err := m.Get("tenant_a")
	require.NoError(t, err)
	require.Equal(t, "tenant_a", k1.TenantID)

	k2, err := m.Get("tenant_a")
	require.NoError(t, err)
	require.Same(t, k1, k2)
}

func TestGetKeepsTenantsIsolated(t *testing.T) {
	m := newTestManager(t)

	a, err := m.Get("tenant_a")
	require.NoError(t, err)
	b, err := m.Get("tenant_b")
	require.NoError(t, err)
	require.NotSame(t, a.Engine, b.Engine)

	_, _, err = a.Entities.Create(context.Background(), "Contact", model.Document{"name": "Ada"}, "", "")
	require.Error(t, err) // Contact noun is undefined in this fresh kernel
}

func TestDescribeDefaultsToActiveStatus(t *testing.T) {
	m := newTestManager(t)
	k, err := m.Get("tenant_a")
	require.NoError(t, err)

	meta, err := k.Describe(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.TenantStatusActive, meta.Status)
}

func TestDispatchEnqueuesBothOutboxKindsWhenOutboxEnabled(t *testing.T) {
	cfg := storage.Config{Driver: storage.DriverSQLite, SQLiteDir: t.TempDir()}
	m := NewManager(cfg, logger.NewNop(), nil, WithOutbox())
	t.Cleanup(func() { _ = m.Close() })

	k, err := m.Get("tenant_a")
	require.NoError(t, err)
	_, err = k.Schema.DefineNoun(context.Background(), "Contact", schema.Definition{
		Fields: map[string]model.FieldDescriptor{"name": {Kind: model.FieldKindScalar}},
	})
	require.NoError(t, err)

	_, ev, err := k.Entities.Create(context.Background(), "Contact", model.Document{"name": "Ada"}, "", "")
	require.NoError(t, err)

	k.Dispatch(context.Background(), ev)

	first, err := k.Outbox.ClaimNext(context.Background(), 5, time.Minute, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, first)
	second, err := k.Outbox.ClaimNext(context.Background(), 5, time.Minute, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second)
	require.NotEqual(t, first.Kind, second.Kind)
}

func TestDeactivateThenReactivateRoundTrips(t *testing.T) {
	m := newTestManager(t)
	k, err := m.Get("tenant_a")
	require.NoError(t, err)

	require.NoError(t, k.Deactivate(context.Background()))
	meta, err := k.Describe(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.TenantStatusDeactivated, meta.Status)
	require.NotNil(t, meta.DeactivatedAt)

	require.NoError(t, k.Reactivate(context.Background()))
	meta, err = k.Describe(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.TenantStatusActive, meta.Status)
	require.Nil(t, meta.DeactivatedAt)
}
