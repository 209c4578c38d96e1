package integrations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"github.com/nounforge/entitykernel/internal/storage"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *storage.Engine {
	t.Helper()
	eng, err := storage.Open(storage.Config{Driver: storage.DriverSQLite, SQLiteDir: t.TempDir()}, "test", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestParseMethodSplitsVerbAndPath(t *testing.T) {
	m, p := parseMethod("POST /customers/sync")
	require.Equal(t, "POST", m)
	require.Equal(t, "/customers/sync", p)

	m2, p2 := parseMethod("/customers/sync")
	require.Equal(t, "POST", m2)
	require.Equal(t, "/customers/sync", p2)
}

func TestDispatchRecordsNotAvailableWhenBindingMissing(t *testing.T) {
	eng := newTestDB(t)
	d := New(eng.DB, logger.NewNop(), nil)

	ev := &model.Event{ID: "evt_1", Type: "Deal.close", EntityType: "Deal", EntityID: "deal_1", Verb: "close"}
	d.Dispatch(context.Background(), ev, nil)

	require.Eventually(t, func() bool {
		var entries []model.DispatchLogEntry
		require.NoError(t, eng.DB.Find(&entries).Error)
		return len(entries) == 1
	}, time.Second, 10*time.Millisecond)

	var entry model.DispatchLogEntry
	require.NoError(t, eng.DB.First(&entry).Error)
	require.Equal(t, model.DispatchError, entry.Status)
	require.NotNil(t, entry.Error)
	require.Contains(t, *entry.Error, "not available")
	require.Contains(t, *entry.Error, "PAYMENTS")
}

func TestDispatchSucceedsWhenBindingRegistered(t *testing.T) {
	eng := newTestDB(t)

	received := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	binding, err := NewBinding(logger.NewNop(), "PAYMENTS", Config{BaseURL: srv.URL})
	require.NoError(t, err)

	d := New(eng.DB, logger.NewNop(), Registry{"PAYMENTS": binding})
	ev := &model.Event{
		ID: "evt_2", Type: "Deal.close", EntityType: "Deal", EntityID: "deal_1", Verb: "close",
		Timestamp: time.Now().UTC(),
	}
	d.Dispatch(context.Background(), ev, nil)

	select {
	case r := <-received:
		require.Equal(t, "Deal.close", r.Header.Get(headerEvent))
		require.Equal(t, "deal_1", r.Header.Get(headerEntityID))
		require.Equal(t, "close", r.Header.Get(headerVerb))
	case <-time.After(2 * time.Second):
		t.Fatal("binding was not called")
	}

	require.Eventually(t, func() bool {
		var entries []model.DispatchLogEntry
		require.NoError(t, eng.DB.Find(&entries).Error)
		return len(entries) == 1
	}, time.Second, 10*time.Millisecond)

	var entry model.DispatchLogEntry
	require.NoError(t, eng.DB.First(&entry).Error)
	require.Equal(t, model.DispatchSuccess, entry.Status)
	require.NotNil(t, entry.StatusCode)
	require.Equal(t, http.StatusOK, *entry.StatusCode)
}

func TestDispatchMatchesTenantConfiguredHook(t *testing.T) {
	eng := newTestDB(t)

	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- struct{}{}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	_, err := Register(context.Background(), eng.DB, "Issue", "*", model.ServiceRepo, "POST /issues/any")
	require.NoError(t, err)

	binding, err := NewBinding(logger.NewNop(), "REPO", Config{BaseURL: srv.URL})
	require.NoError(t, err)

	d := New(eng.DB, logger.NewNop(), Registry{"REPO": binding})
	d.Dispatch(context.Background(), &model.Event{
		ID: "evt_3", Type: "Issue.triage", EntityType: "Issue", EntityID: "issue_1", Verb: "triage",
	}, nil)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("tenant hook was not dispatched")
	}
}

func TestConfigFromEnvYieldsEmptyBaseURLWhenUnset(t *testing.T) {
	cfg := ConfigFromEnv("NOSUCHSERVICE")
	require.Empty(t, cfg.BaseURL)

	_, err := NewBinding(logger.NewNop(), "NOSUCHSERVICE", cfg)
	require.Error(t, err)
}

func TestRegistryFromEnvSkipsUnconfiguredServices(t *testing.T) {
	reg := RegistryFromEnv(logger.NewNop(), []string{"PAYMENTS", "REPO"})
	require.Empty(t, reg)
}
