package subscriptions

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"github.com/nounforge/entitykernel/internal/storage"
	"github.com/stretchr/testify/require"
)

func TestMatchesWildcardAndExact(t *testing.T) {
	require.True(t, Matches("*", "Contact.create"))
	require.True(t, Matches("Contact.*", "Contact.create"))
	require.True(t, Matches("*.create", "Contact.create"))
	require.True(t, Matches("Contact.create", "Contact.create"))
	require.False(t, Matches("Contact.create", "Deal.create"))
	require.False(t, Matches("Contact.update", "Contact.create"))
}

func TestSignProducesHexHMAC(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	got := sign("shh", body)
	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	require.Equal(t, want, got)
}

func TestDispatchDeliversSignedWebhookOnMatch(t *testing.T) {
	received := make(chan *http.Request, 1)
	var bodyBytes []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodyBytes = b
		received <- r
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	eng, err := storage.Open(storage.Config{Driver: storage.DriverSQLite, SQLiteDir: t.TempDir()}, "test", logger.NewNop())
	require.NoError(t, err)
	defer eng.Close()

	secret := "whsec_test"
	require.NoError(t, eng.DB.Create(&model.Subscription{
		ID: "sub_1", Pattern: "Contact.*", Mode: model.SubscriptionModeWebhook,
		Endpoint: srv.URL, Secret: &secret, Active: true, CreatedAt: time.Now().UTC(),
	}).Error)

	d := New(eng.DB, logger.NewNop())
	d.Dispatch(context.Background(), &model.Event{
		ID: "evt_1", Type: "Contact.create", EntityType: "Contact", EntityID: "contact_1", Verb: "create",
	})

	select {
	case r := <-received:
		require.Equal(t, "Contact.create", r.Header.Get(headerEventType))
		require.NotEmpty(t, r.Header.Get(headerDelivery))
		require.Equal(t, sign(secret, bodyBytes), r.Header.Get(headerSignature))
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

func TestDispatchSkipsInactiveSubscriptions(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	eng, err := storage.Open(storage.Config{Driver: storage.DriverSQLite, SQLiteDir: t.TempDir()}, "test", logger.NewNop())
	require.NoError(t, err)
	defer eng.Close()

	require.NoError(t, eng.DB.Create(&model.Subscription{
		ID: "sub_2", Pattern: "*", Mode: model.SubscriptionModeWebhook,
		Endpoint: srv.URL, Active: false, CreatedAt: time.Now().UTC(),
	}).Error)

	d := New(eng.DB, logger.NewNop())
	d.Dispatch(context.Background(), &model.Event{Type: "Contact.create"})

	time.Sleep(100 * time.Millisecond)
	require.False(t, called)
}

func TestRegisterValidatesMode(t *testing.T) {
	eng, err := storage.Open(storage.Config{Driver: storage.DriverSQLite, SQLiteDir: t.TempDir()}, "test", logger.NewNop())
	require.NoError(t, err)
	defer eng.Close()

	_, err = Register(context.Background(), eng.DB, "Contact.*", "carrier-pigeon", "https://example.com/hook", nil)
	require.Error(t, err)

	sub, err := Register(context.Background(), eng.DB, "Contact.*", "webhook", "https://example.com/hook", nil)
	require.NoError(t, err)
	require.True(t, sub.Active)
}
