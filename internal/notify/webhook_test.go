package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nekorec/blivec/internal/config"
	"github.com/nekorec/blivec/internal/events"
	"github.com/nekorec/blivec/internal/httpclient"
)

func newTestHTTPClient() *httpclient.Client {
	return httpclient.New(httpclient.DefaultConfig())
}

func TestWebhookDeliversMatchingEventType(t *testing.T) {
	received := make(chan payload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		require.Equal(t, "blivec/test", r.Header.Get("User-Agent"))
		received <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.WebhookConfig{URL: srv.URL, LiveBegan: true}
	wh := NewWebhook(cfg, newTestHTTPClient(), "blivec/test", nil)
	wh.Enable()
	defer wh.Disable()

	events.Events().Publish(events.LiveBeganEvent{Data: events.LiveStatusData{RoomID: 42, Uname: "bob"}})

	select {
	case p := <-received:
		require.Equal(t, "LiveBeganEvent", p.Type)
		_, err := uuid.Parse(p.ID)
		require.NoError(t, err)
		require.NotEmpty(t, p.Date)
	case <-time.After(time.Second):
		t.Fatal("expected a webhook delivery")
	}
}

func TestWebhookSkipsEventWhenToggleFalse(t *testing.T) {
	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.WebhookConfig{URL: srv.URL, LiveBegan: false}
	wh := NewWebhook(cfg, newTestHTTPClient(), "blivec/test", nil)
	wh.Enable()
	defer wh.Disable()

	events.Events().Publish(events.LiveBeganEvent{Data: events.LiveStatusData{RoomID: 1}})

	select {
	case <-received:
		t.Fatal("expected no delivery for a disabled event toggle")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebhookDeliversErrorEventFromExceptionBus(t *testing.T) {
	received := make(chan payload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		received <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.WebhookConfig{URL: srv.URL, ErrorOccurred: true}
	wh := NewWebhook(cfg, newTestHTTPClient(), "blivec/test", nil)
	wh.Enable()
	defer wh.Disable()

	events.Exceptions().Submit(errTest{})

	select {
	case p := <-received:
		require.Equal(t, "ErrorEvent", p.Type)
	case <-time.After(time.Second):
		t.Fatal("expected an error webhook delivery")
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
