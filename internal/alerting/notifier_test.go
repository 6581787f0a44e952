package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"node-rewards-ingester/internal/day"
)

func testNote() Notification {
	return Notification{
		Day:      day.MustNew(2024, time.March, 1),
		RunID:    "8f14e45f-ceea-467f-a0e6-1c5b1e6b0a77",
		Trigger:  "daily",
		Outcome:  "transport_error",
		Endpoint: "uuew5-iiaaa-aaaaa-qbx4q-cai",
		Error:    "connection refused",
		Channels: []string{"telegram"},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	require.NoError(t, notifier.Notify(context.Background(), testNote()))

	assert.Equal(t, "chat", received["chat_id"])
	for _, want := range []string{"Day: 2024-03-01", "Outcome: transport_error", "Canister: uuew5-iiaaa-aaaaa-qbx4q-cai", "Error: connection refused"} {
		assert.Contains(t, received["text"], want)
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	assert.Error(t, notifier.Notify(context.Background(), testNote()), "ok=false should be an error")
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier(testLogger()).Notify(context.Background(), testNote()))
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
