package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWebhook_PostsJSON(t *testing.T) {
	got := make(chan Payload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
			got <- p
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w, err := NewWebhook(Config{WebhookURL: srv.URL, Source: "test"}, nil)
	require.NoError(t, err)

	w.Alert(context.Background(), "merge_failed", map[string]any{"source_user_id": "u1"})

	select {
	case p := <-got:
		require.Equal(t, "test", p.Source)
		require.Equal(t, "merge_failed", p.Event)
		require.Equal(t, "u1", p.Fields["source_user_id"])
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not called")
	}
}

func TestWebhook_RateLimited(t *testing.T) {
	calls := make(chan struct{}, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- struct{}{}
	}))
	defer srv.Close()

	w, err := NewWebhook(Config{WebhookURL: srv.URL, MinInterval: time.Hour, Burst: 1}, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		w.Alert(context.Background(), "x", nil)
	}

	<-calls
	select {
	case <-calls:
		t.Fatal("expected only one delivery")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNewWebhook_RequiresURL(t *testing.T) {
	_, err := NewWebhook(Config{}, nil)
	require.Error(t, err)
}
