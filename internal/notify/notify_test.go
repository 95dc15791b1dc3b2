package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GSharvesh/Hac-KP/pkg/models"
)

func TestWebhookNotifier(t *testing.T) {
	ctx := context.Background()
	payload := NewNotification("case-1", models.EventCaseEscalated, "admin-1", models.SeverityHigh, "case escalated")

	t.Run("posts the notification as JSON", func(t *testing.T) {
		var got models.Notification
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		n := NewWebhookNotifier(WebhookConfig{Endpoint: srv.URL, APIKey: "secret"})

		require.NoError(t, n.Notify(ctx, payload))
		assert.Equal(t, "case-1", got.CaseID)
		assert.Equal(t, models.EventCaseEscalated, got.EventType)
	})

	t.Run("retries server errors until success", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		n := NewWebhookNotifier(WebhookConfig{Endpoint: srv.URL, RetryCount: 3})

		require.NoError(t, n.Notify(ctx, payload))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		n := NewWebhookNotifier(WebhookConfig{Endpoint: srv.URL, RetryCount: 2})

		err := n.Notify(ctx, payload)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 2 retries")
	})

	t.Run("no endpoint is a no-op", func(t *testing.T) {
		n := NewWebhookNotifier(WebhookConfig{})

		require.NoError(t, n.Notify(ctx, payload))
	})
}

func TestLogNotifier(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	n := NewLogNotifier(logger)

	require.NoError(t, n.Notify(context.Background(), NewNotification(
		"case-1", models.EventSLAWarning, "officer-1", models.SeverityMedium, "deadline approaching")))
}
