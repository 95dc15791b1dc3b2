package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}

// WebhookNotifier posts notifications to an HTTP endpoint with retries.
type WebhookNotifier struct {
	config WebhookConfig
	client *http.Client
}

// NewWebhookNotifier creates an HTTP webhook notifier.
func NewWebhookNotifier(config WebhookConfig) *WebhookNotifier {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		config: config,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, n *models.Notification) error {
	if w.config.Endpoint == "" {
		return nil
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	retryCount := w.config.RetryCount
	if retryCount == 0 {
		retryCount = 3
	}

	var lastErr error
	for i := 0; i < retryCount; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.Endpoint, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if w.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+w.config.APIKey)
		}

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
			continue
		}
		_ = resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)
		time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
	}

	return fmt.Errorf("failed to deliver notification after %d retries: %w", retryCount, lastErr)
}
