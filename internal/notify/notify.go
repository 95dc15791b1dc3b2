// Package notify delivers case event notifications. Delivery is
// best-effort: a failed notification is logged and dropped, it never
// rolls back the transition that produced it.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// Notifier sends a single notification.
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// NewNotification builds a notification payload.
func NewNotification(caseID, eventType, recipientID, severity, message string) *models.Notification {
	return &models.Notification{
		CaseID:      caseID,
		EventType:   eventType,
		RecipientID: recipientID,
		Severity:    severity,
		Message:     message,
		SentAt:      time.Now().UTC(),
	}
}

// LogNotifier writes notifications to the structured log. It is the
// default sink when no webhook endpoint is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n *models.Notification) error {
	l.logger.InfoContext(ctx, "notification",
		"case_id", n.CaseID,
		"event_type", n.EventType,
		"recipient_id", n.RecipientID,
		"severity", n.Severity,
		"message", n.Message,
	)
	return nil
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, n *models.Notification) error {
	return nil
}
