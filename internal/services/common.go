package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/example/carecircle/internal/metrics"
	"github.com/example/carecircle/internal/models"
)

// StateStore persists one JSON snapshot per ledger.
type StateStore interface {
	Load(ctx context.Context, key string, dst any) (bool, error)
	Save(ctx context.Context, key string, src any) error
}

// Notifier appends an entry to the notification router.
type Notifier interface {
	AddNotification(ctx context.Context, in NotificationInput) (models.Notification, error)
}

// NotificationInput is the partial notification a ledger hands to the router.
type NotificationInput struct {
	Title        string                  `json:"title"`
	Message      string                  `json:"message"`
	Type         models.NotificationType `json:"type"`
	ReceiverRole models.Role             `json:"receiver_role"`
	ReceiverID   string                  `json:"receiver_id"`
	ActionRoute  string                  `json:"action_route"`
	RelatedID    string                  `json:"related_id"`
}

func newID() string {
	return uuid.NewString()
}

func checkVersion(expected, actual int) error {
	if expected != 0 && expected != actual {
		return fmt.Errorf("expected version %d, have %d: %w", expected, actual, ErrVersionConflict)
	}
	return nil
}

// persist writes a ledger snapshot. Failures are logged; the in-memory state
// stays authoritative.
func persist(ctx context.Context, store StateStore, log logrus.FieldLogger, key string, state any) {
	if store == nil {
		return
	}
	if err := store.Save(context.WithoutCancel(ctx), key, state); err != nil {
		metrics.RecordPersistFailure(key)
		log.WithError(err).WithField("key", key).Warn("failed to persist state")
	}
}

// notify forwards to the router without failing the caller.
func notify(ctx context.Context, notifier Notifier, log logrus.FieldLogger, in NotificationInput) {
	if notifier == nil {
		return
	}
	if _, err := notifier.AddNotification(ctx, in); err != nil {
		log.WithError(err).WithField("title", in.Title).Warn("failed to add notification")
	}
}

func formatAmount(amount float64) string {
	return fmt.Sprintf("₹%.2f", amount)
}
