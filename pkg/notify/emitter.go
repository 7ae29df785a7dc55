// Package notify appends admin-facing event records and forwards them to the
// push side channel.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sevaconnect-backend/pkg/metrics"
	"sevaconnect-backend/pkg/models"
	"sevaconnect-backend/pkg/store"
)

// Pusher delivers a best-effort title and body to interested clients.
type Pusher interface {
	Push(title, body string)
}

type nopPusher struct{}

func (nopPusher) Push(string, string) {}

// Emitter records notifications. Records are append-only; only the read flag
// changes afterwards, and each record can be deleted individually.
type Emitter struct {
	notifications *store.Collection[models.Notification]
	pusher        Pusher
	logger        *slog.Logger
	now           func() time.Time
}

// NewEmitter creates an emitter over the store's notification collection.
// A nil pusher disables push delivery.
func NewEmitter(s *store.Store, pusher Pusher, logger *slog.Logger) *Emitter {
	if pusher == nil {
		pusher = nopPusher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{notifications: s.Notifications, pusher: pusher, logger: logger, now: s.Now}
}

// Emit appends a new unread notification. It never fails: when the record
// cannot be persisted the error is logged and the unsaved record returned.
func (e *Emitter) Emit(ctx context.Context, typ models.NotificationType, title, message, relatedID string) models.Notification {
	n := models.Notification{Type: typ, Title: title, Message: message, RelatedID: relatedID}

	saved, err := e.notifications.Create(ctx, n)
	if err != nil {
		e.logger.Error("failed to persist notification", "type", typ, "related_id", relatedID, "error", err)
		n.Stamp(uuid.NewString(), e.now())
		saved = n
	}

	metrics.NotificationsEmitted.WithLabelValues(string(typ)).Inc()
	e.pusher.Push(title, message)
	return saved
}

// List returns notifications, newest first.
func (e *Emitter) List(ctx context.Context) []models.Notification {
	items := e.notifications.List(ctx, nil)
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items
}

// Unread counts unread notifications.
func (e *Emitter) Unread(ctx context.Context) int {
	return len(e.notifications.List(ctx, func(n models.Notification) bool { return !n.IsRead }))
}

// MarkRead flags one notification as read.
func (e *Emitter) MarkRead(ctx context.Context, id string) (models.Notification, error) {
	return e.notifications.Mutate(ctx, id, func(n *models.Notification) error {
		n.IsRead = true
		return nil
	})
}

// Delete removes one notification.
func (e *Emitter) Delete(ctx context.Context, id string) error {
	return e.notifications.Delete(ctx, id)
}
