package service

import (
	"context"
	"log/slog"

	"github.com/karysgoh/paypals-project-sub000/internal/mail"
	"github.com/karysgoh/paypals-project-sub000/internal/metrics"
	"github.com/karysgoh/paypals-project-sub000/internal/models"
	"github.com/karysgoh/paypals-project-sub000/internal/storage"
)

// Notifier delivers in-app notifications and emails. Delivery is best-effort:
// failures are logged and counted but never returned to the caller.
type Notifier struct {
	store   storage.NotificationStore
	mailer  mail.Mailer
	metrics *metrics.Metrics
}

// NewNotifier creates a notifier. mailer and m may be nil.
func NewNotifier(store storage.NotificationStore, mailer mail.Mailer, m *metrics.Metrics) *Notifier {
	if mailer == nil {
		mailer = mail.LogMailer{}
	}
	return &Notifier{store: store, mailer: mailer, metrics: m}
}

// Notify stores the notifications in one batch.
func (n *Notifier) Notify(ctx context.Context, notifications ...*models.Notification) {
	if len(notifications) == 0 {
		return
	}
	if err := n.store.CreateNotifications(ctx, notifications); err != nil {
		slog.Error("failed to create notifications", "count", len(notifications), "error", err)
		return
	}
	kinds := make(map[string]int)
	for _, notification := range notifications {
		kinds[notification.Type]++
	}
	for kind, count := range kinds {
		n.metrics.ObserveNotification(kind, count)
	}
}

// Email sends one message.
func (n *Notifier) Email(ctx context.Context, msg mail.Message) {
	if err := n.mailer.Send(ctx, msg); err != nil {
		slog.Error("failed to send email", "to", msg.To, "subject", msg.Subject, "error", err)
		n.metrics.ObserveEmailError()
	}
}
