package service

import (
	"context"

	"github.com/karysgoh/paypals-project-sub000/internal/models"
	"github.com/karysgoh/paypals-project-sub000/internal/storage"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// NotificationService reads and manages the caller's in-app notifications.
type NotificationService struct {
	store storage.NotificationStore
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(store storage.NotificationStore) *NotificationService {
	return &NotificationService{store: store}
}

// List returns the newest notifications first.
func (s *NotificationService) List(ctx context.Context, unreadOnly bool, limit int) ([]*models.Notification, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	notifications, err := s.store.ListNotifications(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, storeError(err, "notifications")
	}
	return notifications, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context) (int, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return 0, err
	}
	count, err := s.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, storeError(err, "notifications")
	}
	return count, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, notificationID string) error {
	userID, err := requireUser(ctx)
	if err != nil {
		return err
	}
	if err := s.store.MarkNotificationRead(ctx, userID, notificationID); err != nil {
		return storeError(err, "notification")
	}
	return nil
}

// MarkAllRead returns how many notifications changed.
func (s *NotificationService) MarkAllRead(ctx context.Context) (int64, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return 0, err
	}
	n, err := s.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, storeError(err, "notifications")
	}
	return n, nil
}

func (s *NotificationService) Delete(ctx context.Context, notificationID string) error {
	userID, err := requireUser(ctx)
	if err != nil {
		return err
	}
	if err := s.store.DeleteNotification(ctx, userID, notificationID); err != nil {
		return storeError(err, "notification")
	}
	return nil
}
