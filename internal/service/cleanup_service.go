package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/karysgoh/paypals-project-sub000/internal/metrics"
	"github.com/karysgoh/paypals-project-sub000/internal/models"
	"github.com/karysgoh/paypals-project-sub000/internal/storage"
)

// DefaultCleanupDays is how long expired invitations are kept before purging.
const DefaultCleanupDays = 30

// CleanupResult counts what one cleanup run changed.
type CleanupResult struct {
	Expired int64 `json:"expired"`
	Deleted int64 `json:"deleted"`
}

// CleanupService expires stale invitations and purges old expired ones.
// A run is two sequential bulk statements with no locking.
type CleanupService struct {
	store   storage.Store
	metrics *metrics.Metrics
	now     clock
}

// NewCleanupService creates a new CleanupService. m may be nil.
func NewCleanupService(store storage.Store, m *metrics.Metrics) *CleanupService {
	return &CleanupService{store: store, metrics: m, now: time.Now}
}

// Run marks pending invitations past their expiry as expired, then deletes
// expired invitations whose expiry is more than daysOld days ago.
func (s *CleanupService) Run(ctx context.Context, daysOld int) (result CleanupResult, err error) {
	if daysOld < 0 {
		return result, invalidArgument("days_old must be zero or positive, got %d", daysOld)
	}
	defer func() {
		s.metrics.ObserveCleanup(result.Expired, result.Deleted, err)
	}()

	now := s.now()
	slog.Info("Starting invitation cleanup", "days_old", daysOld)

	expired, err := s.store.ExpireInvitations(ctx, now.Unix())
	if err != nil {
		slog.Error("Failed to expire invitations", "error", err)
		return result, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to expire invitations: %w", err))
	}
	result.Expired = int64(len(expired))

	if len(expired) > 0 {
		entries := make([]*models.AuditLog, 0, len(expired))
		for _, inv := range expired {
			entries = append(entries, &models.AuditLog{
				Action:     models.AuditExpire,
				EntityType: "invitation",
				EntityID:   inv.ID,
				CircleID:   inv.CircleID,
				Details:    "invitation expired",
			})
		}
		audit(ctx, s.store, entries...)
	}

	cutoff := now.AddDate(0, 0, -daysOld)
	deleted, err := s.store.DeleteExpiredInvitationsBefore(ctx, cutoff.Unix())
	if err != nil {
		slog.Error("Failed to delete expired invitations", "error", err)
		return result, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to delete expired invitations: %w", err))
	}
	result.Deleted = deleted

	if deleted > 0 {
		audit(ctx, s.store, &models.AuditLog{
			Action:     models.AuditPurge,
			EntityType: "invitation",
			EntityID:   "*",
			Details:    fmt.Sprintf("deleted %d invitations expired before %s", deleted, cutoff.UTC().Format(time.RFC3339)),
		})
	}

	slog.Info("Invitation cleanup finished", "expired", result.Expired, "deleted", result.Deleted)
	return result, nil
}
