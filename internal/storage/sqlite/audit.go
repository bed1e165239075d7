package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/karysgoh/paypals-project-sub000/internal/models"
)

// AppendAuditLogs inserts audit entries. Existing entries are never modified.
func (s *SQLiteStore) AppendAuditLogs(ctx context.Context, entries ...*models.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.CreatedAt == 0 {
			e.CreatedAt = now
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO audit_logs (id, actor_id, action, entity_type, entity_id, circle_id, details, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, nullString(e.ActorID), e.Action, e.EntityType, e.EntityID,
			nullString(e.CircleID), nullString(e.Details), e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert audit log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListAuditLogsByCircle retrieves the most recent audit entries for a circle.
func (s *SQLiteStore) ListAuditLogsByCircle(ctx context.Context, circleID string, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, action, entity_type, entity_id, circle_id, details, created_at
		FROM audit_logs WHERE circle_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		circleID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		e := &models.AuditLog{}
		var actorID, cID, details sql.NullString
		if err := rows.Scan(&e.ID, &actorID, &e.Action, &e.EntityType, &e.EntityID, &cID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		e.ActorID = actorID.String
		e.CircleID = cID.String
		e.Details = details.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}
	return entries, nil
}
