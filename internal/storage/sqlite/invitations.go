package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/karysgoh/paypals-project-sub000/internal/models"
)

const invitationSelect = `
	SELECT i.id, i.circle_id, i.inviter_id, i.invitee_id, i.email, i.status, i.expires_at,
	       i.created_at, i.responded_at, c.name, u.username
	FROM invitations i
	JOIN circles c ON c.id = i.circle_id
	JOIN users u ON u.id = i.inviter_id`

func scanInvitation(row rowScanner) (*models.Invitation, error) {
	inv := &models.Invitation{}
	var (
		inviteeID, email sql.NullString
		respondedAt      sql.NullInt64
	)
	err := row.Scan(&inv.ID, &inv.CircleID, &inv.InviterID, &inviteeID, &email, &inv.Status,
		&inv.ExpiresAt, &inv.CreatedAt, &respondedAt, &inv.CircleName, &inv.InviterName)
	if err != nil {
		return nil, err
	}
	inv.InviteeID = inviteeID.String
	inv.Email = email.String
	inv.RespondedAt = respondedAt.Int64
	return inv, nil
}

func (s *SQLiteStore) queryInvitations(ctx context.Context, query string, args ...interface{}) ([]*models.Invitation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invitations: %w", err)
	}
	return invitations, nil
}

// CreateInvitation persists a new invitation.
func (s *SQLiteStore) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	if inv.CreatedAt == 0 {
		inv.CreatedAt = time.Now().Unix()
	}
	if inv.Status == "" {
		inv.Status = models.InvitationPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invitations (id, circle_id, inviter_id, invitee_id, email, status, expires_at, created_at, responded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.CircleID, inv.InviterID, nullString(inv.InviteeID), nullString(models.NormalizeEmail(inv.Email)),
		inv.Status, inv.ExpiresAt, inv.CreatedAt, nullInt(inv.RespondedAt),
	)
	return classify(err, "insert invitation")
}

// GetInvitation retrieves an invitation by ID.
func (s *SQLiteStore) GetInvitation(ctx context.Context, invitationID string) (*models.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, invitationSelect+" WHERE i.id = ?", invitationID))
	if isNoRows(err) {
		return nil, notFound("invitation", invitationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// FindPendingInvitation returns the pending invitation to circleID for the invitee, if any.
func (s *SQLiteStore) FindPendingInvitation(ctx context.Context, circleID, inviteeID, email string) (*models.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx,
		invitationSelect+` WHERE i.circle_id = ? AND i.status = ? AND (i.invitee_id = ? OR i.email = ?)
		ORDER BY i.created_at DESC LIMIT 1`,
		circleID, models.InvitationPending, inviteeID, models.NormalizeEmail(email),
	))
	if isNoRows(err) {
		return nil, notFound("pending invitation", circleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending invitation: %w", err)
	}
	return inv, nil
}

// ListPendingInvitationsFor retrieves unexpired pending invitations addressed to a user.
func (s *SQLiteStore) ListPendingInvitationsFor(ctx context.Context, userID, email string, now int64) ([]*models.Invitation, error) {
	return s.queryInvitations(ctx,
		invitationSelect+` WHERE i.status = ? AND i.expires_at > ? AND (i.invitee_id = ? OR i.email = ?)
		ORDER BY i.created_at DESC`,
		models.InvitationPending, now, userID, models.NormalizeEmail(email),
	)
}

// ListInvitationsByCircle retrieves every invitation sent for a circle.
func (s *SQLiteStore) ListInvitationsByCircle(ctx context.Context, circleID string) ([]*models.Invitation, error) {
	return s.queryInvitations(ctx, invitationSelect+" WHERE i.circle_id = ? ORDER BY i.created_at DESC", circleID)
}

// UpdateInvitationStatus records a response to an invitation.
func (s *SQLiteStore) UpdateInvitationStatus(ctx context.Context, invitationID, status string, respondedAt int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE invitations SET status = ?, responded_at = ? WHERE id = ?",
		status, nullInt(respondedAt), invitationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	return requireAffected(res, "invitation", invitationID)
}

// DeleteInvitation removes an invitation outright, used when it is cancelled.
func (s *SQLiteStore) DeleteInvitation(ctx context.Context, invitationID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM invitations WHERE id = ?", invitationID)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	return requireAffected(res, "invitation", invitationID)
}

// ClaimEmailInvitations links pending email-only invitations to a newly registered user.
func (s *SQLiteStore) ClaimEmailInvitations(ctx context.Context, userID, email string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE invitations SET invitee_id = ? WHERE invitee_id IS NULL AND email = ? AND status = ?",
		userID, models.NormalizeEmail(email), models.InvitationPending,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to claim invitations: %w", err)
	}
	return res.RowsAffected()
}

// ExpireInvitations marks every overdue pending invitation as expired and returns them.
func (s *SQLiteStore) ExpireInvitations(ctx context.Context, now int64) ([]*models.Invitation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		invitationSelect+" WHERE i.status = ? AND i.expires_at <= ?", models.InvitationPending, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue invitations: %w", err)
	}
	var expired []*models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		inv.Status = models.InvitationExpired
		expired = append(expired, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invitations: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE invitations SET status = ? WHERE status = ? AND expires_at <= ?",
		models.InvitationExpired, models.InvitationPending, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to expire invitations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return expired, nil
}

// DeleteExpiredInvitationsBefore purges expired invitations whose expiry is older than cutoff.
func (s *SQLiteStore) DeleteExpiredInvitationsBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM invitations WHERE status = ? AND expires_at < ?",
		models.InvitationExpired, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", err)
	}
	return res.RowsAffected()
}
