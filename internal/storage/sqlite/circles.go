package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/karysgoh/paypals-project-sub000/internal/models"
)

// CreateCircle persists a new circle and makes creatorID its first admin.
func (s *SQLiteStore) CreateCircle(ctx context.Context, circle *models.Circle, creatorID string) error {
	// Generate IDs if not set
	if circle.ID == "" {
		circle.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if circle.CreatedAt == 0 {
		circle.CreatedAt = now
	}
	circle.UpdatedAt = circle.CreatedAt
	circle.CreatedBy = creatorID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO circles (id, name, type, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		circle.ID, circle.Name, circle.Type, circle.CreatedBy, circle.CreatedAt, circle.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert circle: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO circle_members (circle_id, user_id, role, status, joined_at) VALUES (?, ?, ?, ?, ?)",
		circle.ID, creatorID, models.MemberRoleAdmin, models.MemberStatusActive, circle.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert circle admin: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	circle.MemberCount = 1
	circle.MyRole = models.MemberRoleAdmin
	return nil
}

// GetCircle retrieves a circle by ID, including its members.
func (s *SQLiteStore) GetCircle(ctx context.Context, circleID string) (*models.Circle, error) {
	circle := &models.Circle{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, type, created_by, created_at, updated_at FROM circles WHERE id = ?",
		circleID,
	).Scan(&circle.ID, &circle.Name, &circle.Type, &circle.CreatedBy, &circle.CreatedAt, &circle.UpdatedAt)
	if isNoRows(err) {
		return nil, notFound("circle", circleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get circle: %w", err)
	}

	members, err := s.ListCircleMembers(ctx, circleID)
	if err != nil {
		return nil, err
	}
	circle.Members = members
	circle.MemberCount = len(members)

	return circle, nil
}

// ListCirclesByUser retrieves the circles a user belongs to, newest first.
func (s *SQLiteStore) ListCirclesByUser(ctx context.Context, userID string) ([]*models.Circle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.type, c.created_by, c.created_at, c.updated_at, m.role,
		       (SELECT COUNT(*) FROM circle_members cm WHERE cm.circle_id = c.id)
		FROM circles c
		JOIN circle_members m ON m.circle_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.created_at DESC, c.name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list circles: %w", err)
	}
	defer rows.Close()

	var circles []*models.Circle
	for rows.Next() {
		c := &models.Circle{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
			&c.MyRole, &c.MemberCount); err != nil {
			return nil, fmt.Errorf("failed to scan circle: %w", err)
		}
		circles = append(circles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate circles: %w", err)
	}

	return circles, nil
}

// UpdateCircle updates a circle's name and type.
func (s *SQLiteStore) UpdateCircle(ctx context.Context, circle *models.Circle) error {
	circle.UpdatedAt = time.Now().Unix()
	res, err := s.db.ExecContext(ctx,
		"UPDATE circles SET name = ?, type = ?, updated_at = ? WHERE id = ?",
		circle.Name, circle.Type, circle.UpdatedAt, circle.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update circle: %w", err)
	}
	return requireAffected(res, "circle", circle.ID)
}

// DeleteCircle removes a circle by ID.
func (s *SQLiteStore) DeleteCircle(ctx context.Context, circleID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM circles WHERE id = ?", circleID)
	if err != nil {
		return fmt.Errorf("failed to delete circle: %w", err)
	}
	return requireAffected(res, "circle", circleID)
}

const memberSelect = `
	SELECT m.circle_id, m.user_id, m.role, m.status, m.joined_at, u.username, u.email
	FROM circle_members m
	JOIN users u ON u.id = m.user_id`

func scanMember(row rowScanner) (models.CircleMember, error) {
	var m models.CircleMember
	err := row.Scan(&m.CircleID, &m.UserID, &m.Role, &m.Status, &m.JoinedAt, &m.User.Username, &m.User.Email)
	m.User.ID = m.UserID
	return m, err
}

// GetCircleMember retrieves one membership row.
func (s *SQLiteStore) GetCircleMember(ctx context.Context, circleID, userID string) (*models.CircleMember, error) {
	m, err := scanMember(s.db.QueryRowContext(ctx,
		memberSelect+" WHERE m.circle_id = ? AND m.user_id = ?", circleID, userID))
	if isNoRows(err) {
		return nil, notFound("circle member", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get circle member: %w", err)
	}
	return &m, nil
}

// ListCircleMembers retrieves all members of a circle, admins first.
func (s *SQLiteStore) ListCircleMembers(ctx context.Context, circleID string) ([]models.CircleMember, error) {
	rows, err := s.db.QueryContext(ctx,
		memberSelect+" WHERE m.circle_id = ? ORDER BY m.role = 'admin' DESC, m.joined_at, u.username",
		circleID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get circle members: %w", err)
	}
	defer rows.Close()

	var members []models.CircleMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan circle member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate circle members: %w", err)
	}
	return members, nil
}

// AddCircleMember inserts a membership row.
func (s *SQLiteStore) AddCircleMember(ctx context.Context, member *models.CircleMember) error {
	if member.JoinedAt == 0 {
		member.JoinedAt = time.Now().Unix()
	}
	if member.Status == "" {
		member.Status = models.MemberStatusActive
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO circle_members (circle_id, user_id, role, status, joined_at) VALUES (?, ?, ?, ?, ?)",
		member.CircleID, member.UserID, member.Role, member.Status, member.JoinedAt,
	)
	return classify(err, "add circle member")
}

// RemoveCircleMember deletes a membership row.
func (s *SQLiteStore) RemoveCircleMember(ctx context.Context, circleID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM circle_members WHERE circle_id = ? AND user_id = ?", circleID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove circle member: %w", err)
	}
	return requireAffected(res, "circle member", userID)
}

// UpdateMemberRole changes a member's role.
func (s *SQLiteStore) UpdateMemberRole(ctx context.Context, circleID, userID, role string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE circle_members SET role = ? WHERE circle_id = ? AND user_id = ?", role, circleID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	return requireAffected(res, "circle member", userID)
}

// CountCircleAdmins returns the number of admins in a circle.
func (s *SQLiteStore) CountCircleAdmins(ctx context.Context, circleID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM circle_members WHERE circle_id = ? AND role = ?",
		circleID, models.MemberRoleAdmin,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count circle admins: %w", err)
	}
	return n, nil
}
