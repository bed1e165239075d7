package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karysgoh/paypals-project-sub000/internal/calculator"
	"github.com/karysgoh/paypals-project-sub000/internal/models"
	"github.com/karysgoh/paypals-project-sub000/internal/storage"
)

const maxCircleNameLength = 100

// CircleInput creates a circle.
type CircleInput struct {
	Name string `json:"name" binding:"required,max=100"`
	Type string `json:"type"`
}

// CircleUpdate is a partial update; nil fields are left unchanged.
type CircleUpdate struct {
	Name *string `json:"name" binding:"omitempty,max=100"`
	Type *string `json:"type"`
}

// BalanceView is a member balance with a display name.
type BalanceView struct {
	calculator.MemberBalance
	Name     string `json:"name"`
	External bool   `json:"external"`
}

// DebtView is a suggested payment with display names.
type DebtView struct {
	calculator.DebtEdge
	FromName string `json:"from_name"`
	ToName   string `json:"to_name"`
}

// CircleBalances is the outstanding position of everyone in a circle.
type CircleBalances struct {
	CircleID string        `json:"circle_id"`
	Balances []BalanceView `json:"balances"`
	Debts    []DebtView    `json:"debts"`
}

// CircleService manages circles and their membership.
type CircleService struct {
	store storage.Store
}

// NewCircleService creates a new CircleService with the given store.
func NewCircleService(store storage.Store) *CircleService {
	return &CircleService{store: store}
}

func normalizeCircleName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalidArgument("circle name is required")
	}
	if len(name) > maxCircleNameLength {
		return "", invalidArgument("circle name must be at most %d characters", maxCircleNameLength)
	}
	return name, nil
}

// CreateCircle creates a circle with the caller as its first admin.
func (s *CircleService) CreateCircle(ctx context.Context, in CircleInput) (*models.Circle, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("CreateCircle request", "name", in.Name, "type", in.Type, "user_id", userID)

	name, err := normalizeCircleName(in.Name)
	if err != nil {
		return nil, err
	}
	circleType := in.Type
	if circleType == "" {
		circleType = models.CircleTypeFriends
	}
	if !models.ValidCircleType(circleType) {
		return nil, invalidArgument("unknown circle type %q", circleType)
	}

	circle := &models.Circle{Name: name, Type: circleType}
	if err := s.store.CreateCircle(ctx, circle, userID); err != nil {
		return nil, storeError(err, "circle")
	}

	audit(ctx, s.store, &models.AuditLog{
		ActorID:    userID,
		Action:     models.AuditCreate,
		EntityType: "circle",
		EntityID:   circle.ID,
		CircleID:   circle.ID,
		Details:    fmt.Sprintf("created circle %q", circle.Name),
	})

	slog.Info("Circle created successfully", "circle_id", circle.ID, "name", circle.Name)
	return circle, nil
}

// ListUserCircles returns the circles the caller belongs to.
func (s *CircleService) ListUserCircles(ctx context.Context) ([]*models.Circle, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	circles, err := s.store.ListCirclesByUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, "circles")
	}
	return circles, nil
}

// GetCircle returns a circle with its members. Members only.
func (s *CircleService) GetCircle(ctx context.Context, circleID string) (*models.Circle, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	member, err := circleAccess(ctx, s.store, circleID, userID)
	if err != nil {
		return nil, err
	}
	circle, err := s.store.GetCircle(ctx, circleID)
	if err != nil {
		return nil, storeError(err, "circle")
	}
	circle.MemberCount = len(circle.Members)
	circle.MyRole = member.Role
	return circle, nil
}

// UpdateCircle renames or retypes a circle. Admins only.
func (s *CircleService) UpdateCircle(ctx context.Context, circleID string, in CircleUpdate) (*models.Circle, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("UpdateCircle request", "circle_id", circleID, "user_id", userID)

	if _, err := requireAdmin(ctx, s.store, circleID, userID); err != nil {
		return nil, err
	}
	circle, err := s.store.GetCircle(ctx, circleID)
	if err != nil {
		return nil, storeError(err, "circle")
	}

	var changes []string
	if in.Name != nil {
		name, err := normalizeCircleName(*in.Name)
		if err != nil {
			return nil, err
		}
		if name != circle.Name {
			changes = append(changes, fmt.Sprintf("name %q -> %q", circle.Name, name))
			circle.Name = name
		}
	}
	if in.Type != nil {
		if !models.ValidCircleType(*in.Type) {
			return nil, invalidArgument("unknown circle type %q", *in.Type)
		}
		if *in.Type != circle.Type {
			changes = append(changes, fmt.Sprintf("type %s -> %s", circle.Type, *in.Type))
			circle.Type = *in.Type
		}
	}
	if len(changes) == 0 {
		return circle, nil
	}

	circle.UpdatedAt = time.Now().Unix()
	if err := s.store.UpdateCircle(ctx, circle); err != nil {
		return nil, storeError(err, "circle")
	}
	audit(ctx, s.store, &models.AuditLog{
		ActorID:    userID,
		Action:     models.AuditUpdate,
		EntityType: "circle",
		EntityID:   circle.ID,
		CircleID:   circle.ID,
		Details:    strings.Join(changes, "; "),
	})

	circle.MemberCount = len(circle.Members)
	circle.MyRole = models.MemberRoleAdmin
	return circle, nil
}

// DeleteCircle removes a circle with its transactions and invitations. Admins only.
func (s *CircleService) DeleteCircle(ctx context.Context, circleID string) error {
	userID, err := requireUser(ctx)
	if err != nil {
		return err
	}
	slog.Info("DeleteCircle request", "circle_id", circleID, "user_id", userID)

	if _, err := requireAdmin(ctx, s.store, circleID, userID); err != nil {
		return err
	}
	if err := s.store.DeleteCircle(ctx, circleID); err != nil {
		return storeError(err, "circle")
	}
	audit(ctx, s.store, &models.AuditLog{
		ActorID:    userID,
		Action:     models.AuditDelete,
		EntityType: "circle",
		EntityID:   circleID,
		CircleID:   circleID,
	})

	slog.Info("Circle deleted successfully", "circle_id", circleID)
	return nil
}

// ListMembers returns a circle's members. Members only.
func (s *CircleService) ListMembers(ctx context.Context, circleID string) ([]models.CircleMember, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := circleAccess(ctx, s.store, circleID, userID); err != nil {
		return nil, err
	}
	members, err := s.store.ListCircleMembers(ctx, circleID)
	if err != nil {
		return nil, storeError(err, "circle members")
	}
	return members, nil
}

// ensureNotLastAdmin fails when target is the circle's only admin.
func (s *CircleService) ensureNotLastAdmin(ctx context.Context, target *models.CircleMember, action string) error {
	if !target.IsAdmin() {
		return nil
	}
	admins, err := s.store.CountCircleAdmins(ctx, target.CircleID)
	if err != nil {
		return storeError(err, "circle admins")
	}
	if admins <= 1 {
		return failedPrecondition("cannot %s the last admin of a circle; promote another member first", action)
	}
	return nil
}

// RemoveMember removes another member from a circle. Admins only.
func (s *CircleService) RemoveMember(ctx context.Context, circleID, memberID string) error {
	userID, err := requireUser(ctx)
	if err != nil {
		return err
	}
	slog.Info("RemoveMember request", "circle_id", circleID, "member_id", memberID, "user_id", userID)

	if _, err := requireAdmin(ctx, s.store, circleID, userID); err != nil {
		return err
	}
	target, err := s.store.GetCircleMember(ctx, circleID, memberID)
	if err != nil {
		return storeError(err, "circle member")
	}
	if err := s.ensureNotLastAdmin(ctx, target, "remove"); err != nil {
		return err
	}
	if err := s.store.RemoveCircleMember(ctx, circleID, memberID); err != nil {
		return storeError(err, "circle member")
	}

	audit(ctx, s.store, &models.AuditLog{
		ActorID:    userID,
		Action:     models.AuditRemoveMember,
		EntityType: "circle_member",
		EntityID:   memberID,
		CircleID:   circleID,
		Details:    fmt.Sprintf("removed %s", target.User.Username),
	})
	return nil
}

// ChangeMemberRole promotes or demotes a member. Admins only.
func (s *CircleService) ChangeMemberRole(ctx context.Context, circleID, memberID, role string) (*models.CircleMember, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("ChangeMemberRole request", "circle_id", circleID, "member_id", memberID, "role", role)

	if !models.ValidMemberRole(role) {
		return nil, invalidArgument("role must be %q or %q", models.MemberRoleAdmin, models.MemberRoleMember)
	}
	if _, err := requireAdmin(ctx, s.store, circleID, userID); err != nil {
		return nil, err
	}
	target, err := s.store.GetCircleMember(ctx, circleID, memberID)
	if err != nil {
		return nil, storeError(err, "circle member")
	}
	if target.Role == role {
		return target, nil
	}
	if role == models.MemberRoleMember {
		if err := s.ensureNotLastAdmin(ctx, target, "demote"); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateMemberRole(ctx, circleID, memberID, role); err != nil {
		return nil, storeError(err, "circle member")
	}
	audit(ctx, s.store, &models.AuditLog{
		ActorID:    userID,
		Action:     models.AuditChangeRole,
		EntityType: "circle_member",
		EntityID:   memberID,
		CircleID:   circleID,
		Details:    fmt.Sprintf("%s: %s -> %s", target.User.Username, target.Role, role),
	})

	target.Role = role
	return target, nil
}

// LeaveCircle removes the caller from a circle. The last admin must hand over
// the role (or delete the circle) first, even when they are the only member.
func (s *CircleService) LeaveCircle(ctx context.Context, circleID string) error {
	userID, err := requireUser(ctx)
	if err != nil {
		return err
	}
	slog.Info("LeaveCircle request", "circle_id", circleID, "user_id", userID)

	member, err := circleAccess(ctx, s.store, circleID, userID)
	if err != nil {
		return err
	}
	if err := s.ensureNotLastAdmin(ctx, member, "leave as"); err != nil {
		return err
	}
	if err := s.store.RemoveCircleMember(ctx, circleID, userID); err != nil {
		return storeError(err, "circle member")
	}

	audit(ctx, s.store, &models.AuditLog{
		ActorID:    userID,
		Action:     models.AuditRemoveMember,
		EntityType: "circle_member",
		EntityID:   userID,
		CircleID:   circleID,
		Details:    "left circle",
	})
	return nil
}

// CircleBalances returns everyone's outstanding position in a circle and a
// minimal set of payments that would settle it. Members only.
func (s *CircleService) CircleBalances(ctx context.Context, circleID string) (*CircleBalances, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := circleAccess(ctx, s.store, circleID, userID); err != nil {
		return nil, err
	}

	txns, err := s.store.ListTransactionsByCircle(ctx, circleID)
	if err != nil {
		return nil, storeError(err, "transactions")
	}
	balances, debts := calculator.CalculateCircleBalances(forBalance(txns))

	names, err := participantNames(ctx, s.store, txns)
	if err != nil {
		return nil, err
	}

	result := &CircleBalances{
		CircleID: circleID,
		Balances: make([]BalanceView, 0, len(balances)),
		Debts:    make([]DebtView, 0, len(debts)),
	}
	for _, b := range balances {
		result.Balances = append(result.Balances, BalanceView{
			MemberBalance: b,
			Name:          names[b.MemberID],
			External:      strings.HasPrefix(b.MemberID, externalPrefix),
		})
	}
	for _, d := range debts {
		result.Debts = append(result.Debts, DebtView{
			DebtEdge: d,
			FromName: names[d.From],
			ToName:   names[d.To],
		})
	}
	return result, nil
}

// participantNames maps every participant key in txns to a display name.
func participantNames(ctx context.Context, store storage.Store, txns []*models.Transaction) (map[string]string, error) {
	names := make(map[string]string)
	var userIDs []string
	seen := make(map[string]bool)
	addUser := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			userIDs = append(userIDs, id)
		}
	}
	for _, t := range txns {
		addUser(t.CreatedBy)
		for _, m := range t.Members {
			if m.IsExternal() {
				name := m.ExternalName
				if name == "" {
					name = m.ExternalEmail
				}
				names[participantID(m)] = name
				continue
			}
			addUser(m.UserID)
		}
	}
	if len(userIDs) == 0 {
		return names, nil
	}

	users, err := store.GetUsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, storeError(err, "users")
	}
	for id, u := range users {
		names[id] = u.Username
	}
	return names, nil
}

// CircleAuditLog returns the most recent audit entries for a circle. Admins only.
func (s *CircleService) CircleAuditLog(ctx context.Context, circleID string, limit int) ([]*models.AuditLog, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := requireAdmin(ctx, s.store, circleID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	logs, err := s.store.ListAuditLogsByCircle(ctx, circleID, limit)
	if err != nil {
		return nil, storeError(err, "audit logs")
	}
	return logs, nil
}
