package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karysgoh/paypals-project-sub000/internal/auth"
	"github.com/karysgoh/paypals-project-sub000/internal/mail"
	"github.com/karysgoh/paypals-project-sub000/internal/models"
	"github.com/karysgoh/paypals-project-sub000/internal/storage"
)

// InvitationTTL is how long an invitation stays acceptable.
const InvitationTTL = 7 * 24 * time.Hour

// InviteInput addresses an invitation to a registered user or an email.
// UserID wins when both are set.
type InviteInput struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty" binding:"omitempty,email"`
}

// InvitationService manages circle invitations.
type InvitationService struct {
	store    storage.Store
	notifier *Notifier
	links    Links
	now      clock
}

// NewInvitationService creates a new InvitationService.
func NewInvitationService(store storage.Store, notifier *Notifier, links Links) *InvitationService {
	return &InvitationService{
		store:    store,
		notifier: notifier,
		links:    links,
		now:      time.Now,
	}
}

// resolveInvitee returns the registered user the input refers to, or nil and
// the normalized email for someone without an account.
func (s *InvitationService) resolveInvitee(ctx context.Context, in InviteInput) (*models.User, string, error) {
	if in.UserID != "" {
		user, err := s.store.GetUserByID(ctx, in.UserID)
		if err != nil {
			return nil, "", storeError(err, "user")
		}
		return user, user.Email, nil
	}

	email := models.NormalizeEmail(in.Email)
	if email == "" {
		return nil, "", invalidArgument("user_id or email is required")
	}
	if !auth.ValidEmail(email) {
		return nil, "", invalidArgument("invalid email address")
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return user, email, nil
	case errors.Is(err, storage.ErrNotFound):
		return nil, email, nil
	default:
		return nil, "", storeError(err, "user")
	}
}

// Invite asks someone to join a circle. Admins only.
func (s *InvitationService) Invite(ctx context.Context, circleID string, in InviteInput) (*models.Invitation, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("Invite request", "circle_id", circleID, "user_id", userID, "invitee_id", in.UserID, "email", in.Email)

	if _, err := requireAdmin(ctx, s.store, circleID, userID); err != nil {
		return nil, err
	}
	invitee, email, err := s.resolveInvitee(ctx, in)
	if err != nil {
		return nil, err
	}

	var inviteeID string
	if invitee != nil {
		inviteeID = invitee.ID
		_, err := s.store.GetCircleMember(ctx, circleID, inviteeID)
		switch {
		case err == nil:
			return nil, alreadyExists("%s is already a member of this circle", invitee.Username)
		case !errors.Is(err, storage.ErrNotFound):
			return nil, storeError(err, "circle member")
		}
	}

	now := s.now()
	existing, err := s.store.FindPendingInvitation(ctx, circleID, inviteeID, email)
	switch {
	case err == nil && !existing.Expired(now.Unix()):
		return nil, alreadyExists("an invitation is already pending for this person")
	case err == nil:
		// Stale but not yet swept by cleanup; retire it and invite again.
		if err := s.store.UpdateInvitationStatus(ctx, existing.ID, models.InvitationExpired, 0); err != nil {
			return nil, storeError(err, "invitation")
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, storeError(err, "invitation")
	}

	circle, err := s.store.GetCircle(ctx, circleID)
	if err != nil {
		return nil, storeError(err, "circle")
	}
	inviter, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeError(err, "user")
	}

	inv := &models.Invitation{
		CircleID:    circleID,
		InviterID:   userID,
		InviteeID:   inviteeID,
		Email:       email,
		ExpiresAt:   now.Add(InvitationTTL).Unix(),
		CreatedAt:   now.Unix(),
		CircleName:  circle.Name,
		InviterName: inviter.Username,
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return nil, storeError(err, "invitation")
	}

	if invitee != nil {
		s.notifier.Notify(ctx, &models.Notification{
			UserID:   invitee.ID,
			Type:     models.NotificationCircleInvitation,
			Title:    "Circle invitation",
			Message:  fmt.Sprintf("%s invited you to join %s", inviter.Username, circle.Name),
			CircleID: circleID,
		})
	} else {
		s.notifier.Email(ctx, mail.InvitationEmail(email, inviter.Username, circle.Name, s.links.RegisterLink(email)))
	}

	audit(ctx, s.store, &models.AuditLog{
		ActorID:    userID,
		Action:     models.AuditInvite,
		EntityType: "invitation",
		EntityID:   inv.ID,
		CircleID:   circleID,
		Details:    fmt.Sprintf("invited %s", email),
	})

	slog.Info("Invitation created successfully", "invitation_id", inv.ID, "circle_id", circleID)
	return inv, nil
}

// ListPending returns unexpired invitations addressed to the caller by
// account or by email.
func (s *InvitationService) ListPending(ctx context.Context) ([]*models.Invitation, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeError(err, "user")
	}
	invitations, err := s.store.ListPendingInvitationsFor(ctx, user.ID, user.Email, s.now().Unix())
	if err != nil {
		return nil, storeError(err, "invitations")
	}
	return invitations, nil
}

// ListCircleInvitations returns every invitation for a circle. Admins only.
func (s *InvitationService) ListCircleInvitations(ctx context.Context, circleID string) ([]*models.Invitation, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := requireAdmin(ctx, s.store, circleID, userID); err != nil {
		return nil, err
	}
	invitations, err := s.store.ListInvitationsByCircle(ctx, circleID)
	if err != nil {
		return nil, storeError(err, "invitations")
	}
	return invitations, nil
}

// addressed loads a pending invitation the caller may answer.
func (s *InvitationService) addressed(ctx context.Context, invitationID string) (*models.User, *models.Invitation, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, storeError(err, "user")
	}
	inv, err := s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, nil, storeError(err, "invitation")
	}
	if inv.InviteeID != user.ID && (inv.Email == "" || inv.Email != user.Email) {
		return nil, nil, permissionDenied("this invitation is not addressed to you")
	}
	if inv.Status != models.InvitationPending {
		return nil, nil, failedPrecondition("invitation is already %s", inv.Status)
	}
	return user, inv, nil
}

// Accept joins the caller to the invitation's circle. An expired invitation
// is marked expired and refused.
func (s *InvitationService) Accept(ctx context.Context, invitationID string) (*models.Circle, error) {
	user, inv, err := s.addressed(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	slog.Info("AcceptInvitation request", "invitation_id", invitationID, "user_id", user.ID)

	now := s.now().Unix()
	if inv.Expired(now) {
		if err := s.store.UpdateInvitationStatus(ctx, inv.ID, models.InvitationExpired, 0); err != nil {
			return nil, storeError(err, "invitation")
		}
		return nil, failedPrecondition("invitation has expired")
	}

	err = s.store.AddCircleMember(ctx, &models.CircleMember{
		CircleID: inv.CircleID,
		UserID:   user.ID,
		Role:     models.MemberRoleMember,
		JoinedAt: now,
	})
	if err != nil && !errors.Is(err, storage.ErrConflict) {
		return nil, storeError(err, "circle member")
	}
	if err := s.store.UpdateInvitationStatus(ctx, inv.ID, models.InvitationAccepted, now); err != nil {
		return nil, storeError(err, "invitation")
	}

	circle, err := s.store.GetCircle(ctx, inv.CircleID)
	if err != nil {
		return nil, storeError(err, "circle")
	}

	var notifications []*models.Notification
	for _, m := range circle.Members {
		if m.UserID == user.ID {
			continue
		}
		notifications = append(notifications, &models.Notification{
			UserID:   m.UserID,
			Type:     models.NotificationMemberJoined,
			Title:    "New member",
			Message:  fmt.Sprintf("%s joined %s", user.Username, circle.Name),
			CircleID: circle.ID,
		})
	}
	s.notifier.Notify(ctx, notifications...)

	audit(ctx, s.store, &models.AuditLog{
		ActorID:    user.ID,
		Action:     models.AuditAccept,
		EntityType: "invitation",
		EntityID:   inv.ID,
		CircleID:   inv.CircleID,
		Details:    fmt.Sprintf("%s joined", user.Username),
	})

	circle.MemberCount = len(circle.Members)
	circle.MyRole = models.MemberRoleMember
	slog.Info("Invitation accepted", "invitation_id", inv.ID, "circle_id", circle.ID, "user_id", user.ID)
	return circle, nil
}

// Reject declines an invitation.
func (s *InvitationService) Reject(ctx context.Context, invitationID string) error {
	user, inv, err := s.addressed(ctx, invitationID)
	if err != nil {
		return err
	}
	slog.Info("RejectInvitation request", "invitation_id", invitationID, "user_id", user.ID)

	if err := s.store.UpdateInvitationStatus(ctx, inv.ID, models.InvitationRejected, s.now().Unix()); err != nil {
		return storeError(err, "invitation")
	}
	return nil
}

// Cancel withdraws a pending invitation. The inviter or any circle admin may cancel.
func (s *InvitationService) Cancel(ctx context.Context, invitationID string) error {
	userID, err := requireUser(ctx)
	if err != nil {
		return err
	}
	slog.Info("CancelInvitation request", "invitation_id", invitationID, "user_id", userID)

	inv, err := s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return storeError(err, "invitation")
	}
	if inv.InviterID != userID {
		if _, err := requireAdmin(ctx, s.store, inv.CircleID, userID); err != nil {
			return err
		}
	}
	if inv.Status != models.InvitationPending {
		return failedPrecondition("only pending invitations can be cancelled")
	}

	if err := s.store.DeleteInvitation(ctx, inv.ID); err != nil {
		return storeError(err, "invitation")
	}
	audit(ctx, s.store, &models.AuditLog{
		ActorID:    userID,
		Action:     models.AuditDelete,
		EntityType: "invitation",
		EntityID:   inv.ID,
		CircleID:   inv.CircleID,
		Details:    strings.TrimSpace("cancelled invitation " + inv.Email),
	})
	return nil
}
