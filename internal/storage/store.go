// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/karysgoh/paypals-project-sub000/internal/models"
)

var (
	// ErrNotFound is returned (wrapped) when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned (wrapped) when a write violates a uniqueness constraint.
	ErrConflict = errors.New("already exists")
)

// UserStore persists user accounts.
type UserStore interface {
	// CreateUser inserts a new user. Returns ErrConflict if the email or username is taken.
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	// GetUsersByIDs returns a map of user ID to user. Missing users are omitted.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
	// UpdateUser saves profile, verification and PayNow fields.
	UpdateUser(ctx context.Context, user *models.User) error
	// SearchUsers matches username or email prefixes.
	SearchUsers(ctx context.Context, query string, limit int) ([]*models.User, error)
}

// CircleStore persists circles and their membership.
type CircleStore interface {
	// CreateCircle inserts the circle and its first (admin) member atomically.
	CreateCircle(ctx context.Context, circle *models.Circle, creatorID string) error
	// GetCircle returns the circle with its members.
	GetCircle(ctx context.Context, circleID string) (*models.Circle, error)
	// ListCirclesByUser returns circles the user belongs to, with MemberCount and MyRole set.
	ListCirclesByUser(ctx context.Context, userID string) ([]*models.Circle, error)
	UpdateCircle(ctx context.Context, circle *models.Circle) error
	// DeleteCircle removes the circle; members, transactions and invitations cascade.
	DeleteCircle(ctx context.Context, circleID string) error

	GetCircleMember(ctx context.Context, circleID, userID string) (*models.CircleMember, error)
	ListCircleMembers(ctx context.Context, circleID string) ([]models.CircleMember, error)
	// AddCircleMember returns ErrConflict if the user is already a member.
	AddCircleMember(ctx context.Context, member *models.CircleMember) error
	RemoveCircleMember(ctx context.Context, circleID, userID string) error
	UpdateMemberRole(ctx context.Context, circleID, userID, role string) error
	CountCircleAdmins(ctx context.Context, circleID string) (int, error)
}

// TransactionStore persists transactions and participant shares.
type TransactionStore interface {
	// CreateTransaction inserts the transaction and all its members atomically.
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	GetTransaction(ctx context.Context, txnID string) (*models.Transaction, error)
	// ListTransactionsByUser returns transactions the user created or participates in.
	ListTransactionsByUser(ctx context.Context, userID string, filter models.TransactionFilter) ([]*models.Transaction, error)
	ListTransactionsByCircle(ctx context.Context, circleID string) ([]*models.Transaction, error)
	// UpdateTransaction saves the descriptive fields; amounts and members are immutable.
	UpdateTransaction(ctx context.Context, txn *models.Transaction) error
	DeleteTransaction(ctx context.Context, txnID string) error

	// UpdatePaymentStatus sets a share's status; paidAt is stored only for paid shares.
	UpdatePaymentStatus(ctx context.Context, memberID, status string, paidAt int64) error
	// GetTransactionMemberByToken looks up an external participant's share by access token.
	GetTransactionMemberByToken(ctx context.Context, token string) (*models.TransactionMember, error)
}

// InvitationStore persists circle invitations.
type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv *models.Invitation) error
	GetInvitation(ctx context.Context, invitationID string) (*models.Invitation, error)
	// FindPendingInvitation returns a pending invitation for the invitee (by ID or email).
	FindPendingInvitation(ctx context.Context, circleID, inviteeID, email string) (*models.Invitation, error)
	// ListPendingInvitationsFor returns unexpired pending invitations addressed to the user.
	ListPendingInvitationsFor(ctx context.Context, userID, email string, now int64) ([]*models.Invitation, error)
	ListInvitationsByCircle(ctx context.Context, circleID string) ([]*models.Invitation, error)
	UpdateInvitationStatus(ctx context.Context, invitationID, status string, respondedAt int64) error
	DeleteInvitation(ctx context.Context, invitationID string) error
	// ClaimEmailInvitations attaches email-only invitations to a newly registered user.
	ClaimEmailInvitations(ctx context.Context, userID, email string) (int64, error)

	// ExpireInvitations marks pending invitations with expires_at <= now as expired.
	ExpireInvitations(ctx context.Context, now int64) ([]*models.Invitation, error)
	// DeleteExpiredInvitationsBefore removes expired invitations whose expiry is before cutoff.
	DeleteExpiredInvitationsBefore(ctx context.Context, cutoff int64) (int64, error)
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	// CreateNotifications inserts the batch atomically.
	CreateNotifications(ctx context.Context, notifications []*models.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	// MarkNotificationRead returns ErrNotFound if the notification is not the user's.
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, userID, notificationID string) error
}

// AuditStore persists the append-only audit trail.
type AuditStore interface {
	AppendAuditLogs(ctx context.Context, entries ...*models.AuditLog) error
	ListAuditLogsByCircle(ctx context.Context, circleID string, limit int) ([]*models.AuditLog, error)
}

// Store defines the interface for all PayPals storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the service layer.
type Store interface {
	UserStore
	CircleStore
	TransactionStore
	InvitationStore
	NotificationStore
	AuditStore

	// Close releases any resources held by the store.
	Close() error
}
