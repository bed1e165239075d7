// Package service implements PayPals' business operations on top of storage.Store.
//
// Every exported method reads the caller from the request context via
// middleware.GetUserID and reports failures as *connect.Error so the transport
// layer can map them to status codes in one place.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/karysgoh/paypals-project-sub000/internal/calculator"
	"github.com/karysgoh/paypals-project-sub000/internal/middleware"
	"github.com/karysgoh/paypals-project-sub000/internal/models"
	"github.com/karysgoh/paypals-project-sub000/internal/storage"
)

// externalPrefix marks non-member participants in balance calculations.
const externalPrefix = "external:"

var errUnauthenticated = errors.New("authentication required")

// requireUser returns the authenticated user ID or an Unauthenticated error.
func requireUser(ctx context.Context) (string, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, errUnauthenticated)
	}
	return userID, nil
}

// storeError maps storage sentinels onto connect codes.
func storeError(err error, what string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, fmt.Errorf("%s not found", what))
	case errors.Is(err, storage.ErrConflict):
		return connect.NewError(connect.CodeAlreadyExists, fmt.Errorf("%s already exists", what))
	default:
		slog.Error("storage operation failed", "entity", what, "error", err)
		return connect.NewError(connect.CodeInternal, fmt.Errorf("failed to load %s", what))
	}
}

func invalidArgument(format string, args ...interface{}) error {
	return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf(format, args...))
}

func permissionDenied(format string, args ...interface{}) error {
	return connect.NewError(connect.CodePermissionDenied, fmt.Errorf(format, args...))
}

func alreadyExists(format string, args ...interface{}) error {
	return connect.NewError(connect.CodeAlreadyExists, fmt.Errorf(format, args...))
}

func failedPrecondition(format string, args ...interface{}) error {
	return connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf(format, args...))
}

// circleAccess loads the caller's membership of a circle. A missing circle is
// NotFound; an existing circle the caller is not in is PermissionDenied.
func circleAccess(ctx context.Context, store storage.Store, circleID, userID string) (*models.CircleMember, error) {
	if strings.TrimSpace(circleID) == "" {
		return nil, invalidArgument("circle_id is required")
	}
	member, err := store.GetCircleMember(ctx, circleID, userID)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, storeError(err, "circle member")
	}
	if _, err := store.GetCircle(ctx, circleID); err != nil {
		return nil, storeError(err, "circle")
	}
	return nil, permissionDenied("you are not a member of this circle")
}

func requireAdmin(ctx context.Context, store storage.Store, circleID, userID string) (*models.CircleMember, error) {
	member, err := circleAccess(ctx, store, circleID, userID)
	if err != nil {
		return nil, err
	}
	if !member.IsAdmin() {
		return nil, permissionDenied("only circle admins can do this")
	}
	return member, nil
}

// participantID is the balance key for a share.
func participantID(m models.TransactionMember) string {
	if m.IsExternal() {
		return externalPrefix + m.ExternalEmail
	}
	return m.UserID
}

// forBalance converts stored transactions to calculator input.
func forBalance(txns []*models.Transaction) []calculator.TransactionForBalance {
	out := make([]calculator.TransactionForBalance, 0, len(txns))
	for _, t := range txns {
		shares := make([]calculator.Share, 0, len(t.Members))
		for _, m := range t.Members {
			shares = append(shares, calculator.Share{
				ParticipantID: participantID(m),
				Amount:        m.AmountOwed,
				Paid:          m.IsPaid(),
			})
		}
		out = append(out, calculator.TransactionForBalance{
			ID:        t.ID,
			CircleID:  t.CircleID,
			CreatorID: t.CreatedBy,
			Shares:    shares,
		})
	}
	return out
}

// audit appends entries best-effort; the audit trail never fails a request.
func audit(ctx context.Context, store storage.Store, entries ...*models.AuditLog) {
	if err := store.AppendAuditLogs(ctx, entries...); err != nil {
		slog.Error("failed to write audit log", "entries", len(entries), "error", err)
	}
}

// Links builds the absolute URLs embedded in emails.
type Links struct {
	PublicURL string
}

func (l Links) base() string {
	return strings.TrimRight(l.PublicURL, "/")
}

// VerifyLink points at the SPA's email verification page.
func (l Links) VerifyLink(token string) string {
	return l.base() + "/verify-email?token=" + token
}

// ExternalLink points at an external participant's share page.
func (l Links) ExternalLink(token string) string {
	return l.base() + "/external/" + token
}

// RegisterLink points at the sign-up page, prefilled with the invited email.
func (l Links) RegisterLink(email string) string {
	return l.base() + "/register?email=" + url.QueryEscape(email)
}

// clock is swapped in tests.
type clock func() time.Time
