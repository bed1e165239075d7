package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/karysgoh/paypals-project-sub000/internal/auth"
	"github.com/karysgoh/paypals-project-sub000/internal/calculator"
	"github.com/karysgoh/paypals-project-sub000/internal/export"
	"github.com/karysgoh/paypals-project-sub000/internal/mail"
	"github.com/karysgoh/paypals-project-sub000/internal/models"
	"github.com/karysgoh/paypals-project-sub000/internal/storage"
)

// Split types accepted by CreateTransaction.
const (
	SplitEqual  = "equal"
	SplitCustom = "custom"
)

const (
	maxTransactionNameLength = 200
	recentTransactions       = 5
)

// maxTotalAmount is the largest transaction total accepted, exclusive.
var maxTotalAmount = decimal.NewFromInt(10_000_000)

// ParticipantInput names one participant: a circle member by UserID, or
// anyone else by Email. Amount is required for custom splits only.
type ParticipantInput struct {
	UserID string           `json:"user_id,omitempty"`
	Email  string           `json:"email,omitempty" binding:"omitempty,email"`
	Name   string           `json:"name,omitempty"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// TransactionInput creates a transaction.
type TransactionInput struct {
	Name         string             `json:"name" binding:"required,max=200"`
	Description  string             `json:"description"`
	Category     string             `json:"category"`
	TotalAmount  decimal.Decimal    `json:"total_amount"`
	SplitType    string             `json:"split_type" binding:"omitempty,oneof=equal custom"`
	Participants []ParticipantInput `json:"participants" binding:"required,min=1,dive"`
	Location     *models.Location   `json:"location,omitempty"`
}

// TransactionUpdate is a partial update of the descriptive fields.
// Amounts and participants cannot change after creation.
type TransactionUpdate struct {
	Name          *string          `json:"name" binding:"omitempty,max=200"`
	Description   *string          `json:"description"`
	Category      *string          `json:"category"`
	Location      *models.Location `json:"location"`
	ClearLocation bool             `json:"clear_location"`
}

// CircleTotalsView is a per-circle dashboard row.
type CircleTotalsView struct {
	calculator.CircleTotals
	Name string `json:"name"`
}

// CounterpartyView is a per-person dashboard row.
type CounterpartyView struct {
	calculator.CounterpartyTotals
	Name     string `json:"name"`
	External bool   `json:"external"`
}

// Dashboard is the caller's overall position plus recent activity.
type Dashboard struct {
	calculator.Totals
	PendingCount   int                   `json:"pending_count"`
	Circles        []CircleTotalsView    `json:"circles"`
	Counterparties []CounterpartyView    `json:"counterparties"`
	Recent         []*models.Transaction `json:"recent"`
}

// ExternalShare is what an external participant sees through their access link.
// Other participants' shares are not included.
type ExternalShare struct {
	TransactionID   string                   `json:"transaction_id"`
	Name            string                   `json:"name"`
	Description     string                   `json:"description,omitempty"`
	Category        string                   `json:"category"`
	CircleName      string                   `json:"circle_name"`
	TotalAmount     decimal.Decimal          `json:"total_amount"`
	CreatedAt       int64                    `json:"created_at"`
	Creator         models.UserSummary       `json:"creator"`
	Share           models.TransactionMember `json:"share"`
	PayNowAvailable bool                     `json:"paynow_available"`
}

// TransactionService manages shared expenses and their payment status.
type TransactionService struct {
	store    storage.Store
	notifier *Notifier
	links    Links
	now      clock
}

// NewTransactionService creates a new TransactionService.
func NewTransactionService(store storage.Store, notifier *Notifier, links Links) *TransactionService {
	return &TransactionService{
		store:    store,
		notifier: notifier,
		links:    links,
		now:      time.Now,
	}
}

// newAccessToken returns 32 random bytes, hex encoded.
func newAccessToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func validateLocation(loc *models.Location) error {
	if loc == nil {
		return nil
	}
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
		return invalidArgument("location coordinates are out of range")
	}
	return nil
}

func normalizeTransactionName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalidArgument("transaction name is required")
	}
	if len(name) > maxTransactionNameLength {
		return "", invalidArgument("transaction name must be at most %d characters", maxTransactionNameLength)
	}
	return name, nil
}

// resolveParticipants turns the input list into share rows without amounts.
// Emails that belong to a circle member are treated as that member.
func (s *TransactionService) resolveParticipants(ctx context.Context, circleID string, in []ParticipantInput) ([]models.TransactionMember, error) {
	if len(in) == 0 {
		return nil, invalidArgument("at least one participant is required")
	}

	members := make([]models.TransactionMember, 0, len(in))
	seen := make(map[string]bool)
	for i, p := range in {
		var m models.TransactionMember
		switch {
		case p.UserID != "":
			if _, err := s.store.GetCircleMember(ctx, circleID, p.UserID); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return nil, invalidArgument("participant %d is not a member of this circle", i+1)
				}
				return nil, storeError(err, "circle member")
			}
			m.UserID = p.UserID
		case strings.TrimSpace(p.Email) != "":
			email := models.NormalizeEmail(p.Email)
			if !auth.ValidEmail(email) {
				return nil, invalidArgument("participant %d has an invalid email address", i+1)
			}
			if userID, ok := s.memberByEmail(ctx, circleID, email); ok {
				m.UserID = userID
				break
			}
			m.ExternalEmail = email
			m.ExternalName = strings.TrimSpace(p.Name)
		default:
			return nil, invalidArgument("participant %d needs a user_id or an email", i+1)
		}

		key := participantID(m)
		if seen[key] {
			return nil, invalidArgument("participant %d is listed more than once", i+1)
		}
		seen[key] = true
		members = append(members, m)
	}
	return members, nil
}

func (s *TransactionService) memberByEmail(ctx context.Context, circleID, email string) (string, bool) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", false
	}
	if _, err := s.store.GetCircleMember(ctx, circleID, user.ID); err != nil {
		return "", false
	}
	return user.ID, true
}

// CreateTransaction records an expense the caller paid for and splits it
// among the participants. The shares always sum to the total.
func (s *TransactionService) CreateTransaction(ctx context.Context, circleID string, in TransactionInput) (*models.Transaction, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("CreateTransaction request", "circle_id", circleID, "name", in.Name, "total", in.TotalAmount.String(), "participants", len(in.Participants))

	if _, err := circleAccess(ctx, s.store, circleID, userID); err != nil {
		return nil, err
	}

	name, err := normalizeTransactionName(in.Name)
	if err != nil {
		return nil, err
	}
	category := in.Category
	if category == "" {
		category = models.CategoryOther
	}
	if !models.ValidCategory(category) {
		return nil, invalidArgument("unknown category %q", category)
	}
	if !in.TotalAmount.IsPositive() {
		return nil, invalidArgument("total amount must be greater than zero")
	}
	if in.TotalAmount.GreaterThanOrEqual(maxTotalAmount) {
		return nil, invalidArgument("total amount must be less than %s", maxTotalAmount.String())
	}
	if !calculator.RoundCents(in.TotalAmount).Equal(in.TotalAmount) {
		return nil, invalidArgument("total amount must have at most 2 decimal places")
	}
	if err := validateLocation(in.Location); err != nil {
		return nil, err
	}

	members, err := s.resolveParticipants(ctx, circleID, in.Participants)
	if err != nil {
		return nil, err
	}

	var amounts []decimal.Decimal
	switch in.SplitType {
	case "", SplitEqual:
		amounts, err = calculator.SplitEqually(in.TotalAmount, len(members))
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
	case SplitCustom:
		amounts = make([]decimal.Decimal, len(in.Participants))
		for i, p := range in.Participants {
			if p.Amount == nil {
				return nil, invalidArgument("participant %d needs an amount for a custom split", i+1)
			}
			amounts[i] = *p.Amount
		}
		if err := calculator.ValidateShares(in.TotalAmount, amounts); err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
	default:
		return nil, invalidArgument("split_type must be %q or %q", SplitEqual, SplitCustom)
	}

	now := s.now().Unix()
	for i := range members {
		m := &members[i]
		m.AmountOwed = calculator.RoundCents(amounts[i])
		m.PaymentStatus = models.PaymentPending
		switch {
		case m.UserID == userID:
			// The creator paid the bill, so their own share is settled.
			m.PaymentStatus = models.PaymentPaid
			m.PaidAt = now
		case m.IsExternal():
			token, err := newAccessToken()
			if err != nil {
				return nil, connect.NewError(connect.CodeInternal, err)
			}
			m.AccessToken = token
		}
	}

	txn := &models.Transaction{
		CircleID:    circleID,
		CreatedBy:   userID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Category:    category,
		TotalAmount: in.TotalAmount,
		Location:    in.Location,
		CreatedAt:   now,
		Members:     members,
	}
	if err := s.store.CreateTransaction(ctx, txn); err != nil {
		return nil, storeError(err, "transaction")
	}

	created, err := s.store.GetTransaction(ctx, txn.ID)
	if err != nil {
		return nil, storeError(err, "transaction")
	}
	s.announce(ctx, created)
	audit(ctx, s.store, &models.AuditLog{
		ActorID:    userID,
		Action:     models.AuditCreate,
		EntityType: "transaction",
		EntityID:   created.ID,
		CircleID:   circleID,
		Details:    fmt.Sprintf("%s: $%s split %d ways", created.Name, created.TotalAmount.StringFixed(2), len(created.Members)),
	})

	slog.Info("Transaction created successfully", "transaction_id", created.ID, "circle_id", circleID)
	return created, nil
}

// announce notifies registered participants and emails external ones.
func (s *TransactionService) announce(ctx context.Context, txn *models.Transaction) {
	creator := txn.Creator.Username
	var notifications []*models.Notification
	for _, m := range txn.Members {
		if m.UserID == txn.CreatedBy {
			continue
		}
		amount := m.AmountOwed.StringFixed(2)
		if m.IsExternal() {
			s.notifier.Email(ctx, mail.ExternalShareEmail(m.ExternalEmail, m.ExternalName, creator, txn.Name, amount, s.links.ExternalLink(m.AccessToken)))
			continue
		}
		notifications = append(notifications,
			&models.Notification{
				UserID:        m.UserID,
				Type:          models.NotificationTransactionCreated,
				Title:         "New transaction",
				Message:       fmt.Sprintf("%s added you to %q in %s", creator, txn.Name, txn.CircleName),
				TransactionID: txn.ID,
				CircleID:      txn.CircleID,
			},
			&models.Notification{
				UserID:        m.UserID,
				Type:          models.NotificationPaymentDue,
				Title:         "Payment due",
				Message:       fmt.Sprintf("You owe %s $%s for %q", creator, amount, txn.Name),
				TransactionID: txn.ID,
				CircleID:      txn.CircleID,
			},
		)
	}
	s.notifier.Notify(ctx, notifications...)
}

// ListUserTransactions returns transactions the caller created or takes part in.
func (s *TransactionService) ListUserTransactions(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	switch filter.Status {
	case "", models.PaymentPending, models.PaymentPaid:
	default:
		return nil, invalidArgument("status must be %q or %q", models.PaymentPending, models.PaymentPaid)
	}
	if filter.Category != "" && !models.ValidCategory(filter.Category) {
		return nil, invalidArgument("unknown category %q", filter.Category)
	}

	txns, err := s.store.ListTransactionsByUser(ctx, userID, filter)
	if err != nil {
		return nil, storeError(err, "transactions")
	}
	return txns, nil
}

// ListCircleTransactions returns every transaction in a circle. Members only.
func (s *TransactionService) ListCircleTransactions(ctx context.Context, circleID string) ([]*models.Transaction, error) {
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
	return txns, nil
}

// load fetches a transaction the caller may see: its creator, a participant,
// or a current member of its circle.
func (s *TransactionService) load(ctx context.Context, txnID, userID string) (*models.Transaction, error) {
	if strings.TrimSpace(txnID) == "" {
		return nil, invalidArgument("transaction_id is required")
	}
	txn, err := s.store.GetTransaction(ctx, txnID)
	if err != nil {
		return nil, storeError(err, "transaction")
	}
	if txn.CreatedBy == userID {
		return txn, nil
	}
	if _, ok := txn.MemberFor(userID); ok {
		return txn, nil
	}
	if _, err := s.store.GetCircleMember(ctx, txn.CircleID, userID); err == nil {
		return txn, nil
	}
	return nil, permissionDenied("you do not have access to this transaction")
}

// GetTransaction returns one transaction.
func (s *TransactionService) GetTransaction(ctx context.Context, txnID string) (*models.Transaction, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, txnID, userID)
}

// UpdateTransaction edits the descriptive fields. Creator only.
func (s *TransactionService) UpdateTransaction(ctx context.Context, txnID string, in TransactionUpdate) (*models.Transaction, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("UpdateTransaction request", "transaction_id", txnID, "user_id", userID)

	txn, err := s.load(ctx, txnID, userID)
	if err != nil {
		return nil, err
	}
	if txn.CreatedBy != userID {
		return nil, permissionDenied("only the creator can edit this transaction")
	}

	if in.Name != nil {
		if txn.Name, err = normalizeTransactionName(*in.Name); err != nil {
			return nil, err
		}
	}
	if in.Description != nil {
		txn.Description = strings.TrimSpace(*in.Description)
	}
	if in.Category != nil {
		if !models.ValidCategory(*in.Category) {
			return nil, invalidArgument("unknown category %q", *in.Category)
		}
		txn.Category = *in.Category
	}
	switch {
	case in.ClearLocation:
		txn.Location = nil
	case in.Location != nil:
		if err := validateLocation(in.Location); err != nil {
			return nil, err
		}
		txn.Location = in.Location
	}

	if err := s.store.UpdateTransaction(ctx, txn); err != nil {
		return nil, storeError(err, "transaction")
	}
	audit(ctx, s.store, &models.AuditLog{
		ActorID:    userID,
		Action:     models.AuditUpdate,
		EntityType: "transaction",
		EntityID:   txn.ID,
		CircleID:   txn.CircleID,
		Details:    txn.Name,
	})

	slog.Info("Transaction updated successfully", "transaction_id", txn.ID)
	return txn, nil
}

// DeleteTransaction removes a transaction and its shares. Creator only.
func (s *TransactionService) DeleteTransaction(ctx context.Context, txnID string) error {
	userID, err := requireUser(ctx)
	if err != nil {
		return err
	}
	slog.Info("DeleteTransaction request", "transaction_id", txnID, "user_id", userID)

	txn, err := s.load(ctx, txnID, userID)
	if err != nil {
		return err
	}
	if txn.CreatedBy != userID {
		return permissionDenied("only the creator can delete this transaction")
	}
	if err := s.store.DeleteTransaction(ctx, txnID); err != nil {
		return storeError(err, "transaction")
	}
	audit(ctx, s.store, &models.AuditLog{
		ActorID:    userID,
		Action:     models.AuditDelete,
		EntityType: "transaction",
		EntityID:   txnID,
		CircleID:   txn.CircleID,
		Details:    fmt.Sprintf("%s: $%s", txn.Name, txn.TotalAmount.StringFixed(2)),
	})

	slog.Info("Transaction deleted successfully", "transaction_id", txnID)
	return nil
}

// UpdatePaymentStatus changes one share's status. The creator may set any
// share to any status; a participant may only mark their own share paid.
func (s *TransactionService) UpdatePaymentStatus(ctx context.Context, txnID, memberID, status string) (*models.Transaction, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("UpdatePaymentStatus request", "transaction_id", txnID, "member_id", memberID, "status", status)

	if status != models.PaymentPending && status != models.PaymentPaid {
		return nil, invalidArgument("status must be %q or %q", models.PaymentPending, models.PaymentPaid)
	}
	txn, err := s.load(ctx, txnID, userID)
	if err != nil {
		return nil, err
	}

	var share *models.TransactionMember
	for i := range txn.Members {
		if txn.Members[i].ID == memberID {
			share = &txn.Members[i]
		}
	}
	if share == nil {
		return nil, connect.NewError(connect.CodeNotFound, errors.New("participant not found"))
	}

	switch {
	case txn.CreatedBy == userID:
	case share.UserID == userID:
		if status != models.PaymentPaid {
			return nil, permissionDenied("only the creator can mark a share as unpaid")
		}
	default:
		return nil, permissionDenied("you can only update your own share")
	}

	wasPaid := share.IsPaid()
	if err := s.setStatus(ctx, txn, share, status); err != nil {
		return nil, err
	}
	if status == models.PaymentPaid && !wasPaid && txn.CreatedBy != userID {
		s.paymentReceived(ctx, txn, share)
	}
	return txn, nil
}

// setStatus persists a share's status and mirrors it in txn. No-op if unchanged.
func (s *TransactionService) setStatus(ctx context.Context, txn *models.Transaction, share *models.TransactionMember, status string) error {
	if share.PaymentStatus == status {
		return nil
	}
	var paidAt int64
	if status == models.PaymentPaid {
		paidAt = s.now().Unix()
	}
	if err := s.store.UpdatePaymentStatus(ctx, share.ID, status, paidAt); err != nil {
		return storeError(err, "participant")
	}
	share.PaymentStatus = status
	share.PaidAt = paidAt
	slog.Info("Payment status updated", "transaction_id", txn.ID, "member_id", share.ID, "status", status)
	return nil
}

// paymentReceived tells the creator that share was paid.
func (s *TransactionService) paymentReceived(ctx context.Context, txn *models.Transaction, share *models.TransactionMember) {
	payer := share.ExternalName
	if share.User != nil {
		payer = share.User.Username
	}
	if payer == "" {
		payer = share.ExternalEmail
	}
	s.notifier.Notify(ctx, &models.Notification{
		UserID:        txn.CreatedBy,
		Type:          models.NotificationPaymentReceived,
		Title:         "Payment received",
		Message:       fmt.Sprintf("%s paid $%s for %q", payer, share.AmountOwed.StringFixed(2), txn.Name),
		TransactionID: txn.ID,
		CircleID:      txn.CircleID,
	})
}

// DashboardSummary totals what the caller is owed and owes.
func (s *TransactionService) DashboardSummary(ctx context.Context) (*Dashboard, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	txns, err := s.store.ListTransactionsByUser(ctx, userID, models.TransactionFilter{})
	if err != nil {
		return nil, storeError(err, "transactions")
	}

	summary := calculator.SummarizeUser(userID, forBalance(txns))
	names, err := participantNames(ctx, s.store, txns)
	if err != nil {
		return nil, err
	}
	circleNames := make(map[string]string)
	for _, t := range txns {
		circleNames[t.CircleID] = t.CircleName
	}

	dashboard := &Dashboard{
		Totals:         summary.Totals,
		PendingCount:   summary.PendingCount,
		Circles:        make([]CircleTotalsView, 0, len(summary.Circles)),
		Counterparties: make([]CounterpartyView, 0, len(summary.Counterparties)),
		Recent:         txns,
	}
	for _, c := range summary.Circles {
		dashboard.Circles = append(dashboard.Circles, CircleTotalsView{CircleTotals: c, Name: circleNames[c.CircleID]})
	}
	for _, p := range summary.Counterparties {
		dashboard.Counterparties = append(dashboard.Counterparties, CounterpartyView{
			CounterpartyTotals: p,
			Name:               names[p.ParticipantID],
			External:           strings.HasPrefix(p.ParticipantID, externalPrefix),
		})
	}
	if len(dashboard.Recent) > recentTransactions {
		dashboard.Recent = dashboard.Recent[:recentTransactions]
	}
	return dashboard, nil
}

// ExportXLSX writes the caller's (filtered) transactions as a spreadsheet.
func (s *TransactionService) ExportXLSX(ctx context.Context, w io.Writer, filter models.TransactionFilter, loc *time.Location) error {
	txns, err := s.ListUserTransactions(ctx, filter)
	if err != nil {
		return err
	}
	userID, _ := requireUser(ctx)
	if err := export.WriteTransactions(w, userID, txns, loc); err != nil {
		slog.Error("Failed to export transactions", "user_id", userID, "error", err)
		return connect.NewError(connect.CodeInternal, errors.New("failed to export transactions"))
	}
	return nil
}

// external loads the share behind an access token with its transaction.
func (s *TransactionService) external(ctx context.Context, token string) (*models.Transaction, *models.TransactionMember, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil, invalidArgument("access token is required")
	}
	member, err := s.store.GetTransactionMemberByToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, connect.NewError(connect.CodeNotFound, errors.New("this link is invalid or the transaction was deleted"))
		}
		return nil, nil, storeError(err, "participant")
	}
	txn, err := s.store.GetTransaction(ctx, member.TransactionID)
	if err != nil {
		return nil, nil, storeError(err, "transaction")
	}
	for i := range txn.Members {
		if txn.Members[i].ID == member.ID {
			return txn, &txn.Members[i], nil
		}
	}
	return nil, nil, connect.NewError(connect.CodeNotFound, errors.New("participant not found"))
}

func (s *TransactionService) externalView(ctx context.Context, txn *models.Transaction, share *models.TransactionMember) *ExternalShare {
	view := &ExternalShare{
		TransactionID: txn.ID,
		Name:          txn.Name,
		Description:   txn.Description,
		Category:      txn.Category,
		CircleName:    txn.CircleName,
		TotalAmount:   txn.TotalAmount,
		CreatedAt:     txn.CreatedAt,
		Creator:       txn.Creator,
		Share:         *share,
	}
	if creator, err := s.store.GetUserByID(ctx, txn.CreatedBy); err == nil {
		view.PayNowAvailable = creator.PayNowEnabled && creator.PayNowPhone != ""
	}
	return view
}

// GetExternalShare returns an external participant's share. No login needed.
func (s *TransactionService) GetExternalShare(ctx context.Context, token string) (*ExternalShare, error) {
	txn, share, err := s.external(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.externalView(ctx, txn, share), nil
}

// ConfirmExternalPayment marks an external participant's share paid and
// tells the creator. Confirming twice is not an error.
func (s *TransactionService) ConfirmExternalPayment(ctx context.Context, token string) (*ExternalShare, error) {
	txn, share, err := s.external(ctx, token)
	if err != nil {
		return nil, err
	}
	wasPaid := share.IsPaid()
	if err := s.setStatus(ctx, txn, share, models.PaymentPaid); err != nil {
		return nil, err
	}
	if !wasPaid {
		s.paymentReceived(ctx, txn, share)
	}
	return s.externalView(ctx, txn, share), nil
}
