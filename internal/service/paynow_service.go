package service

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/karysgoh/paypals-project-sub000/internal/models"
	"github.com/karysgoh/paypals-project-sub000/internal/paynow"
	"github.com/karysgoh/paypals-project-sub000/internal/storage"
)

// PayNowQR is a scannable payment request for one share.
type PayNowQR struct {
	TransactionID string          `json:"transaction_id"`
	MemberID      string          `json:"member_id"`
	Amount        decimal.Decimal `json:"amount"`
	PayeeName     string          `json:"payee_name"`
	PayeeMobile   string          `json:"payee_mobile"`
	Reference     string          `json:"reference"`
	Payload       string          `json:"payload"`
	PNG           []byte          `json:"-"`
}

// DataURL returns the QR image as a data: URL for <img src>.
func (q *PayNowQR) DataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(q.PNG)
}

// PayNowService builds PayNow QR codes that pay a transaction's creator.
type PayNowService struct {
	store        storage.Store
	transactions *TransactionService
	qrSize       int
}

// NewPayNowService creates a PayNowService. Payment confirmation goes
// through transactions so notifications stay in one place.
func NewPayNowService(store storage.Store, transactions *TransactionService) *PayNowService {
	return &PayNowService{
		store:        store,
		transactions: transactions,
		qrSize:       paynow.DefaultQRSize,
	}
}

// QRForTransaction returns a QR code for the caller's pending share.
func (s *PayNowService) QRForTransaction(ctx context.Context, txnID string) (*PayNowQR, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("QRForTransaction request", "transaction_id", txnID, "user_id", userID)

	txn, err := s.transactions.load(ctx, txnID, userID)
	if err != nil {
		return nil, err
	}
	if txn.CreatedBy == userID {
		return nil, failedPrecondition("you paid for this transaction")
	}
	share, ok := txn.MemberFor(userID)
	if !ok {
		return nil, failedPrecondition("you are not a participant in this transaction")
	}
	return s.build(ctx, txn, share)
}

// ConfirmPayment marks the caller's share paid after paying by PayNow.
func (s *PayNowService) ConfirmPayment(ctx context.Context, txnID string) (*models.Transaction, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	txn, err := s.transactions.load(ctx, txnID, userID)
	if err != nil {
		return nil, err
	}
	share, ok := txn.MemberFor(userID)
	if !ok {
		return nil, failedPrecondition("you are not a participant in this transaction")
	}
	return s.transactions.UpdatePaymentStatus(ctx, txnID, share.ID, models.PaymentPaid)
}

// QRForExternal returns a QR code for an external participant's share.
func (s *PayNowService) QRForExternal(ctx context.Context, token string) (*PayNowQR, error) {
	txn, share, err := s.transactions.external(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.build(ctx, txn, share)
}

func (s *PayNowService) build(ctx context.Context, txn *models.Transaction, share *models.TransactionMember) (*PayNowQR, error) {
	if share.IsPaid() {
		return nil, failedPrecondition("this share is already paid")
	}
	if !share.AmountOwed.IsPositive() {
		return nil, failedPrecondition("nothing to pay for this share")
	}

	payee, err := s.store.GetUserByID(ctx, txn.CreatedBy)
	if err != nil {
		return nil, storeError(err, "user")
	}
	if !payee.PayNowEnabled || payee.PayNowPhone == "" {
		return nil, failedPrecondition("%s has not set up PayNow", payee.Username)
	}

	// Banks show at most 25 ASCII characters of the reference.
	reference := paynow.SanitizeText("PayPals "+txn.Name, 25)
	payload, err := paynow.Payload{
		ProxyType:    paynow.ProxyMobile,
		ProxyValue:   payee.PayNowPhone,
		Amount:       share.AmountOwed,
		Reference:    reference,
		MerchantName: payee.Username,
	}.String()
	if err != nil {
		slog.Error("Failed to encode PayNow payload", "transaction_id", txn.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, errors.New("failed to build payment request"))
	}

	png, err := paynow.QRCodePNG(payload, s.qrSize)
	if err != nil {
		slog.Error("Failed to render PayNow QR", "transaction_id", txn.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, errors.New("failed to generate QR code"))
	}

	return &PayNowQR{
		TransactionID: txn.ID,
		MemberID:      share.ID,
		Amount:        share.AmountOwed,
		PayeeName:     payee.Username,
		PayeeMobile:   payee.PayNowPhone,
		Reference:     reference,
		Payload:       payload,
		PNG:           png,
	}, nil
}
