package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/karysgoh/paypals-project-sub000/internal/service"
)

func qrResponse(qr *service.PayNowQR) gin.H {
	return gin.H{
		"transaction_id": qr.TransactionID,
		"member_id":      qr.MemberID,
		"amount":         qr.Amount,
		"payee_name":     qr.PayeeName,
		"payee_mobile":   qr.PayeeMobile,
		"reference":      qr.Reference,
		"payload":        qr.Payload,
		"qr_code":        qr.DataURL(),
	}
}

// PayNowQR returns a PayNow QR for the caller's share of a transaction.
func (h *Handler) PayNowQR(c *gin.Context) {
	qr, err := h.PayNow.QRForTransaction(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, qrResponse(qr))
}

// ConfirmPayNow marks the caller's share as paid after a PayNow transfer.
func (h *Handler) ConfirmPayNow(c *gin.Context) {
	txn, err := h.PayNow.ConfirmPayment(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// ExternalShare shows an external participant their share.
// The access token in the path stands in for a session.
func (h *Handler) ExternalShare(c *gin.Context) {
	share, err := h.Transactions.GetExternalShare(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, share)
}

// ExternalQR returns a PayNow QR for the share behind an access token.
func (h *Handler) ExternalQR(c *gin.Context) {
	qr, err := h.PayNow.QRForExternal(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, qrResponse(qr))
}

// ConfirmExternal marks the share behind an access token as paid.
func (h *Handler) ConfirmExternal(c *gin.Context) {
	share, err := h.Transactions.ConfirmExternalPayment(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, share)
}
