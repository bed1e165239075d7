package api

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/karysgoh/paypals-project-sub000/internal/export"
	"github.com/karysgoh/paypals-project-sub000/internal/models"
	"github.com/karysgoh/paypals-project-sub000/internal/service"
)

func transactionFilter(c *gin.Context) models.TransactionFilter {
	return models.TransactionFilter{
		Status:   strings.TrimSpace(c.Query("status")),
		CircleID: strings.TrimSpace(c.Query("circle_id")),
		Category: strings.TrimSpace(c.Query("category")),
		Search:   strings.TrimSpace(c.Query("search")),
	}
}

// CreateTransaction records an expense in a circle and splits it.
func (h *Handler) CreateTransaction(c *gin.Context) {
	var req service.TransactionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	txn, err := h.Transactions.CreateTransaction(c.Request.Context(), c.Param("circleId"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": txn})
}

// ListUserTransactions lists transactions the caller takes part in, filtered by query.
func (h *Handler) ListUserTransactions(c *gin.Context) {
	txns, err := h.Transactions.ListUserTransactions(c.Request.Context(), transactionFilter(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

// ListCircleTransactions lists a circle's transactions, filtered by query.
func (h *Handler) ListCircleTransactions(c *gin.Context) {
	txns, err := h.Transactions.ListCircleTransactions(c.Request.Context(), c.Param("circleId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

// GetTransaction returns one transaction with its shares.
func (h *Handler) GetTransaction(c *gin.Context) {
	txn, err := h.Transactions.GetTransaction(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// UpdateTransaction edits the descriptive fields. Creator only.
func (h *Handler) UpdateTransaction(c *gin.Context) {
	var req service.TransactionUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	txn, err := h.Transactions.UpdateTransaction(c.Request.Context(), c.Param("transactionId"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// DeleteTransaction deletes a transaction. Creator only.
func (h *Handler) DeleteTransaction(c *gin.Context) {
	if err := h.Transactions.DeleteTransaction(c.Request.Context(), c.Param("transactionId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction deleted"})
}

// UpdatePaymentStatus sets one share to pending or paid.
func (h *Handler) UpdatePaymentStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required,oneof=pending paid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	txn, err := h.Transactions.UpdatePaymentStatus(c.Request.Context(), c.Param("transactionId"), c.Param("memberId"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// DashboardSummary returns the caller's totals across circles.
func (h *Handler) DashboardSummary(c *gin.Context) {
	summary, err := h.Transactions.DashboardSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ExportTransactions renders into memory first so a failure can still be
// reported as JSON.
func (h *Handler) ExportTransactions(c *gin.Context) {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}

	var buf bytes.Buffer
	if err := h.Transactions.ExportXLSX(c.Request.Context(), &buf, transactionFilter(c), loc); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(time.Now().In(loc))+`"`)
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}
