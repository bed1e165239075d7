package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/karysgoh/paypals-project-sub000/internal/service"
)

// Invite invites a registered user or an email address to a circle.
func (h *Handler) Invite(c *gin.Context) {
	var req service.InviteInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	inv, err := h.Invitations.Invite(c.Request.Context(), c.Param("circleId"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invitation": inv})
}

// PendingInvitations lists invitations waiting on the caller.
func (h *Handler) PendingInvitations(c *gin.Context) {
	invitations, err := h.Invitations.ListPending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invitations})
}

// CircleInvitations lists a circle's outstanding invitations.
func (h *Handler) CircleInvitations(c *gin.Context) {
	invitations, err := h.Invitations.ListCircleInvitations(c.Request.Context(), c.Param("circleId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invitations})
}

// AcceptInvitation joins the caller to the invited circle.
func (h *Handler) AcceptInvitation(c *gin.Context) {
	circle, err := h.Invitations.Accept(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "invitation accepted", "circle": circle})
}

// RejectInvitation declines an invitation addressed to the caller.
func (h *Handler) RejectInvitation(c *gin.Context) {
	if err := h.Invitations.Reject(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "invitation rejected"})
}

// CancelInvitation withdraws a pending invitation. The inviter or a circle admin may cancel.
func (h *Handler) CancelInvitation(c *gin.Context) {
	if err := h.Invitations.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "invitation cancelled"})
}
