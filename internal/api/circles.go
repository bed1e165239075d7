package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/karysgoh/paypals-project-sub000/internal/service"
)

// CreateCircle creates a circle with the caller as its admin.
func (h *Handler) CreateCircle(c *gin.Context) {
	var req service.CircleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	circle, err := h.Circles.CreateCircle(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"circle": circle})
}

// ListUserCircles lists the circles the caller belongs to.
func (h *Handler) ListUserCircles(c *gin.Context) {
	circles, err := h.Circles.ListUserCircles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"circles": circles})
}

// GetCircle returns one circle. Members only.
func (h *Handler) GetCircle(c *gin.Context) {
	circle, err := h.Circles.GetCircle(c.Request.Context(), c.Param("circleId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"circle": circle})
}

// UpdateCircle renames or retypes a circle. Admins only.
func (h *Handler) UpdateCircle(c *gin.Context) {
	var req service.CircleUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	circle, err := h.Circles.UpdateCircle(c.Request.Context(), c.Param("circleId"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"circle": circle})
}

// DeleteCircle deletes a circle and everything in it. Admins only.
func (h *Handler) DeleteCircle(c *gin.Context) {
	if err := h.Circles.DeleteCircle(c.Request.Context(), c.Param("circleId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "circle deleted"})
}

// ListMembers lists a circle's members with their roles.
func (h *Handler) ListMembers(c *gin.Context) {
	members, err := h.Circles.ListMembers(c.Request.Context(), c.Param("circleId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// RemoveMember removes another member from a circle. Admins only.
func (h *Handler) RemoveMember(c *gin.Context) {
	if err := h.Circles.RemoveMember(c.Request.Context(), c.Param("circleId"), c.Param("userId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "member removed"})
}

// ChangeMemberRole promotes or demotes a member. Admins only.
func (h *Handler) ChangeMemberRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required,oneof=admin member"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	member, err := h.Circles.ChangeMemberRole(c.Request.Context(), c.Param("circleId"), c.Param("userId"), req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": member})
}

// LeaveCircle removes the caller from a circle. The last admin cannot leave.
func (h *Handler) LeaveCircle(c *gin.Context) {
	if err := h.Circles.LeaveCircle(c.Request.Context(), c.Param("circleId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left circle"})
}

// CircleBalances returns each member's net position in a circle.
func (h *Handler) CircleBalances(c *gin.Context) {
	balances, err := h.Circles.CircleBalances(c.Request.Context(), c.Param("circleId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, balances)
}

// CircleAuditLog returns the circle's change history, newest first. Admins only.
func (h *Handler) CircleAuditLog(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.Circles.CircleAuditLog(c.Request.Context(), c.Param("circleId"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": logs})
}
