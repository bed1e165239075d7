package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/karysgoh/paypals-project-sub000/internal/service"
)

// Register creates an account and starts a session cookie for it.
func (h *Handler) Register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.Auth.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setSession(c, res.Token, res.ExpiresAt)
	c.JSON(http.StatusCreated, res)
}

// Login accepts an email or username with a password and sets the session cookie.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		// Identifier is a username or an email address.
		Identifier string `json:"identifier"`
		Email      string `json:"email"`
		Username   string `json:"username"`
		Password   string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" {
		identifier = strings.TrimSpace(req.Username)
	}
	if identifier == "" || req.Password == "" {
		badRequest(c, "username or email and password are required")
		return
	}

	res, err := h.Auth.Login(c.Request.Context(), identifier, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setSession(c, res.Token, res.ExpiresAt)
	c.JSON(http.StatusOK, res)
}

// Logout revokes the current token and clears the session cookie.
func (h *Handler) Logout(c *gin.Context) {
	if err := h.Auth.Logout(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	h.clearSession(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the signed-in user.
func (h *Handler) Me(c *gin.Context) {
	user, err := h.Auth.CurrentUser(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// VerifyEmail consumes the token from a verification link. No session needed.
func (h *Handler) VerifyEmail(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		badRequest(c, "token is required")
		return
	}

	user, err := h.Auth.VerifyEmail(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "email verified", "user": user})
}

// ResendVerification mails a fresh verification link to the signed-in user.
func (h *Handler) ResendVerification(c *gin.Context) {
	if err := h.Auth.ResendVerification(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "verification email sent"})
}

// UpdatePaymentSettings changes the caller's phone and PayNow details.
func (h *Handler) UpdatePaymentSettings(c *gin.Context) {
	var req service.PaymentSettingsInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.Auth.UpdatePaymentSettings(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// SearchUsers finds users by username or email prefix for invitations.
func (h *Handler) SearchUsers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	users, err := h.Auth.SearchUsers(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
