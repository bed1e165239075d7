// Package api exposes the PayPals services as a JSON REST API over gin.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/karysgoh/paypals-project-sub000/internal/config"
	"github.com/karysgoh/paypals-project-sub000/internal/service"
)

// Handler serves the REST endpoints.
type Handler struct {
	Auth          *service.AuthService
	Circles       *service.CircleService
	Transactions  *service.TransactionService
	PayNow        *service.PayNowService
	Invitations   *service.InvitationService
	Notifications *service.NotificationService

	Cookie config.CookieConfig
	// Location is used for dates in exported workbooks. Defaults to UTC.
	Location *time.Location
}

func (h *Handler) setSession(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.Cookie.Name, token, maxAge, "/", h.Cookie.Domain, h.Cookie.Secure, true)
}

func (h *Handler) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.Cookie.Name, "", -1, "/", h.Cookie.Domain, h.Cookie.Secure, true)
}

// Health reports liveness for load balancers.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
