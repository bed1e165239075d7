package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/karysgoh/paypals-project-sub000/internal/config"
	"github.com/karysgoh/paypals-project-sub000/internal/metrics"
	"github.com/karysgoh/paypals-project-sub000/internal/middleware"
)

// NewRouter wires Gin routes and middleware. rateLimiter and m may be nil.
func NewRouter(cfg *config.Config, h *Handler, session *middleware.SessionAuth, rateLimiter *middleware.RateLimiter, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Metrics(m))
	r.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	r.GET("/healthz", h.Health)
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	authLimit := rateLimiter.Handler()
	requireSession := session.Require

	api := r.Group("/api")
	{
		api.POST("/register", authLimit, h.Register)
		api.POST("/login", authLimit, h.Login)
		api.GET("/verify-email", h.VerifyEmail)

		api.POST("/logout", requireSession, h.Logout)
		api.GET("/me", requireSession, h.Me)
		api.POST("/resend-verification", requireSession, h.ResendVerification)

		users := api.Group("/users", requireSession)
		{
			users.PATCH("/me/payment-settings", h.UpdatePaymentSettings)
			users.GET("/search", h.SearchUsers)
		}

		circles := api.Group("/circles", requireSession)
		{
			circles.GET("/user", h.ListUserCircles)
			circles.POST("", h.CreateCircle)
			circles.GET("/:circleId", h.GetCircle)
			circles.PATCH("/:circleId", h.UpdateCircle)
			circles.DELETE("/:circleId", h.DeleteCircle)
			circles.GET("/:circleId/members", h.ListMembers)
			circles.DELETE("/:circleId/members/:userId", h.RemoveMember)
			circles.PATCH("/:circleId/members/:userId/role", h.ChangeMemberRole)
			circles.POST("/:circleId/leave", h.LeaveCircle)
			circles.GET("/:circleId/balances", h.CircleBalances)
			circles.GET("/:circleId/audit-logs", h.CircleAuditLog)
		}

		transactions := api.Group("/transactions", requireSession)
		{
			transactions.GET("/user", h.ListUserTransactions)
			transactions.GET("/export", h.ExportTransactions)
			transactions.GET("/circle/:circleId", h.ListCircleTransactions)
			transactions.POST("/:circleId", h.CreateTransaction)
			transactions.GET("/:transactionId", h.GetTransaction)
			transactions.PATCH("/:transactionId", h.UpdateTransaction)
			transactions.DELETE("/:transactionId", h.DeleteTransaction)
			transactions.PATCH("/:transactionId/members/:memberId/status", h.UpdatePaymentStatus)
		}

		api.GET("/dashboard/summary", requireSession, h.DashboardSummary)

		paynow := api.Group("/paynow", requireSession)
		{
			paynow.GET("/:transactionId/qr", h.PayNowQR)
			paynow.POST("/:transactionId/confirm", h.ConfirmPayNow)
		}

		// External participants authenticate with the access token in the path.
		external := api.Group("/external")
		{
			external.GET("/:token", h.ExternalShare)
			external.GET("/:token/qr", h.ExternalQR)
			external.POST("/:token/confirm", h.ConfirmExternal)
		}

		notifications := api.Group("/notifications", requireSession)
		{
			notifications.GET("", h.ListNotifications)
			notifications.GET("/unread-count", h.UnreadCount)
			notifications.PATCH("/read-all", h.MarkAllNotificationsRead)
			notifications.PATCH("/:id/read", h.MarkNotificationRead)
			notifications.DELETE("/:id", h.DeleteNotification)
		}

		invitations := api.Group("/invitations", requireSession)
		{
			invitations.GET("/pending", h.PendingInvitations)
			invitations.GET("/circle/:circleId", h.CircleInvitations)
			invitations.POST("/circle/:circleId", h.Invite)
			invitations.POST("/:id/accept", h.AcceptInvitation)
			invitations.POST("/:id/reject", h.RejectInvitation)
			invitations.DELETE("/:id", h.CancelInvitation)
		}
	}

	// The SPA is served only as static files; everything it needs goes through /api.
	attachUIRoutes(r, cfg.Server.StaticPath)

	return r
}

func attachUIRoutes(r *gin.Engine, distDir string) {
	indexPath := filepath.Join(distDir, "index.html")

	r.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if isAPIPath(path) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "route not found"})
			return
		}

		if filePath, ok := safeJoin(distDir, path); ok {
			if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
				c.File(filePath)
				return
			}
		}

		if _, err := os.Stat(indexPath); err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(indexPath)
	})
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/") ||
		path == "/healthz" ||
		path == "/metrics"
}

func safeJoin(baseDir, requestPath string) (string, bool) {
	trimmed := strings.TrimPrefix(requestPath, "/")
	cleaned := filepath.Clean(trimmed)
	if cleaned == "." {
		return filepath.Join(baseDir, cleaned), true
	}
	if strings.HasPrefix(cleaned, "..") {
		return "", false
	}
	return filepath.Join(baseDir, cleaned), true
}
