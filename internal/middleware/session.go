package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/karysgoh/paypals-project-sub000/internal/auth"
)

// SessionAuth authenticates REST requests from the session cookie or an
// Authorization: Bearer header.
type SessionAuth struct {
	JWT         *auth.JWTManager
	Revocations auth.RevocationStore
	CookieName  string
}

// tokenFromRequest prefers the Authorization header over the cookie.
func (a *SessionAuth) tokenFromRequest(c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", auth.ErrInvalidToken
		}
		return parts[1], nil
	}
	if cookie, err := c.Cookie(a.CookieName); err == nil && cookie != "" {
		return cookie, nil
	}
	return "", auth.ErrMissingToken
}

// Require rejects requests without a valid, unrevoked session and adds the
// user to the request context.
func (a *SessionAuth) Require(c *gin.Context) {
	token, err := a.tokenFromRequest(c)
	if err != nil {
		abortJSON(c, http.StatusUnauthorized, "unauthenticated", err.Error())
		return
	}

	claims, err := a.JWT.Validate(token)
	if err != nil {
		abortJSON(c, http.StatusUnauthorized, "unauthenticated", auth.ErrInvalidToken.Error())
		return
	}

	if a.Revocations != nil {
		revoked, err := a.Revocations.IsRevoked(c.Request.Context(), claims.ID)
		if err != nil {
			slog.Error("Revocation lookup failed", "error", err)
			abortJSON(c, http.StatusInternalServerError, "internal", "session check failed")
			return
		}
		if revoked {
			abortJSON(c, http.StatusUnauthorized, "unauthenticated", auth.ErrTokenRevoked.Error())
			return
		}
	}

	c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
	c.Next()
}

func abortJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}
