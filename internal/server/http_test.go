package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/karysgoh/paypals-project-sub000/internal/middleware"
)

func TestHandlerRoutesRPCPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "gin") })

	s, err := NewHTTPServer(r, nil)
	require.NoError(t, err)
	s.Mount("/paypals.ops.v1.MaintenanceService/", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("rpc"))
	}))
	h := s.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, "gin", w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/paypals.ops.v1.MaintenanceService/Health", nil))
	require.Equal(t, "rpc", w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s, err := NewHTTPServer(gin.New(), nil)
	require.NoError(t, err)
	s.ShutdownTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClientIPIgnoresUntrustedForwarding(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		trustedProxies []string
		remoteAddr     string
		wantSecond     int
	}{
		{"no trusted proxies", nil, "203.0.113.7:4000", http.StatusTooManyRequests},
		{"peer is not a trusted proxy", []string{"10.0.0.0/8"}, "203.0.113.7:4000", http.StatusTooManyRequests},
		{"peer is a trusted proxy", []string{"10.0.0.0/8"}, "10.1.2.3:4000", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/api/login", middleware.NewRateLimiter(1).Handler(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
			s, err := NewHTTPServer(r, tt.trustedProxies)
			require.NoError(t, err)
			h := s.Handler()

			codes := make([]int, 0, 2)
			for _, forwarded := range []string{"198.51.100.1", "198.51.100.2"} {
				req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
				req.RemoteAddr = tt.remoteAddr
				req.Header.Set("X-Forwarded-For", forwarded)
				w := httptest.NewRecorder()
				h.ServeHTTP(w, req)
				codes = append(codes, w.Code)
			}
			require.Equal(t, []int{http.StatusNoContent, tt.wantSecond}, codes)
		})
	}
}

func TestInvalidTrustedProxy(t *testing.T) {
	_, err := NewHTTPServer(gin.New(), []string{"not-a-network"})
	require.Error(t, err)
}
