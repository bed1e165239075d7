// Package server runs the HTTP listener with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 10 * time.Second

// HTTPServer serves the REST router and, when configured, the Connect ops
// handlers on one port. h2c lets Connect clients speak HTTP/2 without TLS.
type HTTPServer struct {
	Engine *gin.Engine

	// RPCPrefix and RPC route Connect procedures away from gin.
	RPCPrefix string
	RPC       http.Handler

	ShutdownTimeout time.Duration
}

// NewHTTPServer creates a server around router. Forwarding headers are
// only honoured from trustedProxies; with none, ClientIP is the peer address.
func NewHTTPServer(router *gin.Engine, trustedProxies []string) (*HTTPServer, error) {
	router.HandleMethodNotAllowed = true
	router.ForwardedByClientIP = len(trustedProxies) > 0
	if len(trustedProxies) == 0 {
		trustedProxies = nil
	}
	if err := router.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	return &HTTPServer{Engine: router, ShutdownTimeout: defaultShutdownTimeout}, nil
}

// Mount sends every request under prefix to h instead of the gin router.
func (s *HTTPServer) Mount(prefix string, h http.Handler) {
	s.RPCPrefix = prefix
	s.RPC = h
}

// Handler returns the combined handler wrapped for h2c.
func (s *HTTPServer) Handler() http.Handler {
	var h http.Handler = s.Engine
	if s.RPC != nil && s.RPCPrefix != "" {
		engine, rpc, prefix := s.Engine, s.RPC, s.RPCPrefix
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, prefix) {
				rpc.ServeHTTP(w, r)
				return
			}
			engine.ServeHTTP(w, r)
		})
	}
	return h2c.NewHandler(h, &http2.Server{})
}

// Run starts the HTTP server on the provided addr and shuts it down when ctx is done.
func (s *HTTPServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP server starting", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		timeout := s.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		slog.Info("HTTP server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
