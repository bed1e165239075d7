package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/karysgoh/paypals-project-sub000/internal/api"
	"github.com/karysgoh/paypals-project-sub000/internal/auth"
	"github.com/karysgoh/paypals-project-sub000/internal/config"
	"github.com/karysgoh/paypals-project-sub000/internal/mail"
	"github.com/karysgoh/paypals-project-sub000/internal/metrics"
	"github.com/karysgoh/paypals-project-sub000/internal/middleware"
	"github.com/karysgoh/paypals-project-sub000/internal/opsrpc"
	"github.com/karysgoh/paypals-project-sub000/internal/server"
	"github.com/karysgoh/paypals-project-sub000/internal/service"
	"github.com/karysgoh/paypals-project-sub000/internal/storage/sqlite"
	"github.com/karysgoh/paypals-project-sub000/internal/telemetry"
	"github.com/karysgoh/paypals-project-sub000/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("PAYPALS_CONFIG"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logging.Configure(cfg.Log.Level, cfg.Log.Format)
	slog.Info("Configuration loaded", "env", cfg.Env, "port", cfg.Server.Port)

	tp, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.Database.Path)

	revocations, closeRevocations, err := newRevocationStore(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeRevocations()

	mailer, err := mail.New(cfg.SMTP)
	if err != nil {
		return fmt.Errorf("failed to configure mail: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Server.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone: %w", err)
	}

	m := metrics.New()
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TTL)
	links := service.Links{PublicURL: cfg.Server.PublicURL}
	notifier := service.NewNotifier(store, mailer, m)
	transactions := service.NewTransactionService(store, notifier, links)
	cleanup := service.NewCleanupService(store, m)

	handler := &api.Handler{
		Auth: service.NewAuthService(store, auth.NewPasswordAuthenticator(store), jwtManager, revocations, notifier,
			service.AuthServiceConfig{Links: links, VerifyTTL: cfg.JWT.VerifyTTL}, slog.Default()),
		Circles:       service.NewCircleService(store),
		Transactions:  transactions,
		PayNow:        service.NewPayNowService(store, transactions),
		Invitations:   service.NewInvitationService(store, notifier, links),
		Notifications: service.NewNotificationService(store),
		Cookie:        cfg.Cookie,
		Location:      loc,
	}
	session := &middleware.SessionAuth{JWT: jwtManager, Revocations: revocations, CookieName: cfg.Cookie.Name}
	router := api.NewRouter(cfg, handler, session, middleware.NewRateLimiter(cfg.RateLimit.AuthRPM), m)

	srv, err := server.NewHTTPServer(router, cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}
	srv.ShutdownTimeout = cfg.Server.ShutdownTimeout
	opsPath, opsHandler := opsrpc.NewMaintenanceServiceHandler(opsrpc.NewMaintenanceServer(cleanup),
		connect.WithInterceptors(middleware.LoggingInterceptor(), middleware.RequireOpsToken(cfg.Ops.Token)))
	srv.Mount(opsPath, opsHandler)
	if cfg.Ops.Token == "" {
		slog.Warn("Ops RPC disabled: no ops token configured")
	}

	if cfg.Cleanup.Schedule != "" {
		scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
		_, err := scheduler.AddFunc(cfg.Cleanup.Schedule, func() {
			if _, err := cleanup.Run(ctx, cfg.Cleanup.DaysOld); err != nil {
				slog.Error("Scheduled invitation cleanup failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cleanup schedule %q: %w", cfg.Cleanup.Schedule, err)
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
		slog.Info("Invitation cleanup scheduled", "schedule", cfg.Cleanup.Schedule, "days_old", cfg.Cleanup.DaysOld)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	slog.Info("PayPals server starting", "address", addr, "url", fmt.Sprintf("http://localhost%s", addr))
	return srv.Run(ctx, addr)
}

// newRevocationStore uses Redis when an address is configured so logouts
// survive restarts and are shared between instances.
func newRevocationStore(ctx context.Context, cfg config.RedisConfig) (auth.RevocationStore, func(), error) {
	if cfg.Addr == "" {
		slog.Info("Using in-memory session revocation")
		return auth.NewMemoryRevocationStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	slog.Info("Using Redis session revocation", "addr", cfg.Addr)
	return auth.NewRedisRevocationStore(client), func() { client.Close() }, nil
}
