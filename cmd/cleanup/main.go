// Command cleanup expires overdue circle invitations and deletes expired
// ones older than daysOld days.
//
//	cleanup [daysOld]
//
// It works on the local database, or calls a running server when
// PAYPALS_OPS_URL is set (authenticating with PAYPALS_OPS_TOKEN).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/karysgoh/paypals-project-sub000/internal/config"
	"github.com/karysgoh/paypals-project-sub000/internal/opsrpc"
	"github.com/karysgoh/paypals-project-sub000/internal/service"
	"github.com/karysgoh/paypals-project-sub000/internal/storage/sqlite"
	"github.com/karysgoh/paypals-project-sub000/pkg/logging"
)

var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: cleanup [daysOld]\n\n")
	fmt.Fprintf(w, "  daysOld  delete expired invitations older than this many days (default %d)\n", service.DefaultCleanupDays)
}

// parseDaysOld reads the optional daysOld argument.
func parseDaysOld(args []string) (int, error) {
	switch len(args) {
	case 0:
		return service.DefaultCleanupDays, nil
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: daysOld must be a non-negative integer, got %q", errUsage, args[0])
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: too many arguments", errUsage)
	}
}

func main() {
	daysOld, err := parseDaysOld(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage(os.Stderr)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, daysOld)
	if err != nil {
		slog.Error("Cleanup failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Expired %d invitations, deleted %d invitations expired more than %d days ago\n",
		result.Expired, result.Deleted, daysOld)
}

func run(ctx context.Context, daysOld int) (service.CleanupResult, error) {
	cfg, err := config.Load(os.Getenv("PAYPALS_CONFIG"))
	if err != nil {
		return service.CleanupResult{}, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Configure(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if cfg.Ops.URL != "" {
		slog.Info("Running cleanup on server", "url", cfg.Ops.URL, "days_old", daysOld)
		return opsrpc.NewClient(nil, cfg.Ops.URL, cfg.Ops.Token).CleanupInvitations(ctx, daysOld)
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return service.CleanupResult{}, fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	slog.Info("Running cleanup on local database", "database", cfg.Database.Path, "days_old", daysOld)
	return service.NewCleanupService(store, nil).Run(ctx, daysOld)
}
