// Package opsrpc exposes maintenance operations as Connect procedures built
// on protobuf well-known types, so no generated code is needed.
package opsrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/karysgoh/paypals-project-sub000/internal/service"
)

// MaintenanceServiceName is the fully-qualified name of the maintenance service.
const MaintenanceServiceName = "paypals.ops.v1.MaintenanceService"

const (
	// ServicePath is the URL prefix every maintenance procedure is served under.
	ServicePath = "/" + MaintenanceServiceName + "/"

	CleanupInvitationsProcedure = ServicePath + "CleanupInvitations"
	HealthProcedure             = ServicePath + "Health"
)

// Cleaner is the part of CleanupService the RPC needs.
type Cleaner interface {
	Run(ctx context.Context, daysOld int) (service.CleanupResult, error)
}

// MaintenanceServer implements the maintenance procedures.
type MaintenanceServer struct {
	cleaner Cleaner
	started time.Time
}

// NewMaintenanceServer creates a new MaintenanceServer.
func NewMaintenanceServer(cleaner Cleaner) *MaintenanceServer {
	return &MaintenanceServer{cleaner: cleaner, started: time.Now()}
}

// CleanupInvitations runs one invitation cleanup. The request carries an
// optional days_old number; it defaults to service.DefaultCleanupDays.
func (s *MaintenanceServer) CleanupInvitations(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	daysOld := service.DefaultCleanupDays
	if v, ok := req.Msg.GetFields()["days_old"]; ok {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("days_old must be a number"))
		}
		if n.NumberValue != math.Trunc(n.NumberValue) || n.NumberValue < 0 || n.NumberValue > math.MaxInt32 {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("days_old must be a non-negative integer, got %v", n.NumberValue))
		}
		daysOld = int(n.NumberValue)
	}
	slog.Info("CleanupInvitations request", "days_old", daysOld)

	result, err := s.cleaner.Run(ctx, daysOld)
	if err != nil {
		return nil, err
	}

	resp, err := structpb.NewStruct(map[string]any{
		"days_old": daysOld,
		"expired":  result.Expired,
		"deleted":  result.Deleted,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to encode result: %w", err))
	}
	return connect.NewResponse(resp), nil
}

// Health reports that the server is up.
func (s *MaintenanceServer) Health(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	resp, err := structpb.NewStruct(map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to encode health: %w", err))
	}
	return connect.NewResponse(resp), nil
}

// NewMaintenanceServiceHandler builds an HTTP handler for every maintenance
// procedure. It returns the path to mount the handler on.
func NewMaintenanceServiceHandler(svc *MaintenanceServer, opts ...connect.HandlerOption) (string, http.Handler) {
	cleanup := connect.NewUnaryHandler(CleanupInvitationsProcedure, svc.CleanupInvitations, opts...)
	health := connect.NewUnaryHandler(HealthProcedure, svc.Health, opts...)

	return ServicePath, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case CleanupInvitationsProcedure:
			cleanup.ServeHTTP(w, r)
		case HealthProcedure:
			health.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
