package opsrpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/karysgoh/paypals-project-sub000/internal/middleware"
	"github.com/karysgoh/paypals-project-sub000/internal/service"
)

type fakeCleaner struct {
	calls   []int
	result  service.CleanupResult
	failErr error
}

func (f *fakeCleaner) Run(_ context.Context, daysOld int) (service.CleanupResult, error) {
	f.calls = append(f.calls, daysOld)
	if f.failErr != nil {
		return service.CleanupResult{}, f.failErr
	}
	return f.result, nil
}

func newTestServer(t *testing.T, cleaner Cleaner, token string) *httptest.Server {
	t.Helper()
	path, handler := NewMaintenanceServiceHandler(NewMaintenanceServer(cleaner),
		connect.WithInterceptors(middleware.LoggingInterceptor(), middleware.RequireOpsToken(token)))
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCleanupInvitations(t *testing.T) {
	cleaner := &fakeCleaner{result: service.CleanupResult{Expired: 3, Deleted: 2}}
	srv := newTestServer(t, cleaner, "secret")

	client := NewClient(srv.Client(), srv.URL, "secret")
	result, err := client.CleanupInvitations(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, service.CleanupResult{Expired: 3, Deleted: 2}, result)
	require.Equal(t, []int{7}, cleaner.calls)

	status, err := client.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", status)
}

func TestCleanupInvitationsAuth(t *testing.T) {
	cleaner := &fakeCleaner{}

	srv := newTestServer(t, cleaner, "secret")
	_, err := NewClient(srv.Client(), srv.URL, "wrong").CleanupInvitations(context.Background(), 30)
	require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	disabled := newTestServer(t, cleaner, "")
	_, err = NewClient(disabled.Client(), disabled.URL, "anything").CleanupInvitations(context.Background(), 30)
	require.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	require.Empty(t, cleaner.calls)
}

func TestCleanupInvitationsErrors(t *testing.T) {
	cleaner := &fakeCleaner{failErr: connect.NewError(connect.CodeInternal, errors.New("database is locked"))}
	srv := newTestServer(t, cleaner, "secret")

	_, err := NewClient(srv.Client(), srv.URL, "secret").CleanupInvitations(context.Background(), 30)
	require.Equal(t, connect.CodeInternal, connect.CodeOf(err))
}

func TestCleanupInvitationsRequestValidation(t *testing.T) {
	cleaner := &fakeCleaner{}
	server := NewMaintenanceServer(cleaner)

	tests := []struct {
		name     string
		fields   map[string]any
		wantDays int
		wantCode connect.Code
	}{
		{"default", map[string]any{}, service.DefaultCleanupDays, 0},
		{"explicit zero", map[string]any{"days_old": 0}, 0, 0},
		{"fraction", map[string]any{"days_old": 1.5}, 0, connect.CodeInvalidArgument},
		{"negative", map[string]any{"days_old": -1}, 0, connect.CodeInvalidArgument},
		{"string", map[string]any{"days_old": "30"}, 0, connect.CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleaner.calls = nil
			msg, err := structpb.NewStruct(tt.fields)
			require.NoError(t, err)

			_, err = server.CleanupInvitations(context.Background(), connect.NewRequest(msg))
			if tt.wantCode != 0 {
				require.Equal(t, tt.wantCode, connect.CodeOf(err))
				require.Empty(t, cleaner.calls)
				return
			}
			require.NoError(t, err)
			require.Equal(t, []int{tt.wantDays}, cleaner.calls)
		})
	}
}
