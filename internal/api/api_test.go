package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/karysgoh/paypals-project-sub000/internal/auth"
	"github.com/karysgoh/paypals-project-sub000/internal/config"
	"github.com/karysgoh/paypals-project-sub000/internal/export"
	"github.com/karysgoh/paypals-project-sub000/internal/mail"
	"github.com/karysgoh/paypals-project-sub000/internal/metrics"
	"github.com/karysgoh/paypals-project-sub000/internal/middleware"
	"github.com/karysgoh/paypals-project-sub000/internal/models"
	"github.com/karysgoh/paypals-project-sub000/internal/service"
	"github.com/karysgoh/paypals-project-sub000/internal/storage/sqlite"
)

const cookieName = "paypals_session"

type testServer struct {
	router *gin.Engine
	store  *sqlite.SQLiteStore
	mail   *mail.Recorder
	static string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := sqlite.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>paypals</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(static, "app.js"), []byte("console.log('paypals')"), 0o644))

	cfg := &config.Config{
		Server:    config.ServerConfig{StaticPath: static},
		Cookie:    config.CookieConfig{Name: cookieName},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}},
		Telemetry: config.TelemetryConfig{ServiceName: "paypals-test"},
	}

	recorder := &mail.Recorder{}
	m := metrics.New()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	revocations := auth.NewMemoryRevocationStore()
	links := service.Links{PublicURL: "https://paypals.test"}
	notifier := service.NewNotifier(store, recorder, m)
	transactions := service.NewTransactionService(store, notifier, links)

	h := &Handler{
		Auth: service.NewAuthService(store, auth.NewPasswordAuthenticator(store), jwtManager, revocations, notifier,
			service.AuthServiceConfig{Links: links}, nil),
		Circles:       service.NewCircleService(store),
		Transactions:  transactions,
		PayNow:        service.NewPayNowService(store, transactions),
		Invitations:   service.NewInvitationService(store, notifier, links),
		Notifications: service.NewNotificationService(store),
		Cookie:        cfg.Cookie,
	}
	session := &middleware.SessionAuth{JWT: jwtManager, Revocations: revocations, CookieName: cookieName}

	return &testServer{
		router: NewRouter(cfg, h, session, nil, m),
		store:  store,
		mail:   recorder,
		static: static,
	}
}

// do sends a JSON request with an optional bearer token.
func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) register(t *testing.T, username string) (string, *models.User) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/register", "", service.RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct horse",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res service.AuthResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res.Token, res.User
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/register", "", service.RegisterInput{
		Username: "alice", Email: "alice@example.com", Password: "correct horse",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	cookie := sessionCookie(w)
	require.NotNil(t, cookie)
	require.True(t, cookie.HttpOnly)
	require.NotEmpty(t, cookie.Value)

	w = s.do(t, http.MethodPost, "/api/register", "", service.RegisterInput{
		Username: "alice", Email: "other@example.com", Password: "correct horse",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), `"error":"already_exists"`)

	w = s.do(t, http.MethodPost, "/api/login", "", gin.H{"identifier": "alice", "password": "wrong password"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), `"error":"unauthenticated"`)

	w = s.do(t, http.MethodPost, "/api/login", "", gin.H{"email": "alice@example.com"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/login", "", gin.H{"email": "alice@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusOK, w.Code)
	cookie = sessionCookie(w)
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	s.router.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	require.Contains(t, me.Body.String(), `"username":"alice"`)
	require.NotContains(t, me.Body.String(), "password")

	req = httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.AddCookie(cookie)
	out := httptest.NewRecorder()
	s.router.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)
	cleared := sessionCookie(out)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookie)
	again := httptest.NewRecorder()
	s.router.ServeHTTP(again, req)
	require.Equal(t, http.StatusUnauthorized, again.Code)
}

func TestVerifyEmailEndpoint(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register(t, "alice")

	sent := s.mail.Sent()
	require.Len(t, sent, 1)
	start := strings.Index(sent[0].Body, "token=")
	require.GreaterOrEqual(t, start, 0)
	verifyToken := strings.Fields(sent[0].Body[start+len("token="):])[0]

	w := s.do(t, http.MethodGet, "/api/verify-email", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/verify-email?token="+verifyToken, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"email_verified":true`)

	w = s.do(t, http.MethodPost, "/api/resend-verification", token, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "failed_precondition")
}

func TestSessionRequired(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/me", "/api/circles/user", "/api/transactions/user", "/api/notifications", "/api/dashboard/summary"} {
		w := s.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	// External share links never need a session.
	w := s.do(t, http.MethodGet, "/api/external/unknown-token", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCircleTransactionFlow(t *testing.T) {
	s := newTestServer(t)
	aliceToken, alice := s.register(t, "alice")
	bobToken, bob := s.register(t, "bob")

	w := s.do(t, http.MethodPost, "/api/circles", aliceToken, service.CircleInput{Name: "Flat 4B", Type: models.CircleTypeRoommates})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	circle := decode[struct {
		Circle models.Circle `json:"circle"`
	}](t, w).Circle
	require.NotEmpty(t, circle.ID)

	w = s.do(t, http.MethodGet, "/api/circles/"+circle.ID, bobToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/invitations/circle/"+circle.ID, aliceToken, service.InviteInput{UserID: bob.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	inv := decode[struct {
		Invitation models.Invitation `json:"invitation"`
	}](t, w).Invitation

	w = s.do(t, http.MethodGet, "/api/invitations/pending", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), inv.ID)

	w = s.do(t, http.MethodPost, "/api/invitations/"+inv.ID+"/accept", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/circles/"+circle.ID+"/members", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	members := decode[struct {
		Members []models.CircleMember `json:"members"`
	}](t, w).Members
	require.Len(t, members, 2)

	w = s.do(t, http.MethodPost, "/api/transactions/"+circle.ID, aliceToken, gin.H{
		"name":         "Groceries",
		"category":     models.CategoryFood,
		"total_amount": "30.00",
		"split_type":   service.SplitEqual,
		"participants": []gin.H{{"user_id": bob.ID}, {"email": "carol@example.com", "name": "Carol"}, {"user_id": alice.ID}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	txn := decode[struct {
		Transaction models.Transaction `json:"transaction"`
	}](t, w).Transaction
	require.Len(t, txn.Members, 3)

	bobShare, ok := txn.MemberFor(bob.ID)
	require.True(t, ok)
	require.True(t, bobShare.AmountOwed.Equal(decimal.RequireFromString("10")), bobShare.AmountOwed.String())

	w = s.do(t, http.MethodGet, "/api/transactions/user?status=pending", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Groceries")

	w = s.do(t, http.MethodGet, "/api/transactions/user?status=bogus", bobToken, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, "/api/transactions/"+txn.ID, bobToken, gin.H{"name": "Mine now"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, "/api/transactions/"+txn.ID+"/members/"+bobShare.ID+"/status", bobToken,
		gin.H{"status": models.PaymentPaid})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/notifications/unread-count", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	// member_joined for bob plus payment_received.
	require.Contains(t, w.Body.String(), `"count":2`)

	w = s.do(t, http.MethodGet, "/api/circles/"+circle.ID+"/balances", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "carol@example.com")

	w = s.do(t, http.MethodGet, "/api/dashboard/summary", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Groceries")

	w = s.do(t, http.MethodGet, "/api/transactions/export", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "paypals_transactions_")
	require.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	w = s.do(t, http.MethodGet, "/api/paynow/"+txn.ID+"/qr", bobToken, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodDelete, "/api/transactions/"+txn.ID, aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/api/transactions/"+txn.ID, aliceToken, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)
	token, alice := s.register(t, "alice")

	w := s.do(t, http.MethodPost, "/api/circles", token, service.CircleInput{Name: "Trip"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	circle := decode[struct {
		Circle models.Circle `json:"circle"`
	}](t, w).Circle

	tests := []struct {
		name    string
		path    string
		token   string
		body    any
		message string
	}{
		{
			name:    "register with invalid email",
			path:    "/api/register",
			body:    gin.H{"username": "bob", "email": "bob-at-example", "password": "correct horse"},
			message: "email must be a valid email address",
		},
		{
			name:    "register with password beyond 72 characters",
			path:    "/api/register",
			body:    gin.H{"username": "bob", "email": "bob@example.com", "password": strings.Repeat("p", 73)},
			message: "password must be at most 72 characters",
		},
		{
			name:    "register without username",
			path:    "/api/register",
			body:    gin.H{"email": "bob@example.com", "password": "correct horse"},
			message: "username is required",
		},
		{
			name:  "transaction with unknown split type",
			path:  "/api/transactions/" + circle.ID,
			token: token,
			body: gin.H{
				"name": "Dinner", "total_amount": "10", "split_type": "weighted",
				"participants": []gin.H{{"user_id": alice.ID}},
			},
			message: "split_type must be one of: equal, custom",
		},
		{
			name:  "transaction with invalid participant email",
			path:  "/api/transactions/" + circle.ID,
			token: token,
			body: gin.H{
				"name": "Dinner", "total_amount": "10",
				"participants": []gin.H{{"user_id": alice.ID}, {"email": "carol"}},
			},
			message: "email must be a valid email address",
		},
		{
			name:    "invitation with invalid email",
			path:    "/api/invitations/circle/" + circle.ID,
			token:   token,
			body:    gin.H{"email": "not an email"},
			message: "email must be a valid email address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, tt.token, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			body := decode[map[string]string](t, w)
			require.Equal(t, "invalid_argument", body["error"])
			require.Equal(t, tt.message, body["message"])
		})
	}
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid argument", connect.NewError(connect.CodeInvalidArgument, errors.New("bad amount")), http.StatusBadRequest, "invalid_argument"},
		{"unauthenticated", connect.NewError(connect.CodeUnauthenticated, errors.New("login")), http.StatusUnauthorized, "unauthenticated"},
		{"permission denied", connect.NewError(connect.CodePermissionDenied, errors.New("admins only")), http.StatusForbidden, "permission_denied"},
		{"not found", connect.NewError(connect.CodeNotFound, errors.New("circle not found")), http.StatusNotFound, "not_found"},
		{"already exists", connect.NewError(connect.CodeAlreadyExists, errors.New("dup")), http.StatusConflict, "already_exists"},
		{"failed precondition", connect.NewError(connect.CodeFailedPrecondition, errors.New("last admin")), http.StatusConflict, "failed_precondition"},
		{"internal", connect.NewError(connect.CodeInternal, errors.New("disk on fire")), http.StatusInternalServerError, "internal"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/api/anything", nil)

			respondError(c, tt.err)

			require.Equal(t, tt.wantStatus, w.Code)
			body := decode[map[string]string](t, w)
			require.Equal(t, tt.wantCode, body["error"])
			if tt.wantStatus == http.StatusInternalServerError {
				require.Equal(t, "internal error", body["message"])
			}
		})
	}
}

func TestUIRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/circles/abc", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "<html>paypals</html>")

	w = s.do(t, http.MethodGet, "/app.js", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "console.log")

	w = s.do(t, http.MethodGet, "/api/does-not-exist", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "not_found")

	w = s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "paypals_http_requests_total")
}

func TestSafeJoin(t *testing.T) {
	_, ok := safeJoin("/srv/dist", "/../etc/passwd")
	require.False(t, ok)

	p, ok := safeJoin("/srv/dist", "/assets/app.js")
	require.True(t, ok)
	require.Equal(t, filepath.Join("/srv/dist", "assets", "app.js"), p)
}
