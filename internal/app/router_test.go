package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/uhmwpe-lab/labdata/internal/auth"
	"github.com/uhmwpe-lab/labdata/internal/observability"
	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
	"github.com/uhmwpe-lab/labdata/internal/rbac"
	"github.com/uhmwpe-lab/labdata/internal/resinspinning"
	"github.com/uhmwpe-lab/labdata/internal/shared"
	"github.com/uhmwpe-lab/labdata/jobs"
)

// authRepo knows a single active account, bob/researcher123.
type authRepo struct {
	hash []byte
}

func newAuthRepo(t *testing.T) *authRepo {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("researcher123"), bcrypt.MinCost)
	require.NoError(t, err)
	return &authRepo{hash: hash}
}

func (a *authRepo) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	if username != "bob" {
		return nil, auth.ErrNotFound
	}
	return &auth.User{ID: 100, Username: "bob", PasswordHash: string(a.hash), RoleID: 2, IsActive: true}, nil
}

func (a *authRepo) FindSummary(_ context.Context, id int64) (*auth.UserSummary, error) {
	if id != 100 {
		return nil, auth.ErrNotFound
	}
	return &auth.UserSummary{ID: 100, Username: "bob", RoleID: 2, IsActive: true}, nil
}

func (a *authRepo) CreateSession(context.Context, string, int64, time.Time, string, string) error {
	return nil
}

func (a *authRepo) DeleteSession(context.Context, string) error { return nil }

func (a *authRepo) PurgeExpiredSessions(context.Context, time.Time) (int64, error) { return 0, nil }

type denyAll struct{}

func (denyAll) CheckPermission(context.Context, int64, string, rbac.Action) bool { return false }

type testServer struct {
	handler http.Handler
	metrics *observability.Metrics
	cookies []*http.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.DiscardHandler)
	sessions := shared.NewSessionManager(client, "labdata_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	metrics := observability.NewMetrics()
	guard := rbac.NewGuard(denyAll{})

	router := NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "production", RateLimit: 1000, AppRequestTimeout: 5 * time.Second},
		SessionManager: sessions,
		CSRFManager:    csrf,
		AuthHandler:    auth.NewHandler(logger, auth.NewService(newAuthRepo(t), sessions, nil, logger), csrf, 0),
		ResinHandler:   resinspinning.NewHandler(logger, nil, guard, 0),
		JobHandler:     jobs.NewHandler(nil, guard, logger),
		Metrics:        metrics,
	})
	return &testServer{handler: router, metrics: metrics}
}

func (s *testServer) do(method, target string, header map[string]string) *httptest.ResponseRecorder {
	return s.send(method, target, "", header)
}

func (s *testServer) send(method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Forwarded-Proto", "https")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	for _, c := range s.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			s.cookies = nil
			continue
		}
		s.cookies = []*http.Cookie{c}
	}
	return rec
}

func TestRouterHealthAndNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = srv.do(http.MethodGet, "/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "json")
}

func problemType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Type
}

func (s *testServer) csrfToken(t *testing.T) string {
	t.Helper()
	rec := s.do(http.MethodGet, "/auth/csrf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, s.cookies, 1, "the token is kept in a persisted session")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["csrf_token"])
	return body["csrf_token"]
}

func TestRouterAnonymousUnsafeRequestsAreUnauthenticated(t *testing.T) {
	srv := newTestServer(t)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := srv.do(method, "/resin-spinning/1", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, method)
		assert.Equal(t, httpx.TypeUnauthenticated, problemType(t, rec), method)
	}
	rec := srv.send(http.MethodPost, "/resin-spinning", `{"batch_number":"B-1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httpx.TypeUnauthenticated, problemType(t, rec))

	srv.csrfToken(t)
	rec = srv.do(http.MethodPut, "/resin-spinning/1", map[string]string{shared.CSRFHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a session without a user is still anonymous")
}

func TestRouterLogoutIsIdempotent(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 2; i++ {
		rec := srv.do(http.MethodPost, "/auth/logout", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRouterCSRFOnLoginAndAuthenticatedRequests(t *testing.T) {
	srv := newTestServer(t)
	credentials := `{"username":"bob","password":"researcher123"}`

	rec := srv.send(http.MethodPost, "/auth/login", credentials, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "CSRF", problemType(t, rec))

	token := srv.csrfToken(t)
	rec = srv.send(http.MethodPost, "/auth/login", credentials, map[string]string{shared.CSRFHeader: "wrong"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.send(http.MethodPost, "/auth/login", credentials, map[string]string{shared.CSRFHeader: token})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "CSRF", problemType(t, rec))

	rec = srv.do(http.MethodDelete, "/resin-spinning/1", map[string]string{shared.CSRFHeader: token})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, httpx.TypeForbidden, problemType(t, rec))

	rec = srv.do(http.MethodPost, "/auth/logout", map[string]string{shared.CSRFHeader: token})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterGuardsAndCountsDenials(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/jobs/health", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.send(http.MethodPost, "/auth/login", `{"username":"bob","password":"nope"}`, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `labdata_access_denied_total{route="/jobs/health",signal="UNAUTHENTICATED"} 1`)
	assert.NotContains(t, rec.Body.String(), `labdata_access_denied_total{route="/auth/login"`)
}
