package rbac

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminUser int64 = 1

func newTestRouter(t *testing.T) (http.Handler, *memoryRepo) {
	t.Helper()
	repo, engine := researcherFixture(t)
	rbacModule := repo.addModule(ModuleName)
	repo.grant(adminRole, rbacModule.ID, Grants{CanRead: true, CanWrite: true, CanDelete: true})
	repo.addUser(adminUser, adminRole, true)

	h := NewHandler(slog.New(slog.DiscardHandler), NewService(repo, nil), engine, NewGuard(engine))
	r := chi.NewRouter()
	r.Route("/rbac", h.MountRoutes)
	return r, repo
}

func do(t *testing.T, h http.Handler, method, target, body string, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if userID != 0 {
		req = withUser(req, userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerMyPermissions(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/rbac/me/permissions", "", bob)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		UserID      int64                      `json:"user_id"`
		Permissions map[string]map[string]bool `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, bob, body.UserID)
	assert.Equal(t, map[string]map[string]bool{
		"resin-spinning": {"CanRead": true, "CanWrite": false, "CanDelete": false, "CanImport": false, "CanExport": false},
	}, body.Permissions)

	rec = do(t, router, http.MethodGet, "/rbac/me/permissions/resin-spinning", "", bob)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"CanRead":true`)

	rec = do(t, router, http.MethodGet, "/rbac/me/permissions", "", 0)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerAdminRoutesRequireRBACModule(t *testing.T) {
	router, _ := newTestRouter(t)

	assert.Equal(t, http.StatusUnauthorized, do(t, router, http.MethodGet, "/rbac/modules", "", 0).Code)
	assert.Equal(t, http.StatusForbidden, do(t, router, http.MethodGet, "/rbac/modules", "", bob).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/rbac/modules", "", adminUser).Code)
}

func TestHandlerCreateModuleAndGrant(t *testing.T) {
	router, repo := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/rbac/modules", `{"name":"fiber-testing","route":"/fiber-testing"}`, adminUser)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var mod Module
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mod))

	rec = do(t, router, http.MethodPost, "/rbac/modules", `{"name":"fiber-testing"}`, adminUser)
	assert.Equal(t, http.StatusConflict, rec.Code)

	grant := `{"role_id":10,"module_id":` + jsonInt(mod.ID) + `,"CanRead":true,"CanExport":true}`
	rec = do(t, router, http.MethodPost, "/rbac/permissions", grant, adminUser)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/rbac/permissions", grant, adminUser)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodGet, "/rbac/permissions?role_id=10", "", adminUser)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)

	rec = do(t, router, http.MethodGet, "/rbac/me/permissions/fiber-testing", "", bob)
	assert.Contains(t, rec.Body.String(), `"CanExport":true`)
	assert.Len(t, repo.entries, 3)
}

func TestHandlerBadInput(t *testing.T) {
	router, _ := newTestRouter(t)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/rbac/modules", `{"name":`, adminUser).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/rbac/modules", `{"name":"x","bogus":1}`, adminUser).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/rbac/permissions", "", adminUser).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodDelete, "/rbac/permissions/abc", "", adminUser).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodDelete, "/rbac/permissions/9999", "", adminUser).Code)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
