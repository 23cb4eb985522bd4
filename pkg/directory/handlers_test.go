package directory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/rbac"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func newTestRouter(f *fixture, identity *auth.Identity, loginLimiter func(http.Handler) http.Handler) http.Handler {
	router := mux.NewRouter()
	h := NewHandlers(f.service, rbac.NewGuard(nil))
	h.RegisterPublicRoutes(router, loginLimiter)
	h.RegisterRoutes(router)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity != nil {
			r = r.WithContext(auth.WithIdentity(r.Context(), identity))
		}
		router.ServeHTTP(w, r)
	})
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func TestHandlers_RegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f, nil, nil)

	w, env := do(t, h, http.MethodPost, "/auth/register", RegisterRequest{
		OrganizationName:  "Globex",
		OrganizationEmail: "ops@globex.test",
		FirstName:         "Hank",
		LastName:          "Scorpio",
		Email:             "hank@globex.test",
		Password:          "volcano-lair",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var session Session
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "Globex", session.Organization.Name)

	w, env = do(t, h, http.MethodPost, "/auth/login", LoginRequest{Email: "hank@globex.test", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid email or password", env.Error)

	w, _ = do(t, h, http.MethodPost, "/auth/login", LoginRequest{Email: "hank@globex.test", Password: "volcano-lair"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, h, http.MethodPost, "/auth/login", map[string]string{"username": "hank"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown fields are rejected")
}

func TestHandlers_LoginLimiterWrapsLogin(t *testing.T) {
	f := newFixture(t)
	blocked := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	h := newTestRouter(f, nil, blocked)

	w, _ := do(t, h, http.MethodPost, "/auth/login", LoginRequest{Email: "olive@acme.test", Password: "correct-horse"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHandlers_Me(t *testing.T) {
	f := newFixture(t)

	w, env := do(t, newTestRouter(f, f.owner, nil), http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me meResponse
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "olive@acme.test", me.User.Email)
	assert.Equal(t, rbac.RoleSuperAdmin, me.Role)

	w, _ = do(t, newTestRouter(f, nil, nil), http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandlers_UsersRequireAdmin(t *testing.T) {
	f := newFixture(t)
	member := f.createUser(t, "mia@acme.test", rbac.RoleUser)
	memberIdentity, err := f.service.LoadIdentity(t.Context(), member.ID)
	require.NoError(t, err)

	w, _ := do(t, newTestRouter(f, memberIdentity, nil), http.MethodGet, "/users", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	h := newTestRouter(f, f.owner, nil)
	w, env := do(t, h, http.MethodGet, "/users?search=mia", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users []User
	require.NoError(t, json.Unmarshal(env.Data, &users))
	require.Len(t, users, 1)

	w, _ = do(t, h, http.MethodPut, fmt.Sprintf("/users/%d", member.ID), map[string]string{"last_name": "Doe"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, h, http.MethodDelete, fmt.Sprintf("/users/%d", f.owner.UserID), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, env.Error, "own account")

	w, _ = do(t, h, http.MethodDelete, fmt.Sprintf("/users/%d", member.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, h, http.MethodGet, fmt.Sprintf("/users/%d", member.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlers_OrganizationStatusRequiresSuperAdmin(t *testing.T) {
	f := newFixture(t)
	admin := f.createUser(t, "adam@acme.test", rbac.RoleAdmin)
	adminIdentity, err := f.service.LoadIdentity(t.Context(), admin.ID)
	require.NoError(t, err)

	w, _ := do(t, newTestRouter(f, adminIdentity, nil), http.MethodPut, "/organization/status", UpdateOrgStatusRequest{Status: OrgStatusInactive})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, newTestRouter(f, f.owner, nil), http.MethodPut, "/organization/status", UpdateOrgStatusRequest{Status: "closed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := do(t, newTestRouter(f, f.owner, nil), http.MethodPut, "/organization/status", UpdateOrgStatusRequest{Status: OrgStatusInactive})
	require.Equal(t, http.StatusOK, w.Code)
	var org Organization
	require.NoError(t, json.Unmarshal(env.Data, &org))
	assert.Equal(t, OrgStatusInactive, org.Status)
}
