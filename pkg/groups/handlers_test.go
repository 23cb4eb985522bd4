package groups

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

func newTestRouter(f *fixture, identity *auth.Identity) http.Handler {
	router := mux.NewRouter()
	NewHandlers(f.service, rbac.NewGuard(nil)).RegisterRoutes(router)
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

func TestHandlers_GroupLifecycle(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f, f.actor)

	w, env := do(t, h, http.MethodPost, "/groups", map[string]interface{}{"name": "Engineering", "type": "department"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var eng Group
	require.NoError(t, json.Unmarshal(env.Data, &eng))

	w, env = do(t, h, http.MethodPost, "/groups", map[string]interface{}{"name": "Backend", "parent_group_id": eng.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var backend Group
	require.NoError(t, json.Unmarshal(env.Data, &backend))

	w, _ = do(t, h, http.MethodPost, "/groups", map[string]interface{}{"name": "Engineering"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = do(t, h, http.MethodPut, fmt.Sprintf("/groups/%d", backend.ID), map[string]interface{}{"parent_group_id": nil})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var moved Group
	require.NoError(t, json.Unmarshal(env.Data, &moved))
	assert.Nil(t, moved.ParentGroupID)

	userID := f.user(t, "dev@acme.test")
	w, _ = do(t, h, http.MethodPost, fmt.Sprintf("/groups/%d/users", backend.ID), map[string]interface{}{"user_id": userID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = do(t, h, http.MethodGet, fmt.Sprintf("/groups/%d/users", backend.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var members []Member
	require.NoError(t, json.Unmarshal(env.Data, &members))
	require.Len(t, members, 1)
	assert.Equal(t, "dev@acme.test", members[0].Email)

	w, _ = do(t, h, http.MethodDelete, fmt.Sprintf("/groups/%d", backend.ID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "members block deletion")

	w, _ = do(t, h, http.MethodDelete, fmt.Sprintf("/groups/%d/users/%d", backend.ID, userID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, h, http.MethodDelete, fmt.Sprintf("/groups/%d", backend.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, h, http.MethodGet, "/groups?type=department", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var groups []Group
	require.NoError(t, json.Unmarshal(env.Data, &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, "Engineering", groups[0].Name)
}

func TestHandlers_PermissionGates(t *testing.T) {
	f := newFixture(t)
	g := f.group(t, "Team", nil)

	viewer := &auth.Identity{
		UserID:      f.user(t, "viewer@acme.test"),
		OrgID:       f.orgID,
		RoleName:    rbac.RoleUser,
		Permissions: []string{rbac.PermViewGroups},
	}
	h := newTestRouter(f, viewer)

	tests := []struct {
		method string
		path   string
		body   interface{}
		status int
	}{
		{http.MethodGet, "/groups", nil, http.StatusOK},
		{http.MethodGet, fmt.Sprintf("/groups/%d", g.ID), nil, http.StatusOK},
		{http.MethodPost, "/groups", map[string]string{"name": "x"}, http.StatusForbidden},
		{http.MethodPut, fmt.Sprintf("/groups/%d", g.ID), map[string]string{"name": "y"}, http.StatusForbidden},
		{http.MethodDelete, fmt.Sprintf("/groups/%d", g.ID), nil, http.StatusForbidden},
		{http.MethodPost, fmt.Sprintf("/groups/%d/users", g.ID), map[string]int64{"user_id": viewer.UserID}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w, _ := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w, _ := do(t, newTestRouter(f, nil), http.MethodGet, "/groups", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandlers_RejectsUnknownFields(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f, f.actor)

	w, _ := do(t, h, http.MethodPost, "/groups", map[string]interface{}{"name": "Team", "colour": "red"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
