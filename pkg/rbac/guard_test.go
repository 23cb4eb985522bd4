package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/observability"
)

func TestHasPermission(t *testing.T) {
	identity := &auth.Identity{RoleName: "Custom", Permissions: []string{"view_tasks", "*", "all"}}

	assert.True(t, HasPermission(identity, PermViewTasks))
	assert.False(t, HasPermission(identity, PermCreateTasks), "wildcards grant nothing")
	assert.False(t, HasPermission(identity, "View_Tasks"), "matching is exact")
	assert.True(t, HasPermission(identity, "*"), "a literal key matches only itself")
	assert.False(t, HasPermission(nil, PermViewTasks))

	assert.True(t, HasAnyPermission(identity, PermCreateTasks, PermViewTasks))
	assert.False(t, HasAnyPermission(identity, PermCreateTasks, PermDeleteTasks))
}

func TestRoleNameChecks(t *testing.T) {
	tests := []struct {
		role       string
		admin      bool
		superAdmin bool
	}{
		{RoleSuperAdmin, true, true},
		{RoleAdmin, true, false},
		{RoleUser, false, false},
		{RoleGuest, false, false},
		{"admin", false, false},
		{"Super Admin (Copy)", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			// Permissions are irrelevant to the name checks
			identity := &auth.Identity{RoleName: tt.role, Permissions: Keys()}
			assert.Equal(t, tt.admin, IsAdmin(identity))
			assert.Equal(t, tt.superAdmin, IsSuperAdmin(identity))
		})
	}

	assert.False(t, IsAdmin(nil))
	assert.False(t, IsSuperAdmin(nil))
}

func TestGuardMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	guard := NewGuard(metrics)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	serve := func(mw func(http.Handler) http.Handler, identity *auth.Identity) int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if identity != nil {
			req = req.WithContext(auth.WithIdentity(req.Context(), identity))
		}
		w := httptest.NewRecorder()
		mw(ok).ServeHTTP(w, req)
		return w.Code
	}

	user := &auth.Identity{UserID: 1, RoleName: RoleUser, Permissions: []string{PermViewTasks}}
	admin := &auth.Identity{UserID: 2, RoleName: RoleAdmin}
	super := &auth.Identity{UserID: 3, RoleName: RoleSuperAdmin}

	assert.Equal(t, http.StatusUnauthorized, serve(guard.RequirePermission(PermViewTasks), nil))
	assert.Equal(t, http.StatusNoContent, serve(guard.RequirePermission(PermViewTasks), user))
	assert.Equal(t, http.StatusForbidden, serve(guard.RequirePermission(PermDeleteTasks), user))
	assert.Equal(t, http.StatusNoContent, serve(guard.RequireAnyPermission(PermDeleteTasks, PermViewTasks), user))

	assert.Equal(t, http.StatusForbidden, serve(guard.RequireAdmin(), user))
	assert.Equal(t, http.StatusNoContent, serve(guard.RequireAdmin(), admin))
	assert.Equal(t, http.StatusForbidden, serve(guard.RequireSuperAdmin(), admin))
	assert.Equal(t, http.StatusNoContent, serve(guard.RequireSuperAdmin(), super))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthzDenialsTotal.WithLabelValues(PermDeleteTasks)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthzDenialsTotal.WithLabelValues("super_admin")))
}
