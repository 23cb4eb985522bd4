package rbac

import (
	"net/http"

	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/httputil"
	"github.com/platinummonkey/taskflow/pkg/observability"
)

// Guard builds HTTP middleware enforcing permission and role checks on the
// identity stored by the auth middleware
type Guard struct {
	metrics *observability.Metrics
}

// NewGuard creates a guard. metrics may be nil.
func NewGuard(metrics *observability.Metrics) *Guard {
	return &Guard{metrics: metrics}
}

// RequirePermission rejects requests whose identity lacks key
func (g *Guard) RequirePermission(key string) func(http.Handler) http.Handler {
	return g.require(key, func(identity *auth.Identity) bool {
		return HasPermission(identity, key)
	})
}

// RequireAnyPermission rejects requests whose identity holds none of keys
func (g *Guard) RequireAnyPermission(keys ...string) func(http.Handler) http.Handler {
	label := "any"
	for _, k := range keys {
		label += ":" + k
	}
	return g.require(label, func(identity *auth.Identity) bool {
		return HasAnyPermission(identity, keys...)
	})
}

// RequireAdmin rejects requests from anyone but Admins and Super Admins
func (g *Guard) RequireAdmin() func(http.Handler) http.Handler {
	return g.require("admin", IsAdmin)
}

// RequireSuperAdmin rejects requests from anyone but Super Admins
func (g *Guard) RequireSuperAdmin() func(http.Handler) http.Handler {
	return g.require("super_admin", IsSuperAdmin)
}

func (g *Guard) require(requirement string, allowed func(*auth.Identity) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !allowed(identity) {
				g.metrics.RecordDenial(requirement)
				observability.FromContext(r.Context()).WithFields(map[string]interface{}{
					"requirement": requirement,
					"role":        identity.RoleName,
					"path":        r.URL.Path,
				}).Info("access denied")
				httputil.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
