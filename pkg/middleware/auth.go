package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/taskflow/pkg/apperrors"
	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/contextkeys"
	"github.com/platinummonkey/taskflow/pkg/httputil"
	"github.com/platinummonkey/taskflow/pkg/observability"
)

// IdentityResolver turns a bearer token into an identity
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*auth.Identity, error)
}

// AuthMiddleware resolves the caller's identity before any handler runs
type AuthMiddleware struct {
	resolver IdentityResolver
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(resolver IdentityResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// Handler wraps an HTTP handler with authentication. Requests without a
// resolvable identity are rejected with 401.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httputil.WriteUnauthorized(w, "Missing or malformed authorization header")
			return
		}

		identity, err := m.resolver.Resolve(r.Context(), token)
		if err != nil {
			if apperrors.KindOf(err) == apperrors.KindUnauthorized {
				httputil.WriteAppError(w, r, err)
				return
			}
			observability.FromContext(r.Context()).WithError(err).Error("Failed to resolve identity")
			httputil.WriteErrorMessage(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		ctx := auth.WithIdentity(r.Context(), identity)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(identity.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from "Authorization: Bearer <token>"
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
