package auth

import (
	"context"

	"github.com/platinummonkey/taskflow/pkg/contextkeys"
)

// Identity is the caller as resolved for one request: user, organization and role.
// Permissions is a copy of the role's permission set at resolution time.
type Identity struct {
	UserID      int64    `json:"user_id"`
	Email       string   `json:"email"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	OrgID       int64    `json:"org_id"`
	OrgName     string   `json:"org_name"`
	RoleID      int64    `json:"role_id"`
	RoleName    string   `json:"role_name"`
	Permissions []string `json:"permissions"`
}

// IdentityFromContext returns the identity stored by the auth middleware
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(*Identity)
	return identity, ok && identity != nil
}

// WithIdentity stores identity in ctx
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return contextkeys.WithIdentity(ctx, identity)
}
