package rbac

import "github.com/platinummonkey/taskflow/pkg/auth"

// HasPermission reports whether key is literally present in the identity's
// permission set. There is no wildcard handling: "*" grants nothing.
func HasPermission(identity *auth.Identity, key string) bool {
	if identity == nil {
		return false
	}
	for _, p := range identity.Permissions {
		if p == key {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether the identity holds at least one of keys
func HasAnyPermission(identity *auth.Identity, keys ...string) bool {
	for _, key := range keys {
		if HasPermission(identity, key) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity's role is named "Super Admin" or "Admin".
// The check is by role name, independent of the permission set.
func IsAdmin(identity *auth.Identity) bool {
	if identity == nil {
		return false
	}
	return identity.RoleName == RoleSuperAdmin || identity.RoleName == RoleAdmin
}

// IsSuperAdmin reports whether the identity's role is named "Super Admin"
func IsSuperAdmin(identity *auth.Identity) bool {
	return identity != nil && identity.RoleName == RoleSuperAdmin
}
