package rbac

// System role names
const (
	RoleSuperAdmin = "Super Admin"
	RoleAdmin      = "Admin"
	RoleUser       = "User"
	RoleGuest      = "Guest"
)

// RoleSeed describes one system role created for every organization
type RoleSeed struct {
	Name        string
	Description string
	Color       string
	Priority    int
	Permissions []string
}

// DefaultRoles returns the four system roles with fully expanded permission
// sets. No seed carries a wildcard.
func DefaultRoles() []RoleSeed {
	return []RoleSeed{
		{
			Name:        RoleSuperAdmin,
			Description: "Full access to every feature of the organization",
			Color:       "#dc2626",
			Priority:    1,
			Permissions: Keys(),
		},
		{
			Name:        RoleAdmin,
			Description: "Manages users, tasks and groups",
			Color:       "#ea580c",
			Priority:    2,
			Permissions: adminPermissions(),
		},
		{
			Name:        RoleUser,
			Description: "Works on own tasks",
			Color:       "#2563eb",
			Priority:    3,
			Permissions: []string{
				PermViewTasks,
				PermCreateTasks,
				PermEditTasks,
				PermWorkOnTasks,
				PermCommentTasks,
				PermViewGroups,
			},
		},
		{
			Name:        RoleGuest,
			Description: "Read-only access to own tasks",
			Color:       "#6b7280",
			Priority:    4,
			Permissions: []string{PermViewTasks},
		},
	}
}

// adminPermissions is everything except role writes and system settings
func adminPermissions() []string {
	excluded := map[string]bool{
		PermCreateRoles: true,
		PermEditRoles:   true,
		PermDeleteRoles: true,
	}
	var keys []string
	for _, p := range registry {
		if excluded[p.Key] || p.Category == CategorySettings {
			continue
		}
		keys = append(keys, p.Key)
	}
	return keys
}

// IsSystemRoleName reports whether name is one of the seeded role names
func IsSystemRoleName(name string) bool {
	switch name {
	case RoleSuperAdmin, RoleAdmin, RoleUser, RoleGuest:
		return true
	}
	return false
}
