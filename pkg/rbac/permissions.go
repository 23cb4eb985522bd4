package rbac

// Category groups permissions for display
type Category string

const (
	CategoryUsers    Category = "User Management"
	CategoryTasks    Category = "Task Management"
	CategoryRoles    Category = "Role Management"
	CategoryGroups   Category = "Group Management"
	CategoryReports  Category = "Reports/Analytics"
	CategorySettings Category = "System Settings"
)

// Permission is one entry of the permission registry
type Permission struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Category Category `json:"category"`
}

// Permission keys
const (
	PermViewUsers   = "view_users"
	PermCreateUsers = "create_users"
	PermEditUsers   = "edit_users"
	PermDeleteUsers = "delete_users"

	PermViewTasks    = "view_tasks"
	PermViewAllTasks = "view_all_tasks"
	PermCreateTasks  = "create_tasks"
	PermEditTasks    = "edit_tasks"
	PermDeleteTasks  = "delete_tasks"
	PermAssignTasks  = "assign_tasks"
	PermWorkOnTasks  = "work_on_tasks"
	PermReviewTasks  = "review_tasks"
	PermCommentTasks = "comment_tasks"

	PermViewRoles   = "view_roles"
	PermCreateRoles = "create_roles"
	PermEditRoles   = "edit_roles"
	PermDeleteRoles = "delete_roles"

	PermViewGroups         = "view_groups"
	PermCreateGroups       = "create_groups"
	PermEditGroups         = "edit_groups"
	PermDeleteGroups       = "delete_groups"
	PermManageGroupMembers = "manage_group_members"

	PermViewReports   = "view_reports"
	PermExportReports = "export_reports"

	PermManageSettings   = "manage_settings"
	PermViewActivityLogs = "view_activity_logs"
)

var registry = []Permission{
	{PermViewUsers, "View users", CategoryUsers},
	{PermCreateUsers, "Create users", CategoryUsers},
	{PermEditUsers, "Edit users", CategoryUsers},
	{PermDeleteUsers, "Delete users", CategoryUsers},

	{PermViewTasks, "View tasks", CategoryTasks},
	{PermViewAllTasks, "View all tasks", CategoryTasks},
	{PermCreateTasks, "Create tasks", CategoryTasks},
	{PermEditTasks, "Edit tasks", CategoryTasks},
	{PermDeleteTasks, "Delete tasks", CategoryTasks},
	{PermAssignTasks, "Assign tasks", CategoryTasks},
	{PermWorkOnTasks, "Work on tasks", CategoryTasks},
	{PermReviewTasks, "Review tasks", CategoryTasks},
	{PermCommentTasks, "Comment on tasks", CategoryTasks},

	{PermViewRoles, "View roles", CategoryRoles},
	{PermCreateRoles, "Create roles", CategoryRoles},
	{PermEditRoles, "Edit roles", CategoryRoles},
	{PermDeleteRoles, "Delete roles", CategoryRoles},

	{PermViewGroups, "View groups", CategoryGroups},
	{PermCreateGroups, "Create groups", CategoryGroups},
	{PermEditGroups, "Edit groups", CategoryGroups},
	{PermDeleteGroups, "Delete groups", CategoryGroups},
	{PermManageGroupMembers, "Manage group members", CategoryGroups},

	{PermViewReports, "View reports", CategoryReports},
	{PermExportReports, "Export reports", CategoryReports},

	{PermManageSettings, "Manage settings", CategorySettings},
	{PermViewActivityLogs, "View activity logs", CategorySettings},
}

var registryIndex = func() map[string]Permission {
	idx := make(map[string]Permission, len(registry))
	for _, p := range registry {
		idx[p.Key] = p
	}
	return idx
}()

// All returns every registered permission in catalog order
func All() []Permission {
	out := make([]Permission, len(registry))
	copy(out, registry)
	return out
}

// Keys returns every registered permission key in catalog order
func Keys() []string {
	keys := make([]string, len(registry))
	for i, p := range registry {
		keys[i] = p.Key
	}
	return keys
}

// IsValid reports whether key is in the registry
func IsValid(key string) bool {
	_, ok := registryIndex[key]
	return ok
}

// Lookup returns the registry entry for key
func Lookup(key string) (Permission, bool) {
	p, ok := registryIndex[key]
	return p, ok
}

// FilterValid keeps the registered keys of keys, in input order without
// duplicates. Unknown keys, including "*" and "all", are dropped.
func FilterValid(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !IsValid(k) {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// CategoryPermissions is one category of the catalog with its permissions
type CategoryPermissions struct {
	Category    Category     `json:"category"`
	Permissions []Permission `json:"permissions"`
}

// Catalog returns the registry grouped by category, categories in catalog order
func Catalog() []CategoryPermissions {
	var out []CategoryPermissions
	index := map[Category]int{}
	for _, p := range registry {
		i, ok := index[p.Category]
		if !ok {
			i = len(out)
			index[p.Category] = i
			out = append(out, CategoryPermissions{Category: p.Category})
		}
		out[i].Permissions = append(out[i].Permissions, p)
	}
	return out
}
