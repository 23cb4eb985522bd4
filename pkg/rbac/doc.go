// Package rbac implements per-organization role-based access control.
//
// # Permission registry
//
// The registry is a fixed catalog of permission keys such as create_tasks or
// manage_group_members, each with a label and a category. Role permission
// sets are always filtered through FilterValid, so only registry keys are
// ever stored. Wildcards like "*" or "all" are not keys: seeds list every
// permission explicitly and HasPermission matches exact strings only.
//
// # Roles
//
// Every organization has four system roles, created by
// Store.EnsureDefaultRoles inside the organization-creation transaction:
//
//	Super Admin  priority 1  every permission
//	Admin        priority 2  everything except role writes and System Settings
//	User         priority 3  view/create/edit/work on/comment tasks, view groups
//	Guest        priority 4  view_tasks
//
// System roles cannot be updated or deleted through Service. Custom roles
// can be created, updated (permission set replaced wholesale), duplicated
// and deleted once no user holds them.
//
// # Guard
//
// HasPermission, IsAdmin and IsSuperAdmin evaluate a resolved auth.Identity.
// IsAdmin and IsSuperAdmin compare role names, not permissions. Guard wraps
// them as HTTP middleware that answers 401 without an identity and 403 when
// the check fails:
//
//	router.Handle("/roles", guard.RequirePermission(rbac.PermCreateRoles)(h)).Methods("POST")
//	router.Handle("/users", guard.RequireAdmin()(h)).Methods("GET")
package rbac
