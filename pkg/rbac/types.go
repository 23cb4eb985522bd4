package rbac

import "time"

// Role statuses
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Role is a named, prioritized permission set belonging to one organization.
// Lower priority means more authority.
type Role struct {
	ID          int64     `json:"id"`
	OrgID       int64     `json:"org_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	Priority    int       `json:"priority"`
	Permissions []string  `json:"permissions"`
	IsSystem    bool      `json:"is_system"`
	Status      string    `json:"status"`
	UserCount   int       `json:"user_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateRoleRequest is the body of POST /roles
type CreateRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Color       string   `json:"color"`
	Priority    *int     `json:"priority,omitempty"`
	Permissions []string `json:"permissions"`
}

// UpdateRoleRequest is the body of PUT /roles/{id}. Nil fields are left
// unchanged; a non-nil Permissions replaces the whole set.
type UpdateRoleRequest struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Color       *string   `json:"color,omitempty"`
	Priority    *int      `json:"priority,omitempty"`
	Permissions *[]string `json:"permissions,omitempty"`
	Status      *string   `json:"status,omitempty"`
}

// DuplicateRoleRequest is the optional body of POST /roles/{id}/duplicate
type DuplicateRoleRequest struct {
	Name string `json:"name"`
}

// DefaultCustomPriority is used when a custom role is created without a priority
const DefaultCustomPriority = 5
