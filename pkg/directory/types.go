package directory

import "time"

// Organization statuses
const (
	OrgStatusActive    = "active"
	OrgStatusInactive  = "inactive"
	OrgStatusSuspended = "suspended"
)

// User statuses
const (
	UserStatusActive    = "active"
	UserStatusInactive  = "inactive"
	UserStatusSuspended = "suspended"
)

// Organization is a tenant. Every other record belongs to exactly one.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a member of one organization holding one role of that organization
type User struct {
	ID             int64      `json:"id"`
	OrgID          int64      `json:"org_id"`
	Email          string     `json:"email"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	RoleID         int64      `json:"role_id"`
	RoleName       string     `json:"role_name,omitempty"`
	Status         string     `json:"status"`
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	passwordHash string
}

// IsLocked reports whether the account is locked at now
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	OrganizationName  string `json:"organization_name"`
	OrganizationEmail string `json:"organization_email"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Email             string `json:"email"`
	Password          string `json:"password"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is returned by registration and login
type Session struct {
	Token        string        `json:"token"`
	ExpiresAt    time.Time     `json:"expires_at"`
	User         *User         `json:"user"`
	Organization *Organization `json:"organization"`
}

// CreateUserRequest is the body of POST /users
type CreateUserRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
	RoleID    int64  `json:"role_id"`
}

// UpdateUserRequest is the body of PUT /users/{id}. Nil fields are unchanged.
type UpdateUserRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	RoleID    *int64  `json:"role_id,omitempty"`
	Status    *string `json:"status,omitempty"`
	Password  *string `json:"password,omitempty"`
}

// UserFilter narrows ListUsers
type UserFilter struct {
	Status string
	RoleID *int64
	Search string
	Limit  int
	Offset int
}

// UpdateOrgStatusRequest is the body of PUT /organization/status
type UpdateOrgStatusRequest struct {
	Status string `json:"status"`
}

func validOrgStatus(s string) bool {
	return s == OrgStatusActive || s == OrgStatusInactive || s == OrgStatusSuspended
}

func validUserStatus(s string) bool {
	return s == UserStatusActive || s == UserStatusInactive || s == UserStatusSuspended
}
