package groups

import (
	"bytes"
	"encoding/json"
	"time"
)

// Group types
const (
	TypeDepartment = "department"
	TypeTeam       = "team"
	TypeProject    = "project"
	TypeCustom     = "custom"
)

// Group statuses
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusArchived = "archived"
)

func validType(t string) bool {
	switch t {
	case TypeDepartment, TypeTeam, TypeProject, TypeCustom:
		return true
	}
	return false
}

func validStatus(s string) bool {
	switch s {
	case StatusActive, StatusInactive, StatusArchived:
		return true
	}
	return false
}

// Group is a node of an organization's group tree
type Group struct {
	ID            int64     `json:"id"`
	OrgID         int64     `json:"org_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	ParentGroupID *int64    `json:"parent_group_id,omitempty"`
	GroupLeadID   *int64    `json:"group_lead_id,omitempty"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	MemberCount   int       `json:"member_count"`
	ChildIDs      []int64   `json:"child_ids,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Member is a user belonging to a group
type Member struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	AddedAt   time.Time `json:"added_at"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Type     string
	Status   string
	ParentID *int64
	Search   string
	Limit    int
	Offset   int
}

// CreateGroupRequest is the body of POST /groups
type CreateGroupRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	ParentGroupID *int64 `json:"parent_group_id"`
	GroupLeadID   *int64 `json:"group_lead_id"`
	Type          string `json:"type"`
	Status        string `json:"status"`
}

// UpdateGroupRequest is the body of PUT /groups/{id}. Absent fields are
// unchanged; an explicit null clears parent_group_id or group_lead_id.
type UpdateGroupRequest struct {
	Name          *string    `json:"name"`
	Description   *string    `json:"description"`
	ParentGroupID OptionalID `json:"parent_group_id"`
	GroupLeadID   OptionalID `json:"group_lead_id"`
	Type          *string    `json:"type"`
	Status        *string    `json:"status"`
}

// OptionalID tells an absent JSON field apart from an explicit null
type OptionalID struct {
	Set   bool
	Value *int64
}

// UnmarshalJSON records that the field was present
func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.Value = nil
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// AddMembersRequest is the body of POST /groups/{id}/users. A single
// user_id is accepted as well as a user_ids list.
type AddMembersRequest struct {
	UserID  int64   `json:"user_id"`
	UserIDs []int64 `json:"user_ids"`
}

func (r AddMembersRequest) ids() []int64 {
	ids := append([]int64{}, r.UserIDs...)
	if r.UserID != 0 {
		ids = append(ids, r.UserID)
	}
	return ids
}
