package audit

import (
	"context"
	"time"
)

// Action names a recorded mutation
type Action string

const (
	ActionOrgRegistered      Action = "organization.registered"
	ActionOrgStatusChanged   Action = "organization.status_changed"
	ActionUserLogin          Action = "user.login"
	ActionUserLoginFailed    Action = "user.login_failed"
	ActionUserCreated        Action = "user.created"
	ActionUserUpdated        Action = "user.updated"
	ActionUserDeleted        Action = "user.deleted"
	ActionRoleCreated        Action = "role.created"
	ActionRoleUpdated        Action = "role.updated"
	ActionRoleDeleted        Action = "role.deleted"
	ActionRoleDuplicated     Action = "role.duplicated"
	ActionTaskCreated        Action = "task.created"
	ActionTaskUpdated        Action = "task.updated"
	ActionTaskDeleted        Action = "task.deleted"
	ActionTaskStarted        Action = "task.started"
	ActionTaskSubmitted      Action = "task.submitted"
	ActionTaskApproved       Action = "task.approved"
	ActionTaskRejected       Action = "task.rejected"
	ActionTaskAssigned       Action = "task.assigned"
	ActionTaskCommented      Action = "task.commented"
	ActionAttachmentAdded    Action = "task.attachment_added"
	ActionAttachmentRemoved  Action = "task.attachment_removed"
	ActionGroupCreated       Action = "group.created"
	ActionGroupUpdated       Action = "group.updated"
	ActionGroupDeleted       Action = "group.deleted"
	ActionGroupMembersAdded  Action = "group.members_added"
	ActionGroupMemberRemoved Action = "group.member_removed"
)

// EntityType is the kind of record an entry refers to
type EntityType string

const (
	EntityOrganization EntityType = "organization"
	EntityUser         EntityType = "user"
	EntityRole         EntityType = "role"
	EntityTask         EntityType = "task"
	EntityGroup        EntityType = "group"
)

// Entry is one row of an organization's activity log
type Entry struct {
	ID         int64                  `json:"id"`
	OrgID      int64                  `json:"org_id"`
	UserID     *int64                 `json:"user_id,omitempty"`
	UserEmail  string                 `json:"user_email,omitempty"`
	Action     Action                 `json:"action"`
	EntityType EntityType             `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Details    map[string]interface{} `json:"details,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Filter narrows a List call. Zero values match everything.
type Filter struct {
	Action     Action
	EntityType EntityType
	EntityID   string
	UserID     *int64
	Since      *time.Time
	Limit      int
	Offset     int
}

// Recorder appends entries to the activity log. Recording is best-effort:
// implementations log failures instead of returning them, so a broken
// activity log never fails the mutation being recorded.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// NoopRecorder discards entries
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, Entry) {}

// UserRef returns a pointer to id, for Entry.UserID
func UserRef(id int64) *int64 {
	return &id
}
