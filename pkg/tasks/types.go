package tasks

import (
	"strings"
	"time"
)

// Status is a task's position in the workflow
type Status string

const (
	StatusToDo        Status = "to_do"
	StatusInProgress  Status = "in_progress"
	StatusUnderReview Status = "under_review"
	StatusCompleted   Status = "completed"
	StatusRejected    Status = "rejected"
	StatusArchived    Status = "archived"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusToDo, StatusInProgress, StatusUnderReview, StatusCompleted, StatusRejected, StatusArchived:
		return true
	}
	return false
}

// Label renders a status for messages: "in_progress" becomes "in progress"
func (s Status) Label() string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// Priority is a task's urgency
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Task is one unit of work inside an organization
type Task struct {
	ID              int64      `json:"id"`
	OrgID           int64      `json:"org_id"`
	TaskID          string     `json:"task_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Priority        Priority   `json:"priority"`
	Status          Status     `json:"status"`
	Category        string     `json:"category"`
	Tags            []string   `json:"tags"`
	CreatedBy       int64      `json:"created_by"`
	ApproverID      *int64     `json:"approver_id,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Progress        int        `json:"progress"`
	SubmissionNotes *string    `json:"submission_notes,omitempty"`
	ApprovalNotes   *string    `json:"approval_notes,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	SubmissionCount int        `json:"submission_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Assignment links a task to one assignee
type Assignment struct {
	TaskID     int64     `json:"task_id"`
	UserID     int64     `json:"user_id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	AssignedBy int64     `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Comment is a note left on a task
type Comment struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	UserID    int64     `json:"user_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment is the metadata of a file stored in the blob store
type Attachment struct {
	ID          int64     `json:"id"`
	TaskID      int64     `json:"task_id"`
	UploadedBy  int64     `json:"uploaded_by"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	StorageKey  string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChecklistItem is one checkbox on a task
type ChecklistItem struct {
	ID          int64      `json:"id"`
	TaskID      int64      `json:"task_id"`
	Title       string     `json:"title"`
	IsCompleted bool       `json:"is_completed"`
	Position    int        `json:"position"`
	CompletedBy *int64     `json:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Detail is a task with everything it owns
type Detail struct {
	*Task
	Assignments []*Assignment    `json:"assignments"`
	Comments    []*Comment       `json:"comments"`
	Attachments []*Attachment    `json:"attachments"`
	Checklist   []*ChecklistItem `json:"checklist"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Status     Status
	Priority   Priority
	Category   string
	AssigneeID *int64
	CreatedBy  *int64
	Search     string
	Limit      int
	Offset     int

	// VisibleTo restricts results to tasks the user created or is assigned to
	VisibleTo *int64
}

// CreateTaskRequest is the body of POST /tasks
type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Category    string     `json:"category"`
	Tags        []string   `json:"tags"`
	DueDate     *time.Time `json:"due_date"`
	AssigneeIDs []int64    `json:"assignee_ids"`
}

// UpdateTaskRequest is the body of PUT /tasks/{id}. Nil fields are left unchanged.
type UpdateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Priority    *Priority  `json:"priority"`
	Category    *string    `json:"category"`
	Tags        *[]string  `json:"tags"`
	DueDate     *time.Time `json:"due_date"`
	Progress    *int       `json:"progress"`
	Status      *Status    `json:"status"`
}

// NotesRequest carries optional notes for submit and approve
type NotesRequest struct {
	Notes string `json:"notes"`
}

// RejectRequest is the body of POST /tasks/{id}/reject
type RejectRequest struct {
	Reason string `json:"reason"`
}

// AssignRequest is the body of POST /tasks/{id}/assign
type AssignRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

// CommentRequest is the body of POST /tasks/{id}/comments
type CommentRequest struct {
	Content string `json:"content"`
}

// ChecklistRequest is the body of POST /tasks/{id}/checklist
type ChecklistRequest struct {
	Title string `json:"title"`
}
