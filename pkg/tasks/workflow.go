package tasks

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/taskflow/pkg/apperrors"
	"github.com/platinummonkey/taskflow/pkg/audit"
	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/database"
	"github.com/platinummonkey/taskflow/pkg/notify"
	"github.com/platinummonkey/taskflow/pkg/observability"
	"github.com/platinummonkey/taskflow/pkg/rbac"
	"github.com/platinummonkey/taskflow/pkg/storage"
)

const (
	maxTitleLength   = 255
	maxCommentLength = 5000
	maxTags          = 20
)

// Engine runs the task workflow. Every mutation commits in one transaction;
// activity and notifications follow the commit and never fail the call.
type Engine struct {
	db       *sql.DB
	store    *Store
	blobs    storage.BlobStore
	notifier notify.Notifier
	recorder audit.Recorder
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewEngine creates a workflow engine. notifier, recorder and metrics may be nil.
func NewEngine(db *sql.DB, blobs storage.BlobStore, notifier notify.Notifier, recorder audit.Recorder, metrics *observability.Metrics) *Engine {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if recorder == nil {
		recorder = audit.NoopRecorder{}
	}
	return &Engine{
		db:       db,
		store:    NewStore(db),
		blobs:    blobs,
		notifier: notifier,
		recorder: recorder,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Store returns the underlying task store
func (e *Engine) Store() *Store {
	return e.store
}

// canViewAll reports whether actor sees every task of the organization
func canViewAll(actor *auth.Identity) bool {
	return rbac.HasPermission(actor, rbac.PermViewAllTasks)
}

// load returns the task if actor may see it. Invisible tasks read as not found.
func (e *Engine) load(ctx context.Context, store *Store, actor *auth.Identity, id int64) (*Task, error) {
	task, err := store.Get(ctx, actor.OrgID, id)
	if err != nil {
		return nil, err
	}
	if canViewAll(actor) {
		return task, nil
	}
	visible, err := store.IsVisible(ctx, task.ID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, errTaskNotFound
	}
	return task, nil
}

// Create inserts a task in to_do with an optional initial assignment set.
// A task_id collision is retried with the next suffix.
func (e *Engine) Create(ctx context.Context, actor *auth.Identity, req CreateTaskRequest) (*Detail, error) {
	title, err := validateTitle(req.Title)
	if err != nil {
		return nil, err
	}
	priority := req.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.Validation("Invalid priority %q", priority)
	}
	tags, err := normalizeTags(req.Tags)
	if err != nil {
		return nil, err
	}
	assignees := dedupe(req.AssigneeIDs)
	if len(assignees) > 0 && !rbac.HasPermission(actor, rbac.PermAssignTasks) {
		return nil, apperrors.Forbidden("Insufficient permissions to assign tasks")
	}

	now := e.now()
	task := &Task{
		OrgID:       actor.OrgID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Priority:    priority,
		Status:      StatusToDo,
		Category:    strings.TrimSpace(req.Category),
		Tags:        tags,
		CreatedBy:   actor.UserID,
		DueDate:     req.DueDate,
	}

	for attempt := 0; attempt < taskIDAttempts; attempt++ {
		task.TaskID = taskIDFor(now, attempt)
		err = database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
			store := e.store.With(tx)
			if err := store.Create(ctx, task, now); err != nil {
				return err
			}
			if len(assignees) == 0 {
				return nil
			}
			if err := checkOrgUsers(ctx, store, actor.OrgID, assignees); err != nil {
				return err
			}
			return store.ReplaceAssignments(ctx, task.ID, assignees, actor.UserID, now)
		})
		if !errors.Is(err, ErrTaskIDTaken) {
			break
		}
		observability.FromContext(ctx).WithField("task_id", task.TaskID).Warn("Task id collision, regenerating")
	}
	if errors.Is(err, ErrTaskIDTaken) {
		return nil, apperrors.Conflict("Could not allocate a unique task id, please retry")
	}
	if err != nil {
		return nil, err
	}

	e.metrics.RecordTaskCreated()
	e.record(ctx, actor, audit.ActionTaskCreated, task, map[string]interface{}{"title": task.Title})
	if len(assignees) > 0 {
		e.notify(ctx, notify.EventTaskAssigned, actor, task, map[string]interface{}{"assignee_ids": assignees})
	}
	return e.store.GetAggregate(ctx, task)
}

// Get returns the task with everything it owns
func (e *Engine) Get(ctx context.Context, actor *auth.Identity, id int64) (*Detail, error) {
	task, err := e.load(ctx, e.store, actor, id)
	if err != nil {
		return nil, err
	}
	return e.store.GetAggregate(ctx, task)
}

// List returns the tasks actor can see that match filter
func (e *Engine) List(ctx context.Context, actor *auth.Identity, filter Filter) ([]*Task, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.Validation("Invalid status %q", filter.Status)
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return nil, apperrors.Validation("Invalid priority %q", filter.Priority)
	}
	filter.VisibleTo = nil
	if !canViewAll(actor) {
		filter.VisibleTo = &actor.UserID
	}
	return e.store.List(ctx, actor.OrgID, filter)
}

// Edit applies a partial update. Status may be changed here except into
// under_review or completed, which only submit and approve reach.
func (e *Engine) Edit(ctx context.Context, actor *auth.Identity, id int64, req UpdateTaskRequest) (*Task, error) {
	now := e.now()
	var (
		updated *Task
		changed []string
	)
	err := database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		store := e.store.With(tx)
		task, err := e.load(ctx, store, actor, id)
		if err != nil {
			return err
		}

		if req.Title != nil {
			title, err := validateTitle(*req.Title)
			if err != nil {
				return err
			}
			task.Title = title
			changed = append(changed, "title")
		}
		if req.Description != nil {
			task.Description = strings.TrimSpace(*req.Description)
			changed = append(changed, "description")
		}
		if req.Priority != nil {
			if !req.Priority.Valid() {
				return apperrors.Validation("Invalid priority %q", *req.Priority)
			}
			task.Priority = *req.Priority
			changed = append(changed, "priority")
		}
		if req.Category != nil {
			task.Category = strings.TrimSpace(*req.Category)
			changed = append(changed, "category")
		}
		if req.Tags != nil {
			tags, err := normalizeTags(*req.Tags)
			if err != nil {
				return err
			}
			task.Tags = tags
			changed = append(changed, "tags")
		}
		if req.DueDate != nil {
			due := req.DueDate.UTC()
			task.DueDate = &due
			changed = append(changed, "due_date")
		}
		if req.Progress != nil {
			if *req.Progress < 0 || *req.Progress > 100 {
				return apperrors.Validation("Progress must be between 0 and 100")
			}
			task.Progress = *req.Progress
			changed = append(changed, "progress")
		}
		if req.Status != nil && *req.Status != task.Status {
			status := *req.Status
			if !status.Valid() {
				return apperrors.Validation("Invalid status %q", status)
			}
			if status == StatusUnderReview || status == StatusCompleted {
				return apperrors.PreconditionFailed("Task can only become %s through the review workflow", status.Label())
			}
			if task.Status == StatusCompleted {
				task.CompletedAt = nil
				task.ApproverID = nil
			}
			task.Status = status
			changed = append(changed, "status")
		}

		if err := store.Update(ctx, task, now); err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.record(ctx, actor, audit.ActionTaskUpdated, updated, map[string]interface{}{"fields": changed})
	return updated, nil
}

// Delete removes the task and everything it owns. Attachment blobs are
// removed after commit; a blob that cannot be removed is logged and left.
func (e *Engine) Delete(ctx context.Context, actor *auth.Identity, id int64) error {
	var (
		deleted *Task
		keys    []string
	)
	err := database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		store := e.store.With(tx)
		task, err := e.load(ctx, store, actor, id)
		if err != nil {
			return err
		}
		if keys, err = store.AttachmentKeys(ctx, task.ID); err != nil {
			return err
		}
		if err := store.Delete(ctx, actor.OrgID, task.ID); err != nil {
			return err
		}
		deleted = task
		return nil
	})
	if err != nil {
		return err
	}

	e.deleteBlobs(ctx, keys)
	e.record(ctx, actor, audit.ActionTaskDeleted, deleted, map[string]interface{}{
		"title":       deleted.Title,
		"attachments": len(keys),
	})
	return nil
}

// Assign replaces the task's assignment set. The task row is locked first so
// concurrent replaces on one task apply one after the other.
func (e *Engine) Assign(ctx context.Context, actor *auth.Identity, id int64, userIDs []int64) (assignments []*Assignment, err error) {
	ctx, span := observability.StartSpan(ctx, "tasks.assign", attribute.Int64("task.id", id), attribute.Int("assignees", len(userIDs)))
	defer func() { observability.EndSpan(span, err) }()

	userIDs = dedupe(userIDs)
	now := e.now()
	var task *Task
	err = database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		store := e.store.With(tx)
		if err := store.Lock(ctx, actor.OrgID, id, now); err != nil {
			return err
		}
		loaded, err := e.load(ctx, store, actor, id)
		if err != nil {
			return err
		}
		if err := checkOrgUsers(ctx, store, actor.OrgID, userIDs); err != nil {
			return err
		}
		if err := store.ReplaceAssignments(ctx, loaded.ID, userIDs, actor.UserID, now); err != nil {
			return err
		}
		if assignments, err = store.ListAssignments(ctx, loaded.ID); err != nil {
			return err
		}
		task = loaded
		return nil
	})
	e.metrics.RecordTransition("assign", resultLabel(err))
	if err != nil {
		return nil, err
	}

	e.record(ctx, actor, audit.ActionTaskAssigned, task, map[string]interface{}{"assignee_ids": userIDs})
	if len(userIDs) > 0 {
		e.notify(ctx, notify.EventTaskAssigned, actor, task, map[string]interface{}{"assignee_ids": userIDs})
	}
	return assignments, nil
}

// transition describes one edge of the state machine
type transition struct {
	action string
	from   Status
	to     Status
	audit  audit.Action
	event  notify.EventType
	apply  func(task *Task, now time.Time)
	extra  map[string]interface{}
}

// Start moves a to_do task to in_progress
func (e *Engine) Start(ctx context.Context, actor *auth.Identity, id int64) (*Task, error) {
	return e.transition(ctx, actor, id, transition{
		action: "start",
		from:   StatusToDo,
		to:     StatusInProgress,
		audit:  audit.ActionTaskStarted,
		apply: func(task *Task, now time.Time) {
			task.StartDate = &now
			task.Progress = max(task.Progress, 10)
		},
	})
}

// Submit moves an in_progress task to under_review
func (e *Engine) Submit(ctx context.Context, actor *auth.Identity, id int64, notes string) (*Task, error) {
	notes = strings.TrimSpace(notes)
	return e.transition(ctx, actor, id, transition{
		action: "submit",
		from:   StatusInProgress,
		to:     StatusUnderReview,
		audit:  audit.ActionTaskSubmitted,
		event:  notify.EventTaskSubmitted,
		apply: func(task *Task, now time.Time) {
			task.SubmissionNotes = optional(notes)
			task.SubmissionCount++
			task.Progress = 100
		},
		extra: map[string]interface{}{"notes": notes},
	})
}

// Approve completes an under_review task
func (e *Engine) Approve(ctx context.Context, actor *auth.Identity, id int64, notes string) (*Task, error) {
	notes = strings.TrimSpace(notes)
	approverID := actor.UserID
	return e.transition(ctx, actor, id, transition{
		action: "approve",
		from:   StatusUnderReview,
		to:     StatusCompleted,
		audit:  audit.ActionTaskApproved,
		event:  notify.EventTaskApproved,
		apply: func(task *Task, now time.Time) {
			task.ApprovalNotes = optional(notes)
			task.ApproverID = &approverID
			task.CompletedAt = &now
			task.Progress = 100
		},
		extra: map[string]interface{}{"notes": notes},
	})
}

// Reject sends an under_review task back to in_progress. reason is required.
func (e *Engine) Reject(ctx context.Context, actor *auth.Identity, id int64, reason string) (*Task, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		e.metrics.RecordTransition("reject", "invalid")
		return nil, apperrors.Validation("Rejection reason is required")
	}
	return e.transition(ctx, actor, id, transition{
		action: "reject",
		from:   StatusUnderReview,
		to:     StatusInProgress,
		audit:  audit.ActionTaskRejected,
		event:  notify.EventTaskRejected,
		apply: func(task *Task, now time.Time) {
			task.RejectionReason = &reason
			task.Progress = max(0, task.Progress-20)
		},
		extra: map[string]interface{}{"reason": reason},
	})
}

func (e *Engine) transition(ctx context.Context, actor *auth.Identity, id int64, tr transition) (task *Task, err error) {
	ctx, span := observability.StartSpan(ctx, "tasks."+tr.action, attribute.Int64("task.id", id))
	defer func() { observability.EndSpan(span, err) }()

	wrongState := apperrors.PreconditionFailed("Task must be %s to %s", tr.from.Label(), tr.action)
	now := e.now()
	err = database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		store := e.store.With(tx)
		current, err := e.load(ctx, store, actor, id)
		if err != nil {
			return err
		}
		if current.Status != tr.from {
			return wrongState
		}

		tr.apply(current, now)
		current.Status = tr.to
		if err := store.ApplyTransition(ctx, current, tr.from, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return wrongState
			}
			return err
		}
		task = current
		return nil
	})
	e.metrics.RecordTransition(tr.action, resultLabel(err))
	if err != nil {
		return nil, err
	}

	details := map[string]interface{}{"from": tr.from, "to": tr.to}
	for k, v := range tr.extra {
		details[k] = v
	}
	e.record(ctx, actor, tr.audit, task, details)
	if tr.event != "" {
		e.notify(ctx, tr.event, actor, task, tr.extra)
	}
	return task, nil
}

// AddComment appends a comment to a task actor can see
func (e *Engine) AddComment(ctx context.Context, actor *auth.Identity, id int64, content string) (*Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.Validation("Comment content is required")
	}
	if len(content) > maxCommentLength {
		return nil, apperrors.Validation("Comment must be at most %d characters", maxCommentLength)
	}

	task, err := e.load(ctx, e.store, actor, id)
	if err != nil {
		return nil, err
	}
	comment := &Comment{
		TaskID:    task.ID,
		UserID:    actor.UserID,
		Author:    strings.TrimSpace(actor.FirstName + " " + actor.LastName),
		Content:   content,
		CreatedAt: e.now(),
	}
	if err := e.store.AddComment(ctx, comment); err != nil {
		return nil, err
	}

	e.record(ctx, actor, audit.ActionTaskCommented, task, map[string]interface{}{"comment_id": comment.ID})
	return comment, nil
}

// ListComments returns the comments of a task actor can see
func (e *Engine) ListComments(ctx context.Context, actor *auth.Identity, id int64) ([]*Comment, error) {
	task, err := e.load(ctx, e.store, actor, id)
	if err != nil {
		return nil, err
	}
	return e.store.ListComments(ctx, task.ID)
}

// AddChecklistItem appends an unchecked item to the task's checklist
func (e *Engine) AddChecklistItem(ctx context.Context, actor *auth.Identity, id int64, title string) (*ChecklistItem, error) {
	title, err := validateTitle(title)
	if err != nil {
		return nil, err
	}
	task, err := e.load(ctx, e.store, actor, id)
	if err != nil {
		return nil, err
	}

	item := &ChecklistItem{TaskID: task.ID, Title: title, CreatedAt: e.now()}
	if err := e.store.AddChecklistItem(ctx, item); err != nil {
		return nil, err
	}
	e.record(ctx, actor, audit.ActionTaskUpdated, task, map[string]interface{}{"checklist_item_added": item.ID})
	return item, nil
}

// ToggleChecklistItem flips an item's completion, recording who checked it and when
func (e *Engine) ToggleChecklistItem(ctx context.Context, actor *auth.Identity, id, itemID int64) (*ChecklistItem, error) {
	now := e.now()
	var (
		task *Task
		item *ChecklistItem
	)
	err := database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		store := e.store.With(tx)
		var err error
		if task, err = e.load(ctx, store, actor, id); err != nil {
			return err
		}
		if item, err = store.GetChecklistItem(ctx, task.ID, itemID); err != nil {
			return err
		}

		item.IsCompleted = !item.IsCompleted
		if item.IsCompleted {
			completedBy := actor.UserID
			item.CompletedBy = &completedBy
			item.CompletedAt = &now
		} else {
			item.CompletedBy = nil
			item.CompletedAt = nil
		}
		return store.SetChecklistItemState(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	e.record(ctx, actor, audit.ActionTaskUpdated, task, map[string]interface{}{
		"checklist_item": item.ID,
		"completed":      item.IsCompleted,
	})
	return item, nil
}

// AddAttachment stores r as a blob and records its metadata on the task
func (e *Engine) AddAttachment(ctx context.Context, actor *auth.Identity, id int64, fileName, contentType string, r io.Reader) (*Attachment, error) {
	fileName = cleanFileName(fileName)
	if fileName == "" {
		return nil, apperrors.Validation("File name is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	task, err := e.load(ctx, e.store, actor, id)
	if err != nil {
		return nil, err
	}

	key := storage.NewKey(actor.OrgID, task.ID, fileName)
	size, err := e.blobs.Save(ctx, key, r, contentType)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to store attachment")
	}

	attachment := &Attachment{
		TaskID:      task.ID,
		UploadedBy:  actor.UserID,
		FileName:    fileName,
		ContentType: contentType,
		Size:        size,
		StorageKey:  key,
		CreatedAt:   e.now(),
	}
	if err := e.store.AddAttachment(ctx, attachment); err != nil {
		e.deleteBlobs(ctx, []string{key})
		return nil, err
	}

	e.record(ctx, actor, audit.ActionAttachmentAdded, task, map[string]interface{}{
		"attachment_id": attachment.ID,
		"file_name":     attachment.FileName,
		"size":          attachment.Size,
	})
	return attachment, nil
}

// OpenAttachment returns an attachment's metadata and content. The caller closes the reader.
func (e *Engine) OpenAttachment(ctx context.Context, actor *auth.Identity, id, attachmentID int64) (*Attachment, io.ReadCloser, error) {
	task, err := e.load(ctx, e.store, actor, id)
	if err != nil {
		return nil, nil, err
	}
	attachment, err := e.store.GetAttachment(ctx, task.ID, attachmentID)
	if err != nil {
		return nil, nil, err
	}

	rc, err := e.blobs.Open(ctx, attachment.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, apperrors.NotFound("Attachment content is missing")
		}
		return nil, nil, apperrors.Internal(err, "failed to open attachment")
	}
	return attachment, rc, nil
}

// DeleteAttachment removes an attachment's metadata, then its blob
func (e *Engine) DeleteAttachment(ctx context.Context, actor *auth.Identity, id, attachmentID int64) error {
	var (
		task       *Task
		attachment *Attachment
	)
	err := database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		store := e.store.With(tx)
		var err error
		if task, err = e.load(ctx, store, actor, id); err != nil {
			return err
		}
		if attachment, err = store.GetAttachment(ctx, task.ID, attachmentID); err != nil {
			return err
		}
		return store.DeleteAttachment(ctx, task.ID, attachment.ID)
	})
	if err != nil {
		return err
	}

	e.deleteBlobs(ctx, []string{attachment.StorageKey})
	e.record(ctx, actor, audit.ActionAttachmentRemoved, task, map[string]interface{}{
		"attachment_id": attachment.ID,
		"file_name":     attachment.FileName,
	})
	return nil
}

// deleteBlobs removes blobs concurrently. Failures are logged only.
func (e *Engine) deleteBlobs(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	logger := observability.FromContext(ctx)

	var g errgroup.Group
	g.SetLimit(4)
	for _, key := range keys {
		g.Go(func() error {
			if err := e.blobs.Delete(ctx, key); err != nil {
				logger.WithError(err).WithField("storage_key", key).Warn("Failed to delete attachment blob")
			}
			return nil
		})
	}
	g.Wait()
}

func (e *Engine) record(ctx context.Context, actor *auth.Identity, action audit.Action, task *Task, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["task_id"] = task.TaskID
	e.recorder.Record(ctx, audit.Entry{
		OrgID:      actor.OrgID,
		UserID:     audit.UserRef(actor.UserID),
		Action:     action,
		EntityType: audit.EntityTask,
		EntityID:   strconv.FormatInt(task.ID, 10),
		Details:    details,
	})
}

func (e *Engine) notify(ctx context.Context, event notify.EventType, actor *auth.Identity, task *Task, extra map[string]interface{}) {
	data := map[string]interface{}{
		"id":       task.ID,
		"task_id":  task.TaskID,
		"title":    task.Title,
		"status":   task.Status,
		"actor_id": actor.UserID,
	}
	for k, v := range extra {
		data[k] = v
	}
	e.notifier.Notify(ctx, notify.Event{Type: event, OrgID: task.OrgID, Data: data})
}

// checkOrgUsers fails unless every id is a user of the organization
func checkOrgUsers(ctx context.Context, store *Store, orgID int64, ids []int64) error {
	found, err := store.OrgUserIDs(ctx, orgID, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if !found[id] {
			return apperrors.Validation("User %d does not belong to this organization", id)
		}
	}
	return nil
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindPreconditionFailed:
		return "wrong_state"
	case apperrors.KindNotFound:
		return "not_found"
	case apperrors.KindValidation:
		return "invalid"
	default:
		return "error"
	}
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperrors.Validation("Title is required")
	}
	if len(title) > maxTitleLength {
		return "", apperrors.Validation("Title must be at most %d characters", maxTitleLength)
	}
	return title, nil
}

// normalizeTags trims tags and drops blanks, keeping order
func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	if len(out) > maxTags {
		return nil, apperrors.Validation("A task can have at most %d tags", maxTags)
	}
	return out, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func cleanFileName(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "." || name == "/" {
		return ""
	}
	return name
}
