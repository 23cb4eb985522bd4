package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/taskflow/pkg/apperrors"
	"github.com/platinummonkey/taskflow/pkg/database"
)

// ErrTaskIDTaken is returned by Create when the human task id already exists
var ErrTaskIDTaken = errors.New("task id already exists")

var errTaskNotFound = apperrors.NotFound("Task not found")

// Store handles task persistence. Every method that takes an orgID only
// touches rows of that organization.
type Store struct {
	q database.Querier
}

// NewStore creates a new task store
func NewStore(q database.Querier) *Store {
	return &Store{q: q}
}

// With returns a store running its queries on q
func (s *Store) With(q database.Querier) *Store {
	return &Store{q: q}
}

const taskColumns = `t.id, t.org_id, t.task_id, t.title, t.description, t.priority, t.status, t.category, t.tags,
	t.created_by, t.approver_id, t.due_date, t.start_date, t.completed_at, t.progress,
	t.submission_notes, t.approval_notes, t.rejection_reason, t.submission_count, t.created_at, t.updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task                                      Task
		tagsJSON                                  string
		approverID                                sql.NullInt64
		dueDate, startDate, completedAt           sql.NullTime
		submissionNotes, approvalNotes, rejection sql.NullString
	)
	err := row.Scan(
		&task.ID, &task.OrgID, &task.TaskID, &task.Title, &task.Description, &task.Priority, &task.Status,
		&task.Category, &tagsJSON, &task.CreatedBy, &approverID, &dueDate, &startDate, &completedAt,
		&task.Progress, &submissionNotes, &approvalNotes, &rejection, &task.SubmissionCount,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tagsJSON), &task.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if task.Tags == nil {
		task.Tags = []string{}
	}
	if approverID.Valid {
		task.ApproverID = &approverID.Int64
	}
	task.DueDate = timePtr(dueDate)
	task.StartDate = timePtr(startDate)
	task.CompletedAt = timePtr(completedAt)
	task.SubmissionNotes = stringPtr(submissionNotes)
	task.ApprovalNotes = stringPtr(approvalNotes)
	task.RejectionReason = stringPtr(rejection)
	return &task, nil
}

// Create inserts task and fills in its id and timestamps. A task_id
// collision returns ErrTaskIDTaken.
func (s *Store) Create(ctx context.Context, task *Task, now time.Time) error {
	tagsJSON, err := marshalTags(task.Tags)
	if err != nil {
		return err
	}

	err = s.q.QueryRowContext(ctx, `
		INSERT INTO tasks (org_id, task_id, title, description, priority, status, category, tags,
			created_by, due_date, progress, submission_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12, $13)
		RETURNING id
	`,
		task.OrgID, task.TaskID, task.Title, task.Description, task.Priority, task.Status, task.Category, tagsJSON,
		task.CreatedBy, nullTime(task.DueDate), task.Progress, now, now,
	).Scan(&task.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrTaskIDTaken
		}
		return fmt.Errorf("failed to create task: %w", err)
	}

	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

// Get returns a task of the organization
func (s *Store) Get(ctx context.Context, orgID, id int64) (*Task, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = $1 AND t.org_id = $2`, id, orgID)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// IsVisible reports whether userID created the task or is assigned to it
func (s *Store) IsVisible(ctx context.Context, taskID, userID int64) (bool, error) {
	var visible bool
	err := s.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tasks t
			WHERE t.id = $1 AND (
				t.created_by = $2
				OR EXISTS (SELECT 1 FROM task_assignments a WHERE a.task_id = t.id AND a.user_id = $2)
			)
		)
	`, taskID, userID).Scan(&visible)
	if err != nil {
		return false, fmt.Errorf("failed to check task visibility: %w", err)
	}
	return visible, nil
}

// List returns the organization's tasks matching filter, newest first
func (s *Store) List(ctx context.Context, orgID int64, filter Filter) ([]*Task, error) {
	conditions := []string{"t.org_id = $1"}
	args := []interface{}{orgID}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(args))))
	}

	if filter.Status != "" {
		add("t.status = ?", filter.Status)
	}
	if filter.Priority != "" {
		add("t.priority = ?", filter.Priority)
	}
	if filter.Category != "" {
		add("t.category = ?", filter.Category)
	}
	if filter.CreatedBy != nil {
		add("t.created_by = ?", *filter.CreatedBy)
	}
	if filter.AssigneeID != nil {
		add("EXISTS (SELECT 1 FROM task_assignments a WHERE a.task_id = t.id AND a.user_id = ?)", *filter.AssigneeID)
	}
	if filter.Search != "" {
		add("(LOWER(t.title) LIKE LOWER(?) OR LOWER(t.task_id) LIKE LOWER(?))", "%"+filter.Search+"%")
	}
	if filter.VisibleTo != nil {
		add("(t.created_by = ? OR EXISTS (SELECT 1 FROM task_assignments v WHERE v.task_id = t.id AND v.user_id = ?))", *filter.VisibleTo)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT %s
		FROM tasks t
		WHERE %s
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT $%d OFFSET $%d
	`, taskColumns, strings.Join(conditions, " AND "), len(args)-1, len(args))

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Update writes the editable fields of task
func (s *Store) Update(ctx context.Context, task *Task, now time.Time) error {
	tagsJSON, err := marshalTags(task.Tags)
	if err != nil {
		return err
	}

	var approverID interface{}
	if task.ApproverID != nil {
		approverID = *task.ApproverID
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE tasks
		SET title = $1, description = $2, priority = $3, category = $4, tags = $5, due_date = $6,
			progress = $7, status = $8, completed_at = $9, approver_id = $10, updated_at = $11
		WHERE id = $12 AND org_id = $13
	`,
		task.Title, task.Description, task.Priority, task.Category, tagsJSON, nullTime(task.DueDate),
		task.Progress, task.Status, nullTime(task.CompletedAt), approverID, now, task.ID, task.OrgID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if err := database.RequireOneRow(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errTaskNotFound
		}
		return err
	}
	task.UpdatedAt = now
	return nil
}

// ApplyTransition writes the workflow fields of task, but only while the
// stored status is still from. A status that moved on returns sql.ErrNoRows.
func (s *Store) ApplyTransition(ctx context.Context, task *Task, from Status, now time.Time) error {
	var approverID interface{}
	if task.ApproverID != nil {
		approverID = *task.ApproverID
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1, progress = $2, start_date = $3, completed_at = $4, approver_id = $5,
			submission_notes = $6, approval_notes = $7, rejection_reason = $8, submission_count = $9,
			updated_at = $10
		WHERE id = $11 AND org_id = $12 AND status = $13
	`,
		task.Status, task.Progress, nullTime(task.StartDate), nullTime(task.CompletedAt), approverID,
		nullString(task.SubmissionNotes), nullString(task.ApprovalNotes), nullString(task.RejectionReason),
		task.SubmissionCount, now, task.ID, task.OrgID, from,
	)
	if err != nil {
		return fmt.Errorf("failed to transition task: %w", err)
	}
	if err := database.RequireOneRow(result); err != nil {
		return err
	}
	task.UpdatedAt = now
	return nil
}

// Lock bumps updated_at, taking the row lock that serializes concurrent
// writers of the same task until the transaction ends
func (s *Store) Lock(ctx context.Context, orgID, id int64, now time.Time) error {
	result, err := s.q.ExecContext(ctx, `UPDATE tasks SET updated_at = $1 WHERE id = $2 AND org_id = $3`, now, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to lock task: %w", err)
	}
	if err := database.RequireOneRow(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errTaskNotFound
		}
		return err
	}
	return nil
}

// Delete removes the task and every row it owns
func (s *Store) Delete(ctx context.Context, orgID, id int64) error {
	for _, query := range []string{
		`DELETE FROM task_assignments WHERE task_id = $1`,
		`DELETE FROM task_comments WHERE task_id = $1`,
		`DELETE FROM task_attachments WHERE task_id = $1`,
		`DELETE FROM task_checklist_items WHERE task_id = $1`,
	} {
		if _, err := s.q.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("failed to delete task children: %w", err)
		}
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if err := database.RequireOneRow(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errTaskNotFound
		}
		return err
	}
	return nil
}

// OrgUserIDs returns which of ids are users of the organization
func (s *Store) OrgUserIDs(ctx context.Context, orgID int64, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	args := []interface{}{orgID}
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}

	rows, err := s.q.QueryContext(ctx,
		fmt.Sprintf(`SELECT id FROM users WHERE org_id = $1 AND id IN (%s)`, strings.Join(placeholders, ", ")),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to look up users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		found[id] = true
	}
	return found, rows.Err()
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tags: %w", err)
	}
	return string(data), nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
