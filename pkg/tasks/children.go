package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/taskflow/pkg/apperrors"
	"github.com/platinummonkey/taskflow/pkg/database"
)

// ReplaceAssignments deletes every assignment of the task and inserts one
// per user id. Callers run it inside a transaction.
func (s *Store) ReplaceAssignments(ctx context.Context, taskID int64, userIDs []int64, assignedBy int64, now time.Time) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM task_assignments WHERE task_id = $1`, taskID); err != nil {
		return fmt.Errorf("failed to clear assignments: %w", err)
	}
	for _, userID := range userIDs {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO task_assignments (task_id, user_id, assigned_by, assigned_at)
			VALUES ($1, $2, $3, $4)
		`, taskID, userID, assignedBy, now)
		if err != nil {
			return fmt.Errorf("failed to assign user %d: %w", userID, err)
		}
	}
	return nil
}

// ListAssignments returns the task's assignees ordered by user id
func (s *Store) ListAssignments(ctx context.Context, taskID int64) ([]*Assignment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT a.task_id, a.user_id, u.email, u.first_name, u.last_name, a.assigned_by, a.assigned_at
		FROM task_assignments a
		JOIN users u ON u.id = a.user_id
		WHERE a.task_id = $1
		ORDER BY a.user_id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	assignments := []*Assignment{}
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.TaskID, &a.UserID, &a.Email, &a.FirstName, &a.LastName, &a.AssignedBy, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, &a)
	}
	return assignments, rows.Err()
}

// AddComment inserts comment and fills in its id
func (s *Store) AddComment(ctx context.Context, comment *Comment) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO task_comments (task_id, user_id, content, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, comment.TaskID, comment.UserID, comment.Content, comment.CreatedAt).Scan(&comment.ID)
	if err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}
	return nil
}

// ListComments returns the task's comments, oldest first
func (s *Store) ListComments(ctx context.Context, taskID int64) ([]*Comment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT c.id, c.task_id, c.user_id, u.first_name || ' ' || u.last_name, c.content, c.created_at
		FROM task_comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.task_id = $1
		ORDER BY c.created_at, c.id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := []*Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.UserID, &c.Author, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

const attachmentColumns = `id, task_id, uploaded_by, file_name, content_type, size_bytes, storage_key, created_at`

func scanAttachment(row rowScanner) (*Attachment, error) {
	var a Attachment
	err := row.Scan(&a.ID, &a.TaskID, &a.UploadedBy, &a.FileName, &a.ContentType, &a.Size, &a.StorageKey, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AddAttachment inserts attachment metadata and fills in its id
func (s *Store) AddAttachment(ctx context.Context, a *Attachment) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO task_attachments (task_id, uploaded_by, file_name, content_type, size_bytes, storage_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, a.TaskID, a.UploadedBy, a.FileName, a.ContentType, a.Size, a.StorageKey, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to add attachment: %w", err)
	}
	return nil
}

// GetAttachment returns one attachment of the task
func (s *Store) GetAttachment(ctx context.Context, taskID, attachmentID int64) (*Attachment, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+attachmentColumns+` FROM task_attachments WHERE id = $1 AND task_id = $2`,
		attachmentID, taskID,
	)
	a, err := scanAttachment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("Attachment not found")
		}
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return a, nil
}

// ListAttachments returns the task's attachments, oldest first
func (s *Store) ListAttachments(ctx context.Context, taskID int64) ([]*Attachment, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+attachmentColumns+` FROM task_attachments WHERE task_id = $1 ORDER BY created_at, id`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	attachments := []*Attachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

// DeleteAttachment removes attachment metadata. The blob is the caller's concern.
func (s *Store) DeleteAttachment(ctx context.Context, taskID, attachmentID int64) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM task_attachments WHERE id = $1 AND task_id = $2`, attachmentID, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	if err := database.RequireOneRow(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("Attachment not found")
		}
		return err
	}
	return nil
}

const checklistColumns = `id, task_id, title, is_completed, position, completed_by, completed_at, created_at`

func scanChecklistItem(row rowScanner) (*ChecklistItem, error) {
	var (
		item        ChecklistItem
		completedBy sql.NullInt64
		completedAt sql.NullTime
	)
	err := row.Scan(&item.ID, &item.TaskID, &item.Title, &item.IsCompleted, &item.Position, &completedBy, &completedAt, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	if completedBy.Valid {
		item.CompletedBy = &completedBy.Int64
	}
	item.CompletedAt = timePtr(completedAt)
	return &item, nil
}

// AddChecklistItem appends item after the task's last checklist item
func (s *Store) AddChecklistItem(ctx context.Context, item *ChecklistItem) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO task_checklist_items (task_id, title, is_completed, position, created_at)
		VALUES ($1, $2, $3, (SELECT COALESCE(MAX(position), 0) + 1 FROM task_checklist_items WHERE task_id = $1), $4)
		RETURNING id, position
	`, item.TaskID, item.Title, false, item.CreatedAt).Scan(&item.ID, &item.Position)
	if err != nil {
		return fmt.Errorf("failed to add checklist item: %w", err)
	}
	return nil
}

// GetChecklistItem returns one checklist item of the task
func (s *Store) GetChecklistItem(ctx context.Context, taskID, itemID int64) (*ChecklistItem, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+checklistColumns+` FROM task_checklist_items WHERE id = $1 AND task_id = $2`,
		itemID, taskID,
	)
	item, err := scanChecklistItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("Checklist item not found")
		}
		return nil, fmt.Errorf("failed to get checklist item: %w", err)
	}
	return item, nil
}

// SetChecklistItemState writes the completion fields of item
func (s *Store) SetChecklistItemState(ctx context.Context, item *ChecklistItem) error {
	var completedBy interface{}
	if item.CompletedBy != nil {
		completedBy = *item.CompletedBy
	}
	_, err := s.q.ExecContext(ctx, `
		UPDATE task_checklist_items SET is_completed = $1, completed_by = $2, completed_at = $3
		WHERE id = $4 AND task_id = $5
	`, item.IsCompleted, completedBy, nullTime(item.CompletedAt), item.ID, item.TaskID)
	if err != nil {
		return fmt.Errorf("failed to update checklist item: %w", err)
	}
	return nil
}

// ListChecklist returns the task's checklist in position order
func (s *Store) ListChecklist(ctx context.Context, taskID int64) ([]*ChecklistItem, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+checklistColumns+` FROM task_checklist_items WHERE task_id = $1 ORDER BY position, id`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list checklist: %w", err)
	}
	defer rows.Close()

	items := []*ChecklistItem{}
	for rows.Next() {
		item, err := scanChecklistItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checklist item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// AttachmentKeys returns the storage keys of every attachment of the task
func (s *Store) AttachmentKeys(ctx context.Context, taskID int64) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT storage_key FROM task_attachments WHERE task_id = $1`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachment keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan attachment key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// GetAggregate returns task together with its assignments, comments,
// attachments and checklist. The child queries run concurrently, so s must
// be bound to the pool rather than a transaction.
func (s *Store) GetAggregate(ctx context.Context, task *Task) (*Detail, error) {
	detail := &Detail{Task: task}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		detail.Assignments, err = s.ListAssignments(ctx, task.ID)
		return err
	})
	g.Go(func() (err error) {
		detail.Comments, err = s.ListComments(ctx, task.ID)
		return err
	})
	g.Go(func() (err error) {
		detail.Attachments, err = s.ListAttachments(ctx, task.ID)
		return err
	})
	g.Go(func() (err error) {
		detail.Checklist, err = s.ListChecklist(ctx, task.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return detail, nil
}
