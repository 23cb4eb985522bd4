package tasks

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskflow/pkg/apperrors"
	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/rbac"
)

var taskRowColumns = []string{
	"id", "org_id", "task_id", "title", "description", "priority", "status", "category", "tags",
	"created_by", "approver_id", "due_date", "start_date", "completed_at", "progress",
	"submission_notes", "approval_notes", "rejection_reason", "submission_count", "created_at", "updated_at",
}

func taskRow(status Status, progress int) *sqlmock.Rows {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(taskRowColumns).AddRow(
		7, 1, "TASK-000001", "Mocked", "", "medium", string(status), "", `["a"]`,
		2, nil, nil, nil, nil, progress,
		nil, nil, nil, 0, now, now,
	)
}

func mockEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewEngine(db, nil, nil, nil, nil), mock
}

var admin = &auth.Identity{UserID: 2, OrgID: 1, RoleName: rbac.RoleAdmin, Permissions: []string{rbac.PermViewAllTasks}}

func TestTransition_LosesRaceToConcurrentChange(t *testing.T) {
	engine, mock := mockEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks t WHERE t.id = $1 AND t.org_id = $2")).
		WithArgs(int64(7), int64(1)).
		WillReturnRows(taskRow(StatusToDo, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := engine.Start(context.Background(), admin, 7)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPreconditionFailed, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "Task must be to do to start")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssign_RollsBackOnInsertFailure(t *testing.T) {
	engine, mock := mockEngine(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks SET updated_at")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks t WHERE t.id = $1 AND t.org_id = $2")).
		WillReturnRows(taskRow(StatusInProgress, 40))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users WHERE org_id = $1 AND id IN ($2, $3)")).
		WithArgs(int64(1), int64(3), int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM task_assignments WHERE task_id = $1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO task_assignments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO task_assignments")).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err := engine.Assign(context.Background(), admin, 7, []int64{3, 4})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet(), "the delete is rolled back with the failed insert")
}

func TestStore_GetNotFound(t *testing.T) {
	engine, mock := mockEngine(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks t WHERE t.id = $1 AND t.org_id = $2")).
		WillReturnRows(sqlmock.NewRows(taskRowColumns))

	_, err := engine.Store().Get(context.Background(), 1, 99)
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskIDFor(t *testing.T) {
	at := time.UnixMilli(1_767_225_600_123)

	assert.Equal(t, "TASK-600123", taskIDFor(at, 0))
	assert.Equal(t, "TASK-600124", taskIDFor(at, 1))
	assert.Equal(t, "TASK-000000", taskIDFor(time.UnixMilli(1_999_999), 1), "suffix wraps at one million")
}
