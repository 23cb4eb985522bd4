package tasks

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskflow/pkg/apperrors"
	"github.com/platinummonkey/taskflow/pkg/audit"
	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/database"
	"github.com/platinummonkey/taskflow/pkg/directory"
	"github.com/platinummonkey/taskflow/pkg/notify"
	"github.com/platinummonkey/taskflow/pkg/rbac"
	"github.com/platinummonkey/taskflow/pkg/storage"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(ctx context.Context, event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memoryRecorder) Record(ctx context.Context, entry audit.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
}

func (m *memoryRecorder) actions() []audit.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Action
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	db        *sql.DB
	engine    *Engine
	directory *directory.Service
	blobs     *storage.FileSystemStore
	notifier  *recordingNotifier
	recorder  *memoryRecorder
	clock     time.Time
	orgID     int64
	owner     *auth.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := database.NewTestDB(t)

	blobs, err := storage.NewFileSystemStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		blobs:    blobs,
		notifier: &recordingNotifier{},
		recorder: &memoryRecorder{},
		clock:    time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	f.directory = directory.NewService(db, auth.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour), nil, nil, nil, directory.Options{})
	f.engine = NewEngine(db, blobs, f.notifier, f.recorder, nil)
	f.engine.now = func() time.Time { return f.clock }

	session, err := f.directory.Register(ctx, directory.RegisterRequest{
		OrganizationName:  "Acme",
		OrganizationEmail: "ops@acme.test",
		FirstName:         "Olive",
		LastName:          "Owner",
		Email:             "olive@acme.test",
		Password:          "correct-horse",
	})
	require.NoError(t, err)
	f.orgID = session.Organization.ID

	f.owner, err = f.directory.LoadIdentity(ctx, session.User.ID)
	require.NoError(t, err)
	return f
}

// member creates a user holding roleName and returns their identity
func (f *fixture) member(t *testing.T, email, roleName string) *auth.Identity {
	t.Helper()
	ctx := context.Background()
	role, err := rbac.NewStore(f.db).GetByName(ctx, f.orgID, roleName)
	require.NoError(t, err)

	user, err := f.directory.CreateUser(ctx, f.owner, directory.CreateUserRequest{
		Email:     email,
		FirstName: "Test",
		LastName:  "User",
		Password:  "password123",
		RoleID:    role.ID,
	})
	require.NoError(t, err)

	identity, err := f.directory.LoadIdentity(ctx, user.ID)
	require.NoError(t, err)
	return identity
}

func (f *fixture) createTask(t *testing.T, actor *auth.Identity, title string) *Detail {
	t.Helper()
	f.clock = f.clock.Add(time.Millisecond)
	detail, err := f.engine.Create(context.Background(), actor, CreateTaskRequest{Title: title})
	require.NoError(t, err)
	return detail
}

func TestAcmeScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	roles, err := rbac.NewStore(f.db).List(ctx, f.orgID)
	require.NoError(t, err)
	require.Len(t, roles, 4)
	for i, role := range roles {
		assert.Equal(t, i+1, role.Priority)
		assert.True(t, role.IsSystem)
	}
	assert.Equal(t, rbac.RoleSuperAdmin, f.owner.RoleName)

	created := f.createTask(t, f.owner, "Launch plan")
	assert.Equal(t, StatusToDo, created.Status)
	assert.Regexp(t, `^TASK-\d{6}$`, created.TaskID)

	task, err := f.engine.Start(ctx, f.owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, task.Status)
	require.NotNil(t, task.StartDate)
	assert.Equal(t, 10, task.Progress)

	task, err = f.engine.Submit(ctx, f.owner, created.ID, "done")
	require.NoError(t, err)
	assert.Equal(t, StatusUnderReview, task.Status)
	assert.Equal(t, 1, task.SubmissionCount)
	assert.Equal(t, 100, task.Progress)

	task, err = f.engine.Reject(ctx, f.owner, created.ID, "needs more work")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, task.Status)
	assert.Equal(t, 80, task.Progress)

	stored, err := f.engine.Get(ctx, f.owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, stored.Status)
	assert.Equal(t, 80, stored.Progress)
	require.NotNil(t, stored.SubmissionNotes)
	assert.Equal(t, "done", *stored.SubmissionNotes)
	require.NotNil(t, stored.RejectionReason)
	assert.Equal(t, "needs more work", *stored.RejectionReason)

	assert.Equal(t, []notify.EventType{notify.EventTaskSubmitted, notify.EventTaskRejected}, f.notifier.types())
	assert.Equal(t, []audit.Action{
		audit.ActionTaskCreated,
		audit.ActionTaskStarted,
		audit.ActionTaskSubmitted,
		audit.ActionTaskRejected,
	}, f.recorder.actions())
}

func TestTransitions_WrongState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, f.owner, "Write docs")

	tests := []struct {
		name    string
		call    func() (*Task, error)
		message string
	}{
		{"submit from to_do", func() (*Task, error) { return f.engine.Submit(ctx, f.owner, task.ID, "") }, "Task must be in progress to submit"},
		{"approve from to_do", func() (*Task, error) { return f.engine.Approve(ctx, f.owner, task.ID, "") }, "Task must be under review to approve"},
		{"reject from to_do", func() (*Task, error) { return f.engine.Reject(ctx, f.owner, task.ID, "nope") }, "Task must be under review to reject"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.call()
			require.Error(t, err)
			assert.Equal(t, apperrors.KindPreconditionFailed, apperrors.KindOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	_, err := f.engine.Start(ctx, f.owner, task.ID)
	require.NoError(t, err)
	_, err = f.engine.Start(ctx, f.owner, task.ID)
	assert.Equal(t, apperrors.KindPreconditionFailed, apperrors.KindOf(err), "start is not repeatable")

	t.Run("completed only through review", func(t *testing.T) {
		completed := StatusCompleted
		_, err := f.engine.Edit(ctx, f.owner, task.ID, UpdateTaskRequest{Status: &completed})
		assert.Equal(t, apperrors.KindPreconditionFailed, apperrors.KindOf(err))

		stored, err := f.engine.Get(ctx, f.owner, task.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusInProgress, stored.Status)
	})
}

func TestReject_RequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, f.owner, "Review me")
	_, err := f.engine.Start(ctx, f.owner, task.ID)
	require.NoError(t, err)
	_, err = f.engine.Submit(ctx, f.owner, task.ID, "")
	require.NoError(t, err)

	_, err = f.engine.Reject(ctx, f.owner, task.ID, "   ")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	stored, err := f.engine.Get(ctx, f.owner, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUnderReview, stored.Status)
	assert.Nil(t, stored.SubmissionNotes, "empty notes are stored as null")
}

func TestReject_ClampsProgressAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, f.owner, "Almost nothing done")
	_, err := f.engine.Start(ctx, f.owner, task.ID)
	require.NoError(t, err)
	_, err = f.engine.Submit(ctx, f.owner, task.ID, "")
	require.NoError(t, err)

	progress := 5
	_, err = f.engine.Edit(ctx, f.owner, task.ID, UpdateTaskRequest{Progress: &progress})
	require.NoError(t, err)

	rejected, err := f.engine.Reject(ctx, f.owner, task.ID, "start over")
	require.NoError(t, err)
	assert.Equal(t, 0, rejected.Progress)

	tooMuch := 101
	_, err = f.engine.Edit(ctx, f.owner, task.ID, UpdateTaskRequest{Progress: &tooMuch})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reviewer := f.member(t, "rita@acme.test", rbac.RoleAdmin)
	task := f.createTask(t, f.owner, "Ship it")

	_, err := f.engine.Start(ctx, f.owner, task.ID)
	require.NoError(t, err)
	_, err = f.engine.Submit(ctx, f.owner, task.ID, "ready")
	require.NoError(t, err)

	approved, err := f.engine.Approve(ctx, reviewer, task.ID, "looks good")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, approved.Status)
	assert.Equal(t, 100, approved.Progress)
	require.NotNil(t, approved.ApproverID)
	assert.Equal(t, reviewer.UserID, *approved.ApproverID)
	require.NotNil(t, approved.CompletedAt)
	assert.True(t, approved.CompletedAt.Equal(f.clock))
	require.NotNil(t, approved.ApprovalNotes)
	assert.Equal(t, "looks good", *approved.ApprovalNotes)

	_, err = f.engine.Reject(ctx, reviewer, task.ID, "too late")
	assert.Equal(t, apperrors.KindPreconditionFailed, apperrors.KindOf(err))

	t.Run("reopening clears completion", func(t *testing.T) {
		reopen := StatusInProgress
		reopened, err := f.engine.Edit(ctx, f.owner, task.ID, UpdateTaskRequest{Status: &reopen})
		require.NoError(t, err)
		assert.Equal(t, StatusInProgress, reopened.Status)
		assert.Nil(t, reopened.CompletedAt)
		assert.Nil(t, reopened.ApproverID)

		stored, err := f.engine.Get(ctx, f.owner, task.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.CompletedAt)
		assert.Nil(t, stored.ApproverID)
	})
}

func TestAssign_ReplacesSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.member(t, "a@acme.test", rbac.RoleUser)
	b := f.member(t, "b@acme.test", rbac.RoleUser)
	c := f.member(t, "c@acme.test", rbac.RoleUser)
	task := f.createTask(t, f.owner, "Pair on it")

	assignments, err := f.engine.Assign(ctx, f.owner, task.ID, []int64{a.UserID, b.UserID, a.UserID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a.UserID, b.UserID}, assigneeIDs(assignments))

	assignments, err = f.engine.Assign(ctx, f.owner, task.ID, []int64{c.UserID})
	require.NoError(t, err)
	assert.Equal(t, []int64{c.UserID}, assigneeIDs(assignments))
	assert.Equal(t, f.owner.UserID, assignments[0].AssignedBy)

	detail, err := f.engine.Get(ctx, f.owner, task.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{c.UserID}, assigneeIDs(detail.Assignments))

	assert.Contains(t, f.notifier.types(), notify.EventTaskAssigned)
}

func TestAssign_RejectsUsersOfOtherOrgs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.member(t, "a@acme.test", rbac.RoleUser)
	task := f.createTask(t, f.owner, "Scoped")

	_, err := f.engine.Assign(ctx, f.owner, task.ID, []int64{a.UserID})
	require.NoError(t, err)

	otherOrg := database.SeedOrg(t, f.db, "Globex")
	otherRole := database.SeedRole(t, f.db, otherOrg, "Staff", 3, `["view_tasks"]`)
	outsider := database.SeedUser(t, f.db, otherOrg, otherRole, "gina@globex.test")

	_, err = f.engine.Assign(ctx, f.owner, task.ID, []int64{outsider})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	detail, err := f.engine.Get(ctx, f.owner, task.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.UserID}, assigneeIDs(detail.Assignments), "failed assign leaves the previous set")
}

func TestAssign_ConcurrentReplacesNeverMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.member(t, "a@acme.test", rbac.RoleUser)
	b := f.member(t, "b@acme.test", rbac.RoleUser)
	c := f.member(t, "c@acme.test", rbac.RoleUser)
	task := f.createTask(t, f.owner, "Contended")

	first := []int64{a.UserID, b.UserID}
	second := []int64{c.UserID}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.engine.Assign(ctx, f.owner, task.ID, first)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.engine.Assign(ctx, f.owner, task.ID, second)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assignments, err := f.engine.Store().ListAssignments(ctx, task.ID)
	require.NoError(t, err)
	got := assigneeIDs(assignments)
	if !assert.ObjectsAreEqual(first, got) && !assert.ObjectsAreEqual(second, got) {
		t.Fatalf("final assignment set %v is neither %v nor %v", got, first, second)
	}
}

func TestVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := f.member(t, "wes@acme.test", rbac.RoleUser)
	require.False(t, rbac.HasPermission(worker, rbac.PermViewAllTasks))

	hidden := f.createTask(t, f.owner, "Board prep")
	own := f.createTask(t, worker, "My own task")

	_, err := f.engine.Get(ctx, worker, hidden.ID)
	assert.True(t, apperrors.IsNotFound(err), "tasks neither created by nor assigned to the caller read as not found")
	_, err = f.engine.Start(ctx, worker, hidden.ID)
	assert.True(t, apperrors.IsNotFound(err))

	listed, err := f.engine.List(ctx, worker, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{own.ID}, taskIDs(listed))

	_, err = f.engine.Assign(ctx, f.owner, hidden.ID, []int64{worker.UserID})
	require.NoError(t, err)

	listed, err = f.engine.List(ctx, worker, Filter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{own.ID, hidden.ID}, taskIDs(listed))

	started, err := f.engine.Start(ctx, worker, hidden.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, started.Status)

	all, err := f.engine.List(ctx, f.owner, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestList_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := f.member(t, "wes@acme.test", rbac.RoleUser)

	f.clock = f.clock.Add(time.Second)
	urgent, err := f.engine.Create(ctx, f.owner, CreateTaskRequest{
		Title:       "Fix outage",
		Priority:    PriorityUrgent,
		Category:    "ops",
		AssigneeIDs: []int64{worker.UserID},
	})
	require.NoError(t, err)
	f.clock = f.clock.Add(time.Second)
	docs, err := f.engine.Create(ctx, f.owner, CreateTaskRequest{Title: "Write runbook", Category: "docs"})
	require.NoError(t, err)
	_, err = f.engine.Start(ctx, f.owner, docs.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"everything newest first", Filter{}, []int64{docs.ID, urgent.ID}},
		{"by status", Filter{Status: StatusInProgress}, []int64{docs.ID}},
		{"by priority", Filter{Priority: PriorityUrgent}, []int64{urgent.ID}},
		{"by category", Filter{Category: "docs"}, []int64{docs.ID}},
		{"by assignee", Filter{AssigneeID: &worker.UserID}, []int64{urgent.ID}},
		{"by creator", Filter{CreatedBy: &f.owner.UserID}, []int64{docs.ID, urgent.ID}},
		{"search title", Filter{Search: "OUTAGE"}, []int64{urgent.ID}},
		{"search task id", Filter{Search: docs.TaskID}, []int64{docs.ID}},
		{"paged", Filter{Limit: 1, Offset: 1}, []int64{urgent.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.engine.List(ctx, f.owner, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, taskIDs(got))
		})
	}

	_, err = f.engine.List(ctx, f.owner, Filter{Status: "done"})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestCreate_TaskIDCollisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < taskIDAttempts; i++ {
		detail, err := f.engine.Create(ctx, f.owner, CreateTaskRequest{Title: fmt.Sprintf("Same millisecond %d", i)})
		require.NoError(t, err)
		ids = append(ids, detail.TaskID)
	}
	for i := 1; i < len(ids); i++ {
		assert.Equal(t, taskIDFor(f.clock, i), ids[i], "collision moves the suffix forward")
	}

	_, err := f.engine.Create(ctx, f.owner, CreateTaskRequest{Title: "One too many"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.member(t, "gus@acme.test", rbac.RoleGuest)

	_, err := f.engine.Create(ctx, f.owner, CreateTaskRequest{Title: "  "})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = f.engine.Create(ctx, f.owner, CreateTaskRequest{Title: "x", Priority: "whenever"})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = f.engine.Create(ctx, guest, CreateTaskRequest{Title: "x", AssigneeIDs: []int64{f.owner.UserID}})
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	detail, err := f.engine.Create(ctx, f.owner, CreateTaskRequest{Title: "Tagged", Tags: []string{" a ", "", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, detail.Tags)
	assert.Equal(t, PriorityMedium, detail.Priority)
}

func TestChecklistAndComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, f.owner, "Onboarding")

	first, err := f.engine.AddChecklistItem(ctx, f.owner, task.ID, "Laptop")
	require.NoError(t, err)
	second, err := f.engine.AddChecklistItem(ctx, f.owner, task.ID, "Badge")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Position)
	assert.Equal(t, 2, second.Position)

	toggled, err := f.engine.ToggleChecklistItem(ctx, f.owner, task.ID, first.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsCompleted)
	require.NotNil(t, toggled.CompletedBy)
	assert.Equal(t, f.owner.UserID, *toggled.CompletedBy)
	require.NotNil(t, toggled.CompletedAt)

	toggled, err = f.engine.ToggleChecklistItem(ctx, f.owner, task.ID, first.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsCompleted)
	assert.Nil(t, toggled.CompletedBy)
	assert.Nil(t, toggled.CompletedAt)

	other := f.createTask(t, f.owner, "Elsewhere")
	_, err = f.engine.ToggleChecklistItem(ctx, f.owner, other.ID, first.ID)
	assert.True(t, apperrors.IsNotFound(err), "items are scoped to their task")

	_, err = f.engine.AddComment(ctx, f.owner, task.ID, "")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	comment, err := f.engine.AddComment(ctx, f.owner, task.ID, "Welcome aboard")
	require.NoError(t, err)
	assert.Equal(t, "Olive Owner", comment.Author)

	comments, err := f.engine.ListComments(ctx, f.owner, task.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Welcome aboard", comments[0].Content)
	assert.Equal(t, "Olive Owner", comments[0].Author)
}

func TestAttachmentsAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, f.owner, "With files")

	attachment, err := f.engine.AddAttachment(ctx, f.owner, task.ID, "../../notes.txt", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", attachment.FileName)
	assert.Equal(t, int64(5), attachment.Size)

	meta, rc, err := f.engine.OpenAttachment(ctx, f.owner, task.ID, attachment.ID)
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
	assert.Equal(t, "text/plain", meta.ContentType)

	second, err := f.engine.AddAttachment(ctx, f.owner, task.ID, "data.bin", "", bytes.NewReader([]byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", second.ContentType)

	require.NoError(t, f.engine.DeleteAttachment(ctx, f.owner, task.ID, second.ID))
	_, err = f.blobs.Open(ctx, second.StorageKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.engine.AddComment(ctx, f.owner, task.ID, "bye")
	require.NoError(t, err)
	_, err = f.engine.AddChecklistItem(ctx, f.owner, task.ID, "clean up")
	require.NoError(t, err)

	require.NoError(t, f.engine.Delete(ctx, f.owner, task.ID))

	_, err = f.engine.Get(ctx, f.owner, task.ID)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = f.blobs.Open(ctx, attachment.StorageKey)
	assert.ErrorIs(t, err, storage.ErrNotFound, "blobs are removed with the task")

	for _, table := range []string{"task_comments", "task_attachments", "task_checklist_items", "task_assignments"} {
		var n int
		require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE task_id = $1`, task.ID).Scan(&n))
		assert.Zero(t, n, table)
	}
	assert.Contains(t, f.recorder.actions(), audit.ActionTaskDeleted)
}

func TestOrgScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, f.owner, "Acme only")

	outsider := &auth.Identity{
		UserID:      f.owner.UserID,
		OrgID:       f.orgID + 100,
		RoleName:    rbac.RoleSuperAdmin,
		Permissions: rbac.Keys(),
	}
	_, err := f.engine.Get(ctx, outsider, task.ID)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = f.engine.Start(ctx, outsider, task.ID)
	assert.True(t, apperrors.IsNotFound(err))
	err = f.engine.Delete(ctx, outsider, task.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func assigneeIDs(assignments []*Assignment) []int64 {
	ids := make([]int64, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.UserID)
	}
	return ids
}

func taskIDs(tasks []*Task) []int64 {
	ids := make([]int64, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	return ids
}
