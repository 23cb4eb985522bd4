package audit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskflow/pkg/contextkeys"
	"github.com/platinummonkey/taskflow/pkg/database"
	"github.com/platinummonkey/taskflow/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestDBRecorder_RecordAndList(t *testing.T) {
	db := database.NewTestDB(t)
	orgID := database.SeedOrg(t, db, "Acme")
	otherOrg := database.SeedOrg(t, db, "Globex")
	roleID := database.SeedRole(t, db, orgID, "Admin", 2, `[]`)
	userID := database.SeedUser(t, db, orgID, roleID, "owner@acme.test")

	rec := NewDBRecorder(db, nil, testLogger())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	rec.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	ctx := contextkeys.WithRequestID(context.Background(), "req-1")
	rec.Record(ctx, Entry{
		OrgID: orgID, UserID: UserRef(userID), Action: ActionTaskCreated,
		EntityType: EntityTask, EntityID: "TASK-000001",
		Details: map[string]interface{}{"title": "Write report"},
	})
	rec.Record(ctx, Entry{
		OrgID: orgID, UserID: UserRef(userID), Action: ActionTaskStarted,
		EntityType: EntityTask, EntityID: "TASK-000001",
	})
	rec.Record(context.Background(), Entry{
		OrgID: otherOrg, Action: ActionRoleCreated, EntityType: EntityRole, EntityID: "9",
	})

	entries, err := rec.List(context.Background(), orgID, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2, "other organizations' activity is not visible")

	assert.Equal(t, ActionTaskStarted, entries[0].Action, "newest first")
	assert.Equal(t, ActionTaskCreated, entries[1].Action)
	assert.Equal(t, "owner@acme.test", entries[1].UserEmail)
	assert.Equal(t, "req-1", entries[1].RequestID)
	assert.Equal(t, "Write report", entries[1].Details["title"])

	filtered, err := rec.List(context.Background(), orgID, Filter{Action: ActionTaskCreated})
	require.NoError(t, err)
	require.Len(t, filtered, 1)

	since := base.Add(90 * time.Second)
	recent, err := rec.List(context.Background(), orgID, Filter{Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, ActionTaskStarted, recent[0].Action)

	paged, err := rec.List(context.Background(), orgID, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, ActionTaskCreated, paged[0].Action)
}

func TestDBRecorder_Purge(t *testing.T) {
	db := database.NewTestDB(t)
	orgID := database.SeedOrg(t, db, "Acme")

	rec := NewDBRecorder(db, nil, testLogger())
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return old }
	rec.Record(context.Background(), Entry{OrgID: orgID, Action: ActionUserLogin, EntityType: EntityUser, EntityID: "1"})

	rec.now = func() time.Time { return old.AddDate(1, 0, 0) }
	rec.Record(context.Background(), Entry{OrgID: orgID, Action: ActionUserLogin, EntityType: EntityUser, EntityID: "1"})

	n, err := rec.Purge(context.Background(), old.AddDate(0, 6, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := rec.List(context.Background(), orgID, Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDBRecorder_RecordSwallowsErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	rec := NewDBRecorder(db, nil, observability.NewLogger(observability.WarnLevel, &buf))

	mock.ExpectExec("INSERT INTO activity_logs").WillReturnError(errors.New("disk full"))

	assert.NotPanics(t, func() {
		rec.Record(context.Background(), Entry{OrgID: 1, Action: ActionTaskDeleted, EntityType: EntityTask})
	})
	assert.Contains(t, buf.String(), "failed to record activity")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBRecorder_RecordIsBoundedByTimeout(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	rec := NewDBRecorder(db, nil, observability.NewLogger(observability.WarnLevel, &buf))
	rec.writeTimeout = 20 * time.Millisecond

	mock.ExpectExec("INSERT INTO activity_logs").
		WillDelayFor(2 * time.Second).
		WillReturnResult(sqlmock.NewResult(1, 1))

	start := time.Now()
	rec.Record(context.Background(), Entry{OrgID: 1, Action: ActionTaskCreated, EntityType: EntityTask})
	assert.Less(t, time.Since(start), time.Second, "a slow insert is abandoned")
	assert.Contains(t, buf.String(), "failed to record activity")
}

func TestDBRecorder_RecordSurvivesCanceledRequest(t *testing.T) {
	db := database.NewTestDB(t)
	orgID := database.SeedOrg(t, db, "Acme")
	rec := NewDBRecorder(db, nil, testLogger())

	ctx, cancel := context.WithCancel(contextkeys.WithRequestID(context.Background(), "req-gone"))
	cancel()
	rec.Record(ctx, Entry{OrgID: orgID, Action: ActionTaskDeleted, EntityType: EntityTask, EntityID: "TASK-000001"})

	entries, err := rec.List(context.Background(), orgID, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-gone", entries[0].RequestID)
}

func TestExport(t *testing.T) {
	entries := []*Entry{{
		ID: 1, OrgID: 1, UserID: UserRef(7), UserEmail: "a@acme.test",
		Action: ActionTaskApproved, EntityType: EntityTask, EntityID: "TASK-000002",
		Details:   map[string]interface{}{"notes": "ok"},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Export(&buf, entries, ExportFormatCSV))
		out := buf.String()
		assert.Contains(t, out, "ID,CreatedAt,Action")
		assert.Contains(t, out, "task.approved")
		assert.Contains(t, out, "2026-03-01T12:00:00Z")
	})

	t.Run("ndjson", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Export(&buf, append(entries, entries[0]), ExportFormatNDJSON))
		assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Error(t, Export(io.Discard, entries, "xml"))
	})
}
