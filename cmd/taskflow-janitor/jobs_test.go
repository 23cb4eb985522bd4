package main

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskflow/pkg/database"
	"github.com/platinummonkey/taskflow/pkg/observability"
)

func TestJanitor_RunAll(t *testing.T) {
	db := database.NewTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	orgID := database.SeedOrg(t, db, "Acme")
	roleID := database.SeedRole(t, db, orgID, "User", 3, `["view_tasks"]`)
	expired := database.SeedUser(t, db, orgID, roleID, "expired@acme.test")
	locked := database.SeedUser(t, db, orgID, roleID, "locked@acme.test")

	_, err := db.Exec(`UPDATE users SET locked_until = $1 WHERE id = $2`, now.Add(-time.Minute), expired)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE users SET locked_until = $1 WHERE id = $2`, now.Add(time.Hour), locked)
	require.NoError(t, err)

	for _, createdAt := range []time.Time{now.AddDate(0, 0, -120), now.AddDate(0, 0, -10)} {
		_, err := db.Exec(`
			INSERT INTO activity_logs (org_id, action, entity_type, entity_id, created_at)
			VALUES ($1, 'user.login', 'user', '1', $2)
		`, orgID, createdAt)
		require.NoError(t, err)
	}

	j := newJanitor(db, 90*24*time.Hour, observability.NewLogger(observability.ErrorLevel, io.Discard))
	j.now = func() time.Time { return now }

	require.NoError(t, j.runAll(ctx))

	var remaining int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM activity_logs`).Scan(&remaining))
	assert.Equal(t, 1, remaining)

	var stillLocked int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users WHERE locked_until IS NOT NULL`).Scan(&stillLocked))
	assert.Equal(t, 1, stillLocked, "only the future lockout survives")
}

func TestJanitor_ZeroRetentionKeepsActivity(t *testing.T) {
	db := database.NewTestDB(t)
	orgID := database.SeedOrg(t, db, "Acme")
	_, err := db.Exec(`
		INSERT INTO activity_logs (org_id, action, entity_type, entity_id, created_at)
		VALUES ($1, 'user.login', 'user', '1', $2)
	`, orgID, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	j := newJanitor(db, 0, observability.NewLogger(observability.ErrorLevel, io.Discard))
	require.NoError(t, j.purgeActivity(context.Background()))

	var remaining int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM activity_logs`).Scan(&remaining))
	assert.Equal(t, 1, remaining)
}

func TestCronLoggerFields(t *testing.T) {
	fields := kv([]interface{}{"entry", 3, "next", "soon", "dangling"})
	assert.Equal(t, map[string]interface{}{"entry": 3, "next": "soon"}, fields)
}
