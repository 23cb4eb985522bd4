package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinummonkey/taskflow/pkg/observability"
)

var testDBCounter int64

// NewTestDB returns a migrated in-memory SQLite database that is closed when the test ends.
// Foreign keys are enforced so cascades behave like PostgreSQL.
func NewTestDB(t testing.TB) *sql.DB {
	t.Helper()

	n := atomic.AddInt64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:taskflow_test_%d?mode=memory&cache=private&_foreign_keys=1", n)

	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	t.Cleanup(func() { db.Close() })

	if err := Migrate(context.Background(), db, DriverSQLite, observability.NewLogger(observability.ErrorLevel, io.Discard)); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// SeedOrg inserts an active organization and returns its id
func SeedOrg(t testing.TB, db *sql.DB, name string) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := db.QueryRow(
		`INSERT INTO organizations (name, email, status, created_at, updated_at) VALUES ($1, $2, 'active', $3, $4) RETURNING id`,
		name, name+"@example.com", now, now,
	).Scan(&id)
	if err != nil {
		t.Fatalf("failed to seed org: %v", err)
	}
	return id
}

// SeedRole inserts a custom role with the given permissions JSON
func SeedRole(t testing.TB, db *sql.DB, orgID int64, name string, priority int, permissionsJSON string) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := db.QueryRow(
		`INSERT INTO roles (org_id, name, priority, permissions, is_system, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 'active', $6, $7) RETURNING id`,
		orgID, name, priority, permissionsJSON, false, now, now,
	).Scan(&id)
	if err != nil {
		t.Fatalf("failed to seed role: %v", err)
	}
	return id
}

// SeedUser inserts an active user with an unusable password hash
func SeedUser(t testing.TB, db *sql.DB, orgID, roleID int64, email string) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := db.QueryRow(
		`INSERT INTO users (org_id, email, first_name, last_name, password_hash, role_id, status, created_at, updated_at)
		 VALUES ($1, $2, 'Test', 'User', 'x', $3, 'active', $4, $5) RETURNING id`,
		orgID, email, roleID, now, now,
	).Scan(&id)
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return id
}
