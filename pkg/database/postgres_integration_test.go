//go:build integration
// +build integration

package database

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/taskflow/pkg/config"
	"github.com/platinummonkey/taskflow/pkg/observability"
)

// TestPostgresMigrations runs the PostgreSQL dialect against a real server
func TestPostgresMigrations(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("taskflow_test"),
		postgres.WithUsername("taskflow"),
		postgres.WithPassword("taskflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("Docker not available: %v", err)
	}
	defer container.Terminate(ctx)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	manager, err := Open(ctx, config.DatabaseConfig{
		Driver:       DriverPostgres,
		URL:          dsn,
		MaxOpenConns: 5,
	}, logger)
	require.NoError(t, err)
	defer manager.Close()

	db := manager.Primary()
	require.NoError(t, Migrate(ctx, db, DriverPostgres, logger))
	require.NoError(t, Migrate(ctx, db, DriverPostgres, logger), "second run must be a no-op")

	orgID := SeedOrg(t, db, "acme")
	_, err = db.ExecContext(ctx,
		`INSERT INTO organizations (name, email, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		"acme", "dup@example.com", time.Now(), time.Now())
	assert.True(t, IsUniqueViolation(err))

	roleID := SeedRole(t, db, orgID, "Member", 3, `["view_tasks"]`)
	userID := SeedUser(t, db, orgID, roleID, "member@acme.test")
	assert.NotZero(t, userID)

	_, err = db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	assert.True(t, IsForeignKeyViolation(err), "a role held by a user cannot be removed")
}
