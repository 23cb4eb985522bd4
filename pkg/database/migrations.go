package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/taskflow/pkg/observability"
)

// Migration is one schema change, written once per supported dialect
type Migration struct {
	Version     int
	Description string
	Postgres    string
	SQLite      string
}

func (m Migration) sqlFor(driver string) string {
	if driver == DriverSQLite {
		return m.SQLite
	}
	return m.Postgres
}

// Migrations returns every schema migration in order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create organizations, roles and users",
			Postgres: `
				CREATE TABLE IF NOT EXISTS organizations (
					id BIGSERIAL PRIMARY KEY,
					name TEXT NOT NULL UNIQUE,
					email TEXT NOT NULL UNIQUE,
					status TEXT NOT NULL DEFAULT 'active',
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					org_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					color TEXT NOT NULL DEFAULT '',
					priority INT NOT NULL,
					permissions JSONB NOT NULL DEFAULT '[]',
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					status TEXT NOT NULL DEFAULT 'active',
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL,
					UNIQUE (org_id, name)
				);

				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					org_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					email TEXT NOT NULL UNIQUE,
					first_name TEXT NOT NULL DEFAULT '',
					last_name TEXT NOT NULL DEFAULT '',
					password_hash TEXT NOT NULL,
					role_id BIGINT NOT NULL REFERENCES roles(id),
					status TEXT NOT NULL DEFAULT 'active',
					failed_attempts INT NOT NULL DEFAULT 0,
					locked_until TIMESTAMPTZ,
					last_login TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_users_org ON users(org_id);
				CREATE INDEX IF NOT EXISTS idx_users_role ON users(role_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS organizations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE,
					email TEXT NOT NULL UNIQUE,
					status TEXT NOT NULL DEFAULT 'active',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE TABLE IF NOT EXISTS roles (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					org_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					color TEXT NOT NULL DEFAULT '',
					priority INTEGER NOT NULL,
					permissions TEXT NOT NULL DEFAULT '[]',
					is_system BOOLEAN NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'active',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE (org_id, name)
				);

				CREATE TABLE IF NOT EXISTS users (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					org_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					email TEXT NOT NULL UNIQUE,
					first_name TEXT NOT NULL DEFAULT '',
					last_name TEXT NOT NULL DEFAULT '',
					password_hash TEXT NOT NULL,
					role_id INTEGER NOT NULL REFERENCES roles(id),
					status TEXT NOT NULL DEFAULT 'active',
					failed_attempts INTEGER NOT NULL DEFAULT 0,
					locked_until TIMESTAMP,
					last_login TIMESTAMP,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_users_org ON users(org_id);
				CREATE INDEX IF NOT EXISTS idx_users_role ON users(role_id);
			`,
		},
		{
			Version:     2,
			Description: "Create groups and memberships",
			Postgres: `
				CREATE TABLE IF NOT EXISTS org_groups (
					id BIGSERIAL PRIMARY KEY,
					org_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					parent_group_id BIGINT REFERENCES org_groups(id),
					group_lead_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
					type TEXT NOT NULL DEFAULT 'team',
					status TEXT NOT NULL DEFAULT 'active',
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL,
					UNIQUE (org_id, name)
				);

				CREATE TABLE IF NOT EXISTS group_members (
					group_id BIGINT NOT NULL REFERENCES org_groups(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					added_at TIMESTAMPTZ NOT NULL,
					PRIMARY KEY (group_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_org_groups_parent ON org_groups(parent_group_id);
				CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members(user_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS org_groups (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					org_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					parent_group_id INTEGER REFERENCES org_groups(id),
					group_lead_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
					type TEXT NOT NULL DEFAULT 'team',
					status TEXT NOT NULL DEFAULT 'active',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE (org_id, name)
				);

				CREATE TABLE IF NOT EXISTS group_members (
					group_id INTEGER NOT NULL REFERENCES org_groups(id) ON DELETE CASCADE,
					user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					added_at TIMESTAMP NOT NULL,
					PRIMARY KEY (group_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_org_groups_parent ON org_groups(parent_group_id);
				CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members(user_id);
			`,
		},
		{
			Version:     3,
			Description: "Create tasks and task children",
			Postgres: `
				CREATE TABLE IF NOT EXISTS tasks (
					id BIGSERIAL PRIMARY KEY,
					org_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					task_id TEXT NOT NULL UNIQUE,
					title TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					priority TEXT NOT NULL DEFAULT 'medium',
					status TEXT NOT NULL DEFAULT 'to_do',
					category TEXT NOT NULL DEFAULT '',
					tags JSONB NOT NULL DEFAULT '[]',
					created_by BIGINT NOT NULL REFERENCES users(id),
					approver_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
					due_date TIMESTAMPTZ,
					start_date TIMESTAMPTZ,
					completed_at TIMESTAMPTZ,
					progress INT NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
					submission_notes TEXT,
					approval_notes TEXT,
					rejection_reason TEXT,
					submission_count INT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE TABLE IF NOT EXISTS task_assignments (
					task_id BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					assigned_by BIGINT NOT NULL,
					assigned_at TIMESTAMPTZ NOT NULL,
					PRIMARY KEY (task_id, user_id)
				);

				CREATE TABLE IF NOT EXISTS task_comments (
					id BIGSERIAL PRIMARY KEY,
					task_id BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					content TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE TABLE IF NOT EXISTS task_attachments (
					id BIGSERIAL PRIMARY KEY,
					task_id BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
					uploaded_by BIGINT NOT NULL,
					file_name TEXT NOT NULL,
					content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
					size_bytes BIGINT NOT NULL DEFAULT 0,
					storage_key TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE TABLE IF NOT EXISTS task_checklist_items (
					id BIGSERIAL PRIMARY KEY,
					task_id BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
					title TEXT NOT NULL,
					is_completed BOOLEAN NOT NULL DEFAULT FALSE,
					position INT NOT NULL DEFAULT 0,
					completed_by BIGINT,
					completed_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_tasks_org_status ON tasks(org_id, status);
				CREATE INDEX IF NOT EXISTS idx_tasks_created_by ON tasks(created_by);
				CREATE INDEX IF NOT EXISTS idx_task_assignments_user ON task_assignments(user_id);
				CREATE INDEX IF NOT EXISTS idx_task_comments_task ON task_comments(task_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS tasks (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					org_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					task_id TEXT NOT NULL UNIQUE,
					title TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					priority TEXT NOT NULL DEFAULT 'medium',
					status TEXT NOT NULL DEFAULT 'to_do',
					category TEXT NOT NULL DEFAULT '',
					tags TEXT NOT NULL DEFAULT '[]',
					created_by INTEGER NOT NULL REFERENCES users(id),
					approver_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
					due_date TIMESTAMP,
					start_date TIMESTAMP,
					completed_at TIMESTAMP,
					progress INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
					submission_notes TEXT,
					approval_notes TEXT,
					rejection_reason TEXT,
					submission_count INTEGER NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE TABLE IF NOT EXISTS task_assignments (
					task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
					user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					assigned_by INTEGER NOT NULL,
					assigned_at TIMESTAMP NOT NULL,
					PRIMARY KEY (task_id, user_id)
				);

				CREATE TABLE IF NOT EXISTS task_comments (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
					user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					content TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL
				);

				CREATE TABLE IF NOT EXISTS task_attachments (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
					uploaded_by INTEGER NOT NULL,
					file_name TEXT NOT NULL,
					content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
					size_bytes INTEGER NOT NULL DEFAULT 0,
					storage_key TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL
				);

				CREATE TABLE IF NOT EXISTS task_checklist_items (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
					title TEXT NOT NULL,
					is_completed BOOLEAN NOT NULL DEFAULT 0,
					position INTEGER NOT NULL DEFAULT 0,
					completed_by INTEGER,
					completed_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_tasks_org_status ON tasks(org_id, status);
				CREATE INDEX IF NOT EXISTS idx_tasks_created_by ON tasks(created_by);
				CREATE INDEX IF NOT EXISTS idx_task_assignments_user ON task_assignments(user_id);
				CREATE INDEX IF NOT EXISTS idx_task_comments_task ON task_comments(task_id);
			`,
		},
		{
			Version:     4,
			Description: "Create activity log",
			Postgres: `
				CREATE TABLE IF NOT EXISTS activity_logs (
					id BIGSERIAL PRIMARY KEY,
					org_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					user_id BIGINT,
					action TEXT NOT NULL,
					entity_type TEXT NOT NULL,
					entity_id TEXT NOT NULL DEFAULT '',
					details JSONB,
					request_id TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_activity_logs_org_created ON activity_logs(org_id, created_at DESC);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS activity_logs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					org_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					user_id INTEGER,
					action TEXT NOT NULL,
					entity_type TEXT NOT NULL,
					entity_id TEXT NOT NULL DEFAULT '',
					details TEXT,
					request_id TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_activity_logs_org_created ON activity_logs(org_id, created_at);
			`,
		},
	}
}

// Migrate applies pending migrations, each in its own transaction
func Migrate(ctx context.Context, db *sql.DB, driver string, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		logger.WithField("version", migration.Version).Infof("Running migration: %s", migration.Description)

		err := WithTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migration.sqlFor(driver)); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, description, applied_at) VALUES ($1, $2, $3)",
				migration.Version, migration.Description, time.Now().UTC(),
			); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}
