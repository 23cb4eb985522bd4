package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/taskflow/pkg/apperrors"
	"github.com/platinummonkey/taskflow/pkg/database"
)

// Store handles role persistence. A Store is bound to either the pool or a
// transaction; use With to rebind.
type Store struct {
	q database.Querier
}

// NewStore creates a new role store
func NewStore(q database.Querier) *Store {
	return &Store{q: q}
}

// With returns a store running its queries on q
func (s *Store) With(q database.Querier) *Store {
	return &Store{q: q}
}

const roleColumns = `r.id, r.org_id, r.name, r.description, r.color, r.priority, r.permissions, r.is_system, r.status, r.created_at, r.updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRole(row rowScanner, extra ...interface{}) (*Role, error) {
	var role Role
	var permissionsJSON string
	dest := []interface{}{
		&role.ID,
		&role.OrgID,
		&role.Name,
		&role.Description,
		&role.Color,
		&role.Priority,
		&permissionsJSON,
		&role.IsSystem,
		&role.Status,
		&role.CreatedAt,
		&role.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	if role.Permissions == nil {
		role.Permissions = []string{}
	}
	return &role, nil
}

// Create inserts role and fills in its id and timestamps
func (s *Store) Create(ctx context.Context, role *Role) error {
	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}
	if role.Status == "" {
		role.Status = StatusActive
	}

	now := time.Now().UTC()
	err = s.q.QueryRowContext(ctx, `
		INSERT INTO roles (org_id, name, description, color, priority, permissions, is_system, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		role.OrgID,
		role.Name,
		role.Description,
		role.Color,
		role.Priority,
		string(permissionsJSON),
		role.IsSystem,
		role.Status,
		now,
		now,
	).Scan(&role.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.ErrDuplicateName.WithDetails(fmt.Sprintf("role %q already exists", role.Name))
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// Get retrieves a role of the organization by id
func (s *Store) Get(ctx context.Context, orgID, roleID int64) (*Role, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+roleColumns+`, (SELECT COUNT(*) FROM users u WHERE u.role_id = r.id)
		FROM roles r
		WHERE r.id = $1 AND r.org_id = $2
	`, roleID, orgID)

	var count int
	role, err := scanRole(row, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Role not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	role.UserCount = count
	return role, nil
}

// GetByName retrieves a role of the organization by exact name
func (s *Store) GetByName(ctx context.Context, orgID int64, name string) (*Role, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+roleColumns+`
		FROM roles r
		WHERE r.org_id = $1 AND r.name = $2
	`, orgID, name)

	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Role %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role by name: %w", err)
	}
	return role, nil
}

// List returns the organization's roles ordered by priority, with user counts
func (s *Store) List(ctx context.Context, orgID int64) ([]*Role, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+roleColumns+`, (SELECT COUNT(*) FROM users u WHERE u.role_id = r.id)
		FROM roles r
		WHERE r.org_id = $1
		ORDER BY r.priority ASC, r.name ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := []*Role{}
	for rows.Next() {
		var count int
		role, err := scanRole(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		role.UserCount = count
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// NameTaken reports whether another role of the organization already uses name
func (s *Store) NameTaken(ctx context.Context, orgID int64, name string, exceptID int64) (bool, error) {
	var exists int
	err := s.q.QueryRowContext(ctx, `
		SELECT 1 FROM roles WHERE org_id = $1 AND name = $2 AND id <> $3
	`, orgID, name, exceptID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check role name: %w", err)
	}
	return true, nil
}

// Update writes every mutable column of role
func (s *Store) Update(ctx context.Context, role *Role) error {
	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	now := time.Now().UTC()
	result, err := s.q.ExecContext(ctx, `
		UPDATE roles
		SET name = $1, description = $2, color = $3, priority = $4, permissions = $5, status = $6, updated_at = $7
		WHERE id = $8 AND org_id = $9
	`,
		role.Name,
		role.Description,
		role.Color,
		role.Priority,
		string(permissionsJSON),
		role.Status,
		now,
		role.ID,
		role.OrgID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.ErrDuplicateName.WithDetails(fmt.Sprintf("role %q already exists", role.Name))
		}
		return fmt.Errorf("failed to update role: %w", err)
	}
	if err := database.RequireOneRow(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("Role not found")
		}
		return fmt.Errorf("failed to update role: %w", err)
	}

	role.UpdatedAt = now
	return nil
}

// Delete removes a role of the organization
func (s *Store) Delete(ctx context.Context, orgID, roleID int64) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM roles WHERE id = $1 AND org_id = $2`, roleID, orgID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperrors.ErrRoleInUse
		}
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if err := database.RequireOneRow(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("Role not found")
		}
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return nil
}

// CountUsers returns how many users hold the role
func (s *Store) CountUsers(ctx context.Context, roleID int64) (int, error) {
	var count int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1`, roleID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count role users: %w", err)
	}
	return count, nil
}

// EnsureDefaultRoles creates any missing system role of the organization and
// resets the permission sets of existing ones to their seeds. Running it
// twice is a no-op. Callers run it inside the organization-creation transaction.
func (s *Store) EnsureDefaultRoles(ctx context.Context, orgID int64) (map[string]*Role, error) {
	roles := make(map[string]*Role, 4)
	for _, seed := range DefaultRoles() {
		existing, err := s.GetByName(ctx, orgID, seed.Name)
		switch {
		case err == nil:
			if existing.IsSystem && !samePermissions(existing.Permissions, seed.Permissions) {
				existing.Permissions = seed.Permissions
				if err := s.Update(ctx, existing); err != nil {
					return nil, fmt.Errorf("failed to reseed role %s: %w", seed.Name, err)
				}
			}
			roles[seed.Name] = existing
		case apperrors.IsNotFound(err):
			role := &Role{
				OrgID:       orgID,
				Name:        seed.Name,
				Description: seed.Description,
				Color:       seed.Color,
				Priority:    seed.Priority,
				Permissions: seed.Permissions,
				IsSystem:    true,
				Status:      StatusActive,
			}
			if err := s.Create(ctx, role); err != nil {
				return nil, fmt.Errorf("failed to seed role %s: %w", seed.Name, err)
			}
			roles[seed.Name] = role
		default:
			return nil, err
		}
	}
	return roles, nil
}

func samePermissions(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, k := range a {
		set[k] = struct{}{}
	}
	for _, k := range b {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}
