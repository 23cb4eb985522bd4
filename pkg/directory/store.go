package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/taskflow/pkg/apperrors"
	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/database"
)

// Store handles organization and user persistence
type Store struct {
	q database.Querier
}

// NewStore creates a new directory store
func NewStore(q database.Querier) *Store {
	return &Store{q: q}
}

// With returns a store running its queries on q
func (s *Store) With(q database.Querier) *Store {
	return &Store{q: q}
}

// CreateOrganization inserts org
func (s *Store) CreateOrganization(ctx context.Context, org *Organization, now time.Time) error {
	if org.Status == "" {
		org.Status = OrgStatusActive
	}
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO organizations (name, email, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, org.Name, org.Email, org.Status, now, now).Scan(&org.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Conflict("Organization name or email already exists")
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}
	org.CreatedAt = now
	org.UpdatedAt = now
	return nil
}

// GetOrganization retrieves an organization by id
func (s *Store) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	org := &Organization{}
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, email, status, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`, id).Scan(&org.ID, &org.Name, &org.Email, &org.Status, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Organization not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// UpdateOrganizationStatus sets an organization's status
func (s *Store) UpdateOrganizationStatus(ctx context.Context, id int64, status string, now time.Time) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE organizations SET status = $1, updated_at = $2 WHERE id = $3
	`, status, now, id)
	if err != nil {
		return fmt.Errorf("failed to update organization status: %w", err)
	}
	if err := database.RequireOneRow(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("Organization not found")
		}
		return fmt.Errorf("failed to update organization status: %w", err)
	}
	return nil
}

// CreateUser inserts user with the given password hash
func (s *Store) CreateUser(ctx context.Context, user *User, passwordHash string, now time.Time) error {
	if user.Status == "" {
		user.Status = UserStatusActive
	}
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO users (org_id, email, first_name, last_name, password_hash, role_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, user.OrgID, user.Email, user.FirstName, user.LastName, passwordHash, user.RoleID, user.Status, now, now).Scan(&user.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Conflict("Email is already registered")
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

const userColumns = `u.id, u.org_id, u.email, u.first_name, u.last_name, u.role_id, COALESCE(r.name, ''), u.status,
	u.failed_attempts, u.locked_until, u.last_login, u.created_at, u.updated_at, u.password_hash`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	u := &User{}
	var lockedUntil, lastLogin sql.NullTime
	err := row.Scan(
		&u.ID, &u.OrgID, &u.Email, &u.FirstName, &u.LastName, &u.RoleID, &u.RoleName, &u.Status,
		&u.FailedAttempts, &lockedUntil, &lastLogin, &u.CreatedAt, &u.UpdatedAt, &u.passwordHash,
	)
	if err != nil {
		return nil, err
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		u.LockedUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return u, nil
}

// GetUser retrieves a user of the organization
func (s *Store) GetUser(ctx context.Context, orgID, userID int64) (*User, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1 AND u.org_id = $2
	`, userID, orgID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email across organizations, for login
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		WHERE LOWER(u.email) = LOWER($1)
	`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// ListUsers lists users of the organization ordered by name
func (s *Store) ListUsers(ctx context.Context, orgID int64, filter UserFilter) ([]*User, error) {
	conditions := []string{"u.org_id = $1"}
	args := []interface{}{orgID}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(args))))
	}

	if filter.Status != "" {
		add("u.status = ?", filter.Status)
	}
	if filter.RoleID != nil {
		add("u.role_id = ?", *filter.RoleID)
	}
	if filter.Search != "" {
		add("(LOWER(u.email) LIKE LOWER(?) OR LOWER(u.first_name || ' ' || u.last_name) LIKE LOWER(?))", "%"+filter.Search+"%")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT %s
		FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		WHERE %s
		ORDER BY u.first_name, u.last_name, u.id
		LIMIT $%d OFFSET $%d
	`, userColumns, strings.Join(conditions, " AND "), len(args)-1, len(args))

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUser writes the profile, role and status of user
func (s *Store) UpdateUser(ctx context.Context, user *User, now time.Time) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE users
		SET first_name = $1, last_name = $2, role_id = $3, status = $4, updated_at = $5
		WHERE id = $6 AND org_id = $7
	`, user.FirstName, user.LastName, user.RoleID, user.Status, now, user.ID, user.OrgID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if err := database.RequireOneRow(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("User not found")
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	user.UpdatedAt = now
	return nil
}

// SetPassword replaces a user's password hash
func (s *Store) SetPassword(ctx context.Context, userID int64, passwordHash string, now time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3
	`, passwordHash, now, userID)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	return nil
}

// DeleteUser removes a user of the organization
func (s *Store) DeleteUser(ctx context.Context, orgID, userID int64) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM users WHERE id = $1 AND org_id = $2`, userID, orgID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperrors.PreconditionFailed("User still owns tasks; deactivate the account instead")
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := database.RequireOneRow(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("User not found")
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// IncrementFailedAttempts bumps the counter and returns its new value
func (s *Store) IncrementFailedAttempts(ctx context.Context, userID int64, now time.Time) (int, error) {
	var attempts int
	err := s.q.QueryRowContext(ctx, `
		UPDATE users SET failed_attempts = failed_attempts + 1, updated_at = $1
		WHERE id = $2
		RETURNING failed_attempts
	`, now, userID).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("failed to record failed login: %w", err)
	}
	return attempts, nil
}

// Lock sets locked_until and resets the failure counter
func (s *Store) Lock(ctx context.Context, userID int64, until, now time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE users SET failed_attempts = 0, locked_until = $1, updated_at = $2 WHERE id = $3
	`, until, now, userID)
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}
	return nil
}

// RecordLogin resets the failure counter, clears any lock and stamps last_login
func (s *Store) RecordLogin(ctx context.Context, userID int64, now time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE users SET failed_attempts = 0, locked_until = NULL, last_login = $1, updated_at = $2 WHERE id = $3
	`, now, now, userID)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// ClearExpiredLockouts clears locks that ended before now
func (s *Store) ClearExpiredLockouts(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.q.ExecContext(ctx, `
		UPDATE users SET locked_until = NULL WHERE locked_until IS NOT NULL AND locked_until <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to clear lockouts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared lockouts: %w", err)
	}
	return n, nil
}

// LoadIdentity joins a user with its organization and role. It fails closed:
// the user, organization and role must all be active and the role must
// belong to the user's organization.
func (s *Store) LoadIdentity(ctx context.Context, userID int64) (*auth.Identity, error) {
	var (
		identity    auth.Identity
		userStatus  string
		orgStatus   string
		roleID      sql.NullInt64
		roleOrgID   sql.NullInt64
		roleName    sql.NullString
		roleStatus  sql.NullString
		permissions sql.NullString
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.first_name, u.last_name, u.status,
			o.id, o.name, o.status,
			r.id, r.org_id, r.name, r.status, r.permissions
		FROM users u
		JOIN organizations o ON o.id = u.org_id
		LEFT JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1
	`, userID).Scan(
		&identity.UserID, &identity.Email, &identity.FirstName, &identity.LastName, &userStatus,
		&identity.OrgID, &identity.OrgName, &orgStatus,
		&roleID, &roleOrgID, &roleName, &roleStatus, &permissions,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	switch {
	case userStatus != UserStatusActive:
		return nil, apperrors.Forbidden("User account is %s", userStatus)
	case orgStatus != OrgStatusActive:
		return nil, apperrors.Forbidden("Organization is %s", orgStatus)
	case !roleID.Valid:
		return nil, apperrors.Forbidden("User has no role")
	case roleOrgID.Int64 != identity.OrgID:
		return nil, apperrors.Forbidden("User role belongs to another organization")
	case roleStatus.String != "active":
		return nil, apperrors.Forbidden("User role is inactive")
	}

	identity.RoleID = roleID.Int64
	identity.RoleName = roleName.String
	if err := json.Unmarshal([]byte(permissions.String), &identity.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal role permissions: %w", err)
	}
	if identity.Permissions == nil {
		identity.Permissions = []string{}
	}
	return &identity, nil
}
