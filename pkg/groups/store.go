package groups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/taskflow/pkg/apperrors"
	"github.com/platinummonkey/taskflow/pkg/database"
)

var errGroupNotFound = apperrors.NotFound("Group not found")

// Store handles group persistence
type Store struct {
	q database.Querier
}

// NewStore creates a new group store
func NewStore(q database.Querier) *Store {
	return &Store{q: q}
}

// With returns a store running its queries on q
func (s *Store) With(q database.Querier) *Store {
	return &Store{q: q}
}

const groupColumns = `g.id, g.org_id, g.name, g.description, g.parent_group_id, g.group_lead_id, g.type, g.status,
	g.created_at, g.updated_at, (SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id)`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGroup(row rowScanner) (*Group, error) {
	var (
		g        Group
		parentID sql.NullInt64
		leadID   sql.NullInt64
	)
	err := row.Scan(&g.ID, &g.OrgID, &g.Name, &g.Description, &parentID, &leadID, &g.Type, &g.Status,
		&g.CreatedAt, &g.UpdatedAt, &g.MemberCount)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		g.ParentGroupID = &parentID.Int64
	}
	if leadID.Valid {
		g.GroupLeadID = &leadID.Int64
	}
	return &g, nil
}

// Create inserts g. A name already used in the organization returns
// apperrors.ErrDuplicateName.
func (s *Store) Create(ctx context.Context, g *Group, now time.Time) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO org_groups (org_id, name, description, parent_group_id, group_lead_id, type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, g.OrgID, g.Name, g.Description, nullID(g.ParentGroupID), nullID(g.GroupLeadID), g.Type, g.Status, now, now).Scan(&g.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.ErrDuplicateName.WithDetails(fmt.Sprintf("group %q already exists", g.Name))
		}
		return fmt.Errorf("failed to create group: %w", err)
	}
	g.CreatedAt = now
	g.UpdatedAt = now
	return nil
}

// Get returns a group of the organization with its member count
func (s *Store) Get(ctx context.Context, orgID, id int64) (*Group, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM org_groups g WHERE g.id = $1 AND g.org_id = $2`, id, orgID)
	g, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

// ChildIDs returns the ids of the group's direct children
func (s *Store) ChildIDs(ctx context.Context, id int64) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id FROM org_groups WHERE parent_group_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list child groups: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var childID int64
		if err := rows.Scan(&childID); err != nil {
			return nil, fmt.Errorf("failed to scan child group: %w", err)
		}
		ids = append(ids, childID)
	}
	return ids, rows.Err()
}

// List returns the organization's groups matching filter, ordered by name
func (s *Store) List(ctx context.Context, orgID int64, filter Filter) ([]*Group, error) {
	conditions := []string{"g.org_id = $1"}
	args := []interface{}{orgID}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(args))))
	}

	if filter.Type != "" {
		add("g.type = ?", filter.Type)
	}
	if filter.Status != "" {
		add("g.status = ?", filter.Status)
	}
	if filter.ParentID != nil {
		add("g.parent_group_id = ?", *filter.ParentID)
	}
	if filter.Search != "" {
		add("LOWER(g.name) LIKE LOWER(?)", "%"+filter.Search+"%")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM org_groups g
		WHERE %s
		ORDER BY g.name, g.id
		LIMIT $%d OFFSET $%d
	`, groupColumns, strings.Join(conditions, " AND "), len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := []*Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Update writes the editable fields of g
func (s *Store) Update(ctx context.Context, g *Group, now time.Time) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE org_groups
		SET name = $1, description = $2, parent_group_id = $3, group_lead_id = $4, type = $5, status = $6, updated_at = $7
		WHERE id = $8 AND org_id = $9
	`, g.Name, g.Description, nullID(g.ParentGroupID), nullID(g.GroupLeadID), g.Type, g.Status, now, g.ID, g.OrgID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.ErrDuplicateName.WithDetails(fmt.Sprintf("group %q already exists", g.Name))
		}
		return fmt.Errorf("failed to update group: %w", err)
	}
	if err := database.RequireOneRow(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errGroupNotFound
		}
		return err
	}
	g.UpdatedAt = now
	return nil
}

// Delete removes a group
func (s *Store) Delete(ctx context.Context, orgID, id int64) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM org_groups WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if err := database.RequireOneRow(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errGroupNotFound
		}
		return err
	}
	return nil
}

// UserInOrg reports whether userID is a user of the organization
func (s *Store) UserInOrg(ctx context.Context, orgID, userID int64) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND org_id = $2)`, userID, orgID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}

// IsMember reports whether userID belongs to the group
func (s *Store) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`, groupID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

// AddMember inserts a membership row
func (s *Store) AddMember(ctx context.Context, groupID, userID int64, now time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, added_at) VALUES ($1, $2, $3)`, groupID, userID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership row, returning NotFound when absent
func (s *Store) RemoveMember(ctx context.Context, groupID, userID int64) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	if err := database.RequireOneRow(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("User is not a member of this group")
		}
		return err
	}
	return nil
}

// ListMembers returns the group's members ordered by name
func (s *Store) ListMembers(ctx context.Context, groupID int64) ([]*Member, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT u.id, u.email, u.first_name, u.last_name, m.added_at
		FROM group_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.group_id = $1
		ORDER BY u.first_name, u.last_name, u.id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	members := []*Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.FirstName, &m.LastName, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}

func nullID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
