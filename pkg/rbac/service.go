package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/platinummonkey/taskflow/pkg/apperrors"
	"github.com/platinummonkey/taskflow/pkg/audit"
	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/database"
)

const (
	maxRoleNameLength = 100
	maxColorLength    = 32
)

// Service implements role management for an organization
type Service struct {
	db          *sql.DB
	store       *Store
	invalidator auth.Invalidator
	recorder    audit.Recorder
}

// NewService creates a role service. invalidator and recorder may be nil.
func NewService(db *sql.DB, invalidator auth.Invalidator, recorder audit.Recorder) *Service {
	if invalidator == nil {
		invalidator = auth.NoopCache{}
	}
	if recorder == nil {
		recorder = audit.NoopRecorder{}
	}
	return &Service{
		db:          db,
		store:       NewStore(db),
		invalidator: invalidator,
		recorder:    recorder,
	}
}

// Store returns the underlying role store
func (s *Service) Store() *Store {
	return s.store
}

// Permissions returns the permission catalog grouped by category
func (s *Service) Permissions() []CategoryPermissions {
	return Catalog()
}

// ListRoles returns the caller's organization roles ordered by priority
func (s *Service) ListRoles(ctx context.Context, actor *auth.Identity) ([]*Role, error) {
	return s.store.List(ctx, actor.OrgID)
}

// GetRole returns one role of the caller's organization
func (s *Service) GetRole(ctx context.Context, actor *auth.Identity, roleID int64) (*Role, error) {
	return s.store.Get(ctx, actor.OrgID, roleID)
}

// CreateRole creates a custom role. Unknown permission keys are dropped.
func (s *Service) CreateRole(ctx context.Context, actor *auth.Identity, req CreateRoleRequest) (*Role, error) {
	name, err := validateRoleName(req.Name)
	if err != nil {
		return nil, err
	}
	if len(req.Color) > maxColorLength {
		return nil, apperrors.Validation("Color is too long")
	}

	priority := DefaultCustomPriority
	if req.Priority != nil {
		if *req.Priority < 1 {
			return nil, apperrors.Validation("Priority must be a positive integer")
		}
		priority = *req.Priority
	}

	taken, err := s.store.NameTaken(ctx, actor.OrgID, name, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.ErrDuplicateName.WithDetails(fmt.Sprintf("role %q already exists", name))
	}

	role := &Role{
		OrgID:       actor.OrgID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Color:       req.Color,
		Priority:    priority,
		Permissions: FilterValid(req.Permissions),
		IsSystem:    false,
		Status:      StatusActive,
	}
	if err := s.store.Create(ctx, role); err != nil {
		return nil, err
	}

	s.record(ctx, actor, audit.ActionRoleCreated, role, map[string]interface{}{
		"name":        role.Name,
		"permissions": role.Permissions,
	})
	return role, nil
}

// UpdateRole applies a partial update to a custom role in one transaction.
// Holders of the role see the change on their next request.
func (s *Service) UpdateRole(ctx context.Context, actor *auth.Identity, roleID int64, req UpdateRoleRequest) (*Role, error) {
	var updated *Role
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.With(tx)

		role, err := store.Get(ctx, actor.OrgID, roleID)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return apperrors.ErrSystemRoleImmutable
		}

		if req.Name != nil {
			name, err := validateRoleName(*req.Name)
			if err != nil {
				return err
			}
			if name != role.Name {
				taken, err := store.NameTaken(ctx, actor.OrgID, name, role.ID)
				if err != nil {
					return err
				}
				if taken {
					return apperrors.ErrDuplicateName.WithDetails(fmt.Sprintf("role %q already exists", name))
				}
			}
			role.Name = name
		}
		if req.Description != nil {
			role.Description = strings.TrimSpace(*req.Description)
		}
		if req.Color != nil {
			if len(*req.Color) > maxColorLength {
				return apperrors.Validation("Color is too long")
			}
			role.Color = *req.Color
		}
		if req.Priority != nil {
			if *req.Priority < 1 {
				return apperrors.Validation("Priority must be a positive integer")
			}
			role.Priority = *req.Priority
		}
		if req.Permissions != nil {
			role.Permissions = FilterValid(*req.Permissions)
		}
		if req.Status != nil {
			if *req.Status != StatusActive && *req.Status != StatusInactive {
				return apperrors.Validation("Status must be active or inactive")
			}
			role.Status = *req.Status
		}

		if err := store.Update(ctx, role); err != nil {
			return err
		}
		updated = role
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidator.InvalidateRole(ctx, updated.ID)
	s.record(ctx, actor, audit.ActionRoleUpdated, updated, map[string]interface{}{
		"name":        updated.Name,
		"permissions": updated.Permissions,
		"status":      updated.Status,
	})
	return updated, nil
}

// DeleteRole removes a custom role that no user holds
func (s *Service) DeleteRole(ctx context.Context, actor *auth.Identity, roleID int64) error {
	var deleted *Role
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.With(tx)

		role, err := store.Get(ctx, actor.OrgID, roleID)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return apperrors.ErrSystemRoleImmutable
		}

		count, err := store.CountUsers(ctx, role.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			return apperrors.ErrRoleInUse.WithDetails(fmt.Sprintf("%d user(s) still have this role", count))
		}

		if err := store.Delete(ctx, actor.OrgID, role.ID); err != nil {
			return err
		}
		deleted = role
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidator.InvalidateRole(ctx, deleted.ID)
	s.record(ctx, actor, audit.ActionRoleDeleted, deleted, map[string]interface{}{"name": deleted.Name})
	return nil
}

// DuplicateRole copies a role's permissions, color and description into a new
// custom role named newName, or "<original> (Copy)" when newName is empty
func (s *Service) DuplicateRole(ctx context.Context, actor *auth.Identity, roleID int64, newName string) (*Role, error) {
	original, err := s.store.Get(ctx, actor.OrgID, roleID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(newName) == "" {
		newName = original.Name + " (Copy)"
	}
	name, err := validateRoleName(newName)
	if err != nil {
		return nil, err
	}

	taken, err := s.store.NameTaken(ctx, actor.OrgID, name, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.ErrDuplicateName.WithDetails(fmt.Sprintf("role %q already exists", name))
	}

	role := &Role{
		OrgID:       actor.OrgID,
		Name:        name,
		Description: original.Description,
		Color:       original.Color,
		Priority:    original.Priority + 1,
		Permissions: FilterValid(original.Permissions),
		IsSystem:    false,
		Status:      StatusActive,
	}
	if err := s.store.Create(ctx, role); err != nil {
		return nil, err
	}

	s.record(ctx, actor, audit.ActionRoleDuplicated, role, map[string]interface{}{
		"source_role_id": original.ID,
		"name":           role.Name,
	})
	return role, nil
}

func (s *Service) record(ctx context.Context, actor *auth.Identity, action audit.Action, role *Role, details map[string]interface{}) {
	s.recorder.Record(ctx, audit.Entry{
		OrgID:      actor.OrgID,
		UserID:     audit.UserRef(actor.UserID),
		Action:     action,
		EntityType: audit.EntityRole,
		EntityID:   strconv.FormatInt(role.ID, 10),
		Details:    details,
	})
}

func validateRoleName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.Validation("Role name is required")
	}
	if len(name) > maxRoleNameLength {
		return "", apperrors.Validation("Role name must be at most %d characters", maxRoleNameLength)
	}
	return name, nil
}
