package groups

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/taskflow/pkg/apperrors"
	"github.com/platinummonkey/taskflow/pkg/audit"
	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/database"
)

const (
	maxGroupNameLength = 100
	maxTreeDepth       = 64
)

// Service implements group management for an organization
type Service struct {
	db       *sql.DB
	store    *Store
	recorder audit.Recorder
	now      func() time.Time
}

// NewService creates a group service. recorder may be nil.
func NewService(db *sql.DB, recorder audit.Recorder) *Service {
	if recorder == nil {
		recorder = audit.NoopRecorder{}
	}
	return &Service{
		db:       db,
		store:    NewStore(db),
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Store returns the underlying group store
func (s *Service) Store() *Store {
	return s.store
}

// List returns the organization's groups
func (s *Service) List(ctx context.Context, actor *auth.Identity, filter Filter) ([]*Group, error) {
	if filter.Type != "" && !validType(filter.Type) {
		return nil, apperrors.Validation("Invalid group type: %s", filter.Type)
	}
	if filter.Status != "" && !validStatus(filter.Status) {
		return nil, apperrors.Validation("Invalid group status: %s", filter.Status)
	}
	return s.store.List(ctx, actor.OrgID, filter)
}

// Get returns a group with its member count and direct children
func (s *Service) Get(ctx context.Context, actor *auth.Identity, id int64) (*Group, error) {
	g, err := s.store.Get(ctx, actor.OrgID, id)
	if err != nil {
		return nil, err
	}
	if g.ChildIDs, err = s.store.ChildIDs(ctx, g.ID); err != nil {
		return nil, err
	}
	return g, nil
}

// Create creates a group. The parent and the lead must belong to the
// caller's organization.
func (s *Service) Create(ctx context.Context, actor *auth.Identity, req CreateGroupRequest) (*Group, error) {
	name, err := validateGroupName(req.Name)
	if err != nil {
		return nil, err
	}
	g := &Group{
		OrgID:         actor.OrgID,
		Name:          name,
		Description:   strings.TrimSpace(req.Description),
		ParentGroupID: req.ParentGroupID,
		GroupLeadID:   req.GroupLeadID,
		Type:          req.Type,
		Status:        req.Status,
	}
	if g.Type == "" {
		g.Type = TypeTeam
	}
	if g.Status == "" {
		g.Status = StatusActive
	}
	if !validType(g.Type) {
		return nil, apperrors.Validation("Invalid group type: %s", g.Type)
	}
	if !validStatus(g.Status) {
		return nil, apperrors.Validation("Invalid group status: %s", g.Status)
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.With(tx)
		if err := checkParent(ctx, store, actor.OrgID, 0, g.ParentGroupID); err != nil {
			return err
		}
		if err := checkLead(ctx, store, actor.OrgID, g.GroupLeadID); err != nil {
			return err
		}
		return store.Create(ctx, g, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, audit.ActionGroupCreated, g.ID, map[string]interface{}{
		"name": g.Name,
		"type": g.Type,
	})
	return g, nil
}

// Update applies a partial update to a group
func (s *Service) Update(ctx context.Context, actor *auth.Identity, id int64, req UpdateGroupRequest) (*Group, error) {
	var updated *Group
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.With(tx)

		g, err := store.Get(ctx, actor.OrgID, id)
		if err != nil {
			return err
		}

		if req.Name != nil {
			if g.Name, err = validateGroupName(*req.Name); err != nil {
				return err
			}
		}
		if req.Description != nil {
			g.Description = strings.TrimSpace(*req.Description)
		}
		if req.Type != nil {
			if !validType(*req.Type) {
				return apperrors.Validation("Invalid group type: %s", *req.Type)
			}
			g.Type = *req.Type
		}
		if req.Status != nil {
			if !validStatus(*req.Status) {
				return apperrors.Validation("Invalid group status: %s", *req.Status)
			}
			g.Status = *req.Status
		}
		if req.ParentGroupID.Set {
			if err := checkParent(ctx, store, actor.OrgID, g.ID, req.ParentGroupID.Value); err != nil {
				return err
			}
			g.ParentGroupID = req.ParentGroupID.Value
		}
		if req.GroupLeadID.Set {
			if err := checkLead(ctx, store, actor.OrgID, req.GroupLeadID.Value); err != nil {
				return err
			}
			g.GroupLeadID = req.GroupLeadID.Value
		}

		if err := store.Update(ctx, g, s.now()); err != nil {
			return err
		}
		updated = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, audit.ActionGroupUpdated, updated.ID, map[string]interface{}{
		"name":   updated.Name,
		"status": updated.Status,
	})
	return updated, nil
}

// Delete removes a group that has no members and no child groups
func (s *Service) Delete(ctx context.Context, actor *auth.Identity, id int64) error {
	var deleted *Group
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.With(tx)

		g, err := store.Get(ctx, actor.OrgID, id)
		if err != nil {
			return err
		}
		if g.MemberCount > 0 {
			return apperrors.PreconditionFailed("Cannot delete a group that still has members").
				WithDetails(strconv.Itoa(g.MemberCount) + " member(s) remain")
		}
		children, err := store.ChildIDs(ctx, g.ID)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return apperrors.PreconditionFailed("Cannot delete a group that has child groups")
		}

		if err := store.Delete(ctx, actor.OrgID, g.ID); err != nil {
			return err
		}
		deleted = g
		return nil
	})
	if err != nil {
		return err
	}

	s.record(ctx, actor, audit.ActionGroupDeleted, deleted.ID, map[string]interface{}{"name": deleted.Name})
	return nil
}

// ListMembers returns the members of a group
func (s *Service) ListMembers(ctx context.Context, actor *auth.Identity, groupID int64) ([]*Member, error) {
	if _, err := s.store.Get(ctx, actor.OrgID, groupID); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, groupID)
}

// AddMembers adds users of the organization to a group. Either every user
// is added or none is.
func (s *Service) AddMembers(ctx context.Context, actor *auth.Identity, groupID int64, userIDs []int64) ([]*Member, error) {
	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		return nil, apperrors.Validation("At least one user id is required")
	}

	var members []*Member
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.With(tx)

		if _, err := store.Get(ctx, actor.OrgID, groupID); err != nil {
			return err
		}

		now := s.now()
		for _, userID := range userIDs {
			ok, err := store.UserInOrg(ctx, actor.OrgID, userID)
			if err != nil {
				return err
			}
			if !ok {
				return apperrors.Validation("User %d does not belong to this organization", userID)
			}
			member, err := store.IsMember(ctx, groupID, userID)
			if err != nil {
				return err
			}
			if member {
				return apperrors.Validation("User %d is already a member of this group", userID)
			}
			if err := store.AddMember(ctx, groupID, userID, now); err != nil {
				return err
			}
		}

		var err error
		members, err = store.ListMembers(ctx, groupID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, audit.ActionGroupMembersAdded, groupID, map[string]interface{}{"user_ids": userIDs})
	return members, nil
}

// RemoveMember removes a user from a group
func (s *Service) RemoveMember(ctx context.Context, actor *auth.Identity, groupID, userID int64) error {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.With(tx)
		if _, err := store.Get(ctx, actor.OrgID, groupID); err != nil {
			return err
		}
		return store.RemoveMember(ctx, groupID, userID)
	})
	if err != nil {
		return err
	}

	s.record(ctx, actor, audit.ActionGroupMemberRemoved, groupID, map[string]interface{}{"user_id": userID})
	return nil
}

// checkParent validates a new parent for group id (0 when creating). The
// parent must be in the organization and must not be the group or one of
// its descendants.
func checkParent(ctx context.Context, store *Store, orgID, id int64, parentID *int64) error {
	if parentID == nil {
		return nil
	}
	if *parentID == id {
		return apperrors.Validation("A group cannot be its own parent")
	}

	next := parentID
	for depth := 0; next != nil; depth++ {
		if depth >= maxTreeDepth {
			return apperrors.Validation("Group hierarchy is too deep")
		}
		ancestor, err := store.Get(ctx, orgID, *next)
		if err != nil {
			if apperrors.IsNotFound(err) {
				if depth == 0 {
					return apperrors.Validation("Parent group does not exist in this organization")
				}
				return nil
			}
			return err
		}
		if id != 0 && ancestor.ID == id {
			return apperrors.Validation("A group cannot be moved under one of its descendants")
		}
		next = ancestor.ParentGroupID
	}
	return nil
}

func checkLead(ctx context.Context, store *Store, orgID int64, leadID *int64) error {
	if leadID == nil {
		return nil
	}
	ok, err := store.UserInOrg(ctx, orgID, *leadID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Validation("Group lead does not belong to this organization")
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor *auth.Identity, action audit.Action, groupID int64, details map[string]interface{}) {
	s.recorder.Record(ctx, audit.Entry{
		OrgID:      actor.OrgID,
		UserID:     audit.UserRef(actor.UserID),
		Action:     action,
		EntityType: audit.EntityGroup,
		EntityID:   strconv.FormatInt(groupID, 10),
		Details:    details,
	})
}

func validateGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.Validation("Group name is required")
	}
	if len(name) > maxGroupNameLength {
		return "", apperrors.Validation("Group name must be at most %d characters", maxGroupNameLength)
	}
	return name, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
