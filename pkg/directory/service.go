package directory

import (
	"context"
	"database/sql"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/taskflow/pkg/apperrors"
	"github.com/platinummonkey/taskflow/pkg/audit"
	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/database"
	"github.com/platinummonkey/taskflow/pkg/observability"
	"github.com/platinummonkey/taskflow/pkg/rbac"
)

const (
	maxNameLength  = 100
	maxEmailLength = 254
)

// errInvalidCredentials is deliberately identical for unknown emails and wrong passwords
var errInvalidCredentials = apperrors.Unauthorized("Invalid email or password")

// Options configures login lockout
type Options struct {
	MaxFailedLogins int
	LockoutDuration time.Duration
}

// Service implements registration, login and user administration
type Service struct {
	db          *sql.DB
	store       *Store
	tokens      *auth.TokenManager
	invalidator auth.Invalidator
	recorder    audit.Recorder
	metrics     *observability.Metrics
	opts        Options
	now         func() time.Time
}

// NewService creates a directory service. invalidator, recorder and metrics may be nil.
func NewService(db *sql.DB, tokens *auth.TokenManager, invalidator auth.Invalidator, recorder audit.Recorder, metrics *observability.Metrics, opts Options) *Service {
	if invalidator == nil {
		invalidator = auth.NoopCache{}
	}
	if recorder == nil {
		recorder = audit.NoopRecorder{}
	}
	if opts.MaxFailedLogins <= 0 {
		opts.MaxFailedLogins = 5
	}
	if opts.LockoutDuration <= 0 {
		opts.LockoutDuration = 15 * time.Minute
	}
	return &Service{
		db:          db,
		store:       NewStore(db),
		tokens:      tokens,
		invalidator: invalidator,
		recorder:    recorder,
		metrics:     metrics,
		opts:        opts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Store returns the underlying directory store
func (s *Service) Store() *Store {
	return s.store
}

// LoadIdentity implements auth.IdentityLoader
func (s *Service) LoadIdentity(ctx context.Context, userID int64) (*auth.Identity, error) {
	return s.store.LoadIdentity(ctx, userID)
}

// Register creates an organization, seeds its system roles and creates its
// first user as Super Admin, all in one transaction
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	orgName := strings.TrimSpace(req.OrganizationName)
	if orgName == "" {
		return nil, apperrors.Validation("Organization name is required")
	}
	if len(orgName) > maxNameLength {
		return nil, apperrors.Validation("Organization name must be at most %d characters", maxNameLength)
	}
	orgEmail, err := normalizeEmail(req.OrganizationEmail)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	firstName, lastName, err := validateNames(req.FirstName, req.LastName)
	if err != nil {
		return nil, err
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	org := &Organization{Name: orgName, Email: orgEmail, Status: OrgStatusActive}
	user := &User{Email: email, FirstName: firstName, LastName: lastName, Status: UserStatusActive}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.With(tx)
		if err := store.CreateOrganization(ctx, org, now); err != nil {
			return err
		}

		roles, err := rbac.NewStore(tx).EnsureDefaultRoles(ctx, org.ID)
		if err != nil {
			return err
		}
		owner := roles[rbac.RoleSuperAdmin]

		user.OrgID = org.ID
		user.RoleID = owner.ID
		user.RoleName = owner.Name
		return store.CreateUser(ctx, user, hash, now)
	})
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, org.ID)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to issue token")
	}

	s.recorder.Record(ctx, audit.Entry{
		OrgID:      org.ID,
		UserID:     audit.UserRef(user.ID),
		Action:     audit.ActionOrgRegistered,
		EntityType: audit.EntityOrganization,
		EntityID:   strconv.FormatInt(org.ID, 10),
		Details:    map[string]interface{}{"name": org.Name},
	})
	return &Session{Token: token, ExpiresAt: expiresAt, User: user, Organization: org}, nil
}

// Authenticate verifies credentials and issues a token. Each failed password
// increments the user's counter; reaching the maximum locks the account.
func (s *Service) Authenticate(ctx context.Context, req LoginRequest) (*Session, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperrors.Validation("Email and password are required")
	}

	logger := observability.FromContext(ctx).WithField("email", email)
	now := s.now()

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.metrics.RecordLogin("unknown_user")
			return nil, errInvalidCredentials
		}
		return nil, err
	}

	if user.IsLocked(now) {
		s.metrics.RecordLogin("locked")
		logger.WithField("locked_until", user.LockedUntil.Format(time.RFC3339)).Warn("Login rejected for locked account")
		return nil, errInvalidCredentials
	}

	ok, err := auth.CheckPassword(user.passwordHash, req.Password)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to verify password")
	}
	if !ok {
		s.metrics.RecordLogin("bad_password")
		s.recordFailure(ctx, user, now)
		return nil, errInvalidCredentials
	}

	if user.Status != UserStatusActive {
		s.metrics.RecordLogin("inactive_user")
		return nil, apperrors.Unauthorized("User account is %s", user.Status)
	}
	org, err := s.store.GetOrganization(ctx, user.OrgID)
	if err != nil {
		return nil, err
	}
	if org.Status != OrgStatusActive {
		s.metrics.RecordLogin("inactive_org")
		return nil, apperrors.Unauthorized("Organization is %s", org.Status)
	}

	if err := s.store.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.FailedAttempts = 0
	user.LockedUntil = nil
	user.LastLogin = &now

	token, expiresAt, err := s.tokens.Issue(user.ID, org.ID)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to issue token")
	}

	s.metrics.RecordLogin("ok")
	logger.WithField("user_id", user.ID).Info("User logged in")
	s.recorder.Record(ctx, audit.Entry{
		OrgID:      org.ID,
		UserID:     audit.UserRef(user.ID),
		Action:     audit.ActionUserLogin,
		EntityType: audit.EntityUser,
		EntityID:   strconv.FormatInt(user.ID, 10),
	})
	return &Session{Token: token, ExpiresAt: expiresAt, User: user, Organization: org}, nil
}

func (s *Service) recordFailure(ctx context.Context, user *User, now time.Time) {
	logger := observability.FromContext(ctx).WithField("user_id", user.ID)

	attempts, err := s.store.IncrementFailedAttempts(ctx, user.ID, now)
	if err != nil {
		logger.WithError(err).Error("Failed to record failed login")
		return
	}

	details := map[string]interface{}{"failed_attempts": attempts}
	if attempts >= s.opts.MaxFailedLogins {
		until := now.Add(s.opts.LockoutDuration)
		if err := s.store.Lock(ctx, user.ID, until, now); err != nil {
			logger.WithError(err).Error("Failed to lock user")
			return
		}
		details["locked_until"] = until
		logger.Warnf("User locked after %d failed logins", attempts)
	}

	s.recorder.Record(ctx, audit.Entry{
		OrgID:      user.OrgID,
		UserID:     audit.UserRef(user.ID),
		Action:     audit.ActionUserLoginFailed,
		EntityType: audit.EntityUser,
		EntityID:   strconv.FormatInt(user.ID, 10),
		Details:    details,
	})
}

// Me returns the caller's own user and organization
func (s *Service) Me(ctx context.Context, actor *auth.Identity) (*User, *Organization, error) {
	user, err := s.store.GetUser(ctx, actor.OrgID, actor.UserID)
	if err != nil {
		return nil, nil, err
	}
	org, err := s.store.GetOrganization(ctx, actor.OrgID)
	if err != nil {
		return nil, nil, err
	}
	return user, org, nil
}

// ListUsers lists users of the caller's organization
func (s *Service) ListUsers(ctx context.Context, actor *auth.Identity, filter UserFilter) ([]*User, error) {
	if filter.Status != "" && !validUserStatus(filter.Status) {
		return nil, apperrors.Validation("Invalid status: %s", filter.Status)
	}
	return s.store.ListUsers(ctx, actor.OrgID, filter)
}

// GetUser returns one user of the caller's organization
func (s *Service) GetUser(ctx context.Context, actor *auth.Identity, userID int64) (*User, error) {
	return s.store.GetUser(ctx, actor.OrgID, userID)
}

// CreateUser adds a user to the caller's organization with an active role of
// that organization. The role may not carry more authority than the caller's own.
func (s *Service) CreateUser(ctx context.Context, actor *auth.Identity, req CreateUserRequest) (*User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	firstName, lastName, err := validateNames(req.FirstName, req.LastName)
	if err != nil {
		return nil, err
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	role, err := s.assignableRole(ctx, actor, req.RoleID)
	if err != nil {
		return nil, err
	}

	user := &User{
		OrgID:     actor.OrgID,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		RoleID:    role.ID,
		RoleName:  role.Name,
		Status:    UserStatusActive,
	}
	if err := s.store.CreateUser(ctx, user, hash, s.now()); err != nil {
		return nil, err
	}

	s.record(ctx, actor, audit.ActionUserCreated, user.ID, map[string]interface{}{
		"email":   user.Email,
		"role_id": user.RoleID,
	})
	return user, nil
}

// UpdateUser applies a partial update. Role and status changes take effect
// on the user's next request.
func (s *Service) UpdateUser(ctx context.Context, actor *auth.Identity, userID int64, req UpdateUserRequest) (*User, error) {
	if userID == actor.UserID && (req.RoleID != nil || req.Status != nil) {
		return nil, apperrors.Forbidden("You cannot change your own role or status")
	}

	var (
		updated       *User
		identityDirty bool
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.With(tx)

		user, err := store.GetUser(ctx, actor.OrgID, userID)
		if err != nil {
			return err
		}
		if err := s.requireAuthorityOver(ctx, rbac.NewStore(tx), actor, user); err != nil {
			return err
		}

		if req.FirstName != nil || req.LastName != nil {
			first, last := user.FirstName, user.LastName
			if req.FirstName != nil {
				first = *req.FirstName
			}
			if req.LastName != nil {
				last = *req.LastName
			}
			if user.FirstName, user.LastName, err = validateNames(first, last); err != nil {
				return err
			}
		}

		if req.RoleID != nil && *req.RoleID != user.RoleID {
			role, err := s.assignableRoleWith(ctx, rbac.NewStore(tx), actor, *req.RoleID)
			if err != nil {
				return err
			}
			user.RoleID = role.ID
			user.RoleName = role.Name
			identityDirty = true
		}

		if req.Status != nil && *req.Status != user.Status {
			if !validUserStatus(*req.Status) {
				return apperrors.Validation("Invalid status: %s", *req.Status)
			}
			user.Status = *req.Status
			identityDirty = true
		}

		if err := store.UpdateUser(ctx, user, s.now()); err != nil {
			return err
		}

		if req.Password != nil {
			hash, err := hashPassword(*req.Password)
			if err != nil {
				return err
			}
			if err := store.SetPassword(ctx, user.ID, hash, s.now()); err != nil {
				return err
			}
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	if identityDirty {
		s.invalidator.InvalidateUser(ctx, updated.ID)
	}
	s.record(ctx, actor, audit.ActionUserUpdated, updated.ID, map[string]interface{}{
		"role_id": updated.RoleID,
		"status":  updated.Status,
	})
	return updated, nil
}

// DeleteUser removes a user of the caller's organization. Callers cannot
// delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actor *auth.Identity, userID int64) error {
	if userID == actor.UserID {
		return apperrors.Forbidden("You cannot delete your own account")
	}

	var user *User
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.With(tx)

		var err error
		user, err = store.GetUser(ctx, actor.OrgID, userID)
		if err != nil {
			return err
		}
		if err := s.requireAuthorityOver(ctx, rbac.NewStore(tx), actor, user); err != nil {
			return err
		}
		return store.DeleteUser(ctx, actor.OrgID, userID)
	})
	if err != nil {
		return err
	}

	s.invalidator.InvalidateUser(ctx, userID)
	s.record(ctx, actor, audit.ActionUserDeleted, userID, map[string]interface{}{"email": user.Email})
	return nil
}

// UpdateOrganizationStatus changes the caller's organization status. Every
// cached identity of the organization is dropped.
func (s *Service) UpdateOrganizationStatus(ctx context.Context, actor *auth.Identity, status string) (*Organization, error) {
	if !validOrgStatus(status) {
		return nil, apperrors.Validation("Invalid status: %s", status)
	}
	if err := s.store.UpdateOrganizationStatus(ctx, actor.OrgID, status, s.now()); err != nil {
		return nil, err
	}
	org, err := s.store.GetOrganization(ctx, actor.OrgID)
	if err != nil {
		return nil, err
	}

	s.invalidator.InvalidateOrganization(ctx, org.ID)
	s.recorder.Record(ctx, audit.Entry{
		OrgID:      org.ID,
		UserID:     audit.UserRef(actor.UserID),
		Action:     audit.ActionOrgStatusChanged,
		EntityType: audit.EntityOrganization,
		EntityID:   strconv.FormatInt(org.ID, 10),
		Details:    map[string]interface{}{"status": status},
	})
	return org, nil
}

// ClearExpiredLockouts is run by the janitor
func (s *Service) ClearExpiredLockouts(ctx context.Context) (int64, error) {
	return s.store.ClearExpiredLockouts(ctx, s.now())
}

func (s *Service) assignableRole(ctx context.Context, actor *auth.Identity, roleID int64) (*rbac.Role, error) {
	return s.assignableRoleWith(ctx, rbac.NewStore(s.db), actor, roleID)
}

// assignableRoleWith loads an active role of the actor's organization whose
// priority is not lower than the actor's own
func (s *Service) assignableRoleWith(ctx context.Context, roles *rbac.Store, actor *auth.Identity, roleID int64) (*rbac.Role, error) {
	if roleID <= 0 {
		return nil, apperrors.Validation("Role is required")
	}
	role, err := roles.Get(ctx, actor.OrgID, roleID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Validation("Role %d does not exist in this organization", roleID)
		}
		return nil, err
	}
	if role.Status != rbac.StatusActive {
		return nil, apperrors.Validation("Role %q is inactive", role.Name)
	}

	actorRole, err := roles.Get(ctx, actor.OrgID, actor.RoleID)
	if err != nil {
		return nil, err
	}
	if role.Priority < actorRole.Priority {
		return nil, apperrors.Forbidden("Cannot assign a role with more authority than your own")
	}
	return role, nil
}

// requireAuthorityOver rejects changes to a user whose role outranks the
// actor's. Equal priority is allowed.
func (s *Service) requireAuthorityOver(ctx context.Context, roles *rbac.Store, actor *auth.Identity, target *User) error {
	if target.ID == actor.UserID {
		return nil
	}
	actorRole, err := roles.Get(ctx, actor.OrgID, actor.RoleID)
	if err != nil {
		return err
	}
	targetRole, err := roles.Get(ctx, actor.OrgID, target.RoleID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.Forbidden("Cannot manage a user whose role is outside this organization")
		}
		return err
	}
	if targetRole.Priority < actorRole.Priority {
		return apperrors.Forbidden("Cannot manage a user with more authority than your own")
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor *auth.Identity, action audit.Action, userID int64, details map[string]interface{}) {
	s.recorder.Record(ctx, audit.Entry{
		OrgID:      actor.OrgID,
		UserID:     audit.UserRef(actor.UserID),
		Action:     action,
		EntityType: audit.EntityUser,
		EntityID:   strconv.FormatInt(userID, 10),
		Details:    details,
	})
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperrors.Validation("Email is required")
	}
	if len(email) > maxEmailLength {
		return "", apperrors.Validation("Email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperrors.Validation("Invalid email address: %s", email)
	}
	return email, nil
}

func validateNames(first, last string) (string, string, error) {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	if first == "" || last == "" {
		return "", "", apperrors.Validation("First and last name are required")
	}
	if len(first) > maxNameLength || len(last) > maxNameLength {
		return "", "", apperrors.Validation("Names must be at most %d characters", maxNameLength)
	}
	return first, last, nil
}

func hashPassword(password string) (string, error) {
	if len(password) < auth.MinPasswordLength {
		return "", apperrors.Validation("Password must be at least %d characters", auth.MinPasswordLength)
	}
	return auth.HashPassword(password)
}
