package directory

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/httputil"
	"github.com/platinummonkey/taskflow/pkg/rbac"
)

// Handlers provides HTTP handlers for authentication, users and the organization
type Handlers struct {
	service *Service
	guard   *rbac.Guard
}

// NewHandlers creates new directory handlers
func NewHandlers(service *Service, guard *rbac.Guard) *Handlers {
	return &Handlers{service: service, guard: guard}
}

// RegisterPublicRoutes registers /auth/register and /auth/login. loginLimiter,
// when non-nil, wraps the login handler.
func (h *Handlers) RegisterPublicRoutes(router *mux.Router, loginLimiter func(http.Handler) http.Handler) {
	var login http.Handler = http.HandlerFunc(h.Login)
	if loginLimiter != nil {
		login = loginLimiter(login)
	}
	router.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	router.Handle("/auth/login", login).Methods(http.MethodPost)
}

// RegisterRoutes registers the authenticated routes. router must already run
// the auth middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	admin := h.guard.RequireAdmin()
	router.HandleFunc("/auth/me", h.Me).Methods(http.MethodGet)
	router.Handle("/users", admin(http.HandlerFunc(h.ListUsers))).Methods(http.MethodGet)
	router.Handle("/users", admin(http.HandlerFunc(h.CreateUser))).Methods(http.MethodPost)
	router.Handle("/users/{id:[0-9]+}", admin(http.HandlerFunc(h.GetUser))).Methods(http.MethodGet)
	router.Handle("/users/{id:[0-9]+}", admin(http.HandlerFunc(h.UpdateUser))).Methods(http.MethodPut)
	router.Handle("/users/{id:[0-9]+}", admin(http.HandlerFunc(h.DeleteUser))).Methods(http.MethodDelete)
	router.Handle("/organization/status", h.guard.RequireSuperAdmin()(http.HandlerFunc(h.UpdateOrganizationStatus))).Methods(http.MethodPut)
}

// Register handles POST /auth/register
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	session, err := h.service.Register(r.Context(), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, session)
}

// Login handles POST /auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	session, err := h.service.Authenticate(r.Context(), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, session)
}

type meResponse struct {
	User         *User         `json:"user"`
	Organization *Organization `json:"organization"`
	Role         string        `json:"role"`
	Permissions  []string      `json:"permissions"`
}

// Me handles GET /auth/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	user, org, err := h.service.Me(r.Context(), identity)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, meResponse{
		User:         user,
		Organization: org,
		Role:         identity.RoleName,
		Permissions:  identity.Permissions,
	})
}

// ListUsers handles GET /users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	limit, offset, err := httputil.Pagination(r, 50, 200)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	roleID, err := httputil.ParseQueryInt64(r, "role_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	query := r.URL.Query()
	users, err := h.service.ListUsers(r.Context(), identity, UserFilter{
		Status: query.Get("status"),
		RoleID: roleID,
		Search: strings.TrimSpace(query.Get("search")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

// GetUser handles GET /users/{id}
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), identity, userID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// CreateUser handles POST /users
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req CreateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.service.CreateUser(r.Context(), identity, req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, user)
}

// UpdateUser handles PUT /users/{id}
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.service.UpdateUser(r.Context(), identity, userID, req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// DeleteUser handles DELETE /users/{id}
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteUser(r.Context(), identity, userID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "User deleted", nil)
}

// UpdateOrganizationStatus handles PUT /organization/status
func (h *Handlers) UpdateOrganizationStatus(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req UpdateOrgStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org, err := h.service.UpdateOrganizationStatus(r.Context(), identity, req.Status)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}
