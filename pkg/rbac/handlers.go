package rbac

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/httputil"
)

// Handlers provides HTTP handlers for role management
type Handlers struct {
	service *Service
	guard   *Guard
}

// NewHandlers creates new role handlers
func NewHandlers(service *Service, guard *Guard) *Handlers {
	return &Handlers{service: service, guard: guard}
}

// RegisterRoutes registers the /roles routes. router must already run the
// auth middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	handle := func(path, method, perm string, fn http.HandlerFunc) {
		router.Handle(path, h.guard.RequirePermission(perm)(fn)).Methods(method)
	}

	handle("/roles", http.MethodGet, PermViewRoles, h.ListRoles)
	handle("/roles", http.MethodPost, PermCreateRoles, h.CreateRole)
	handle("/roles/permissions", http.MethodGet, PermViewRoles, h.ListPermissions)
	handle("/roles/{id:[0-9]+}", http.MethodGet, PermViewRoles, h.GetRole)
	handle("/roles/{id:[0-9]+}", http.MethodPut, PermEditRoles, h.UpdateRole)
	handle("/roles/{id:[0-9]+}", http.MethodDelete, PermDeleteRoles, h.DeleteRole)
	handle("/roles/{id:[0-9]+}/duplicate", http.MethodPost, PermCreateRoles, h.DuplicateRole)
}

// ListRoles handles GET /roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	roles, err := h.service.ListRoles(r.Context(), identity)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// ListPermissions handles GET /roles/permissions
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.service.Permissions())
}

// GetRole handles GET /roles/{id}
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.service.GetRole(r.Context(), identity, roleID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// CreateRole handles POST /roles
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req CreateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.service.CreateRole(r.Context(), identity, req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, role)
}

// UpdateRole handles PUT /roles/{id}
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.service.UpdateRole(r.Context(), identity, roleID, req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// DeleteRole handles DELETE /roles/{id}
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteRole(r.Context(), identity, roleID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "Role deleted", nil)
}

// DuplicateRole handles POST /roles/{id}/duplicate. The body is optional.
func (h *Handlers) DuplicateRole(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req DuplicateRoleRequest
	if err := httputil.ParseJSON(r, &req); err != nil && !errors.Is(err, httputil.ErrEmptyBody) {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	role, err := h.service.DuplicateRole(r.Context(), identity, roleID, req.Name)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, role)
}
