package groups

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/httputil"
	"github.com/platinummonkey/taskflow/pkg/rbac"
)

// Handlers provides HTTP handlers for groups
type Handlers struct {
	service *Service
	guard   *rbac.Guard
}

// NewHandlers creates new group handlers
func NewHandlers(service *Service, guard *rbac.Guard) *Handlers {
	return &Handlers{service: service, guard: guard}
}

// RegisterRoutes registers the /groups routes. router must already run the
// auth middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	handle := func(path, method, perm string, fn http.HandlerFunc) {
		router.Handle(path, h.guard.RequirePermission(perm)(fn)).Methods(method)
	}

	handle("/groups", http.MethodGet, rbac.PermViewGroups, h.ListGroups)
	handle("/groups", http.MethodPost, rbac.PermCreateGroups, h.CreateGroup)
	handle("/groups/{id:[0-9]+}", http.MethodGet, rbac.PermViewGroups, h.GetGroup)
	handle("/groups/{id:[0-9]+}", http.MethodPut, rbac.PermEditGroups, h.UpdateGroup)
	handle("/groups/{id:[0-9]+}", http.MethodDelete, rbac.PermDeleteGroups, h.DeleteGroup)
	handle("/groups/{id:[0-9]+}/users", http.MethodGet, rbac.PermViewGroups, h.ListMembers)
	handle("/groups/{id:[0-9]+}/users", http.MethodPost, rbac.PermManageGroupMembers, h.AddMembers)
	handle("/groups/{id:[0-9]+}/users/{userId:[0-9]+}", http.MethodDelete, rbac.PermManageGroupMembers, h.RemoveMember)
}

// ListGroups handles GET /groups
func (h *Handlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	limit, offset, err := httputil.Pagination(r, 100, 500)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	parentID, err := httputil.ParseQueryInt64(r, "parent_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	query := r.URL.Query()
	groups, err := h.service.List(r.Context(), identity, Filter{
		Type:     query.Get("type"),
		Status:   query.Get("status"),
		ParentID: parentID,
		Search:   query.Get("search"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, groups)
}

// GetGroup handles GET /groups/{id}
func (h *Handlers) GetGroup(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	group, err := h.service.Get(r.Context(), identity, id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, group)
}

// CreateGroup handles POST /groups
func (h *Handlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req CreateGroupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	group, err := h.service.Create(r.Context(), identity, req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, group)
}

// UpdateGroup handles PUT /groups/{id}
func (h *Handlers) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateGroupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	group, err := h.service.Update(r.Context(), identity, id, req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, group)
}

// DeleteGroup handles DELETE /groups/{id}
func (h *Handlers) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), identity, id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "Group deleted", nil)
}

// ListMembers handles GET /groups/{id}/users
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), identity, id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

// AddMembers handles POST /groups/{id}/users
func (h *Handlers) AddMembers(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req AddMembersRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	members, err := h.service.AddMembers(r.Context(), identity, id, req.ids())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "Members added", members)
}

// RemoveMember handles DELETE /groups/{id}/users/{userId}
func (h *Handlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userId")
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), identity, id, userID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "Member removed", nil)
}
