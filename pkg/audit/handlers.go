package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/httputil"
)

// Lister reads an organization's activity
type Lister interface {
	List(ctx context.Context, orgID int64, filter Filter) ([]*Entry, error)
}

// Handlers serves the activity log API
type Handlers struct {
	store Lister
}

// NewHandlers creates new activity handlers
func NewHandlers(store Lister) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers GET /activity behind protect, which is expected
// to require the view_activity_logs permission
func (h *Handlers) RegisterRoutes(router *mux.Router, protect func(http.Handler) http.Handler) {
	router.Handle("/activity", protect(http.HandlerFunc(h.listActivity))).Methods("GET")
}

// listActivity handles GET /activity
func (h *Handlers) listActivity(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	entries, err := h.store.List(r.Context(), identity.OrgID, filter)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	format := ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		httputil.WriteSuccess(w, map[string]interface{}{
			"entries": entries,
			"count":   len(entries),
			"limit":   filter.Limit,
			"offset":  filter.Offset,
		})
		return
	}

	switch format {
	case ExportFormatJSON, ExportFormatNDJSON, ExportFormatCSV:
	default:
		httputil.WriteBadRequest(w, "format must be one of json, ndjson, csv")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename=activity."+string(format))
	if err := Export(w, entries, format); err != nil {
		httputil.WriteAppError(w, r, err)
	}
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	limit, offset, err := httputil.Pagination(r, 50, 500)
	if err != nil {
		return Filter{}, err
	}

	filter := Filter{
		Action:     Action(q.Get("action")),
		EntityType: EntityType(q.Get("entity_type")),
		EntityID:   q.Get("entity_id"),
		Limit:      limit,
		Offset:     offset,
	}

	if filter.UserID, err = httputil.ParseQueryInt64(r, "user_id"); err != nil {
		return Filter{}, err
	}

	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return Filter{}, err
		}
		filter.Since = &t
	}
	return filter, nil
}
