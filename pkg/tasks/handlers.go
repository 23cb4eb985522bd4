package tasks

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskflow/pkg/apperrors"
	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/httputil"
	"github.com/platinummonkey/taskflow/pkg/observability"
	"github.com/platinummonkey/taskflow/pkg/rbac"
)

const (
	// MaxUploadBytes caps one multipart request
	MaxUploadBytes = 25 << 20

	multipartMemory = 10 << 20
)

// Handlers provides HTTP handlers for tasks
type Handlers struct {
	engine *Engine
	guard  *rbac.Guard
}

// NewHandlers creates new task handlers
func NewHandlers(engine *Engine, guard *rbac.Guard) *Handlers {
	return &Handlers{engine: engine, guard: guard}
}

// RegisterRoutes registers the /tasks routes. router must already run the
// auth middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	handle := func(path, method string, gate func(http.Handler) http.Handler, fn http.HandlerFunc) {
		router.Handle(path, gate(fn)).Methods(method)
	}
	perm := h.guard.RequirePermission
	anyPerm := h.guard.RequireAnyPermission

	handle("/tasks", http.MethodGet, perm(rbac.PermViewTasks), h.ListTasks)
	handle("/tasks", http.MethodPost, perm(rbac.PermCreateTasks), h.CreateTask)
	handle("/tasks/{id:[0-9]+}", http.MethodGet, perm(rbac.PermViewTasks), h.GetTask)
	handle("/tasks/{id:[0-9]+}", http.MethodPut, perm(rbac.PermEditTasks), h.UpdateTask)
	handle("/tasks/{id:[0-9]+}", http.MethodDelete, perm(rbac.PermDeleteTasks), h.DeleteTask)

	handle("/tasks/{id:[0-9]+}/start", http.MethodPost, perm(rbac.PermWorkOnTasks), h.StartTask)
	handle("/tasks/{id:[0-9]+}/submit", http.MethodPost, perm(rbac.PermWorkOnTasks), h.SubmitTask)
	handle("/tasks/{id:[0-9]+}/approve", http.MethodPost, perm(rbac.PermReviewTasks), h.ApproveTask)
	handle("/tasks/{id:[0-9]+}/reject", http.MethodPost, perm(rbac.PermReviewTasks), h.RejectTask)
	handle("/tasks/{id:[0-9]+}/assign", http.MethodPost, perm(rbac.PermAssignTasks), h.AssignTask)

	handle("/tasks/{id:[0-9]+}/comments", http.MethodGet, perm(rbac.PermViewTasks), h.ListComments)
	handle("/tasks/{id:[0-9]+}/comments", http.MethodPost, perm(rbac.PermCommentTasks), h.AddComment)
	handle("/tasks/{id:[0-9]+}/checklist", http.MethodPost, perm(rbac.PermEditTasks), h.AddChecklistItem)
	handle("/tasks/{id:[0-9]+}/checklist/{itemId:[0-9]+}/toggle", http.MethodPut,
		anyPerm(rbac.PermWorkOnTasks, rbac.PermEditTasks), h.ToggleChecklistItem)
	handle("/tasks/{id:[0-9]+}/attachments", http.MethodPost,
		anyPerm(rbac.PermEditTasks, rbac.PermWorkOnTasks), h.UploadAttachments)
	handle("/tasks/{id:[0-9]+}/attachments/{attachmentId:[0-9]+}", http.MethodGet, perm(rbac.PermViewTasks), h.DownloadAttachment)
	handle("/tasks/{id:[0-9]+}/attachments/{attachmentId:[0-9]+}", http.MethodDelete, perm(rbac.PermEditTasks), h.DeleteAttachment)
}

// ListTasks handles GET /tasks
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	tasks, err := h.engine.List(r.Context(), identity, filter)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, tasks)
}

// CreateTask handles POST /tasks. Besides JSON it accepts multipart/form-data
// with the task fields as form values and files under "attachments".
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	if !isMultipart(r) {
		var req CreateTaskRequest
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
		detail, err := h.engine.Create(r.Context(), identity, req)
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		httputil.WriteCreated(w, detail)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		httputil.WriteBadRequest(w, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	req, err := createRequestFromForm(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	detail, err := h.engine.Create(r.Context(), identity, req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	// The task is committed at this point, so failed uploads are reported
	// alongside it instead of failing the request.
	created := &CreatedTask{Detail: detail}
	for _, fh := range r.MultipartForm.File["attachments"] {
		attachment, err := h.saveUpload(r, identity, detail.ID, fh)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).
				WithField("task_id", detail.TaskID).
				WithField("file_name", fh.Filename).
				Warn("Task created but attachment upload failed")
			created.AttachmentErrors = append(created.AttachmentErrors, AttachmentFailure{
				FileName: fh.Filename,
				Error:    uploadErrorMessage(err),
			})
			continue
		}
		detail.Attachments = append(detail.Attachments, attachment)
	}
	httputil.WriteCreated(w, created)
}

// CreatedTask is the multipart create response
type CreatedTask struct {
	*Detail
	AttachmentErrors []AttachmentFailure `json:"attachment_errors,omitempty"`
}

// AttachmentFailure names an upload that did not make it onto a new task
type AttachmentFailure struct {
	FileName string `json:"file_name"`
	Error    string `json:"error"`
}

func uploadErrorMessage(err error) string {
	if appErr, ok := apperrors.As(err); ok && appErr.Kind != apperrors.KindInternal {
		return appErr.Message
	}
	return "Upload failed"
}

// GetTask handles GET /tasks/{id}
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	detail, err := h.engine.Get(r.Context(), identity, id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, detail)
}

// UpdateTask handles PUT /tasks/{id}
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	task, err := h.engine.Edit(r.Context(), identity, id, req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, task)
}

// DeleteTask handles DELETE /tasks/{id}
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.engine.Delete(r.Context(), identity, id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "Task deleted", nil)
}

// StartTask handles POST /tasks/{id}/start
func (h *Handlers) StartTask(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	task, err := h.engine.Start(r.Context(), identity, id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "Task started", task)
}

// SubmitTask handles POST /tasks/{id}/submit. The body is optional.
func (h *Handlers) SubmitTask(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req NotesRequest
	if !parseOptionalJSON(w, r, &req) {
		return
	}

	task, err := h.engine.Submit(r.Context(), identity, id, req.Notes)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "Task submitted for review", task)
}

// ApproveTask handles POST /tasks/{id}/approve. The body is optional.
func (h *Handlers) ApproveTask(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req NotesRequest
	if !parseOptionalJSON(w, r, &req) {
		return
	}

	task, err := h.engine.Approve(r.Context(), identity, id, req.Notes)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "Task approved", task)
}

// RejectTask handles POST /tasks/{id}/reject
func (h *Handlers) RejectTask(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req RejectRequest
	if !parseOptionalJSON(w, r, &req) {
		return
	}

	task, err := h.engine.Reject(r.Context(), identity, id, req.Reason)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "Task rejected", task)
}

// AssignTask handles POST /tasks/{id}/assign
func (h *Handlers) AssignTask(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req AssignRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	assignments, err := h.engine.Assign(r.Context(), identity, id, req.UserIDs)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, assignments)
}

// ListComments handles GET /tasks/{id}/comments
func (h *Handlers) ListComments(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	comments, err := h.engine.ListComments(r.Context(), identity, id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, comments)
}

// AddComment handles POST /tasks/{id}/comments
func (h *Handlers) AddComment(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req CommentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	comment, err := h.engine.AddComment(r.Context(), identity, id, req.Content)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, comment)
}

// AddChecklistItem handles POST /tasks/{id}/checklist
func (h *Handlers) AddChecklistItem(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req ChecklistRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	item, err := h.engine.AddChecklistItem(r.Context(), identity, id, req.Title)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, item)
}

// ToggleChecklistItem handles PUT /tasks/{id}/checklist/{itemId}/toggle
func (h *Handlers) ToggleChecklistItem(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := httputil.ParsePathInt64OrError(w, r, "itemId")
	if !ok {
		return
	}

	item, err := h.engine.ToggleChecklistItem(r.Context(), identity, id, itemID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, item)
}

// UploadAttachments handles POST /tasks/{id}/attachments (multipart, files under "files")
func (h *Handlers) UploadAttachments(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		httputil.WriteBadRequest(w, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(files) == 0 {
		httputil.WriteBadRequest(w, "at least one file is required")
		return
	}

	attachments := make([]*Attachment, 0, len(files))
	for _, fh := range files {
		attachment, err := h.saveUpload(r, identity, id, fh)
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		attachments = append(attachments, attachment)
	}
	httputil.WriteCreated(w, attachments)
}

// DownloadAttachment handles GET /tasks/{id}/attachments/{attachmentId}
func (h *Handlers) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	attachmentID, ok := httputil.ParsePathInt64OrError(w, r, "attachmentId")
	if !ok {
		return
	}

	attachment, rc, err := h.engine.OpenAttachment(r.Context(), identity, id, attachmentID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", attachment.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(attachment.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": attachment.FileName}))
	if _, err := io.Copy(w, rc); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Attachment download interrupted")
	}
}

// DeleteAttachment handles DELETE /tasks/{id}/attachments/{attachmentId}
func (h *Handlers) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	attachmentID, ok := httputil.ParsePathInt64OrError(w, r, "attachmentId")
	if !ok {
		return
	}

	if err := h.engine.DeleteAttachment(r.Context(), identity, id, attachmentID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "Attachment deleted", nil)
}

func (h *Handlers) saveUpload(r *http.Request, identity *auth.Identity, taskID int64, fh *multipart.FileHeader) (*Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	return h.engine.AddAttachment(r.Context(), identity, taskID, fh.Filename, fh.Header.Get("Content-Type"), f)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func parseOptionalJSON(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := httputil.ParseJSON(r, dest); err != nil && !errors.Is(err, httputil.ErrEmptyBody) {
		httputil.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	filter := Filter{
		Status:   Status(q.Get("status")),
		Priority: Priority(q.Get("priority")),
		Category: q.Get("category"),
		Search:   strings.TrimSpace(q.Get("search")),
	}

	var err error
	if filter.AssigneeID, err = httputil.ParseQueryInt64(r, "assignee_id"); err != nil {
		return filter, err
	}
	if filter.CreatedBy, err = httputil.ParseQueryInt64(r, "created_by"); err != nil {
		return filter, err
	}
	if filter.Limit, filter.Offset, err = httputil.Pagination(r, 50, 200); err != nil {
		return filter, err
	}
	return filter, nil
}

// createRequestFromForm reads task fields from a parsed multipart form. tags
// and assignee_ids may repeat or be comma separated.
func createRequestFromForm(r *http.Request) (CreateTaskRequest, error) {
	form := r.MultipartForm.Value
	first := func(key string) string {
		if v := form[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	req := CreateTaskRequest{
		Title:       first("title"),
		Description: first("description"),
		Priority:    Priority(first("priority")),
		Category:    first("category"),
		Tags:        splitValues(form["tags"]),
	}

	if due := first("due_date"); due != "" {
		t, err := time.Parse(time.RFC3339, due)
		if err != nil {
			return req, fmt.Errorf("invalid due_date: %s", due)
		}
		req.DueDate = &t
	}

	for _, v := range splitValues(form["assignee_ids"]) {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return req, fmt.Errorf("invalid assignee id: %s", v)
		}
		req.AssigneeIDs = append(req.AssigneeIDs, id)
	}
	return req, nil
}

func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
