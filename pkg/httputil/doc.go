// Package httputil provides the JSON envelope, request parsing helpers and
// common HTTP middleware shared by every taskflow handler.
//
// # Response Envelope
//
// Every response body is an Envelope:
//
//	{"success": true, "data": {...}}
//	{"success": false, "error": "Task not found", "code": "not_found"}
//
// Handlers return typed errors from pkg/apperrors and hand them to
// WriteAppError, which picks the status code:
//
//	task, err := h.engine.Start(ctx, identity, taskID)
//	if err != nil {
//		httputil.WriteAppError(w, r, err)
//		return
//	}
//	httputil.WriteSuccess(w, task)
//
// Unclassified errors are logged with the request logger and reported as a
// generic 500 so internals never leak to clients.
//
// # Request Parsing
//
//	var req CreateTaskRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.CORSMiddleware(origins),
//		httputil.MaxBytesMiddleware(1 << 20),
//	)(router)
package httputil
