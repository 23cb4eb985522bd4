package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/taskflow/pkg/apperrors"
	"github.com/platinummonkey/taskflow/pkg/observability"
)

// Envelope is the body of every API response
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Details string      `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteData writes {"success": true, "data": data}
func WriteData(w http.ResponseWriter, status int, data interface{}) {
	WriteJSON(w, status, Envelope{Success: true, Data: data})
}

// WriteSuccess writes a 200 response with data
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteData(w, http.StatusOK, data)
}

// WriteCreated writes a 201 response with data
func WriteCreated(w http.ResponseWriter, data interface{}) {
	WriteData(w, http.StatusCreated, data)
}

// WriteSuccessMessage writes a 200 response with a message and optional data
func WriteSuccessMessage(w http.ResponseWriter, message string, data interface{}) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// WriteErrorMessage writes {"success": false, "error": message}
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Envelope{Success: false, Error: message})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusTooManyRequests, message)
}

// WriteAppError maps err to a status code and envelope. Classified errors
// keep their message; anything else is logged and reported as a generic 500.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Kind == apperrors.KindInternal {
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("path", r.URL.Path).
			Error("Request failed")

		WriteJSON(w, http.StatusInternalServerError, Envelope{
			Success: false,
			Error:   "Internal server error",
			Code:    "internal_error",
		})
		return
	}

	WriteJSON(w, appErr.Kind.HTTPStatus(), Envelope{
		Success: false,
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}
