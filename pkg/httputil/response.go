// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding, and request parsing.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/queuekit/queue-analytics/pkg/analytics"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	_ = WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   string(analytics.KindValidation),
		Message: message,
	})
}

// StatusForError maps an analytics error kind to an HTTP status
func StatusForError(err error) int {
	switch analytics.KindOf(err) {
	case analytics.KindValidation:
		return http.StatusBadRequest
	case analytics.KindNotFound:
		return http.StatusNotFound
	case analytics.KindOperationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err with the status of its kind. The body carries the
// kind, the message and the diagnostic context of an *analytics.Error.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	resp := ErrorResponse{
		Error:   string(analytics.KindOf(err)),
		Message: err.Error(),
	}

	var ae *analytics.Error
	if errors.As(err, &ae) {
		resp.Message = ae.Message
		resp.Details = stringifyContext(ae)
	}
	if status == http.StatusInternalServerError {
		resp.Message = "internal server error"
		resp.Details = nil
	}

	_ = WriteJSON(w, status, resp)
}

func stringifyContext(ae *analytics.Error) map[string]string {
	if len(ae.Context) == 0 && ae.Op == "" {
		return nil
	}
	details := make(map[string]string, len(ae.Context)+1)
	if ae.Op != "" {
		details["operation"] = ae.Op
	}
	keys := make([]string, 0, len(ae.Context))
	for k := range ae.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := ae.Context[k].(type) {
		case time.Time:
			details[k] = v.Format(time.RFC3339)
		default:
			details[k] = fmt.Sprint(v)
		}
	}
	return details
}

// WriteAttachment writes a downloadable file
func WriteAttachment(w http.ResponseWriter, filename, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
