// Package api provides HTTP API handlers and standardized error handling
// for the ranking service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aipulse/toolrank/internal/middleware"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeConflict indicates a conflict with the current state.
	ErrCodeConflict = "conflict"

	// ErrCodePreviewNotFound indicates the referenced preview does not
	// exist, expired, or was discarded.
	ErrCodePreviewNotFound = "preview_not_found"

	// ErrCodePreviewStale indicates the referenced preview was computed
	// under a different algorithm version.
	ErrCodePreviewStale = "preview_stale"

	// ErrCodeContentMismatch indicates submitted content does not match
	// the preview being applied.
	ErrCodeContentMismatch = "content_mismatch"

	// ErrCodeConcurrentUpdate indicates tool scores changed while the
	// apply was in flight.
	ErrCodeConcurrentUpdate = "concurrent_update"

	// ErrCodeNoSnapshot indicates no ranking snapshot has been published.
	ErrCodeNoSnapshot = "no_snapshot"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
// It writes the appropriate HTTP status code and returns a JSON error body.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error_code is logged by the logging middleware for all 4xx and 5xx
// responses when the handler sets it on the context:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Tool not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for common error codes.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeNotFound, ErrCodePreviewNotFound, ErrCodeNoSnapshot:
		return http.StatusNotFound
	case ErrCodeConflict, ErrCodePreviewStale, ErrCodeContentMismatch, ErrCodeConcurrentUpdate:
		return http.StatusConflict
	case ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
