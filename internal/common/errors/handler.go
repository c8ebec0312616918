// internal/common/errors/handler.go
package errors

import (
	"encoding/json"
	"net/http"
	"time"
)

// Logger is the subset of the logging interface the error handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// HTTPHandler translates StandardError values into structured JSON error
// responses at the route-handler boundary. Raw internal error details are
// included only as a debugging convenience and are non-contractual.
type HTTPHandler struct {
	logger Logger
}

func NewHTTPHandler(logger Logger) *HTTPHandler {
	return &HTTPHandler{logger: logger}
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error   string                 `json:"error"`
	Code    ErrorCode              `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Write normalizes err to a StandardError, logs it, and writes the JSON
// error body with the mapped status code.
func (h *HTTPHandler) Write(w http.ResponseWriter, err error) {
	stdErr := h.normalizeError(err)
	status := HTTPStatus(stdErr.Code)

	fields := map[string]interface{}{
		"errorCode": string(stdErr.Code),
		"details":   stdErr.Details,
		"status":    status,
		"retryable": stdErr.Retryable,
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(stdErr.Message, fields)
	} else {
		h.logger.Warn(stdErr.Message, fields)
	}

	body := errorBody{
		Error:   stdErr.Message,
		Code:    stdErr.Code,
		Details: stdErr.Metadata,
	}
	if stdErr.Details != "" {
		if body.Details == nil {
			body.Details = map[string]interface{}{}
		}
		body.Details["cause"] = stdErr.Details
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// normalizeError ensures we always have a StandardError.
func (h *HTTPHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternalError,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// HTTPStatus maps an error code to its HTTP status. Validation errors are
// 400 with field detail, not-found is 404, token and password failures are
// 401, everything else surfaces as a generic 500.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed, ErrCodeUnknownField, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeSessionNotFound, ErrCodeApplicationNotFound:
		return http.StatusNotFound
	case ErrCodeTokenInvalid, ErrCodeTokenExpired, ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
