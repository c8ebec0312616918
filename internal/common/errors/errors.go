// Package errors provides standardized error handling for the permit
// intake service.
package errors

import (
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeUnknownField     ErrorCode = "UNKNOWN_FIELD"

	ErrCodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeApplicationNotFound ErrorCode = "APPLICATION_NOT_FOUND"

	ErrCodeSessionCreateFailed     ErrorCode = "SESSION_CREATE_FAILED"
	ErrCodeSessionUpdateFailed     ErrorCode = "SESSION_UPDATE_FAILED"
	ErrCodeApplicationCreateFailed ErrorCode = "APPLICATION_CREATE_FAILED"
	ErrCodeQueryFailed             ErrorCode = "QUERY_FAILED"

	ErrCodeTokenInvalid ErrorCode = "TOKEN_INVALID"
	ErrCodeTokenExpired ErrorCode = "TOKEN_EXPIRED"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	ErrCodeSMSSendFailed         ErrorCode = "SMS_SEND_FAILED"
	ErrCodeAgentConnectionFailed ErrorCode = "AGENT_CONNECTION_FAILED"

	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewValidationFailedError creates a non-retryable validation error
// carrying per-field error lists for the HTTP response body.
func NewValidationFailedError(fieldErrors map[string][]string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Application data validation failed",
		Retryable: false,
		Metadata:  map[string]interface{}{"fieldErrors": fieldErrors},
		Timestamp: time.Now().UTC(),
	}
}

// NewFieldValidationError creates a non-retryable single-field validation
// error for the live-edit path.
func NewFieldValidationError(field string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   err.Error(),
		Retryable: false,
		Metadata:  map[string]interface{}{"fieldErrors": map[string][]string{field: {err.Error()}}},
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionNotFoundError creates a non-retryable not-found error.
func NewSessionNotFoundError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionNotFound,
		Message:   "Session not found",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewApplicationNotFoundError creates a non-retryable not-found error.
func NewApplicationNotFoundError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicationNotFound,
		Message:   "Application not found",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionCreateFailedError creates a retryable store error.
func NewSessionCreateFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionCreateFailed,
		Message:   "Failed to create session",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionUpdateFailedError creates a retryable store error.
func NewSessionUpdateFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionUpdateFailed,
		Message:   "Failed to update session",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewApplicationCreateFailedError creates a retryable store error.
func NewApplicationCreateFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicationCreateFailed,
		Message:   "Failed to create application",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryFailedError creates a retryable store read error.
func NewQueryFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryFailed,
		Message:   fmt.Sprintf("Failed to %s", operation),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTokenInvalidError creates a non-retryable token error.
func NewTokenInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTokenInvalid,
		Message:   "Invalid relay token",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTokenExpiredError creates a non-retryable token error.
func NewTokenExpiredError() *StandardError {
	return &StandardError{
		Code:      ErrCodeTokenExpired,
		Message:   "Relay token has expired",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnauthorizedError creates a non-retryable authorization error.
func NewUnauthorizedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnauthorized,
		Message:   "Unauthorized",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSMSSendFailedError creates a retryable notification error.
func NewSMSSendFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSMSSendFailed,
		Message:   "SMS delivery failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAgentConnectionFailedError creates a non-retryable agent error; the
// call is torn down rather than retried.
func NewAgentConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAgentConnectionFailed,
		Message:   "Voice agent connection failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewBadRequestError creates a non-retryable malformed-request error.
func NewBadRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeBadRequest,
		Message:   "Invalid request payload",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError wraps an unexpected error.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternalError,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
