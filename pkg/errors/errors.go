// Package errors defines the service's error codes, their HTTP statuses and the JSON error body.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Authentication and Authorization errors
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeInvalidToken      ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired      ErrorCode = "TOKEN_EXPIRED"
	ErrCodeTokenMalformed    ErrorCode = "TOKEN_MALFORMED"
	ErrCodeInsufficientGrant ErrorCode = "INSUFFICIENT_GRANT"
	ErrCodeAuthLevelTooLow   ErrorCode = "AUTH_LEVEL_TOO_LOW"
	ErrCodeIdentityProvider  ErrorCode = "IDENTITY_PROVIDER_NOT_ALLOWED"

	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig ErrorCode = "MISSING_CONFIG"

	// Policy errors
	ErrCodePolicyEvaluation ErrorCode = "POLICY_EVALUATION"
	ErrCodeUnknownProfile   ErrorCode = "UNKNOWN_PROFILE"

	// Token Service errors
	ErrCodeTokenGeneration ErrorCode = "TOKEN_GENERATION"

	// Internal errors
	ErrCodeInternal    ErrorCode = "INTERNAL_ERROR"
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	ErrCodeNotFound    ErrorCode = "NOT_FOUND"

	// Validation errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"
)

// GateError represents a standardized error with context
type GateError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"http_status"`
}

// Error implements the error interface
func (e *GateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *GateError) Unwrap() error {
	return e.Cause
}

// WithDetails adds additional context to the error
func (e *GateError) WithDetails(key string, value interface{}) *GateError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new GateError with the given code and message
func New(code ErrorCode, message string) *GateError {
	return &GateError{
		Code:       code,
		Message:    message,
		HTTPStatus: getHTTPStatus(code),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *GateError {
	return &GateError{
		Code:       code,
		Message:    message,
		Cause:      err,
		HTTPStatus: getHTTPStatus(code),
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *GateError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// getHTTPStatus returns the appropriate HTTP status code for an error code
func getHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeUnauthorized, ErrCodeInvalidToken, ErrCodeTokenExpired, ErrCodeTokenMalformed:
		return http.StatusUnauthorized
	case ErrCodeForbidden, ErrCodeInsufficientGrant, ErrCodeAuthLevelTooLow, ErrCodeIdentityProvider:
		return http.StatusForbidden
	case ErrCodeInvalidConfig, ErrCodeMissingConfig, ErrCodeInvalidInput, ErrCodeMissingRequired, ErrCodeUnknownProfile:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var gErr *GateError
	if stderrors.As(err, &gErr) {
		return gErr.Code
	}
	return ErrCodeInternal
}

// GetHTTPStatus extracts the HTTP status from an error
func GetHTTPStatus(err error) int {
	var gErr *GateError
	if stderrors.As(err, &gErr) {
		return gErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// NewUnauthorized creates an unauthorized error
func NewUnauthorized(message string) *GateError {
	return New(ErrCodeUnauthorized, message)
}

// NewForbidden creates a forbidden error
func NewForbidden(message string) *GateError {
	return New(ErrCodeForbidden, message)
}

// NewInvalidInput creates an invalid input error
func NewInvalidInput(message string) *GateError {
	return New(ErrCodeInvalidInput, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *GateError {
	return New(ErrCodeInternal, message)
}

// ErrorBody is the JSON document written for every error response.
type ErrorBody struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}

// NewErrorBody builds the body for status, naming the request path.
func NewErrorBody(status int, message, path string) ErrorBody {
	return ErrorBody{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      path,
	}
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteStatus writes the error body for an explicit status and message.
func WriteStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	WriteJSON(w, status, NewErrorBody(status, message, r.URL.Path))
}

// WriteError writes err as an error body. A GateError supplies its own status and message;
// anything else is reported as a 500 without exposing the cause.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var gErr *GateError
	if stderrors.As(err, &gErr) {
		WriteStatus(w, r, gErr.HTTPStatus, gErr.Message)
		return
	}
	WriteStatus(w, r, http.StatusInternalServerError, "internal server error")
}
