// Package apperr defines structured application errors with HTTP status mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Auth errors
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidToken = "INVALID_TOKEN"
	CodeForbidden    = "FORBIDDEN"

	// Validation errors
	CodeBadRequest   = "BAD_REQUEST"
	CodeInvalidInput = "INVALID_INPUT"
	CodeMissingField = "MISSING_FIELD"

	// Resource errors
	CodeNotFound      = "NOT_FOUND"
	CodeAlreadyExists = "ALREADY_EXISTS"
	CodeConflict      = "CONFLICT"

	// Sync errors
	CodeCredentialsMissing = "CREDENTIALS_MISSING"
	CodeProviderError      = "PROVIDER_ERROR"
	CodeRateLimited        = "RATE_LIMITED"
	CodeTxCeiling          = "TRANSACTION_CEILING"

	// Internal errors
	CodeDatabaseError = "DATABASE_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeTimeout       = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

func NotFound(message string) *AppError {
	if message == "" {
		message = "not found"
	}
	return New(CodeNotFound, message, http.StatusNotFound)
}

// CredentialsMissing marks a sync call that cannot proceed because the user
// has no usable upstream credentials. Never retried.
func CredentialsMissing(err error) *AppError {
	return Wrap(err, CodeCredentialsMissing, "upstream credentials missing or invalid", http.StatusUnprocessableEntity)
}

// TxCeiling marks a chunk transaction that exceeded its wait/execution ceiling.
func TxCeiling(err error) *AppError {
	return Wrap(err, CodeTxCeiling, "chunk transaction exceeded ceiling", http.StatusInternalServerError)
}

func Database(err error) *AppError {
	return Wrap(err, CodeDatabaseError, "database error", http.StatusInternalServerError)
}

func Internal(err error) *AppError {
	return Wrap(err, CodeInternalError, "internal error", http.StatusInternalServerError)
}

// Is helpers

func IsCode(err error, code string) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// FromError converts any error to an AppError, defaulting to internal error.
func FromError(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}
