// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package errors defines the application error type shared by services and
// repositories. An AppError carries a machine-readable code, an HTTP status
// hint for the API layer and optional structured details; the api/errors
// package translates it into the wire envelope.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an application error.
type Code string

const (
	CodeInternal     Code = "INTERNAL"
	CodeNotFound     Code = "NOT_FOUND"
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeConflict     Code = "CONFLICT"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeValidation   Code = "VALIDATION"
	CodeTimeout      Code = "TIMEOUT"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeStorageError  Code = "STORAGE_ERROR"
	CodeDatabaseError Code = "DATABASE_ERROR"
)

// Sentinel errors for errors.Is checks across layers.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrTimeout            = errors.New("timeout")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrInternal           = errors.New("internal error")
)

// AppError is the application error type.
type AppError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a details map, replacing any existing one.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithDetail attaches a single detail entry.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithHTTPStatus overrides the HTTP status hint.
func (e *AppError) WithHTTPStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

// New creates an AppError with the default HTTP status for its code.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: defaultStatus(code)}
}

// Newf creates an AppError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// NewWithStatus creates an AppError with an explicit HTTP status.
func NewWithStatus(code Code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// Wrap wraps a cause in an AppError.
func Wrap(err error, code Code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: defaultStatus(code), Err: err}
}

// Wrapf wraps a cause with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func defaultStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ============================================================================
// Constructors for common cases
// ============================================================================

// NotFound reports a missing resource ("task", "tenant", ...).
func NotFound(resource string) *AppError {
	e := New(CodeNotFound, resource+" not found")
	e.Err = ErrNotFound
	return e.WithDetail("resource", resource)
}

// AlreadyExists reports a uniqueness conflict on a resource.
func AlreadyExists(resource string) *AppError {
	e := NewWithStatus(CodeConflict, resource+" already exists", http.StatusConflict)
	e.Err = ErrAlreadyExists
	return e.WithDetail("resource", resource)
}

// InvalidInput reports a malformed request.
func InvalidInput(message string) *AppError {
	e := New(CodeBadRequest, message)
	e.Err = ErrInvalidInput
	return e
}

// ValidationFailed reports per-field validation errors.
func ValidationFailed(fields map[string]string) *AppError {
	e := New(CodeValidation, "validation failed")
	e.Err = ErrValidation
	details := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	return e.WithDetails(details)
}

// Unauthorized reports a failed authentication.
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	e := New(CodeUnauthorized, message)
	e.Err = ErrUnauthorized
	return e
}

// Forbidden reports an authorization failure.
func Forbidden(message string) *AppError {
	if message == "" {
		message = "access denied"
	}
	e := New(CodeForbidden, message)
	e.Err = ErrForbidden
	return e
}

// Conflict reports a state conflict, such as a completion racing the
// due-date pointer.
func Conflict(message string) *AppError {
	e := New(CodeConflict, message)
	e.Err = ErrConflict
	return e
}

// Internal reports an unexpected failure.
func Internal(message string) *AppError {
	e := New(CodeInternal, message)
	e.Err = ErrInternal
	return e
}

// ============================================================================
// Inspection helpers
// ============================================================================

// GetAppError extracts an *AppError from err's chain.
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatusCode returns the HTTP status hint for err, defaulting to 500.
func HTTPStatusCode(err error) int {
	if appErr, ok := GetAppError(err); ok && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || hasCode(err, CodeNotFound)
}

// IsAlreadyExists reports whether err is a uniqueness conflict.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || hasCode(err, CodeValidation)
}

// IsConflict reports whether err is a conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || hasCode(err, CodeConflict)
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) || hasCode(err, CodeUnauthorized)
}

// IsForbidden reports whether err is an authorization failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden) || hasCode(err, CodeForbidden)
}

func hasCode(err error, code Code) bool {
	if appErr, ok := GetAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// Is delegates to the standard library so AppError chains work with
// errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As delegates to the standard library.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
