// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package errors

import (
	stderrors "errors"
	"net/http"
	"testing"
)

// ============================================================================
// Construction
// ============================================================================

func TestNew_DefaultStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeBadRequest, http.StatusBadRequest},
		{CodeValidation, http.StatusBadRequest},
		{CodeConflict, http.StatusConflict},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeInternal, http.StatusInternalServerError},
		{CodeStorageError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			e := New(tt.code, "boom")
			if e.HTTPStatus != tt.want {
				t.Errorf("New(%s) status = %d, want %d", tt.code, e.HTTPStatus, tt.want)
			}
		})
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	e := Wrap(cause, CodeStorageError, "failed to store attachment")

	if !stderrors.Is(e, cause) {
		t.Error("wrapped error should match its cause via errors.Is")
	}
	if e.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestWithDetail(t *testing.T) {
	e := New(CodeConflict, "pointer moved").
		WithDetail("task_id", "abc").
		WithDetail("instance_date", "2026-01-07")

	if len(e.Details) != 2 {
		t.Fatalf("got %d details, want 2", len(e.Details))
	}
	if e.Details["task_id"] != "abc" {
		t.Errorf("task_id detail = %v", e.Details["task_id"])
	}
}

func TestNewWithStatus_Override(t *testing.T) {
	e := NewWithStatus(CodeInternal, "upstream down", http.StatusBadGateway)
	if e.HTTPStatus != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", e.HTTPStatus)
	}

	e2 := New(CodeInternal, "x").WithHTTPStatus(http.StatusServiceUnavailable)
	if e2.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("WithHTTPStatus = %d, want 503", e2.HTTPStatus)
	}
}

// ============================================================================
// Common constructors
// ============================================================================

func TestNotFound(t *testing.T) {
	e := NotFound("task")

	if !IsNotFound(e) {
		t.Error("IsNotFound should be true")
	}
	if !stderrors.Is(e, ErrNotFound) {
		t.Error("should match ErrNotFound sentinel")
	}
	if e.HTTPStatus != http.StatusNotFound {
		t.Errorf("status = %d, want 404", e.HTTPStatus)
	}
	if e.Details["resource"] != "task" {
		t.Errorf("resource detail = %v, want task", e.Details["resource"])
	}
}

func TestAlreadyExists(t *testing.T) {
	e := AlreadyExists("tenant")
	if !IsAlreadyExists(e) {
		t.Error("IsAlreadyExists should be true")
	}
	if e.HTTPStatus != http.StatusConflict {
		t.Errorf("status = %d, want 409", e.HTTPStatus)
	}
}

func TestValidationFailed(t *testing.T) {
	e := ValidationFailed(map[string]string{
		"frequency": "must be one of daily weekly monthly",
		"doer_id":   "is required",
	})

	if !IsValidation(e) {
		t.Error("IsValidation should be true")
	}
	if len(e.Details) != 2 {
		t.Errorf("got %d field details, want 2", len(e.Details))
	}
}

func TestUnauthorized_DefaultMessage(t *testing.T) {
	e := Unauthorized("")
	if e.Message == "" {
		t.Error("empty message should get a default")
	}
	if !IsUnauthorized(e) {
		t.Error("IsUnauthorized should be true")
	}
}

func TestConflict(t *testing.T) {
	e := Conflict("due date pointer changed concurrently")
	if !IsConflict(e) {
		t.Error("IsConflict should be true")
	}
}

func TestForbidden(t *testing.T) {
	if !IsForbidden(Forbidden("coordinator role required")) {
		t.Error("IsForbidden should be true")
	}
}

// ============================================================================
// Inspection through wrapping
// ============================================================================

func TestGetAppError_ThroughChain(t *testing.T) {
	inner := NotFound("employee")
	outer := Wrapf(inner, CodeInternal, "load buddy for %s", "emp-1")

	appErr, ok := GetAppError(outer)
	if !ok {
		t.Fatal("GetAppError should find an AppError")
	}
	if appErr.Code != CodeInternal {
		t.Errorf("outermost code = %s, want %s", appErr.Code, CodeInternal)
	}
	// The inner sentinel survives the chain.
	if !IsNotFound(outer) {
		t.Error("IsNotFound should see through the wrap")
	}
}

func TestHTTPStatusCode(t *testing.T) {
	if got := HTTPStatusCode(NotFound("task")); got != http.StatusNotFound {
		t.Errorf("got %d, want 404", got)
	}
	if got := HTTPStatusCode(stderrors.New("plain")); got != http.StatusInternalServerError {
		t.Errorf("plain error status = %d, want 500", got)
	}
	if got := HTTPStatusCode(nil); got != http.StatusInternalServerError {
		t.Errorf("nil error status = %d, want 500", got)
	}
}

func TestIsHelpers_PlainErrors(t *testing.T) {
	plain := stderrors.New("nope")
	if IsNotFound(plain) || IsValidation(plain) || IsConflict(plain) || IsUnauthorized(plain) {
		t.Error("plain errors should not match any helper")
	}
}
