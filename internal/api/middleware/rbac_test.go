// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/services/auth"
)

func claimsWithRoles(roles ...models.Role) *auth.Claims {
	return &auth.Claims{
		EmployeeID: "emp-1",
		TenantID:   "tenant-1",
		Username:   "dana",
		Roles:      roles,
	}
}

func TestHasAnyRole(t *testing.T) {
	tests := []struct {
		name   string
		claims *auth.Claims
		roles  []models.Role
		want   bool
	}{
		{"admin passes any check", claimsWithRoles(models.RoleAdmin), []models.Role{models.RoleAssigner}, true},
		{"admin passes empty check", claimsWithRoles(models.RoleAdmin), nil, true},
		{"doer passes doer check", claimsWithRoles(models.RoleDoer), []models.Role{models.RoleDoer}, true},
		{"doer fails assigner check", claimsWithRoles(models.RoleDoer), []models.Role{models.RoleAssigner}, false},
		{"multi-role matches one", claimsWithRoles(models.RoleDoer, models.RoleCoordinator), []models.Role{models.RoleCoordinator}, true},
		{"viewer fails empty check", claimsWithRoles(models.RoleViewer), nil, false},
		{"nil claims denied", nil, []models.Role{models.RoleViewer}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasAnyRole(tt.claims, tt.roles...); got != tt.want {
				t.Errorf("HasAnyRole = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequireRoleMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		claims     *auth.Claims
		mw         func(http.Handler) http.Handler
		wantStatus int
	}{
		{"admin passes admin check", claimsWithRoles(models.RoleAdmin), RequireAdmin, http.StatusOK},
		{"assigner fails admin check", claimsWithRoles(models.RoleAssigner), RequireAdmin, http.StatusForbidden},
		{"assigner passes assigner check", claimsWithRoles(models.RoleAssigner), RequireAssigner, http.StatusOK},
		{"doer fails assigner check", claimsWithRoles(models.RoleDoer), RequireAssigner, http.StatusForbidden},
		{"coordinator passes coordinator check", claimsWithRoles(models.RoleCoordinator), RequireCoordinator, http.StatusOK},
		{"viewer passes member check", claimsWithRoles(models.RoleViewer), RequireMember, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := tt.mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req = req.WithContext(context.WithValue(req.Context(), UserContextKey, tt.claims))

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireRoleMiddleware_NoUser(t *testing.T) {
	handler := RequireMember(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
