// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/lrbcloud/taskloop/internal/api/errors"
	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/services/auth"
)

// HasAnyRole reports whether the claims carry at least one of the given
// roles. Admins pass every check.
func HasAnyRole(claims *auth.Claims, roles ...models.Role) bool {
	if claims == nil {
		return false
	}
	if claims.HasRole(models.RoleAdmin) {
		return true
	}
	for _, role := range roles {
		if claims.HasRole(role) {
			return true
		}
	}
	return false
}

// RequireRole returns middleware that rejects requests whose claims carry
// none of the given roles. Admins always pass.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r.Context())
			if claims == nil {
				apierrors.WriteErrorWithRequestID(w, apierrors.Unauthorized(""), GetRequestID(r.Context()))
				return
			}
			if !HasAnyRole(claims, roles...) {
				apierrors.WriteErrorWithRequestID(w, apierrors.Forbidden(""), GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin rejects requests from non-admins.
var RequireAdmin = RequireRole()

// RequireAssigner allows assigners and admins.
var RequireAssigner = RequireRole(models.RoleAssigner)

// RequireCoordinator allows coordinators, assigners and admins.
var RequireCoordinator = RequireRole(models.RoleCoordinator, models.RoleAssigner)

// RequireMember allows any tenant role.
var RequireMember = RequireRole(
	models.RoleAssigner,
	models.RoleDoer,
	models.RoleCoordinator,
	models.RoleViewer,
)

// TenantScope rejects requests whose path tenant does not match the token's
// tenant. Mount below a route carrying a {tenantID} URL parameter.
func TenantScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetUserFromContext(r.Context())
		if claims == nil {
			apierrors.WriteErrorWithRequestID(w, apierrors.Unauthorized(""), GetRequestID(r.Context()))
			return
		}

		pathTenant := chi.URLParam(r, "tenantID")
		if pathTenant != "" && pathTenant != claims.TenantID {
			apierrors.WriteErrorWithRequestID(w, apierrors.Forbidden("tenant mismatch"), GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}
