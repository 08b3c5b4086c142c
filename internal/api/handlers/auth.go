// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package handlers provides HTTP handlers for the API.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/lrbcloud/taskloop/internal/api/errors"
	"github.com/lrbcloud/taskloop/internal/api/middleware"
	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/services/auth"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	BaseHandler
	authService *auth.Service
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService *auth.Service, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		BaseHandler: NewBaseHandler(log),
		authService: authService,
	}
}

// Routes returns the authentication routes. requireAuth guards the
// endpoints that need a valid access token.
func (h *AuthHandler) Routes(requireAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/login", h.Login)
	r.Post("/refresh", h.RefreshToken)
	r.Post("/logout", h.Logout)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/me", h.GetCurrentEmployee)
	})

	return r
}

// ============================================================================
// Request/Response types
// ============================================================================

// LoginRequest represents a login request.
type LoginRequest struct {
	Subdomain string `json:"subdomain" validate:"required,min=2,max=64"`
	Username  string `json:"username" validate:"required,min=3,max=64"`
	Password  string `json:"password" validate:"required,max=128"`
}

// LoginResponse represents a login response.
type LoginResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	ExpiresAt    string           `json:"expires_at"`
	Employee     EmployeeResponse `json:"employee"`
}

// RefreshRequest represents a token refresh request.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshResponse represents a token refresh response.
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
}

// EmployeeResponse represents an employee in API responses.
type EmployeeResponse struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenant_id"`
	Name        string        `json:"name"`
	Username    string        `json:"username"`
	Email       string        `json:"email,omitempty"`
	Department  string        `json:"department,omitempty"`
	Roles       []models.Role `json:"roles"`
	TotalPoints int           `json:"total_points"`
	OnLeave     bool          `json:"on_leave"`
	CreatedAt   string        `json:"created_at"`
}

func toEmployeeResponse(e *models.Employee) EmployeeResponse {
	return EmployeeResponse{
		ID:          e.ID.String(),
		TenantID:    e.TenantID.String(),
		Name:        e.Name,
		Username:    e.Username,
		Email:       e.Email,
		Department:  e.Department,
		Roles:       e.Roles,
		TotalPoints: e.TotalPoints,
		OnLeave:     e.Leave.OnLeave,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

// ============================================================================
// Handlers
// ============================================================================

// Login handles employee login.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	result, err := h.authService.Login(r.Context(), req.Subdomain, req.Username, req.Password)
	if err != nil {
		h.Error(w, apierrors.InvalidCredentials())
		return
	}

	resp := LoginResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		ExpiresAt:    result.Tokens.AccessTokenExpiresAt.Format(time.RFC3339),
		Employee:     toEmployeeResponse(result.Employee),
	}

	h.OK(w, resp)
}

// RefreshToken handles token refresh.
// POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	tokens, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.Error(w, apierrors.InvalidToken("invalid or expired refresh token"))
		return
	}

	resp := RefreshResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.AccessTokenExpiresAt.Format(time.RFC3339),
	}

	h.OK(w, resp)
}

// Logout revokes the presented access token.
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetTokenFromContext(r.Context())
	if token == "" {
		// The logout route sits outside the auth middleware so clients can
		// always drop their session. Extract the bearer token directly.
		header := r.Header.Get(middleware.AuthorizationHeader)
		token = strings.TrimPrefix(header, middleware.BearerPrefix)
		if token == header {
			token = ""
		}
	}

	if token != "" {
		if err := h.authService.Logout(r.Context(), token); err != nil {
			h.logger.Warn("logout failed", "error", err)
		}
	}

	h.NoContent(w)
}

// GetCurrentEmployee returns the authenticated employee's claims.
// GET /api/v1/auth/me
func (h *AuthHandler) GetCurrentEmployee(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		h.Forbidden(w, "not authenticated")
		return
	}

	h.OK(w, map[string]interface{}{
		"employee_id": claims.EmployeeID,
		"tenant_id":   claims.TenantID,
		"username":    claims.Username,
		"email":       claims.Email,
		"roles":       claims.Roles,
	})
}
