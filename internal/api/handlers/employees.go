// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/lrbcloud/taskloop/internal/api/errors"
	"github.com/lrbcloud/taskloop/internal/api/middleware"
	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/services/employee"
)

// EmployeeHandler handles staff management endpoints.
type EmployeeHandler struct {
	BaseHandler
	employeeService *employee.Service
}

// NewEmployeeHandler creates a new employee handler.
func NewEmployeeHandler(employeeService *employee.Service, log *logger.Logger) *EmployeeHandler {
	return &EmployeeHandler{
		BaseHandler:     NewBaseHandler(log),
		employeeService: employeeService,
	}
}

// Routes returns the employee routes. Listing and reading are open to any
// member; mutations require the admin role.
func (h *EmployeeHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{employeeID}", h.Get)

	// Anyone can rotate their own password
	r.Post("/{employeeID}/password", h.ChangePassword)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin)
		r.Post("/", h.Create)
		r.Patch("/{employeeID}", h.Update)
		r.Delete("/{employeeID}", h.Delete)
		r.Post("/{employeeID}/password/reset", h.ResetPassword)
		r.Put("/{employeeID}/leave", h.SetLeave)
	})

	return r
}

// ============================================================================
// Request types
// ============================================================================

// ChangePasswordRequest rotates the caller's own password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

// ResetPasswordRequest sets a password administratively.
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

// ============================================================================
// Handlers
// ============================================================================

// Create adds an employee to the caller's tenant.
// POST /api/v1/employees
func (h *EmployeeHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.GetTenantID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var input employee.CreateInput
	if err := h.ParseJSON(r, &input); err != nil {
		h.HandleError(w, err)
		return
	}
	input.TenantID = tenantID

	created, err := h.employeeService.Create(r.Context(), input)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.Created(w, toEmployeeResponse(created))
}

// List returns the caller's tenant staff.
// GET /api/v1/employees
func (h *EmployeeHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.GetTenantID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	staff, err := h.employeeService.List(r.Context(), tenantID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	resp := make([]EmployeeResponse, len(staff))
	for i, e := range staff {
		resp[i] = toEmployeeResponse(e)
	}
	h.OK(w, resp)
}

// Get returns one employee.
// GET /api/v1/employees/{employeeID}
func (h *EmployeeHandler) Get(w http.ResponseWriter, r *http.Request) {
	emp, err := h.tenantScopedEmployee(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, emp)
}

// Update edits an employee's profile and roles.
// PATCH /api/v1/employees/{employeeID}
func (h *EmployeeHandler) Update(w http.ResponseWriter, r *http.Request) {
	emp, err := h.tenantScopedEmployee(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var input employee.UpdateInput
	if err := h.ParseJSON(r, &input); err != nil {
		h.HandleError(w, err)
		return
	}

	updated, err := h.employeeService.Update(r.Context(), emp.ID, input)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, toEmployeeResponse(updated))
}

// Delete removes an employee.
// DELETE /api/v1/employees/{employeeID}
func (h *EmployeeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	emp, err := h.tenantScopedEmployee(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.employeeService.Delete(r.Context(), emp.ID); err != nil {
		h.HandleError(w, err)
		return
	}

	h.NoContent(w)
}

// ChangePassword rotates the caller's own password.
// POST /api/v1/employees/{employeeID}/password
func (h *EmployeeHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	employeeID, err := h.URLParamUUID(r, "employeeID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	callerID, err := h.GetEmployeeID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	if callerID != employeeID {
		h.Forbidden(w, "can only change your own password")
		return
	}

	var req ChangePasswordRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.employeeService.ChangePassword(r.Context(), employeeID, req.CurrentPassword, req.NewPassword); err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, map[string]string{"message": "password changed successfully"})
}

// ResetPassword sets a password without the current one.
// POST /api/v1/employees/{employeeID}/password/reset
func (h *EmployeeHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	emp, err := h.tenantScopedEmployee(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req ResetPasswordRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.employeeService.ResetPassword(r.Context(), emp.ID, req.NewPassword); err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, map[string]string{"message": "password reset"})
}

// SetLeave sets or clears an employee's leave window.
// PUT /api/v1/employees/{employeeID}/leave
func (h *EmployeeHandler) SetLeave(w http.ResponseWriter, r *http.Request) {
	emp, err := h.tenantScopedEmployee(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var leave models.Leave
	if err := h.ParseJSON(r, &leave); err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.employeeService.SetLeave(r.Context(), emp.ID, leave); err != nil {
		h.HandleError(w, err)
		return
	}

	h.NoContent(w)
}

// tenantScopedEmployee loads the addressed employee and rejects cross-tenant
// access. IDs are unguessable, but a 404 either way keeps tenants sealed.
func (h *EmployeeHandler) tenantScopedEmployee(r *http.Request) (*models.Employee, error) {
	employeeID, err := h.URLParamUUID(r, "employeeID")
	if err != nil {
		return nil, err
	}

	tenantID, err := h.GetTenantID(r)
	if err != nil {
		return nil, err
	}

	emp, err := h.employeeService.Get(r.Context(), employeeID)
	if err != nil {
		return nil, err
	}
	if emp.TenantID != tenantID {
		return nil, apierrors.NotFound("employee")
	}

	return emp, nil
}
