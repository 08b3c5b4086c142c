// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/lrbcloud/taskloop/internal/api/errors"
	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/services/notification"
	"github.com/lrbcloud/taskloop/internal/services/tenant"
)

// TenantHandler handles tenant administration endpoints.
type TenantHandler struct {
	BaseHandler
	tenantService       *tenant.Service
	notificationService *notification.Service
}

// NewTenantHandler creates a new tenant handler. The notification service is
// optional; without it test notifications return 503.
func NewTenantHandler(tenantService *tenant.Service, notificationService *notification.Service, log *logger.Logger) *TenantHandler {
	return &TenantHandler{
		BaseHandler:         NewBaseHandler(log),
		tenantService:       tenantService,
		notificationService: notificationService,
	}
}

// Routes returns the tenant routes. Mount behind the admin role check.
func (h *TenantHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{tenantID}", h.Get)
	r.Patch("/{tenantID}", h.Update)
	r.Delete("/{tenantID}", h.Delete)
	r.Put("/{tenantID}/holidays", h.ReplaceHolidays)
	r.Post("/{tenantID}/test-notification", h.TestNotification)

	return r
}

// ============================================================================
// Request types
// ============================================================================

// ReplaceHolidaysRequest carries a full holiday calendar replacement.
type ReplaceHolidaysRequest struct {
	Holidays []models.Holiday `json:"holidays" validate:"required,dive"`
}

// TestNotificationRequest asks for a probe message on one channel.
type TestNotificationRequest struct {
	Channel   string `json:"channel" validate:"required,oneof=email whatsapp"`
	Recipient string `json:"recipient" validate:"required,max=255"`
}

// ============================================================================
// Handlers
// ============================================================================

// Create registers a new tenant.
// POST /api/v1/tenants
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input tenant.CreateInput
	if err := h.ParseJSON(r, &input); err != nil {
		h.HandleError(w, err)
		return
	}

	created, err := h.tenantService.Create(r.Context(), input)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.Created(w, created)
}

// List returns all tenants.
// GET /api/v1/tenants
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenantService.List(r.Context())
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, tenants)
}

// Get returns one tenant.
// GET /api/v1/tenants/{tenantID}
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.URLParamUUID(r, "tenantID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	t, err := h.tenantService.Get(r.Context(), tenantID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, t)
}

// Update edits tenant settings.
// PATCH /api/v1/tenants/{tenantID}
func (h *TenantHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.URLParamUUID(r, "tenantID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var input tenant.UpdateInput
	if err := h.ParseJSON(r, &input); err != nil {
		h.HandleError(w, err)
		return
	}

	updated, err := h.tenantService.Update(r.Context(), tenantID, input)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, updated)
}

// Delete removes a tenant and everything under it.
// DELETE /api/v1/tenants/{tenantID}
func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.URLParamUUID(r, "tenantID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.tenantService.Delete(r.Context(), tenantID); err != nil {
		h.HandleError(w, err)
		return
	}

	h.NoContent(w)
}

// ReplaceHolidays swaps the tenant's holiday calendar.
// PUT /api/v1/tenants/{tenantID}/holidays
func (h *TenantHandler) ReplaceHolidays(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.URLParamUUID(r, "tenantID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req ReplaceHolidaysRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.tenantService.ReplaceHolidays(r.Context(), tenantID, req.Holidays); err != nil {
		h.HandleError(w, err)
		return
	}

	h.NoContent(w)
}

// TestNotification sends a probe message through a configured channel.
// POST /api/v1/tenants/{tenantID}/test-notification
func (h *TenantHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	if h.notificationService == nil {
		h.HandleError(w, apierrors.ServiceUnavailable("notifications are not configured"))
		return
	}

	tenantID, err := h.URLParamUUID(r, "tenantID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req TestNotificationRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	t, err := h.tenantService.Get(r.Context(), tenantID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.notificationService.SendTest(r.Context(), t, req.Channel, req.Recipient); err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, map[string]string{"message": "test notification sent"})
}
