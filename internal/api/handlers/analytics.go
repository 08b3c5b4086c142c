// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/services/analytics"
)

// AnalyticsHandler handles reporting endpoints.
type AnalyticsHandler struct {
	BaseHandler
	analyticsService *analytics.Service
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(analyticsService *analytics.Service, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		BaseHandler:      NewBaseHandler(log),
		analyticsService: analyticsService,
	}
}

// Routes returns the analytics routes.
func (h *AnalyticsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/report", h.Report)
	r.Get("/review", h.Review)
	r.Get("/leaderboard", h.Leaderboard)

	return r
}

// Review returns per-employee expected-versus-actual tallies for the window
// around a reference date. The view query parameter selects daily, weekly or
// monthly; date is RFC 3339 and defaults to now.
// GET /api/v1/analytics/review?view=weekly&date=...
func (h *AnalyticsHandler) Review(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.GetTenantID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	view := analytics.ReviewWeekly
	if v := h.QueryParam(r, "view"); v != "" {
		view = analytics.ReviewView(v)
	}

	reference := time.Now().UTC()
	if v := h.QueryParam(r, "date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.BadRequest(w, "date must be RFC 3339")
			return
		}
		reference = t
	}

	review, err := h.analyticsService.Review(r.Context(), tenantID, view, reference)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, review)
}

// Report returns per-doer completion statistics over a date range. Query
// parameters from and to are RFC 3339; the default range is the last 30
// days.
// GET /api/v1/analytics/report?from=...&to=...
func (h *AnalyticsHandler) Report(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.GetTenantID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)

	if v := h.QueryParam(r, "from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.BadRequest(w, "from must be RFC 3339")
			return
		}
		from = t
	}
	if v := h.QueryParam(r, "to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.BadRequest(w, "to must be RFC 3339")
			return
		}
		to = t
	}
	if to.Before(from) {
		h.BadRequest(w, "to must not precede from")
		return
	}

	report, err := h.analyticsService.Report(r.Context(), tenantID, from, to)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, report)
}

// Leaderboard returns the tenant's top point earners.
// GET /api/v1/analytics/leaderboard?limit=10
func (h *AnalyticsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.GetTenantID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	limit := h.QueryParamInt(r, "limit", 10)
	if limit < 1 || limit > 100 {
		limit = 10
	}

	entries, err := h.analyticsService.Leaderboard(r.Context(), tenantID, limit)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, entries)
}
