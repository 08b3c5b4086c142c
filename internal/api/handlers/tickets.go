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
	"github.com/lrbcloud/taskloop/internal/repository/postgres"
	"github.com/lrbcloud/taskloop/internal/services/ticket"
)

// TicketHandler handles support ticket endpoints.
type TicketHandler struct {
	BaseHandler
	ticketService *ticket.Service
}

// NewTicketHandler creates a new ticket handler.
func NewTicketHandler(ticketService *ticket.Service, log *logger.Logger) *TicketHandler {
	return &TicketHandler{
		BaseHandler:   NewBaseHandler(log),
		ticketService: ticketService,
	}
}

// Routes returns the ticket routes. Anyone can raise and read; closing and
// reopening require a coordinator.
func (h *TicketHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Open)
	r.Get("/", h.List)
	r.Get("/{ticketID}", h.Get)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireCoordinator)
		r.Post("/{ticketID}/close", h.Close)
		r.Post("/{ticketID}/reopen", h.Reopen)
	})

	return r
}

// OpenTicketRequest raises a new support ticket.
type OpenTicketRequest struct {
	Subject string `json:"subject" validate:"required,min=1,max=255"`
	Body    string `json:"body,omitempty" validate:"max=5000"`
}

// Open raises a ticket.
// POST /api/v1/tickets
func (h *TicketHandler) Open(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.GetTenantID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	callerID, err := h.GetEmployeeID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req OpenTicketRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	t, err := h.ticketService.Open(r.Context(), tenantID, callerID, req.Subject, req.Body)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.Created(w, t)
}

// List returns tickets in the caller's tenant. Optional query parameters:
// status, raised_by.
// GET /api/v1/tickets
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.GetTenantID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	pagination := h.GetPagination(r)
	filter := postgres.TicketFilter{
		TenantID: tenantID,
		Status:   models.TicketStatus(h.QueryParam(r, "status")),
		Limit:    pagination.PerPage,
		Offset:   pagination.Offset,
	}
	if id := h.QueryParamUUID(r, "raised_by"); id != nil {
		filter.RaisedBy = *id
	}

	tickets, err := h.ticketService.List(r.Context(), filter)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, tickets)
}

// Get returns one ticket.
// GET /api/v1/tickets/{ticketID}
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenantScopedTicket(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, t)
}

// Close resolves a ticket.
// POST /api/v1/tickets/{ticketID}/close
func (h *TicketHandler) Close(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenantScopedTicket(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.ticketService.Close(r.Context(), t.ID); err != nil {
		h.HandleError(w, err)
		return
	}

	h.NoContent(w)
}

// Reopen puts a closed ticket back in the queue.
// POST /api/v1/tickets/{ticketID}/reopen
func (h *TicketHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenantScopedTicket(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.ticketService.Reopen(r.Context(), t.ID); err != nil {
		h.HandleError(w, err)
		return
	}

	h.NoContent(w)
}

func (h *TicketHandler) tenantScopedTicket(r *http.Request) (*models.Ticket, error) {
	ticketID, err := h.URLParamUUID(r, "ticketID")
	if err != nil {
		return nil, err
	}

	tenantID, err := h.GetTenantID(r)
	if err != nil {
		return nil, err
	}

	t, err := h.ticketService.Get(r.Context(), ticketID)
	if err != nil {
		return nil, err
	}
	if t.TenantID != tenantID {
		return nil, apierrors.NotFound("ticket")
	}

	return t, nil
}
