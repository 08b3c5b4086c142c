// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package handlers

import (
	"io"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/lrbcloud/taskloop/internal/api/errors"
	"github.com/lrbcloud/taskloop/internal/api/middleware"
	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/repository/postgres"
	"github.com/lrbcloud/taskloop/internal/services/delegation"
)

// MaxAttachmentSize caps evidence file uploads (32MB).
const MaxAttachmentSize = 32 * 1024 * 1024

// DelegationHandler handles one-off task delegation endpoints.
type DelegationHandler struct {
	BaseHandler
	delegationService *delegation.Service
}

// NewDelegationHandler creates a new delegation handler.
func NewDelegationHandler(delegationService *delegation.Service, log *logger.Logger) *DelegationHandler {
	return &DelegationHandler{
		BaseHandler:       NewBaseHandler(log),
		delegationService: delegationService,
	}
}

// Routes returns the delegation routes. Creating and deleting require an
// assigner; transitions and files are open to members since the status
// machine itself constrains who can do what.
func (h *DelegationHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{taskID}", h.Get)
	r.Post("/{taskID}/transition", h.Transition)
	r.Post("/{taskID}/files", h.AttachFile)
	r.Get("/{taskID}/files/{fileID}", h.DownloadFile)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAssigner)
		r.Post("/", h.Create)
		r.Delete("/{taskID}", h.Delete)
	})

	return r
}

// ============================================================================
// Request types
// ============================================================================

// TransitionRequest moves a task through the workflow.
type TransitionRequest struct {
	To              models.DelegationStatus `json:"to" validate:"required"`
	Remarks         string                  `json:"remarks,omitempty" validate:"max=2000"`
	RevisedDeadline *time.Time              `json:"revised_deadline,omitempty"`
}

// ============================================================================
// Handlers
// ============================================================================

// Create assigns a new task.
// POST /api/v1/delegations
func (h *DelegationHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	var input delegation.CreateInput
	if err := h.ParseJSON(r, &input); err != nil {
		h.HandleError(w, err)
		return
	}
	input.TenantID = tenantID
	input.AssignerID = callerID

	task, err := h.delegationService.Create(r.Context(), input)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.Created(w, task)
}

// List returns delegations in the caller's tenant, filtered by query
// parameters: assigner_id, doer_id, status, priority, due_before.
// GET /api/v1/delegations
func (h *DelegationHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.GetTenantID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	pagination := h.GetPagination(r)
	filter := postgres.DelegationFilter{
		TenantID: tenantID,
		Status:   models.DelegationStatus(h.QueryParam(r, "status")),
		Priority: models.Priority(h.QueryParam(r, "priority")),
		Limit:    pagination.PerPage,
		Offset:   pagination.Offset,
	}
	if id := h.QueryParamUUID(r, "assigner_id"); id != nil {
		filter.AssignerID = *id
	}
	if id := h.QueryParamUUID(r, "doer_id"); id != nil {
		filter.DoerID = *id
	}
	if due := h.QueryParam(r, "due_before"); due != "" {
		t, err := time.Parse(time.RFC3339, due)
		if err != nil {
			h.BadRequest(w, "due_before must be RFC 3339")
			return
		}
		filter.DueBefore = t
	}

	tasks, err := h.delegationService.List(r.Context(), filter)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, tasks)
}

// Get returns one delegation with files and history.
// GET /api/v1/delegations/{taskID}
func (h *DelegationHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.tenantScopedDelegation(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, task)
}

// Transition moves a task through the workflow.
// POST /api/v1/delegations/{taskID}/transition
func (h *DelegationHandler) Transition(w http.ResponseWriter, r *http.Request) {
	task, err := h.tenantScopedDelegation(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	callerID, err := h.GetEmployeeID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req TransitionRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	updated, err := h.delegationService.Transition(r.Context(), delegation.TransitionInput{
		TaskID:          task.ID,
		To:              req.To,
		ActorID:         callerID,
		Remarks:         req.Remarks,
		RevisedDeadline: req.RevisedDeadline,
	})
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, updated)
}

// AttachFile stores an evidence file against a task. Multipart form with a
// single "file" part.
// POST /api/v1/delegations/{taskID}/files
func (h *DelegationHandler) AttachFile(w http.ResponseWriter, r *http.Request) {
	task, err := h.tenantScopedDelegation(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxAttachmentSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.BadRequest(w, "multipart form with a 'file' part is required")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		h.BadRequest(w, "file name is required")
		return
	}

	stored, err := h.delegationService.AttachFile(r.Context(), task.ID, path.Base(header.Filename), file, header.Size)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.Created(w, stored)
}

// DownloadFile streams a stored attachment.
// GET /api/v1/delegations/{taskID}/files/{fileID}
func (h *DelegationHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	task, err := h.tenantScopedDelegation(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	fileID, err := h.URLParamUUID(r, "fileID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var file *models.TaskFile
	for i := range task.Files {
		if task.Files[i].ID == fileID {
			file = &task.Files[i]
			break
		}
	}
	if file == nil {
		h.NotFound(w, "file")
		return
	}

	reader, err := h.delegationService.OpenFile(r.Context(), file.Path)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.FileName+`"`)
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Warn("attachment stream interrupted", "file_id", fileID, "error", err)
	}
}

// Delete removes a task, its files and history.
// DELETE /api/v1/delegations/{taskID}
func (h *DelegationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	task, err := h.tenantScopedDelegation(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.delegationService.Delete(r.Context(), task.ID); err != nil {
		h.HandleError(w, err)
		return
	}

	h.NoContent(w)
}

// tenantScopedDelegation loads the addressed task and rejects cross-tenant
// access with a 404.
func (h *DelegationHandler) tenantScopedDelegation(r *http.Request) (*models.DelegationTask, error) {
	taskID, err := h.URLParamUUID(r, "taskID")
	if err != nil {
		return nil, err
	}

	tenantID, err := h.GetTenantID(r)
	if err != nil {
		return nil, err
	}

	task, err := h.delegationService.Get(r.Context(), taskID)
	if err != nil {
		return nil, err
	}
	if task.TenantID != tenantID {
		return nil, apierrors.NotFound("task")
	}

	return task, nil
}
