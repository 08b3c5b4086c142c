// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package handlers

import (
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/lrbcloud/taskloop/internal/api/errors"
	"github.com/lrbcloud/taskloop/internal/api/middleware"
	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/services/checklist"
)

// ChecklistHandler handles recurring checklist endpoints.
type ChecklistHandler struct {
	BaseHandler
	checklistService *checklist.Service
}

// NewChecklistHandler creates a new checklist handler.
func NewChecklistHandler(checklistService *checklist.Service, log *logger.Logger) *ChecklistHandler {
	return &ChecklistHandler{
		BaseHandler:      NewBaseHandler(log),
		checklistService: checklistService,
	}
}

// Routes returns the checklist routes. Reading and completing are open to
// members; definition changes require an assigner.
func (h *ChecklistHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/instances", h.ListInstances)
	r.Get("/{taskID}", h.Get)
	r.Post("/{taskID}/complete", h.Complete)
	r.Get("/{taskID}/history/{entryID}/evidence", h.DownloadEvidence)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAssigner)
		r.Post("/", h.Create)
		r.Patch("/{taskID}", h.Update)
		r.Delete("/{taskID}", h.Delete)
		r.Post("/{taskID}/pause", h.Pause)
		r.Post("/{taskID}/resume", h.Resume)
	})

	return r
}

// ============================================================================
// Request types
// ============================================================================

// CompleteChecklistRequest records a completion of one occurrence.
type CompleteChecklistRequest struct {
	InstanceDate   time.Time `json:"instance_date" validate:"required"`
	Remarks        string    `json:"remarks,omitempty" validate:"max=2000"`
	Administrative bool      `json:"administrative,omitempty"`
}

// ============================================================================
// Handlers
// ============================================================================

// Create registers a new recurring checklist.
// POST /api/v1/checklists
func (h *ChecklistHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	var input checklist.CreateInput
	if err := h.ParseJSON(r, &input); err != nil {
		h.HandleError(w, err)
		return
	}
	input.TenantID = tenantID
	input.CreatedBy = &callerID

	task, err := h.checklistService.Create(r.Context(), input)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.Created(w, task)
}

// List returns all checklist definitions in the caller's tenant.
// GET /api/v1/checklists
func (h *ChecklistHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.GetTenantID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	tasks, err := h.checklistService.ListByTenant(r.Context(), tenantID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, tasks)
}

// ListInstances returns the visible occurrences due today or in backlog,
// including buddy coverage. Optional doer_id filters to one employee.
// GET /api/v1/checklists/instances?doer_id=...
func (h *ChecklistHandler) ListInstances(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.GetTenantID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	doerID := h.QueryParamUUID(r, "doer_id")

	instances, err := h.checklistService.ListInstances(r.Context(), tenantID, doerID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, instances)
}

// Get returns one checklist with its history.
// GET /api/v1/checklists/{taskID}
func (h *ChecklistHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.tenantScopedChecklist(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, task)
}

// Complete records the completion of one occurrence. A plain JSON body
// completes without evidence; a multipart form carries the same fields plus
// an optional "file" part that is stored as completion evidence.
// POST /api/v1/checklists/{taskID}/complete
func (h *ChecklistHandler) Complete(w http.ResponseWriter, r *http.Request) {
	task, err := h.tenantScopedChecklist(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	callerID, err := h.GetEmployeeID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req CompleteChecklistRequest
	var evidence *checklist.EvidenceFile

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, MaxAttachmentSize)

		req, evidence, err = h.parseCompleteForm(r)
		if err != nil {
			h.HandleError(w, err)
			return
		}
		if evidence != nil {
			if closer, ok := evidence.Reader.(io.Closer); ok {
				defer closer.Close()
			}
		}
	} else if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	// Administrative completions need coordinator standing
	if req.Administrative {
		claims := h.GetClaims(r)
		if !middleware.HasAnyRole(claims, models.RoleCoordinator, models.RoleAssigner) {
			h.Forbidden(w, "administrative completion requires a coordinator")
			return
		}
	}

	updated, err := h.checklistService.Complete(r.Context(), checklist.CompleteInput{
		TaskID:         task.ID,
		InstanceDate:   req.InstanceDate,
		PerformedBy:    callerID,
		Remarks:        req.Remarks,
		Evidence:       evidence,
		Administrative: req.Administrative,
	})
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, updated)
}

// parseCompleteForm reads a multipart completion. The instance date accepts
// RFC 3339 or a plain calendar day.
func (h *ChecklistHandler) parseCompleteForm(r *http.Request) (CompleteChecklistRequest, *checklist.EvidenceFile, error) {
	var req CompleteChecklistRequest

	if err := r.ParseMultipartForm(MaxAttachmentSize); err != nil {
		return req, nil, apierrors.InvalidInput("invalid multipart form")
	}

	raw := r.FormValue("instance_date")
	instanceDate, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		instanceDate, err = time.Parse("2006-01-02", raw)
	}
	if err != nil {
		return req, nil, apierrors.InvalidInput("instance_date must be RFC 3339 or YYYY-MM-DD")
	}
	req.InstanceDate = instanceDate
	req.Remarks = r.FormValue("remarks")
	req.Administrative = r.FormValue("administrative") == "true"

	file, header, err := r.FormFile("file")
	if err == http.ErrMissingFile {
		return req, nil, nil
	}
	if err != nil {
		return req, nil, apierrors.InvalidInput("invalid 'file' part")
	}
	if header.Filename == "" {
		file.Close()
		return req, nil, apierrors.InvalidInput("file name is required")
	}

	return req, &checklist.EvidenceFile{
		FileName: path.Base(header.Filename),
		Reader:   file,
		Size:     header.Size,
	}, nil
}

// DownloadEvidence streams the evidence stored with a completion.
// GET /api/v1/checklists/{taskID}/history/{entryID}/evidence
func (h *ChecklistHandler) DownloadEvidence(w http.ResponseWriter, r *http.Request) {
	task, err := h.tenantScopedChecklist(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	entryID, err := h.URLParamUUID(r, "entryID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var stored string
	for i := range task.History {
		if task.History[i].ID == entryID {
			stored = task.History[i].AttachmentPath
			break
		}
	}
	if stored == "" {
		h.NotFound(w, "evidence")
		return
	}

	reader, err := h.checklistService.OpenEvidence(r.Context(), stored)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+path.Base(stored)+"\"")
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Warn("evidence download interrupted", "path", stored, "error", err)
	}
}

// Update edits a checklist definition.
// PATCH /api/v1/checklists/{taskID}
func (h *ChecklistHandler) Update(w http.ResponseWriter, r *http.Request) {
	task, err := h.tenantScopedChecklist(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	callerID, err := h.GetEmployeeID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var input checklist.UpdateInput
	if err := h.ParseJSON(r, &input); err != nil {
		h.HandleError(w, err)
		return
	}
	input.PerformedBy = &callerID

	updated, err := h.checklistService.Update(r.Context(), task.ID, input)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, updated)
}

// Pause suspends occurrence generation.
// POST /api/v1/checklists/{taskID}/pause
func (h *ChecklistHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

// Resume reactivates a paused checklist.
// POST /api/v1/checklists/{taskID}/resume
func (h *ChecklistHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *ChecklistHandler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	task, err := h.tenantScopedChecklist(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	callerID, err := h.GetEmployeeID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if paused {
		err = h.checklistService.Pause(r.Context(), task.ID, &callerID)
	} else {
		err = h.checklistService.Resume(r.Context(), task.ID, &callerID)
	}
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.NoContent(w)
}

// Delete removes a checklist and its history.
// DELETE /api/v1/checklists/{taskID}
func (h *ChecklistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	task, err := h.tenantScopedChecklist(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.checklistService.Delete(r.Context(), task.ID); err != nil {
		h.HandleError(w, err)
		return
	}

	h.NoContent(w)
}

// tenantScopedChecklist loads the addressed checklist and rejects
// cross-tenant access with a 404.
func (h *ChecklistHandler) tenantScopedChecklist(r *http.Request) (*models.ChecklistTask, error) {
	taskID, err := h.URLParamUUID(r, "taskID")
	if err != nil {
		return nil, err
	}

	tenantID, err := h.GetTenantID(r)
	if err != nil {
		return nil, err
	}

	task, err := h.checklistService.Get(r.Context(), taskID)
	if err != nil {
		return nil, err
	}
	if task.TenantID != tenantID {
		return nil, apierrors.NotFound("checklist")
	}

	return task, nil
}
