// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/services/export"
)

// ExportHandler streams tenant evidence archives.
type ExportHandler struct {
	BaseHandler
	exportService      *export.Service
	defaultCompression export.Compression
}

// NewExportHandler creates a new export handler. defaultCompression is used
// when the request does not name a codec; empty means gzip.
func NewExportHandler(exportService *export.Service, defaultCompression export.Compression, log *logger.Logger) *ExportHandler {
	if defaultCompression == "" {
		defaultCompression = export.CompressionGzip
	}
	return &ExportHandler{
		BaseHandler:        NewBaseHandler(log),
		exportService:      exportService,
		defaultCompression: defaultCompression,
	}
}

// Routes returns the export routes. Mount behind the coordinator role check.
func (h *ExportHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/archive", h.Archive)

	return r
}

// Archive streams a tar archive of the tenant's evidence files. The
// compression query parameter selects gzip (default), zstd or none.
// GET /api/v1/export/archive?compression=zstd
func (h *ExportHandler) Archive(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.GetTenantID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	compression := export.Compression(h.QueryParam(r, "compression"))
	if compression == "" {
		compression = h.defaultCompression
	}

	var contentType string
	switch compression {
	case export.CompressionGzip:
		contentType = "application/gzip"
	case export.CompressionZstd:
		contentType = "application/zstd"
	case export.CompressionNone:
		contentType = "application/x-tar"
	default:
		h.BadRequest(w, "compression must be gzip, zstd or none")
		return
	}

	filename := fmt.Sprintf("evidence-%s-%s%s",
		tenantID, time.Now().UTC().Format("20060102"), compression.Extension())

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	// Headers are committed once the first byte is written; mid-stream
	// failures can only be logged.
	result, err := h.exportService.Export(r.Context(), tenantID, w, compression)
	if err != nil {
		h.logger.Error("export stream failed", "tenant_id", tenantID, "error", err)
		return
	}

	h.logger.Info("export served",
		"tenant_id", tenantID,
		"files", result.FileCount,
		"checksum", result.Checksum)
}
