package handler

import (
	"net/http"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/service"
	"github.com/heirloom-restoration/workshop/pkg/logger"
)

const maxUploadBytes = 10 << 20

// UploadHandler handles admin image uploads.
type UploadHandler struct {
	service *service.UploadService
	logger  *logger.Logger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(svc *service.UploadService, log *logger.Logger) *UploadHandler {
	return &UploadHandler{service: svc, logger: log}
}

// Upload handles POST /api/v1/admin/uploads
// Expects a multipart form with "folder" and "file" fields.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, h.logger, apperr.Wrap(apperr.CodeValidation, "invalid upload form", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, h.logger, apperr.Validation("file is required"))
		return
	}
	defer file.Close()

	upload, err := h.service.Upload(r.Context(), r.FormValue("folder"), file, header.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, upload)
}

// List handles GET /api/v1/admin/uploads?folder=portfolio
func (h *UploadHandler) List(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.service.List(r.Context(), r.URL.Query().Get("folder"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, uploads)
}

type deleteUploadsRequest struct {
	Paths []string `json:"paths"`
}

// Delete handles DELETE /api/v1/admin/uploads
func (h *UploadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteUploadsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.service.Delete(r.Context(), req.Paths); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
