package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/model"
	"github.com/heirloom-restoration/workshop/internal/service"
	"github.com/heirloom-restoration/workshop/pkg/logger"
)

// PortfolioHandler handles gallery endpoints.
type PortfolioHandler struct {
	service *service.PortfolioService
	logger  *logger.Logger
}

// NewPortfolioHandler creates a new portfolio handler.
func NewPortfolioHandler(svc *service.PortfolioService, log *logger.Logger) *PortfolioHandler {
	return &PortfolioHandler{service: svc, logger: log}
}

// List handles GET /api/v1/portfolio
// Supports ?category=, ?featured=true, ?limit=N and ?ids=a,b,c.
func (h *PortfolioHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if ids := q.Get("ids"); ids != "" {
		items, err := h.service.GetMany(r.Context(), strings.Split(ids, ","))
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	filter := model.PortfolioFilter{
		Category: q.Get("category"),
		Limit:    limit,
	}
	if v := q.Get("featured"); v != "" {
		featured, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, h.logger, apperr.Validation("featured must be true or false"))
			return
		}
		filter.FeaturedOnly = featured
	}

	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Get handles GET /api/v1/portfolio/:id
func (h *PortfolioHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Create handles POST /api/v1/admin/portfolio
func (h *PortfolioHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.PortfolioItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	item, err := h.service.Create(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// Update handles PUT /api/v1/admin/portfolio/:id
func (h *PortfolioHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.PortfolioItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	item, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Delete handles DELETE /api/v1/admin/portfolio/:id
func (h *PortfolioHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
