package handler

import (
	"net/http"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/query"
	"github.com/heirloom-restoration/workshop/internal/service"
	"github.com/heirloom-restoration/workshop/pkg/logger"
)

// DashboardHandler handles admin dashboard endpoints.
type DashboardHandler struct {
	dashboard *service.DashboardService
	customers *service.CustomerService
	optimizer *query.Optimizer
	logger    *logger.Logger
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(
	dashboard *service.DashboardService,
	customers *service.CustomerService,
	optimizer *query.Optimizer,
	log *logger.Logger,
) *DashboardHandler {
	return &DashboardHandler{
		dashboard: dashboard,
		customers: customers,
		optimizer: optimizer,
		logger:    log,
	}
}

// Stats handles GET /api/v1/admin/stats
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboard.Stats(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Customers handles GET /api/v1/admin/customers
func (h *DashboardHandler) Customers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	customers, err := h.customers.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

// CacheStats handles GET /api/v1/admin/cache
func (h *DashboardHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.optimizer.Stats())
}

// InvalidateCache handles DELETE /api/v1/admin/cache
// ?contains=portfolio drops matching entries; no parameter clears everything.
func (h *DashboardHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	contains := r.URL.Query().Get("contains")
	if _, ok := r.URL.Query()["contains"]; ok && contains == "" {
		writeError(w, r, h.logger, apperr.Validation("contains must not be empty"))
		return
	}

	if contains == "" {
		h.optimizer.ClearAll()
		writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
		return
	}

	removed := h.optimizer.Invalidate(contains)
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed, "contains": contains})
}
