// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heirloom-restoration/workshop/internal/middleware"
	"github.com/heirloom-restoration/workshop/internal/model"
	"github.com/heirloom-restoration/workshop/internal/service"
	"github.com/heirloom-restoration/workshop/pkg/logger"
)

// ConversationHandler handles the admin inbox endpoints.
type ConversationHandler struct {
	conversations *service.ConversationService
	messages      *service.MessageService
	logger        *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(convs *service.ConversationService, msgs *service.MessageService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: convs,
		messages:      msgs,
		logger:        log,
	}
}

// List handles GET /api/v1/admin/conversations
// Supports ?status=active|closed|archived.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.ConversationStatus(r.URL.Query().Get("status"))

	resp, err := h.conversations.List(r.Context(), status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/admin/conversations/:id
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	conv, err := h.conversations.Get(ctx, conversationID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	msgs, err := h.messages.List(ctx, conversationID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	conv.Messages = msgs.Messages

	writeJSON(w, http.StatusOK, conv)
}

// Update handles PATCH /api/v1/admin/conversations/:id
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	conv, err := h.conversations.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /api/v1/admin/conversations/:id
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.conversations.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reply handles POST /api/v1/admin/conversations/:id/messages
// The sender is the authenticated staff member.
func (h *ConversationHandler) Reply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	req.SenderID = middleware.GetUserID(ctx)
	if req.SenderName == "" {
		req.SenderName = middleware.GetEmail(ctx)
	}

	msg, err := h.messages.Send(ctx, chi.URLParam(r, "id"), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// MarkRead handles POST /api/v1/admin/conversations/:id/read
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.messages.MarkRead(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}
