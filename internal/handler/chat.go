package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heirloom-restoration/workshop/internal/model"
	"github.com/heirloom-restoration/workshop/internal/ratelimit"
	"github.com/heirloom-restoration/workshop/internal/service"
	"github.com/heirloom-restoration/workshop/pkg/logger"
)

// ChatHandler handles the public chat widget endpoints.
type ChatHandler struct {
	chat     *service.ChatService
	messages *service.MessageService
	limiter  *ratelimit.Limiter
	start    ratelimit.Options
	logger   *logger.Logger
}

// NewChatHandler creates a new chat handler. startLimit bounds how often one
// client may open conversations.
func NewChatHandler(
	chat *service.ChatService,
	messages *service.MessageService,
	limiter *ratelimit.Limiter,
	startLimit ratelimit.Options,
	log *logger.Logger,
) *ChatHandler {
	return &ChatHandler{
		chat:     chat,
		messages: messages,
		limiter:  limiter,
		start:    startLimit,
		logger:   log,
	}
}

// Start handles POST /api/v1/chat/conversations
func (h *ChatHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req model.StartConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	key := ratelimit.Key(ratelimit.ClientAddress(r.Header, r.RemoteAddr), h.start.Identifier)
	conv, err := ratelimit.WithRateLimit(r.Context(), h.limiter, key, h.start,
		func(ctx context.Context) (*model.Conversation, error) {
			return h.chat.CreateConversation(ctx, req)
		})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// ListMessages handles GET /api/v1/chat/conversations/:id/messages
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	resp, err := h.messages.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /api/v1/chat/conversations/:id/messages
// The message is always attributed to the conversation's customer.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	msg, err := h.messages.SendAsCustomer(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// MarkRead handles POST /api/v1/chat/conversations/:id/read
// viewer_id may be omitted; when present it must be the customer's email.
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req model.MarkReadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	n, err := h.messages.MarkReadAsCustomer(r.Context(), chi.URLParam(r, "id"), req.ViewerID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}
