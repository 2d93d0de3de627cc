package handler

import (
	"net/http"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/backend"
	"github.com/heirloom-restoration/workshop/internal/middleware"
	"github.com/heirloom-restoration/workshop/pkg/logger"
)

// SessionHandler resolves hosted-backend access tokens.
type SessionHandler struct {
	backend backend.Backend
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(b backend.Backend, log *logger.Logger) *SessionHandler {
	return &SessionHandler{backend: b, logger: log}
}

// Get handles GET /api/v1/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		writeError(w, r, h.logger, apperr.New(apperr.CodeUnauthorized, "missing access token"))
		return
	}

	session, err := h.backend.GetSession(r.Context(), token)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}
