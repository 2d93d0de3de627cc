package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/events"
	"github.com/heirloom-restoration/workshop/internal/model"
	"github.com/heirloom-restoration/workshop/internal/service"
	"github.com/heirloom-restoration/workshop/pkg/logger"
	"github.com/heirloom-restoration/workshop/pkg/metrics"
)

const (
	defaultHeartbeat = 30 * time.Second
	streamBuffer     = 64
)

// StreamHandler forwards live chat events over server-sent events.
type StreamHandler struct {
	bus           events.Bus
	conversations *service.ConversationService
	logger        *logger.Logger
	heartbeat     time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(bus events.Bus, convs *service.ConversationService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		bus:           bus,
		conversations: convs,
		logger:        logger.OrGlobal(log).Named("stream"),
		heartbeat:     defaultHeartbeat,
	}
}

// Stream handles GET /api/v1/chat/conversations/:id/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	if _, err := h.conversations.Get(r.Context(), conversationID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.serve(w, r, conversationID)
}

// Inbox handles GET /api/v1/admin/stream, streaming every conversation.
func (h *StreamHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "")
}

func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, conversationID string) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, h.logger, apperr.New(apperr.CodeUnexpected, "streaming not supported"))
		return
	}

	eventsCh := make(chan model.ChatEvent, streamBuffer)
	unsubscribe, err := h.bus.Subscribe(conversationID, func(ev model.ChatEvent) {
		select {
		case eventsCh <- ev:
		default:
			h.logger.Warn("dropping chat event for slow client",
				zap.String("conversation_id", ev.ConversationID),
				zap.String("event_id", ev.ID),
			)
		}
	})
	if err != nil {
		writeError(w, r, h.logger, apperr.Wrap(apperr.CodeUnexpected, "failed to subscribe", err))
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	_ = sendSSEEvent(w, flusher, "", "connected", map[string]string{
		"conversation_id": conversationID,
	})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("conversation_id", conversationID))
			return

		case ev := <-eventsCh:
			if err := sendSSEEvent(w, flusher, ev.ID, string(ev.Type), ev); err != nil {
				h.logger.Debug("SSE write failed", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			if err := sendSSEEvent(w, flusher, "", "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now().UTC(),
			}); err != nil {
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, id, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
