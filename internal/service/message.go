package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/backend"
	"github.com/heirloom-restoration/workshop/internal/chat"
	"github.com/heirloom-restoration/workshop/internal/events"
	"github.com/heirloom-restoration/workshop/internal/model"
	"github.com/heirloom-restoration/workshop/internal/query"
	"github.com/heirloom-restoration/workshop/pkg/logger"
	"github.com/heirloom-restoration/workshop/pkg/metrics"
)

// maxClockSkew bounds how far a client-supplied creation time may drift from
// the server clock before it is replaced.
const maxClockSkew = 5 * time.Minute

// MessageService handles message operations.
type MessageService struct {
	backend       backend.Backend
	conversations *ConversationService
	optimizer     *query.Optimizer
	bus           events.Bus
	logger        *logger.Logger
	now           func() time.Time
}

// NewMessageService creates a new message service.
func NewMessageService(
	b backend.Backend,
	conversations *ConversationService,
	o *query.Optimizer,
	bus events.Bus,
	log *logger.Logger,
) *MessageService {
	return &MessageService{
		backend:       b,
		conversations: conversations,
		optimizer:     o,
		bus:           bus,
		logger:        logger.OrGlobal(log).Named("messages"),
		now:           time.Now,
	}
}

// Send appends a message to an active conversation. Resending a message id
// that already exists returns the stored message.
func (s *MessageService) Send(ctx context.Context, conversationID string, req *model.SendMessageRequest) (*model.Message, error) {
	if err := validateSend(req); err != nil {
		return nil, err
	}
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, conv, req)
}

// SendAsCustomer posts a message from the conversation's customer. The sender
// fields of req are replaced with the customer's identity.
func (s *MessageService) SendAsCustomer(ctx context.Context, conversationID string, req *model.SendMessageRequest) (*model.Message, error) {
	if err := ValidateMessageContent(req.Content); err != nil {
		return nil, err
	}
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	req.SenderID = conv.CustomerEmail
	req.SenderName = conv.CustomerName
	req.MessageType = model.MessageTypeUser
	if err := validateSend(req); err != nil {
		return nil, err
	}
	return s.send(ctx, conv, req)
}

func validateSend(req *model.SendMessageRequest) error {
	if err := ValidateMessageContent(req.Content); err != nil {
		return err
	}
	if err := ValidateName(req.SenderName); err != nil {
		return err
	}
	if req.MessageType == "" {
		req.MessageType = model.MessageTypeUser
	}
	if req.MessageType != model.MessageTypeUser && req.MessageType != model.MessageTypeSystem {
		return apperr.Validation("unknown message type")
	}
	return nil
}

func (s *MessageService) send(ctx context.Context, conv *model.Conversation, req *model.SendMessageRequest) (*model.Message, error) {
	conversationID := conv.ID
	if conv.Status != model.StatusActive {
		return nil, apperr.Validation("conversation is not active")
	}

	id := req.ID
	if id != "" {
		if err := ValidateID(id); err != nil {
			return nil, err
		}
		if existing, err := s.find(ctx, conversationID, id); err != nil || existing != nil {
			return existing, err
		}
	} else {
		id = uuid.Must(uuid.NewV7()).String()
	}

	msg := model.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderName:     strings.TrimSpace(req.SenderName),
		SenderID:       req.SenderID,
		Content:        strings.TrimSpace(req.Content),
		MessageType:    req.MessageType,
		CreatedAt:      s.createdAt(req.CreatedAt),
	}
	if req.CreatedAt != nil {
		floor, err := s.lastReplyAt(ctx, conversationID, msg.SenderID)
		if err != nil {
			return nil, err
		}
		if !msg.CreatedAt.After(floor) {
			msg.CreatedAt = s.now().UTC()
			if !msg.CreatedAt.After(floor) {
				msg.CreatedAt = floor.Add(time.Microsecond)
			}
		}
	}

	var stored model.Message
	if err := s.backend.Insert(ctx, backend.TableMessages, msg, &stored); err != nil {
		return nil, err
	}

	if err := s.conversations.touch(ctx, conv, stored.CreatedAt); err != nil {
		s.logger.Warn("failed to update conversation activity",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}

	metrics.MessagesTotal.WithLabelValues(string(stored.MessageType)).Inc()
	s.optimizer.InvalidateConversations()
	publishEvent(ctx, s.bus, s.logger, model.ChatEvent{
		Type:           model.EventMessageCreated,
		ConversationID: conversationID,
		Message:        &stored,
	}, s.now)

	return &stored, nil
}

// createdAt honors a client timestamp when it is close to the server clock.
func (s *MessageService) createdAt(requested *time.Time) time.Time {
	now := s.now().UTC()
	if requested == nil || requested.IsZero() {
		return now
	}
	if d := now.Sub(*requested); d > maxClockSkew || d < -maxClockSkew {
		return now
	}
	return requested.UTC()
}

// lastReplyAt returns when someone other than senderID last wrote to the
// conversation. Client timestamps may not place a message before it.
func (s *MessageService) lastReplyAt(ctx context.Context, conversationID, senderID string) (time.Time, error) {
	var msgs []model.Message
	err := s.backend.Select(ctx, backend.TableMessages, backend.Query{
		Eq:      map[string]string{"conversation_id": conversationID},
		Neq:     map[string]string{"sender_id": senderID},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   1,
	}, &msgs)
	if err != nil || len(msgs) == 0 {
		return time.Time{}, err
	}
	return msgs[0].CreatedAt, nil
}

func (s *MessageService) find(ctx context.Context, conversationID, id string) (*model.Message, error) {
	var msgs []model.Message
	err := s.backend.Select(ctx, backend.TableMessages, backend.Query{
		Eq: map[string]string{"id": id, "conversation_id": conversationID},
	}, &msgs)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}

// List retrieves a conversation's messages, oldest first.
func (s *MessageService) List(ctx context.Context, conversationID string) (*model.ListMessagesResponse, error) {
	if _, err := s.conversations.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	var msgs []model.Message
	err := s.backend.Select(ctx, backend.TableMessages, backend.Query{
		Eq:      map[string]string{"conversation_id": conversationID},
		OrderBy: "created_at",
	}, &msgs)
	if err != nil {
		return nil, err
	}

	return &model.ListMessagesResponse{Messages: chat.MergeMessages(nil, msgs)}, nil
}

// MarkReadAsCustomer marks messages read on behalf of the conversation's
// customer. An empty viewerID means the customer; any other identity is refused.
func (s *MessageService) MarkReadAsCustomer(ctx context.Context, conversationID, viewerID string) (int, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	viewerID = strings.ToLower(strings.TrimSpace(viewerID))
	if viewerID != "" && viewerID != conv.CustomerEmail {
		return 0, apperr.New(apperr.CodeForbidden, "viewer does not belong to this conversation")
	}
	return s.MarkRead(ctx, conversationID, conv.CustomerEmail)
}

// MarkRead marks every unread message not sent by viewerID as read and
// returns how many changed.
func (s *MessageService) MarkRead(ctx context.Context, conversationID, viewerID string) (int, error) {
	if _, err := s.conversations.Get(ctx, conversationID); err != nil {
		return 0, err
	}

	marked, err := s.backend.UpdateWhere(ctx, backend.TableMessages, backend.Query{
		Eq:  map[string]string{"conversation_id": conversationID, "is_read": "false"},
		Neq: map[string]string{"sender_id": viewerID},
	}, map[string]any{"is_read": true})
	if err != nil {
		return 0, err
	}

	if marked > 0 {
		s.optimizer.InvalidateConversations()
		publishEvent(ctx, s.bus, s.logger, model.ChatEvent{
			Type:           model.EventMessagesRead,
			ConversationID: conversationID,
			ViewerID:       viewerID,
		}, s.now)
	}
	return marked, nil
}
