package service

import (
	"context"
	"strings"

	"github.com/heirloom-restoration/workshop/internal/chat"
	"github.com/heirloom-restoration/workshop/internal/model"
)

// ChatService exposes the conversation and message services as a chat.Backend
// for in-process synchronizers.
type ChatService struct {
	conversations *ConversationService
	messages      *MessageService
}

// NewChatService creates a new chat service.
func NewChatService(conversations *ConversationService, messages *MessageService) *ChatService {
	return &ChatService{conversations: conversations, messages: messages}
}

// CreateConversation implements chat.Backend. An opening message in req is
// posted as the customer's first message.
func (s *ChatService) CreateConversation(ctx context.Context, req model.StartConversationRequest) (*model.Conversation, error) {
	conv, err := s.conversations.Start(ctx, &req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return conv, nil
	}

	msg, err := s.messages.Send(ctx, conv.ID, &model.SendMessageRequest{
		SenderName: conv.CustomerName,
		SenderID:   conv.CustomerEmail,
		Content:    req.Message,
	})
	if err != nil {
		return nil, err
	}
	conv.Messages = []model.Message{*msg}
	conv.LastMessageAt = &msg.CreatedAt
	return conv, nil
}

// ListConversations implements chat.Backend.
func (s *ChatService) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	resp, err := s.conversations.List(ctx, "")
	if err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// ListMessages implements chat.Backend.
func (s *ChatService) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	resp, err := s.messages.List(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendMessage implements chat.Backend.
func (s *ChatService) SendMessage(ctx context.Context, conversationID string, req model.SendMessageRequest) (*model.Message, error) {
	return s.messages.Send(ctx, conversationID, &req)
}

// MarkRead implements chat.Backend.
func (s *ChatService) MarkRead(ctx context.Context, conversationID, viewerID string) error {
	_, err := s.messages.MarkRead(ctx, conversationID, viewerID)
	return err
}

var _ chat.Backend = (*ChatService)(nil)
