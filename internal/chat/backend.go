// Package chat keeps a client-side copy of chat conversations in sync with
// the remote store.
package chat

import (
	"context"

	"github.com/heirloom-restoration/workshop/internal/model"
)

// Backend is the remote side of the chat.
type Backend interface {
	CreateConversation(ctx context.Context, req model.StartConversationRequest) (*model.Conversation, error)
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	SendMessage(ctx context.Context, conversationID string, req model.SendMessageRequest) (*model.Message, error)
	MarkRead(ctx context.Context, conversationID, viewerID string) error
}

// Viewer identifies whoever the synchronizer is running for.
type Viewer struct {
	ID   string
	Name string
}

// SendInput is a message to post.
type SendInput struct {
	// ConversationID defaults to the current conversation.
	ConversationID string
	Content        string
}

// State is a snapshot of the synchronizer.
type State struct {
	IsOpen              bool
	IsMinimized         bool
	Conversations       []model.Conversation
	CurrentConversation *model.Conversation
	UnreadCount         int
	IsLoading           bool
	Error               string
}
