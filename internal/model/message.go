package model

import (
	"time"
)

// MessageType distinguishes people from automated notices.
type MessageType string

const (
	MessageTypeUser   MessageType = "user"
	MessageTypeSystem MessageType = "system"
)

// Message is a single chat message. Only IsRead changes after creation.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderName     string      `json:"sender_name"`
	SenderID       string      `json:"sender_id"`
	Content        string      `json:"content"`
	MessageType    MessageType `json:"message_type"`
	IsRead         bool        `json:"is_read"`
	CreatedAt      time.Time   `json:"created_at"`
}

// SendMessageRequest is the request to post a message.
// ID and CreatedAt are optional; clients that stamp them locally keep
// their send order regardless of how responses arrive.
type SendMessageRequest struct {
	ID          string      `json:"id,omitempty"`
	SenderName  string      `json:"sender_name"`
	SenderID    string      `json:"sender_id"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type,omitempty"`
	CreatedAt   *time.Time  `json:"created_at,omitempty"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}

// MarkReadRequest marks every message not sent by the viewer as read.
type MarkReadRequest struct {
	ViewerID string `json:"viewer_id"`
}
