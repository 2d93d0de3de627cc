package model

import (
	"time"
)

// EventType represents the kind of chat event.
type EventType string

const (
	EventMessageCreated EventType = "message.created"
	EventMessagesRead   EventType = "messages.read"
	EventConversation   EventType = "conversation.updated"
)

// ChatEvent is published whenever conversation state changes.
type ChatEvent struct {
	ID             string        `json:"id"`
	Type           EventType     `json:"type"`
	ConversationID string        `json:"conversation_id"`
	Message        *Message      `json:"message,omitempty"`
	Conversation   *Conversation `json:"conversation,omitempty"`
	ViewerID       string        `json:"viewer_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ErrorEvent represents an error sent over a stream.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
