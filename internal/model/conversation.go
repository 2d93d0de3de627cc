// Package model defines data structures for the workshop backend.
package model

import (
	"time"
)

// ConversationStatus is the lifecycle state of a chat conversation.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusClosed   ConversationStatus = "closed"
	StatusArchived ConversationStatus = "archived"
)

// Valid reports whether s is a known status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusActive, StatusClosed, StatusArchived:
		return true
	}
	return false
}

// Priority ranks conversations in the admin inbox.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Conversation represents a customer chat thread.
type Conversation struct {
	ID            string             `json:"id"`
	Title         string             `json:"title"`
	CustomerName  string             `json:"customer_name"`
	CustomerEmail string             `json:"customer_email"`
	Status        ConversationStatus `json:"status"`
	Priority      Priority           `json:"priority"`
	LastMessageAt *time.Time         `json:"last_message_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`

	// Populated by the chat layer, not stored as columns.
	Messages    []Message `json:"messages,omitempty"`
	UnreadCount int       `json:"unread_count,omitempty"`
}

// StartConversationRequest is the request to open a new chat.
type StartConversationRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

// UpdateConversationRequest is the admin request to triage a conversation.
type UpdateConversationRequest struct {
	Title    string             `json:"title,omitempty"`
	Status   ConversationStatus `json:"status,omitempty"`
	Priority Priority           `json:"priority,omitempty"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}
