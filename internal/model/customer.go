package model

import (
	"time"
)

// Customer is a person who contacted the workshop.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DashboardStats summarises the admin dashboard counters.
type DashboardStats struct {
	PortfolioItems      int       `json:"portfolio_items"`
	FeaturedItems       int       `json:"featured_items"`
	TeamMembers         int       `json:"team_members"`
	Customers           int       `json:"customers"`
	ActiveConversations int       `json:"active_conversations"`
	UnreadMessages      int       `json:"unread_messages"`
	GeneratedAt         time.Time `json:"generated_at"`
}

// Upload describes a stored image.
type Upload struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	URL    string `json:"url"`
}
