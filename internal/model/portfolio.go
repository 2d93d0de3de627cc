package model

import (
	"time"
)

// PortfolioItem is a finished restoration shown in the gallery.
type PortfolioItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	BeforeImage string    `json:"before_image,omitempty"`
	AfterImage  string    `json:"after_image,omitempty"`
	Images      []string  `json:"images,omitempty"`
	Featured    bool      `json:"featured"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PortfolioFilter narrows a gallery listing.
type PortfolioFilter struct {
	Category     string
	FeaturedOnly bool
	Limit        int
}

// PortfolioItemRequest creates or replaces a portfolio item.
type PortfolioItemRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	BeforeImage string   `json:"before_image,omitempty"`
	AfterImage  string   `json:"after_image,omitempty"`
	Images      []string `json:"images,omitempty"`
	Featured    bool     `json:"featured"`
}
