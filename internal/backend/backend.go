// Package backend abstracts the hosted database, object storage and auth
// service behind the small capability set the workshop actually uses.
package backend

import (
	"context"
	"io"
)

// Table names used by the services.
const (
	TablePortfolio     = "portfolio_items"
	TableTeam          = "team_members"
	TableCustomers     = "customers"
	TableConversations = "chat_conversations"
	TableMessages      = "chat_messages"
)

// BucketImages holds portfolio and team photos.
const BucketImages = "images"

// Query is a read-by-filter request. All filters are ANDed.
type Query struct {
	Eq      map[string]string
	Neq     map[string]string
	In      map[string][]string
	OrderBy string
	Desc    bool
	Limit   int
}

// Session is the authenticated principal behind an access token.
type Session struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Object is a file in a storage bucket.
type Object struct {
	Name string `json:"name"`
	Path string `json:"path"`
	URL  string `json:"url"`
}

// Backend is the remote store. Row values are JSON-shaped: dest arguments
// are decoded from the returned rows the same way encoding/json would.
type Backend interface {
	// Select decodes matching rows into dest, which must point to a slice.
	Select(ctx context.Context, table string, q Query, dest any) error

	// Insert stores row and decodes the stored representation into dest (may be nil).
	Insert(ctx context.Context, table string, row any, dest any) error

	// Update patches rows whose columns equal match and decodes the first
	// updated row into dest (may be nil). Returns NOT_FOUND if nothing matched.
	Update(ctx context.Context, table string, match map[string]string, patch any, dest any) error

	// UpdateWhere patches every row matching q's filters in one request and
	// returns how many rows changed. OrderBy and Limit are ignored.
	UpdateWhere(ctx context.Context, table string, q Query, patch any) (int, error)

	// Delete removes rows whose columns equal match.
	Delete(ctx context.Context, table string, match map[string]string) error

	// Upload stores a file and returns its public URL.
	Upload(ctx context.Context, bucket, path string, body io.Reader, contentType string) (string, error)

	// List returns the files under prefix.
	List(ctx context.Context, bucket, prefix string) ([]Object, error)

	// Remove deletes files.
	Remove(ctx context.Context, bucket string, paths []string) error

	// PublicURL returns the public URL of a stored file.
	PublicURL(bucket, path string) string

	// GetSession resolves an access token to its session.
	GetSession(ctx context.Context, accessToken string) (*Session, error)
}

// ByID returns a Query matching a single id.
func ByID(id string) Query {
	return Query{Eq: map[string]string{"id": id}}
}
