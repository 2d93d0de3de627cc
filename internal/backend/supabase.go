package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/supabase-community/postgrest-go"
	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"

	"github.com/heirloom-restoration/workshop/internal/apperr"
)

// SupabaseConfig holds Supabase connection configuration.
type SupabaseConfig struct {
	URL    string
	APIKey string
}

// SupabaseBackend implements Backend using supabase-go.
// The SDK has no context support; ctx is only checked before each call.
type SupabaseBackend struct {
	client *supabase.Client
}

// NewSupabase creates a new Supabase backend.
func NewSupabase(cfg SupabaseConfig) (*SupabaseBackend, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &SupabaseBackend{client: client}, nil
}

// Select implements Backend.
func (b *SupabaseBackend) Select(ctx context.Context, table string, q Query, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fb := filter(b.client.From(table).Select("*", "", false), q)
	if q.OrderBy != "" {
		fb = fb.Order(q.OrderBy, &postgrest.OrderOpts{Ascending: !q.Desc})
	}
	if q.Limit > 0 {
		fb = fb.Limit(q.Limit, "")
	}

	if _, err := fb.ExecuteTo(dest); err != nil {
		return apperr.Database("failed to read "+table, err)
	}
	return nil
}

// Insert implements Backend.
func (b *SupabaseBackend) Insert(ctx context.Context, table string, row any, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, _, err := b.client.From(table).
		Insert(row, false, "", "representation", "").
		Execute()
	if err != nil {
		return apperr.Database("failed to insert into "+table, err)
	}
	return decodeFirst(table, body, dest)
}

// Update implements Backend.
func (b *SupabaseBackend) Update(ctx context.Context, table string, match map[string]string, patch any, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fb := b.client.From(table).Update(patch, "representation", "")
	for col, val := range match {
		fb = fb.Eq(col, val)
	}

	body, _, err := fb.Execute()
	if err != nil {
		return apperr.Database("failed to update "+table, err)
	}
	return decodeFirst(table, body, dest)
}

// UpdateWhere implements Backend.
func (b *SupabaseBackend) UpdateWhere(ctx context.Context, table string, q Query, patch any) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	body, _, err := filter(b.client.From(table).Update(patch, "representation", ""), q).Execute()
	if err != nil {
		return 0, apperr.Database("failed to update "+table, err)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, apperr.Database("failed to decode "+table+" rows", err)
	}
	return len(rows), nil
}

func filter(fb *postgrest.FilterBuilder, q Query) *postgrest.FilterBuilder {
	for col, val := range q.Eq {
		fb = fb.Eq(col, val)
	}
	for col, val := range q.Neq {
		fb = fb.Neq(col, val)
	}
	for col, vals := range q.In {
		fb = fb.In(col, vals)
	}
	return fb
}

// Delete implements Backend.
func (b *SupabaseBackend) Delete(ctx context.Context, table string, match map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fb := b.client.From(table).Delete("", "")
	for col, val := range match {
		fb = fb.Eq(col, val)
	}

	if _, _, err := fb.Execute(); err != nil {
		return apperr.Database("failed to delete from "+table, err)
	}
	return nil
}

// Upload implements Backend.
func (b *SupabaseBackend) Upload(ctx context.Context, bucket, path string, body io.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	upsert := true
	opts := storage_go.FileOptions{Upsert: &upsert}
	if contentType != "" {
		opts.ContentType = &contentType
	}

	if _, err := b.client.Storage.UploadFile(bucket, path, body, opts); err != nil {
		return "", apperr.Database("failed to upload file", err)
	}
	return b.PublicURL(bucket, path), nil
}

// List implements Backend.
func (b *SupabaseBackend) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files, err := b.client.Storage.ListFiles(bucket, prefix, storage_go.FileSearchOptions{Limit: 1000})
	if err != nil {
		return nil, apperr.Database("failed to list files", err)
	}

	objects := make([]Object, 0, len(files))
	for _, f := range files {
		path := joinPath(prefix, f.Name)
		objects = append(objects, Object{
			Name: f.Name,
			Path: path,
			URL:  b.PublicURL(bucket, path),
		})
	}
	return objects, nil
}

// Remove implements Backend.
func (b *SupabaseBackend) Remove(ctx context.Context, bucket string, paths []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	if _, err := b.client.Storage.RemoveFile(bucket, paths); err != nil {
		return apperr.Database("failed to remove files", err)
	}
	return nil
}

// PublicURL implements Backend.
func (b *SupabaseBackend) PublicURL(bucket, path string) string {
	return b.client.Storage.GetPublicUrl(bucket, path).SignedURL
}

// GetSession implements Backend.
func (b *SupabaseBackend) GetSession(ctx context.Context, accessToken string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if accessToken == "" {
		return nil, apperr.New(apperr.CodeUnauthorized, "missing access token")
	}

	user, err := b.client.Auth.WithToken(accessToken).GetUser()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUnauthorized, "invalid session", err)
	}

	return &Session{
		UserID: user.ID.String(),
		Email:  user.Email,
		Role:   user.Role,
	}, nil
}

// decodeFirst decodes the first row of a PostgREST representation into dest.
func decodeFirst(table string, body []byte, dest any) error {
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return apperr.Database("failed to decode "+table+" response", err)
	}
	if len(rows) == 0 {
		return apperr.NotFound(table + " row")
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(rows[0], dest); err != nil {
		return apperr.Database("failed to decode "+table+" row", err)
	}
	return nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix + name
	}
	return prefix + "/" + name
}

// Compile-time check that SupabaseBackend implements Backend
var _ Backend = (*SupabaseBackend)(nil)
