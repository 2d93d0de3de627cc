package service

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/backend"
	"github.com/heirloom-restoration/workshop/internal/model"
	"github.com/heirloom-restoration/workshop/pkg/logger"
)

var uploadFolders = map[string]bool{
	"portfolio": true,
	"team":      true,
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// UploadService stores images in the backend's storage bucket.
type UploadService struct {
	backend backend.Backend
	bucket  string
	logger  *logger.Logger
}

// NewUploadService creates a new upload service.
func NewUploadService(b backend.Backend, log *logger.Logger) *UploadService {
	return &UploadService{
		backend: b,
		bucket:  backend.BucketImages,
		logger:  logger.OrGlobal(log).Named("uploads"),
	}
}

// Upload stores an image under folder with a generated name and returns
// where it can be fetched.
func (s *UploadService) Upload(ctx context.Context, folder string, body io.Reader, contentType string) (*model.Upload, error) {
	if !uploadFolders[folder] {
		return nil, apperr.Validation("unknown upload folder")
	}
	ext, ok := imageExtensions[strings.ToLower(contentType)]
	if !ok {
		return nil, apperr.Validation("only jpeg, png, webp and gif images are accepted")
	}

	p := path.Join(folder, uuid.Must(uuid.NewV7()).String()+ext)
	url, err := s.backend.Upload(ctx, s.bucket, p, body, contentType)
	if err != nil {
		return nil, err
	}

	s.logger.Info("image uploaded", zap.String("path", p))
	return &model.Upload{Bucket: s.bucket, Path: p, URL: url}, nil
}

// List returns the images stored under folder.
func (s *UploadService) List(ctx context.Context, folder string) ([]model.Upload, error) {
	if !uploadFolders[folder] {
		return nil, apperr.Validation("unknown upload folder")
	}

	objects, err := s.backend.List(ctx, s.bucket, folder+"/")
	if err != nil {
		return nil, err
	}

	uploads := make([]model.Upload, 0, len(objects))
	for _, o := range objects {
		uploads = append(uploads, model.Upload{Bucket: s.bucket, Path: o.Path, URL: o.URL})
	}
	return uploads, nil
}

// Delete removes stored images.
func (s *UploadService) Delete(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return apperr.Validation("at least one path is required")
	}
	for _, p := range paths {
		clean := path.Clean(p)
		folder, _, found := strings.Cut(clean, "/")
		if !found || !uploadFolders[folder] || clean != p {
			return apperr.Validation("invalid path " + p)
		}
	}

	if err := s.backend.Remove(ctx, s.bucket, paths); err != nil {
		return err
	}
	s.logger.Info("images removed", zap.Int("count", len(paths)))
	return nil
}
