package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/backend"
	"github.com/heirloom-restoration/workshop/internal/model"
	"github.com/heirloom-restoration/workshop/internal/query"
	"github.com/heirloom-restoration/workshop/pkg/logger"
)

const maxPortfolioLimit = 100

// PortfolioService manages gallery items.
type PortfolioService struct {
	backend   backend.Backend
	optimizer *query.Optimizer
	logger    *logger.Logger
	now       func() time.Time
}

// NewPortfolioService creates a new portfolio service.
func NewPortfolioService(b backend.Backend, o *query.Optimizer, log *logger.Logger) *PortfolioService {
	return &PortfolioService{
		backend:   b,
		optimizer: o,
		logger:    logger.OrGlobal(log).Named("portfolio"),
		now:       time.Now,
	}
}

// List returns gallery items matching f.
func (s *PortfolioService) List(ctx context.Context, f model.PortfolioFilter) ([]model.PortfolioItem, error) {
	if f.Limit < 0 || f.Limit > maxPortfolioLimit {
		return nil, apperr.Validation("limit must be between 0 and 100")
	}
	f.Category = strings.TrimSpace(f.Category)
	return s.optimizer.GetPortfolioItems(ctx, f)
}

// Get returns one gallery item.
func (s *PortfolioService) Get(ctx context.Context, id string) (*model.PortfolioItem, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	return s.optimizer.GetPortfolioItem(ctx, id)
}

// GetMany returns gallery items in the order of ids, skipping unknown ids.
func (s *PortfolioService) GetMany(ctx context.Context, ids []string) ([]model.PortfolioItem, error) {
	if len(ids) > maxPortfolioLimit {
		return nil, apperr.Validation("too many ids")
	}
	for _, id := range ids {
		if err := ValidateID(id); err != nil {
			return nil, err
		}
	}
	return s.optimizer.GetPortfolioItemsByIDs(ctx, ids)
}

func validatePortfolio(req *model.PortfolioItemRequest) error {
	req.Title = strings.TrimSpace(req.Title)
	req.Category = strings.TrimSpace(req.Category)
	if req.Title == "" {
		return apperr.Validation("title is required")
	}
	if err := ValidateTitle(req.Title); err != nil {
		return err
	}
	if req.Category == "" {
		return apperr.Validation("category is required")
	}
	return nil
}

// Create adds a gallery item.
func (s *PortfolioService) Create(ctx context.Context, req *model.PortfolioItemRequest) (*model.PortfolioItem, error) {
	if err := validatePortfolio(req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	item := model.PortfolioItem{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		BeforeImage: req.BeforeImage,
		AfterImage:  req.AfterImage,
		Images:      req.Images,
		Featured:    req.Featured,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var created model.PortfolioItem
	if err := s.backend.Insert(ctx, backend.TablePortfolio, item, &created); err != nil {
		return nil, err
	}

	s.optimizer.InvalidatePortfolio()
	s.logger.Info("portfolio item created", zap.String("id", created.ID))
	return &created, nil
}

// Update replaces a gallery item's fields.
func (s *PortfolioService) Update(ctx context.Context, id string, req *model.PortfolioItemRequest) (*model.PortfolioItem, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := validatePortfolio(req); err != nil {
		return nil, err
	}

	images := req.Images
	if images == nil {
		images = []string{}
	}
	patch := map[string]any{
		"title":        req.Title,
		"description":  req.Description,
		"category":     req.Category,
		"before_image": req.BeforeImage,
		"after_image":  req.AfterImage,
		"images":       images,
		"featured":     req.Featured,
		"updated_at":   s.now().UTC(),
	}

	var updated model.PortfolioItem
	if err := s.backend.Update(ctx, backend.TablePortfolio, map[string]string{"id": id}, patch, &updated); err != nil {
		return nil, err
	}

	s.optimizer.InvalidatePortfolio()
	return &updated, nil
}

// Delete removes a gallery item.
func (s *PortfolioService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, backend.TablePortfolio, map[string]string{"id": id}); err != nil {
		return err
	}

	s.optimizer.InvalidatePortfolio()
	s.logger.Info("portfolio item deleted", zap.String("id", id))
	return nil
}
