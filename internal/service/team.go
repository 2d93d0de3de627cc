package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/backend"
	"github.com/heirloom-restoration/workshop/internal/model"
	"github.com/heirloom-restoration/workshop/internal/query"
)

// TeamService manages team members.
type TeamService struct {
	backend   backend.Backend
	optimizer *query.Optimizer
	now       func() time.Time
}

// NewTeamService creates a new team service.
func NewTeamService(b backend.Backend, o *query.Optimizer) *TeamService {
	return &TeamService{backend: b, optimizer: o, now: time.Now}
}

// List returns the team in display order.
func (s *TeamService) List(ctx context.Context) ([]model.TeamMember, error) {
	return s.optimizer.GetTeamMembers(ctx)
}

func validateTeamMember(req *model.TeamMemberRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Role = strings.TrimSpace(req.Role)
	if err := ValidateName(req.Name); err != nil {
		return err
	}
	if req.Role == "" {
		return apperr.Validation("role is required")
	}
	return nil
}

// Create adds a team member.
func (s *TeamService) Create(ctx context.Context, req *model.TeamMemberRequest) (*model.TeamMember, error) {
	if err := validateTeamMember(req); err != nil {
		return nil, err
	}

	member := model.TeamMember{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Name:      req.Name,
		Role:      req.Role,
		Bio:       req.Bio,
		ImageURL:  req.ImageURL,
		SortOrder: req.SortOrder,
		CreatedAt: s.now().UTC(),
	}

	var created model.TeamMember
	if err := s.backend.Insert(ctx, backend.TableTeam, member, &created); err != nil {
		return nil, err
	}
	s.optimizer.InvalidateTeam()
	return &created, nil
}

// Update replaces a team member's fields.
func (s *TeamService) Update(ctx context.Context, id string, req *model.TeamMemberRequest) (*model.TeamMember, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := validateTeamMember(req); err != nil {
		return nil, err
	}

	patch := map[string]any{
		"name":       req.Name,
		"role":       req.Role,
		"bio":        req.Bio,
		"image_url":  req.ImageURL,
		"sort_order": req.SortOrder,
	}

	var updated model.TeamMember
	if err := s.backend.Update(ctx, backend.TableTeam, map[string]string{"id": id}, patch, &updated); err != nil {
		return nil, err
	}
	s.optimizer.InvalidateTeam()
	return &updated, nil
}

// Delete removes a team member.
func (s *TeamService) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	var existing []model.TeamMember
	if err := s.backend.Select(ctx, backend.TableTeam, backend.ByID(id), &existing); err != nil {
		return err
	}
	if len(existing) == 0 {
		return apperr.NotFound("team member")
	}

	if err := s.backend.Delete(ctx, backend.TableTeam, map[string]string{"id": id}); err != nil {
		return err
	}
	s.optimizer.InvalidateTeam()
	return nil
}
