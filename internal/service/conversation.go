// Package service provides business logic for the workshop backend.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/backend"
	"github.com/heirloom-restoration/workshop/internal/events"
	"github.com/heirloom-restoration/workshop/internal/model"
	"github.com/heirloom-restoration/workshop/internal/query"
	"github.com/heirloom-restoration/workshop/pkg/logger"
	"github.com/heirloom-restoration/workshop/pkg/metrics"
)

// ConversationService handles conversation operations.
type ConversationService struct {
	backend   backend.Backend
	optimizer *query.Optimizer
	bus       events.Bus
	logger    *logger.Logger
	now       func() time.Time
}

// NewConversationService creates a new conversation service.
func NewConversationService(b backend.Backend, o *query.Optimizer, bus events.Bus, log *logger.Logger) *ConversationService {
	return &ConversationService{
		backend:   b,
		optimizer: o,
		bus:       bus,
		logger:    logger.OrGlobal(log).Named("conversations"),
		now:       time.Now,
	}
}

// Start opens a conversation for a customer, recording the customer on first contact.
func (s *ConversationService) Start(ctx context.Context, req *model.StartConversationRequest) (*model.Conversation, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := ValidateName(req.Name); err != nil {
		return nil, err
	}
	if err := ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := ValidateTitle(req.Title); err != nil {
		return nil, err
	}

	if err := s.ensureCustomer(ctx, req.Name, req.Email); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Chat with " + req.Name
	}

	now := s.now().UTC()
	conv := model.Conversation{
		ID:            uuid.Must(uuid.NewV7()).String(),
		Title:         title,
		CustomerName:  req.Name,
		CustomerEmail: req.Email,
		Status:        model.StatusActive,
		Priority:      model.PriorityNormal,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var created model.Conversation
	if err := s.backend.Insert(ctx, backend.TableConversations, conv, &created); err != nil {
		return nil, err
	}

	metrics.ConversationsTotal.Inc()
	s.optimizer.InvalidateConversations()
	s.logger.Info("conversation started",
		zap.String("conversation_id", created.ID),
		zap.String("customer_email", created.CustomerEmail),
	)
	s.publish(ctx, &created)

	return &created, nil
}

func (s *ConversationService) ensureCustomer(ctx context.Context, name, email string) error {
	var existing []model.Customer
	err := s.backend.Select(ctx, backend.TableCustomers, backend.Query{
		Eq:    map[string]string{"email": email},
		Limit: 1,
	}, &existing)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	customer := model.Customer{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Name:      name,
		Email:     email,
		CreatedAt: s.now().UTC(),
	}
	if err := s.backend.Insert(ctx, backend.TableCustomers, customer, nil); err != nil {
		return err
	}
	s.optimizer.InvalidateCustomers()
	return nil
}

// Get retrieves a conversation by ID.
func (s *ConversationService) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if err := ValidateID(conversationID); err != nil {
		return nil, err
	}

	var convs []model.Conversation
	if err := s.backend.Select(ctx, backend.TableConversations, backend.ByID(conversationID), &convs); err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, apperr.NotFound("conversation")
	}
	return &convs[0], nil
}

// List retrieves conversations, optionally filtered by status.
func (s *ConversationService) List(ctx context.Context, status model.ConversationStatus) (*model.ListConversationsResponse, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("unknown conversation status")
	}

	convs, err := s.optimizer.GetConversations(ctx, status)
	if err != nil {
		return nil, err
	}
	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         len(convs),
	}, nil
}

// Update triages a conversation.
func (s *ConversationService) Update(ctx context.Context, conversationID string, req *model.UpdateConversationRequest) (*model.Conversation, error) {
	if err := ValidateID(conversationID); err != nil {
		return nil, err
	}
	if err := ValidateTitle(req.Title); err != nil {
		return nil, err
	}

	patch := map[string]any{"updated_at": s.now().UTC()}
	if title := strings.TrimSpace(req.Title); title != "" {
		patch["title"] = title
	}
	if req.Status != "" {
		if !req.Status.Valid() {
			return nil, apperr.Validation("unknown conversation status")
		}
		patch["status"] = req.Status
	}
	if req.Priority != "" {
		if !req.Priority.Valid() {
			return nil, apperr.Validation("unknown priority")
		}
		patch["priority"] = req.Priority
	}

	var updated model.Conversation
	err := s.backend.Update(ctx, backend.TableConversations, map[string]string{"id": conversationID}, patch, &updated)
	if err != nil {
		return nil, err
	}

	s.optimizer.InvalidateConversations()
	s.publish(ctx, &updated)
	return &updated, nil
}

// Delete removes a conversation and its messages.
func (s *ConversationService) Delete(ctx context.Context, conversationID string) error {
	if _, err := s.Get(ctx, conversationID); err != nil {
		return err
	}

	if err := s.backend.Delete(ctx, backend.TableMessages, map[string]string{"conversation_id": conversationID}); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, backend.TableConversations, map[string]string{"id": conversationID}); err != nil {
		return err
	}

	s.optimizer.InvalidateConversations()
	s.logger.Info("conversation deleted", zap.String("conversation_id", conversationID))
	return nil
}

// touch advances a conversation's last message time.
func (s *ConversationService) touch(ctx context.Context, conv *model.Conversation, at time.Time) error {
	if conv.LastMessageAt != nil && !at.After(*conv.LastMessageAt) {
		return nil
	}
	patch := map[string]any{
		"last_message_at": at,
		"updated_at":      s.now().UTC(),
	}
	return s.backend.Update(ctx, backend.TableConversations, map[string]string{"id": conv.ID}, patch, nil)
}

func (s *ConversationService) publish(ctx context.Context, conv *model.Conversation) {
	publishEvent(ctx, s.bus, s.logger, model.ChatEvent{
		Type:           model.EventConversation,
		ConversationID: conv.ID,
		Conversation:   conv,
	}, s.now)
}

// publishEvent sends ev on bus. Delivery is best effort; clients reconcile
// on their next refresh.
func publishEvent(ctx context.Context, bus events.Bus, log *logger.Logger, ev model.ChatEvent, now func() time.Time) {
	if bus == nil {
		return
	}
	ev.ID = uuid.Must(uuid.NewV7()).String()
	ev.CreatedAt = now().UTC()
	if err := bus.Publish(ctx, ev); err != nil {
		log.Warn("failed to publish chat event",
			zap.String("type", string(ev.Type)),
			zap.String("conversation_id", ev.ConversationID),
			zap.Error(err),
		)
	}
}
