package service

import (
	"context"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/model"
	"github.com/heirloom-restoration/workshop/internal/query"
)

const defaultCustomerLimit = 50

// CustomerService reads customer records. Customers are created when they
// start a chat.
type CustomerService struct {
	optimizer *query.Optimizer
}

// NewCustomerService creates a new customer service.
func NewCustomerService(o *query.Optimizer) *CustomerService {
	return &CustomerService{optimizer: o}
}

// List returns the newest customers.
func (s *CustomerService) List(ctx context.Context, limit int) ([]model.Customer, error) {
	if limit == 0 {
		limit = defaultCustomerLimit
	}
	if limit < 0 || limit > 500 {
		return nil, apperr.Validation("limit must be between 1 and 500")
	}
	return s.optimizer.GetCustomers(ctx, limit)
}

// DashboardService computes admin dashboard counters.
type DashboardService struct {
	optimizer *query.Optimizer
}

// NewDashboardService creates a new dashboard service.
func NewDashboardService(o *query.Optimizer) *DashboardService {
	return &DashboardService{optimizer: o}
}

// Stats returns the dashboard counters.
func (s *DashboardService) Stats(ctx context.Context) (*model.DashboardStats, error) {
	return s.optimizer.GetDashboardStats(ctx)
}
