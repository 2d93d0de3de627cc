package query

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/heirloom-restoration/workshop/internal/backend"
	"github.com/heirloom-restoration/workshop/internal/cache"
	"github.com/heirloom-restoration/workshop/internal/model"
)

// idRow decodes only the columns the counters need.
type idRow struct {
	ID       string `json:"id"`
	Featured bool   `json:"featured"`
}

// GetDashboardStats computes the admin counters, fetching each source in parallel.
func (o *Optimizer) GetDashboardStats(ctx context.Context) (*model.DashboardStats, error) {
	stats, err := cached(ctx, o, "dashboard", dashboardKey, cache.TTLShort, func(ctx context.Context) (model.DashboardStats, error) {
		var (
			portfolio []idRow
			team      []idRow
			customers []idRow
			active    []model.Conversation
			unread    []model.Message
		)

		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return o.backend.Select(gCtx, backend.TablePortfolio, backend.Query{}, &portfolio)
		})
		g.Go(func() error {
			return o.backend.Select(gCtx, backend.TableTeam, backend.Query{}, &team)
		})
		g.Go(func() error {
			return o.backend.Select(gCtx, backend.TableCustomers, backend.Query{}, &customers)
		})
		g.Go(func() error {
			return o.backend.Select(gCtx, backend.TableConversations, backend.Query{
				Eq: map[string]string{"status": string(model.StatusActive)},
			}, &active)
		})
		g.Go(func() error {
			return o.backend.Select(gCtx, backend.TableMessages, backend.Query{
				Eq: map[string]string{"is_read": "false"},
			}, &unread)
		})
		if err := g.Wait(); err != nil {
			return model.DashboardStats{}, err
		}

		featured := 0
		for _, p := range portfolio {
			if p.Featured {
				featured++
			}
		}

		return model.DashboardStats{
			PortfolioItems:      len(portfolio),
			FeaturedItems:       featured,
			TeamMembers:         len(team),
			Customers:           len(customers),
			ActiveConversations: len(active),
			UnreadMessages:      countCustomerUnread(active, unread),
			GeneratedAt:         time.Now().UTC(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// countCustomerUnread counts unread messages that customers sent in active conversations.
func countCustomerUnread(active []model.Conversation, unread []model.Message) int {
	customerOf := make(map[string]string, len(active))
	for _, c := range active {
		customerOf[c.ID] = c.CustomerEmail
	}

	n := 0
	for _, m := range unread {
		if email, ok := customerOf[m.ConversationID]; ok && m.SenderID == email {
			n++
		}
	}
	return n
}
