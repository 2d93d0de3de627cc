// Package query serves read-heavy backend queries through the TTL cache,
// collapsing identical in-flight lookups and batching id lookups.
package query

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/backend"
	"github.com/heirloom-restoration/workshop/internal/batch"
	"github.com/heirloom-restoration/workshop/internal/cache"
	"github.com/heirloom-restoration/workshop/internal/model"
	"github.com/heirloom-restoration/workshop/internal/retry"
	"github.com/heirloom-restoration/workshop/pkg/logger"
	"github.com/heirloom-restoration/workshop/pkg/metrics"
)

const tracerName = "github.com/heirloom-restoration/workshop/internal/query"

// Config configures an Optimizer.
type Config struct {
	Retry     retry.Config
	BatchWait time.Duration
	MaxBatch  int
}

// DefaultConfig returns the optimizer defaults.
func DefaultConfig() Config {
	return Config{
		Retry:     retry.DefaultConfig(),
		BatchWait: batch.DefaultWait,
		MaxBatch:  100,
	}
}

// Optimizer wraps backend reads with caching, retries and batching.
// Returned slices are shared with the cache and must not be modified.
type Optimizer struct {
	backend backend.Backend
	cache   *cache.Cache
	cfg     Config
	logger  *logger.Logger

	group      singleflight.Group
	generation atomic.Uint64
	portfolio  *batch.Loader[string, model.PortfolioItem]
}

// New creates an Optimizer over b using c for storage.
func New(b backend.Backend, c *cache.Cache, cfg Config, log *logger.Logger) *Optimizer {
	o := &Optimizer{
		backend: b,
		cache:   c,
		cfg:     cfg,
		logger:  logger.OrGlobal(log).Named("query"),
	}
	o.portfolio = batch.NewLoader(batch.Config{
		Name:     "portfolio",
		Wait:     cfg.BatchWait,
		MaxBatch: cfg.MaxBatch,
	}, o.fetchPortfolioByIDs, o.logger)
	return o
}

// cached returns the value under key, loading it with fetch on a miss.
// Concurrent misses for the same key share one fetch.
func cached[T any](ctx context.Context, o *Optimizer, domain, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := o.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			metrics.RecordCacheLookup(domain, true)
			o.logger.Debug("cache hit", zap.String("key", key))
			return typed, nil
		}
	}
	metrics.RecordCacheLookup(domain, false)
	o.logger.Debug("cache miss", zap.String("key", key))

	gen := o.generation.Load()
	flightKey := fmt.Sprintf("%s#%d", key, gen)

	ch := o.group.DoChan(flightKey, func() (any, error) {
		fetchCtx, span := otel.Tracer(tracerName).Start(context.WithoutCancel(ctx), "query."+domain)
		span.SetAttributes(attribute.String("cache.key", key))
		defer span.End()

		v, err := retry.Do(fetchCtx, o.cfg.Retry, domain, o.logger, fetch)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		// Results fetched across an invalidation may be stale.
		if o.generation.Load() == gen {
			o.cache.Set(key, v, ttl)
		}
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// GetPortfolioItems lists gallery items, newest first.
func (o *Optimizer) GetPortfolioItems(ctx context.Context, f model.PortfolioFilter) ([]model.PortfolioItem, error) {
	key := portfolioListKey(f)
	return cached(ctx, o, "portfolio", key, cache.TTLMedium, func(ctx context.Context) ([]model.PortfolioItem, error) {
		q := backend.Query{Eq: map[string]string{}, OrderBy: "created_at", Desc: true, Limit: f.Limit}
		if f.Category != "" {
			q.Eq["category"] = f.Category
		}
		if f.FeaturedOnly {
			q.Eq["featured"] = "true"
		}

		var items []model.PortfolioItem
		if err := o.backend.Select(ctx, backend.TablePortfolio, q, &items); err != nil {
			return nil, err
		}
		return items, nil
	})
}

// GetPortfolioItem returns one item. Lookups for different ids arriving
// within the batch window are fetched together.
func (o *Optimizer) GetPortfolioItem(ctx context.Context, id string) (*model.PortfolioItem, error) {
	key := portfolioItemKey(id)
	if v, ok := o.cache.Get(key); ok {
		if item, ok := v.(model.PortfolioItem); ok {
			metrics.RecordCacheLookup("portfolio", true)
			return &item, nil
		}
	}
	metrics.RecordCacheLookup("portfolio", false)

	gen := o.generation.Load()
	item, err := o.portfolio.Load(ctx, id)
	if errors.Is(err, batch.ErrNotFound) {
		return nil, apperr.NotFound("portfolio item")
	}
	if err != nil {
		return nil, err
	}
	if o.generation.Load() == gen {
		o.cache.Set(key, item, cache.TTLLong)
	}
	return &item, nil
}

// GetPortfolioItemsByIDs returns the items for ids in the order given,
// skipping ids that do not exist.
func (o *Optimizer) GetPortfolioItemsByIDs(ctx context.Context, ids []string) ([]model.PortfolioItem, error) {
	found := make(map[string]model.PortfolioItem, len(ids))
	var missing []string
	for _, id := range ids {
		if v, ok := o.cache.Get(portfolioItemKey(id)); ok {
			if item, ok := v.(model.PortfolioItem); ok {
				found[id] = item
				continue
			}
		}
		missing = append(missing, id)
	}
	metrics.CacheLookups.WithLabelValues("portfolio", "hit").Add(float64(len(found)))
	metrics.CacheLookups.WithLabelValues("portfolio", "miss").Add(float64(len(missing)))

	if len(missing) > 0 {
		gen := o.generation.Load()
		loaded, err := o.portfolio.LoadMany(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, item := range loaded {
			found[item.ID] = item
			if o.generation.Load() == gen {
				o.cache.Set(portfolioItemKey(item.ID), item, cache.TTLLong)
			}
		}
	}

	out := make([]model.PortfolioItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := found[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (o *Optimizer) fetchPortfolioByIDs(ctx context.Context, ids []string) (map[string]model.PortfolioItem, error) {
	items, err := retry.Do(ctx, o.cfg.Retry, "portfolio.batch", o.logger, func(ctx context.Context) ([]model.PortfolioItem, error) {
		var items []model.PortfolioItem
		err := o.backend.Select(ctx, backend.TablePortfolio, backend.Query{
			In: map[string][]string{"id": ids},
		}, &items)
		return items, err
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.PortfolioItem, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

// GetTeamMembers lists the team in display order.
func (o *Optimizer) GetTeamMembers(ctx context.Context) ([]model.TeamMember, error) {
	return cached(ctx, o, "team", teamListKey, cache.TTLLong, func(ctx context.Context) ([]model.TeamMember, error) {
		var members []model.TeamMember
		err := o.backend.Select(ctx, backend.TableTeam, backend.Query{OrderBy: "sort_order"}, &members)
		return members, err
	})
}

// GetCustomers lists customers, newest first.
func (o *Optimizer) GetCustomers(ctx context.Context, limit int) ([]model.Customer, error) {
	return cached(ctx, o, "customers", customerListKey(limit), cache.TTLShort, func(ctx context.Context) ([]model.Customer, error) {
		var customers []model.Customer
		err := o.backend.Select(ctx, backend.TableCustomers, backend.Query{
			OrderBy: "created_at",
			Desc:    true,
			Limit:   limit,
		}, &customers)
		return customers, err
	})
}

// GetConversations lists conversations with the given status (all when
// empty), most recently active first.
func (o *Optimizer) GetConversations(ctx context.Context, status model.ConversationStatus) ([]model.Conversation, error) {
	return cached(ctx, o, "chat", conversationListKey(status), cache.TTLShort, func(ctx context.Context) ([]model.Conversation, error) {
		q := backend.Query{OrderBy: "last_message_at", Desc: true}
		if status != "" {
			q.Eq = map[string]string{"status": string(status)}
		}
		var convs []model.Conversation
		err := o.backend.Select(ctx, backend.TableConversations, q, &convs)
		return convs, err
	})
}

// InvalidatePortfolio drops cached portfolio queries.
func (o *Optimizer) InvalidatePortfolio() int {
	return o.Invalidate("portfolio") + o.Invalidate(dashboardKey)
}

// InvalidateTeam drops cached team queries.
func (o *Optimizer) InvalidateTeam() int {
	return o.Invalidate("team") + o.Invalidate(dashboardKey)
}

// InvalidateCustomers drops cached customer queries.
func (o *Optimizer) InvalidateCustomers() int {
	return o.Invalidate("customers") + o.Invalidate(dashboardKey)
}

// InvalidateConversations drops cached chat queries.
func (o *Optimizer) InvalidateConversations() int {
	return o.Invalidate("chat:") + o.Invalidate(dashboardKey)
}

// Invalidate drops every cached entry whose key contains substr.
func (o *Optimizer) Invalidate(substr string) int {
	o.generation.Add(1)
	removed := o.cache.InvalidateContaining(substr)
	metrics.CacheInvalidations.WithLabelValues(substr).Add(float64(removed))
	o.logger.Debug("cache invalidated", zap.String("pattern", substr), zap.Int("removed", removed))
	return removed
}

// ClearAll drops every cached entry.
func (o *Optimizer) ClearAll() {
	o.generation.Add(1)
	o.cache.Clear()
	o.logger.Debug("cache cleared")
}

// Stats returns cache counters.
func (o *Optimizer) Stats() cache.Stats {
	return o.cache.Stats()
}
