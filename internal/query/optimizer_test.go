package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/backend"
	"github.com/heirloom-restoration/workshop/internal/cache"
	"github.com/heirloom-restoration/workshop/internal/model"
	"github.com/heirloom-restoration/workshop/internal/retry"
	"github.com/heirloom-restoration/workshop/pkg/logger"
)

// countingBackend counts Select calls per table and can inject failures.
type countingBackend struct {
	*backend.MemoryBackend
	mu      sync.Mutex
	selects map[string]int
	fail    atomic.Int32
	delay   time.Duration
}

func newCountingBackend() *countingBackend {
	return &countingBackend{MemoryBackend: backend.NewMemory(), selects: map[string]int{}}
}

func (b *countingBackend) Select(ctx context.Context, table string, q backend.Query, dest any) error {
	b.mu.Lock()
	b.selects[table]++
	b.mu.Unlock()

	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if b.fail.Load() > 0 {
		b.fail.Add(-1)
		return apperr.Database("temporary failure", errors.New("connection reset"))
	}
	return b.MemoryBackend.Select(ctx, table, q, dest)
}

func (b *countingBackend) count(table string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selects[table]
}

func newTestOptimizer(t *testing.T, b backend.Backend) *Optimizer {
	t.Helper()
	cfg := Config{
		Retry:     retry.Config{MaxAttempts: 3, Delay: time.Millisecond},
		BatchWait: 10 * time.Millisecond,
		MaxBatch:  50,
	}
	return New(b, cache.New(), cfg, logger.NewNop())
}

func seedPortfolio(t *testing.T, b *countingBackend, items ...model.PortfolioItem) []model.PortfolioItem {
	t.Helper()
	out := make([]model.PortfolioItem, 0, len(items))
	for _, item := range items {
		var stored model.PortfolioItem
		require.NoError(t, b.Insert(context.Background(), backend.TablePortfolio, item, &stored))
		out = append(out, stored)
	}
	return out
}

func TestGetPortfolioItems_CachesByFilter(t *testing.T) {
	b := newCountingBackend()
	seedPortfolio(t, b,
		model.PortfolioItem{Title: "Oak dresser", Category: "furniture", Featured: true},
		model.PortfolioItem{Title: "Mantel clock", Category: "clocks"},
	)
	o := newTestOptimizer(t, b)
	ctx := context.Background()

	all, err := o.GetPortfolioItems(ctx, model.PortfolioFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = o.GetPortfolioItems(ctx, model.PortfolioFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, b.count(backend.TablePortfolio))

	featured, err := o.GetPortfolioItems(ctx, model.PortfolioFilter{FeaturedOnly: true})
	require.NoError(t, err)
	require.Len(t, featured, 1)
	assert.Equal(t, "Oak dresser", featured[0].Title)
	assert.Equal(t, 2, b.count(backend.TablePortfolio))

	clocks, err := o.GetPortfolioItems(ctx, model.PortfolioFilter{Category: "clocks"})
	require.NoError(t, err)
	require.Len(t, clocks, 1)
	assert.Equal(t, "Mantel clock", clocks[0].Title)
}

func TestGetPortfolioItems_InvalidateForcesRefetch(t *testing.T) {
	b := newCountingBackend()
	seedPortfolio(t, b, model.PortfolioItem{Title: "Oak dresser"})
	o := newTestOptimizer(t, b)
	ctx := context.Background()

	_, err := o.GetPortfolioItems(ctx, model.PortfolioFilter{})
	require.NoError(t, err)

	seedPortfolio(t, b, model.PortfolioItem{Title: "Walnut desk"})
	assert.Positive(t, o.InvalidatePortfolio())

	items, err := o.GetPortfolioItems(ctx, model.PortfolioFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, b.count(backend.TablePortfolio))
}

func TestCached_ConcurrentMissesShareOneFetch(t *testing.T) {
	b := newCountingBackend()
	b.delay = 20 * time.Millisecond
	o := newTestOptimizer(t, b)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.GetTeamMembers(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, b.count(backend.TableTeam))
}

func TestCached_RetriesTransientFailures(t *testing.T) {
	b := newCountingBackend()
	b.fail.Store(2)
	o := newTestOptimizer(t, b)

	members, err := o.GetTeamMembers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Equal(t, 3, b.count(backend.TableTeam))
}

func TestCached_ExhaustedRetriesAreNotCached(t *testing.T) {
	b := newCountingBackend()
	b.fail.Store(3)
	o := newTestOptimizer(t, b)
	ctx := context.Background()

	_, err := o.GetCustomers(ctx, 10)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeDatabase))

	_, err = o.GetCustomers(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, b.count(backend.TableCustomers))
}

func TestGetPortfolioItem_BatchesConcurrentLookups(t *testing.T) {
	b := newCountingBackend()
	items := seedPortfolio(t, b,
		model.PortfolioItem{Title: "one"},
		model.PortfolioItem{Title: "two"},
		model.PortfolioItem{Title: "three"},
	)
	o := newTestOptimizer(t, b)

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(id, title string) {
			defer wg.Done()
			got, err := o.GetPortfolioItem(context.Background(), id)
			if assert.NoError(t, err) {
				assert.Equal(t, title, got.Title)
			}
		}(item.ID, item.Title)
	}
	wg.Wait()

	assert.Equal(t, 1, b.count(backend.TablePortfolio))

	_, err := o.GetPortfolioItem(context.Background(), items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, b.count(backend.TablePortfolio))
}

func TestGetPortfolioItem_NotFound(t *testing.T) {
	o := newTestOptimizer(t, newCountingBackend())

	_, err := o.GetPortfolioItem(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestGetPortfolioItemsByIDs_KeepsRequestOrder(t *testing.T) {
	b := newCountingBackend()
	items := seedPortfolio(t, b,
		model.PortfolioItem{Title: "one"},
		model.PortfolioItem{Title: "two"},
		model.PortfolioItem{Title: "three"},
	)
	o := newTestOptimizer(t, b)
	ctx := context.Background()

	_, err := o.GetPortfolioItem(ctx, items[1].ID)
	require.NoError(t, err)

	got, err := o.GetPortfolioItemsByIDs(ctx, []string{items[2].ID, "missing", items[1].ID, items[0].ID})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "three", got[0].Title)
	assert.Equal(t, "two", got[1].Title)
	assert.Equal(t, "one", got[2].Title)
}

func TestGetConversations_FiltersByStatus(t *testing.T) {
	b := newCountingBackend()
	ctx := context.Background()
	for _, s := range []model.ConversationStatus{model.StatusActive, model.StatusClosed, model.StatusActive} {
		require.NoError(t, b.Insert(ctx, backend.TableConversations, model.Conversation{Title: "c", Status: s}, nil))
	}
	o := newTestOptimizer(t, b)

	active, err := o.GetConversations(ctx, model.StatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	all, err := o.GetConversations(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	o.InvalidateConversations()
	_, err = o.GetConversations(ctx, model.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, 3, b.count(backend.TableConversations))
}

func TestGetDashboardStats(t *testing.T) {
	b := newCountingBackend()
	ctx := context.Background()
	seedPortfolio(t, b,
		model.PortfolioItem{Title: "one", Featured: true},
		model.PortfolioItem{Title: "two"},
	)
	require.NoError(t, b.Insert(ctx, backend.TableTeam, model.TeamMember{Name: "Ada"}, nil))
	require.NoError(t, b.Insert(ctx, backend.TableCustomers, model.Customer{Name: "Bo", Email: "bo@example.com"}, nil))

	var conv model.Conversation
	require.NoError(t, b.Insert(ctx, backend.TableConversations, model.Conversation{
		Title: "Chair", CustomerEmail: "bo@example.com", Status: model.StatusActive,
	}, &conv))
	for _, m := range []model.Message{
		{ConversationID: conv.ID, SenderID: "bo@example.com", Content: "hi"},
		{ConversationID: conv.ID, SenderID: "bo@example.com", Content: "read", IsRead: true},
		{ConversationID: conv.ID, SenderID: "staff-1", Content: "hello"},
	} {
		require.NoError(t, b.Insert(ctx, backend.TableMessages, m, nil))
	}

	o := newTestOptimizer(t, b)
	stats, err := o.GetDashboardStats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.PortfolioItems)
	assert.Equal(t, 1, stats.FeaturedItems)
	assert.Equal(t, 1, stats.TeamMembers)
	assert.Equal(t, 1, stats.Customers)
	assert.Equal(t, 1, stats.ActiveConversations)
	assert.Equal(t, 1, stats.UnreadMessages)

	_, err = o.GetDashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, b.count(backend.TableTeam))
}

func TestCached_CallerCancellation(t *testing.T) {
	b := newCountingBackend()
	b.delay = 50 * time.Millisecond
	o := newTestOptimizer(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := o.GetTeamMembers(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned fetch still completes and fills the cache.
	require.Eventually(t, func() bool {
		return o.Stats().Entries == 1
	}, time.Second, 5*time.Millisecond)
}

func TestClearAll(t *testing.T) {
	b := newCountingBackend()
	o := newTestOptimizer(t, b)
	ctx := context.Background()

	_, err := o.GetTeamMembers(ctx)
	require.NoError(t, err)
	o.ClearAll()
	_, err = o.GetTeamMembers(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, b.count(backend.TableTeam))
}
