package cache

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestCache() (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(WithClock(clock.Now)), clock
}

func TestCache_ReturnsValueWithinTTL(t *testing.T) {
	c, clock := newTestCache()
	items := []string{"walnut dresser", "oak chair"}
	c.Set("portfolio:list", items, TTLShort)

	clock.t = clock.t.Add(TTLShort)
	got, ok := c.Get("portfolio:list")
	require.True(t, ok, "entry exactly at ttl is still fresh")
	assert.Equal(t, items, got)
}

func TestCache_MissAfterTTL(t *testing.T) {
	c, clock := newTestCache()
	c.Set("portfolio:list", "v", TTLShort)

	clock.t = clock.t.Add(TTLShort + time.Millisecond)
	_, ok := c.Get("portfolio:list")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry is evicted on read")
}

func TestCache_InvalidateContaining(t *testing.T) {
	c, _ := newTestCache()
	c.Set("portfolio:list:all", 1, TTLLong)
	c.Set("portfolio:item:42", 2, TTLLong)
	c.Set("team:list", 3, TTLLong)
	c.Set("dashboard:stats", 4, TTLLong)

	removed := c.InvalidateContaining("portfolio")
	assert.Equal(t, 2, removed)

	keys := c.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"dashboard:stats", "team:list"}, keys)
}

func TestCache_DeleteAndClear(t *testing.T) {
	c, _ := newTestCache()
	c.Set("a", 1, TTLShort)
	c.Set("b", 2, TTLShort)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_SweepAndStats(t *testing.T) {
	c, clock := newTestCache()
	c.Set("short", 1, TTLShort)
	c.Set("long", 2, TTLVeryLong)

	c.Get("short")
	c.Get("missing")

	clock.t = clock.t.Add(TTLMedium)
	assert.Equal(t, 1, c.Sweep())

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCache_OverwriteRefreshesTimestamp(t *testing.T) {
	c, clock := newTestCache()
	c.Set("k", "old", TTLShort)

	clock.t = clock.t.Add(4 * time.Minute)
	c.Set("k", "new", TTLShort)

	clock.t = clock.t.Add(4 * time.Minute)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", got)
}
