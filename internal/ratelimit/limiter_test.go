package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/pkg/logger"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T) (*Limiter, *MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	return New(store, logger.NewNop(), WithClock(clock.Now)), store, clock
}

func TestLimiter_FirstLCallsSucceed(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	opts := Options{Limit: 3, Window: time.Minute}
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res := l.Check(ctx, "1.2.3.4", opts)
		if i <= 3 {
			assert.True(t, res.Success, "call %d should pass", i)
			assert.Equal(t, 3-i, res.Remaining)
		} else {
			assert.False(t, res.Success, "call %d should be rejected", i)
			assert.Equal(t, 0, res.Remaining)
		}
		assert.Equal(t, 3, res.Limit)
		assert.Equal(t, 60, res.Reset)
	}
}

func TestLimiter_ResetsAfterWindow(t *testing.T) {
	l, _, clock := newTestLimiter(t)
	opts := Options{Limit: 2, Window: 10 * time.Second}
	ctx := context.Background()

	l.Check(ctx, "k", opts)
	l.Check(ctx, "k", opts)
	require.False(t, l.Check(ctx, "k", opts).Success)

	clock.Advance(4 * time.Second)
	res := l.Check(ctx, "k", opts)
	assert.False(t, res.Success)
	assert.Equal(t, 6, res.Reset)

	clock.Advance(7 * time.Second)
	res = l.Check(ctx, "k", opts)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, 10, res.Reset)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	opts := Options{Limit: 1, Window: time.Minute}
	ctx := context.Background()

	assert.True(t, l.Check(ctx, Key("1.1.1.1", "contact"), opts).Success)
	assert.True(t, l.Check(ctx, Key("1.1.1.1", "chat"), opts).Success)
	assert.True(t, l.Check(ctx, Key("2.2.2.2", "contact"), opts).Success)
	assert.False(t, l.Check(ctx, Key("1.1.1.1", "contact"), opts).Success)
}

func TestLimiter_Defaults(t *testing.T) {
	l, _, _ := newTestLimiter(t)

	res := l.Check(context.Background(), "k", Options{})
	assert.True(t, res.Success)
	assert.Equal(t, DefaultLimit, res.Limit)
	assert.Equal(t, DefaultLimit-1, res.Remaining)
	assert.Equal(t, int(DefaultWindow.Seconds()), res.Reset)
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Time, time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("store down")
}

func TestLimiter_StoreErrorFailsOpen(t *testing.T) {
	l := New(failingStore{}, logger.NewNop())

	for i := 0; i < 5; i++ {
		res := l.Check(context.Background(), "k", Options{Limit: 1})
		assert.True(t, res.Success)
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	l, store, clock := newTestLimiter(t)
	ctx := context.Background()

	l.Check(ctx, "short", Options{Window: time.Second})
	l.Check(ctx, "long", Options{Window: time.Hour})
	require.Equal(t, 2, store.Len())

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, store.Sweep(clock.Now()))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_RunStopsOnCancel(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		store.Run(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWithRateLimit(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	opts := Options{Limit: 1, Window: time.Minute, Identifier: "contact"}
	ctx := context.Background()

	calls := 0
	fn := func(context.Context) (string, error) {
		calls++
		return "sent", nil
	}

	got, err := WithRateLimit(ctx, l, "k", opts, fn)
	require.NoError(t, err)
	assert.Equal(t, "sent", got)

	got, err = WithRateLimit(ctx, l, "k", opts, fn)
	assert.Empty(t, got)
	assert.True(t, apperr.Is(err, apperr.CodeRateLimited))
	assert.Equal(t, 1, calls, "fn must not run when rejected")
}

func TestWithRateLimit_PassesThroughErrors(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	boom := errors.New("boom")

	_, err := WithRateLimit(context.Background(), l, "k", Options{}, func(context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestClientAddress(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"forwarded first entry", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "10.0.0.2:5000", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:5000", "198.51.100.4"},
		{"remote addr", nil, "192.0.2.1:4321", "192.0.2.1"},
		{"remote addr without port", nil, "192.0.2.1", "192.0.2.1"},
		{"nothing", nil, "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientAddress(h, tt.remoteAddr))
		})
	}
}

func TestCheckRequest_UsesIdentifier(t *testing.T) {
	l, store, _ := newTestLimiter(t)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat/conversations", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9")

	res := l.CheckRequest(r, Options{Limit: 1, Identifier: "chat-start"})
	assert.True(t, res.Success)
	assert.Equal(t, 1, store.Len())

	count, _, err := store.Increment(context.Background(), "203.0.113.9:chat-start", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
