// Package ratelimit throttles named operations per client address using
// fixed windows that start on the first request.
package ratelimit

import (
	"context"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/pkg/logger"
	"github.com/heirloom-restoration/workshop/pkg/metrics"
)

const (
	// DefaultLimit is used when Options.Limit is not positive.
	DefaultLimit = 10
	// DefaultWindow is used when Options.Window is not positive.
	DefaultWindow = 60 * time.Second
)

// Options configures a single check.
type Options struct {
	Limit      int
	Window     time.Duration
	Identifier string
}

func (o Options) normalized() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	return o
}

// Result reports the state of a key after a check.
type Result struct {
	Success   bool `json:"success"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	// Reset is the number of seconds until the window ends.
	Reset int `json:"reset"`
}

// Store counts hits per key.
type Store interface {
	// Increment adds a hit to key. A key without an active window at now
	// starts a new one ending at now+window. It returns the hit count in the
	// active window and the time the window ends.
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (int, time.Time, error)
}

// Limiter checks requests against a Store.
type Limiter struct {
	store  Store
	logger *logger.Logger
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a Limiter backed by store.
func New(store Store, log *logger.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		logger: logger.OrGlobal(log).Named("ratelimit"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records a hit for key and reports whether it is within the limit.
// It never fails: store errors are logged and the request is allowed.
func (l *Limiter) Check(ctx context.Context, key string, opts Options) Result {
	opts = opts.normalized()
	now := l.now()

	count, resetAt, err := l.store.Increment(ctx, key, now, opts.Window)
	if err != nil {
		l.logger.Error("rate limit store failed, allowing request",
			zap.String("key", key),
			zap.Error(err),
		)
		return Result{
			Success:   true,
			Limit:     opts.Limit,
			Remaining: opts.Limit,
			Reset:     secondsUntil(now, now.Add(opts.Window)),
		}
	}

	res := Result{
		Success:   count <= opts.Limit,
		Limit:     opts.Limit,
		Remaining: max(0, opts.Limit-count),
		Reset:     secondsUntil(now, resetAt),
	}

	if !res.Success {
		l.logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.Int("count", count),
			zap.Int("limit", opts.Limit),
			zap.Int("reset_seconds", res.Reset),
		)
		metrics.RateLimitRejections.WithLabelValues(operationLabel(opts.Identifier)).Inc()
	}

	return res
}

// CheckRequest checks the key derived from the request's client address
// and opts.Identifier.
func (l *Limiter) CheckRequest(r *http.Request, opts Options) Result {
	return l.Check(r.Context(), Key(ClientAddress(r.Header, r.RemoteAddr), opts.Identifier), opts)
}

// WithRateLimit runs fn only if key is within its limit. A rejected call
// returns a RATE_LIMITED error without invoking fn.
func WithRateLimit[T any](ctx context.Context, l *Limiter, key string, opts Options, fn func(context.Context) (T, error)) (T, error) {
	if res := l.Check(ctx, key, opts); !res.Success {
		var zero T
		return zero, apperr.RateLimited()
	}
	return fn(ctx)
}

// Key composes the store key for an address and optional operation name.
func Key(address, identifier string) string {
	if identifier == "" {
		return address
	}
	return address + ":" + identifier
}

// ClientAddress extracts the caller address, preferring proxy headers.
func ClientAddress(h http.Header, remoteAddr string) string {
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(h.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if remoteAddr != "" {
		if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
			return host
		}
		return remoteAddr
	}
	return "unknown"
}

func secondsUntil(now, t time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func operationLabel(identifier string) string {
	if identifier == "" {
		return "default"
	}
	return identifier
}
