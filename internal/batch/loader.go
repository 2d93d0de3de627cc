// Package batch coalesces concurrent keyed lookups into multi-key fetches.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/heirloom-restoration/workshop/pkg/logger"
	"github.com/heirloom-restoration/workshop/pkg/metrics"
)

// ErrNotFound is returned for keys the fetch did not return.
var ErrNotFound = errors.New("batch: key not found")

// DefaultWait is how long a batch stays open for more keys.
const DefaultWait = 50 * time.Millisecond

// FetchFunc loads many keys at once. Keys absent from the map are not found.
type FetchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// Config configures a Loader.
type Config struct {
	// Name labels logs and metrics.
	Name string
	// Wait is how long to collect keys before fetching.
	Wait time.Duration
	// MaxBatch dispatches early once this many distinct keys are queued. 0 means no cap.
	MaxBatch int
}

type pending[K comparable, V any] struct {
	ctx     context.Context
	keys    []K
	seen    map[K]struct{}
	done    chan struct{}
	results map[K]V
	err     error
}

func (p *pending[K, V]) add(key K) {
	if _, ok := p.seen[key]; ok {
		return
	}
	p.seen[key] = struct{}{}
	p.keys = append(p.keys, key)
}

// Loader groups Load calls that arrive within Wait into one FetchFunc call.
// Each caller receives the value for its own key. A caller that stops waiting
// does not cancel the fetch for the rest of the batch.
type Loader[K comparable, V any] struct {
	cfg    Config
	fetch  FetchFunc[K, V]
	logger *logger.Logger

	mu      sync.Mutex
	current *pending[K, V]
}

// NewLoader creates a Loader.
func NewLoader[K comparable, V any](cfg Config, fetch FetchFunc[K, V], log *logger.Logger) *Loader[K, V] {
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultWait
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	return &Loader[K, V]{
		cfg:    cfg,
		fetch:  fetch,
		logger: logger.OrGlobal(log).Named("batch"),
	}
}

// Load returns the value for key, fetched together with any other keys
// requested in the same window.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (V, error) {
	b := l.enqueue(ctx, key)

	var zero V
	select {
	case <-b.done:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	if b.err != nil {
		return zero, b.err
	}
	v, ok := b.results[key]
	if !ok {
		return zero, fmt.Errorf("%w: %v", ErrNotFound, key)
	}
	return v, nil
}

// LoadMany returns the values for keys in the order requested. Keys that
// were not found are skipped.
func (l *Loader[K, V]) LoadMany(ctx context.Context, keys []K) ([]V, error) {
	if len(keys) == 0 {
		return []V{}, nil
	}

	b := l.enqueue(ctx, keys...)
	select {
	case <-b.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if b.err != nil {
		return nil, b.err
	}
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		if v, ok := b.results[k]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (l *Loader[K, V]) enqueue(ctx context.Context, keys ...K) *pending[K, V] {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		b := &pending[K, V]{
			ctx:  context.WithoutCancel(ctx),
			seen: make(map[K]struct{}),
			done: make(chan struct{}),
		}
		l.current = b
		time.AfterFunc(l.cfg.Wait, func() { l.dispatch(b) })
	}

	b := l.current
	for _, k := range keys {
		b.add(k)
	}

	if l.cfg.MaxBatch > 0 && len(b.keys) >= l.cfg.MaxBatch {
		l.current = nil
		go l.run(b)
	}
	return b
}

// dispatch runs b if it is still the open batch.
func (l *Loader[K, V]) dispatch(b *pending[K, V]) {
	l.mu.Lock()
	if l.current != b {
		l.mu.Unlock()
		return
	}
	l.current = nil
	l.mu.Unlock()

	l.run(b)
}

func (l *Loader[K, V]) run(b *pending[K, V]) {
	defer close(b.done)
	defer func() {
		if r := recover(); r != nil {
			b.err = fmt.Errorf("batch %s: fetch panicked: %v", l.cfg.Name, r)
		}
	}()

	metrics.BatchSize.WithLabelValues(l.cfg.Name).Observe(float64(len(b.keys)))
	l.logger.Debug("dispatching batch",
		zap.String("loader", l.cfg.Name),
		zap.Int("keys", len(b.keys)),
	)

	b.results, b.err = l.fetch(b.ctx, b.keys)
	if b.err != nil {
		l.logger.Error("batch fetch failed",
			zap.String("loader", l.cfg.Name),
			zap.Int("keys", len(b.keys)),
			zap.Error(b.err),
		)
	}
}
