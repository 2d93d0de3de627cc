// Package events fans chat events out to live subscribers, in process or over NATS.
package events

import (
	"context"
	"sync"

	"github.com/heirloom-restoration/workshop/internal/model"
)

// Handler receives published events. It must not block.
type Handler func(model.ChatEvent)

// Bus publishes chat events and delivers them to subscribers of a
// conversation. An empty conversation id subscribes to every conversation.
type Bus interface {
	Publish(ctx context.Context, ev model.ChatEvent) error
	Subscribe(conversationID string, fn Handler) (unsubscribe func(), err error)
	Healthy() bool
	Close() error
}

// LocalBus is an in-process Bus for single-instance deployments and tests.
type LocalBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
	closed bool
}

// NewLocalBus creates an empty LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[int]Handler)}
}

// Publish delivers ev to the conversation's subscribers and to wildcard subscribers.
func (b *LocalBus) Publish(ctx context.Context, ev model.ChatEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]Handler, 0, len(b.subs[ev.ConversationID])+len(b.subs[""]))
	for _, fn := range b.subs[ev.ConversationID] {
		handlers = append(handlers, fn)
	}
	if ev.ConversationID != "" {
		for _, fn := range b.subs[""] {
			handlers = append(handlers, fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
	return nil
}

// Subscribe registers fn for events on conversationID.
func (b *LocalBus) Subscribe(conversationID string, fn Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	id := b.nextID
	b.nextID++
	if b.subs[conversationID] == nil {
		b.subs[conversationID] = make(map[int]Handler)
	}
	b.subs[conversationID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[conversationID], id)
			if len(b.subs[conversationID]) == 0 {
				delete(b.subs, conversationID)
			}
		})
	}, nil
}

// Healthy reports whether the bus accepts events.
func (b *LocalBus) Healthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// Close drops all subscribers.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string]map[int]Handler)
	return nil
}

var _ Bus = (*LocalBus)(nil)
