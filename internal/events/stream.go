package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/heirloom-restoration/workshop/internal/model"
)

const (
	// StreamName is the JetStream stream holding chat events.
	StreamName = "CHAT"

	// SubjectPrefix is the prefix for all chat subjects.
	SubjectPrefix = "chat"
)

// EventSubject returns the subject an event is published on.
func EventSubject(conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, subjectToken(conversationID), eventType)
}

// ConversationFilter returns the filter subject for every event of a
// conversation, or of all conversations when conversationID is empty.
func ConversationFilter(conversationID string) string {
	if conversationID == "" {
		return SubjectPrefix + ".>"
	}
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, subjectToken(conversationID))
}

// subjectToken keeps ids from introducing extra tokens or wildcards.
func subjectToken(id string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(id)
}

// NATSBus is a Bus backed by a JetStream stream. Publishes are persisted;
// subscribers receive live events through core subscriptions.
type NATSBus struct {
	client *Client
}

// NewNATSBus creates a NATSBus and ensures the chat stream exists.
func NewNATSBus(ctx context.Context, client *Client) (*NATSBus, error) {
	b := &NATSBus{client: client}
	if err := b.EnsureStream(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// EnsureStream creates the chat stream if it does not exist.
func (b *NATSBus) EnsureStream(ctx context.Context) error {
	js := b.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Live chat events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Publish implements Bus.
func (b *NATSBus) Publish(ctx context.Context, ev model.ChatEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := EventSubject(ev.ConversationID, ev.Type)
	if _, err := b.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(ev.ID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe implements Bus.
func (b *NATSBus) Subscribe(conversationID string, fn Handler) (func(), error) {
	sub, err := b.client.Conn().Subscribe(ConversationFilter(conversationID), func(m *nats.Msg) {
		var ev model.ChatEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			b.client.logger.Warn("dropping malformed chat event",
				zap.String("subject", m.Subject),
				zap.Error(err),
			)
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed && err != nats.ErrBadSubscription {
			b.client.logger.Debug("unsubscribe failed", zap.Error(err))
		}
	}, nil
}

// Healthy implements Bus.
func (b *NATSBus) Healthy() bool {
	return b.client.IsConnected()
}

// Close implements Bus.
func (b *NATSBus) Close() error {
	return b.client.Close()
}

var _ Bus = (*NATSBus)(nil)
