// Package push delivers zine notifications to devices through topic subscriptions.
package push

import (
	"context"
	"log/slog"
	"sync"
)

// Data keys carried by every notification.
const (
	DataZineID  = "zine_id"
	DataIssueID = "issue_id"
	DataSentAt  = "sent_at"
)

// Notification is one message published to a topic.
type Notification struct {
	Data     map[string]string
	Topic    string
	Title    string
	Body     string
	ImageURL string
}

// ZineID returns the zine the notification is about, if any.
func (n Notification) ZineID() string {
	return n.Data[DataZineID]
}

// Messenger is the push backend: topic management plus publishing.
type Messenger interface {
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) error
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) error
	Publish(ctx context.Context, n Notification) error
}

// Handler receives a notification delivered to one device token.
type Handler func(ctx context.Context, token string, n Notification)

// LocalBroker is an in-process Messenger. It tracks topic subscriptions and hands
// published notifications to registered handlers, once per subscribed token.
type LocalBroker struct {
	logger   *slog.Logger
	topics   map[string]map[string]struct{}
	handlers []Handler
	mu       sync.RWMutex
}

var _ Messenger = (*LocalBroker)(nil)

// NewLocalBroker creates an empty broker.
func NewLocalBroker(logger *slog.Logger) *LocalBroker {
	return &LocalBroker{
		logger: logger,
		topics: make(map[string]map[string]struct{}),
	}
}

// OnDeliver registers a handler for delivered notifications.
func (b *LocalBroker) OnDeliver(h Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// SubscribeToTopic adds tokens to a topic.
func (b *LocalBroker) SubscribeToTopic(_ context.Context, tokens []string, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[string]struct{})
		b.topics[topic] = subs
	}
	for _, t := range tokens {
		subs[t] = struct{}{}
	}
	return nil
}

// UnsubscribeFromTopic removes tokens from a topic.
func (b *LocalBroker) UnsubscribeFromTopic(_ context.Context, tokens []string, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	for _, t := range tokens {
		delete(subs, t)
	}
	if len(subs) == 0 {
		delete(b.topics, topic)
	}
	return nil
}

// Publish delivers n to every token subscribed to n.Topic. Handlers run on the
// caller's goroutine.
func (b *LocalBroker) Publish(ctx context.Context, n Notification) error {
	b.mu.RLock()
	tokens := make([]string, 0, len(b.topics[n.Topic]))
	for t := range b.topics[n.Topic] {
		tokens = append(tokens, t)
	}
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()

	b.logger.Debug("publishing notification", "topic", n.Topic, "devices", len(tokens))
	for _, t := range tokens {
		for _, h := range handlers {
			h(ctx, t, n)
		}
	}
	return nil
}

// Subscribers returns the tokens subscribed to topic.
func (b *LocalBroker) Subscribers(topic string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.topics[topic]))
	for t := range b.topics[topic] {
		out = append(out, t)
	}
	return out
}
