// Package fcm implements push.Messenger on Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"

	"github.com/tellmeastory/zine-server/internal/push"
)

// maxTopicTokens is the FCM limit on tokens per topic management call.
const maxTopicTokens = 1000

// Client sends through the FCM HTTP v1 API.
type Client struct {
	client *messaging.Client
	logger *slog.Logger
}

var _ push.Messenger = (*Client)(nil)

// New creates a messaging client from a Firebase app.
func New(ctx context.Context, app *firebase.App, logger *slog.Logger) (*Client, error) {
	mc, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("create messaging client: %w", err)
	}
	return &Client{client: mc, logger: logger}, nil
}

// SubscribeToTopic subscribes tokens to topic.
func (c *Client) SubscribeToTopic(ctx context.Context, tokens []string, topic string) error {
	return c.manage(ctx, tokens, topic, c.client.SubscribeToTopic)
}

// UnsubscribeFromTopic unsubscribes tokens from topic.
func (c *Client) UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) error {
	return c.manage(ctx, tokens, topic, c.client.UnsubscribeFromTopic)
}

type topicFunc func(context.Context, []string, string) (*messaging.TopicManagementResponse, error)

// manage applies fn in chunks. Individual token failures (stale or
// unregistered tokens) are logged; the call fails only when no token succeeded.
func (c *Client) manage(ctx context.Context, tokens []string, topic string, fn topicFunc) error {
	succeeded := 0
	for start := 0; start < len(tokens); start += maxTopicTokens {
		end := min(start+maxTopicTokens, len(tokens))
		resp, err := fn(ctx, tokens[start:end], topic)
		if err != nil {
			return fmt.Errorf("topic %s: %w", topic, err)
		}
		succeeded += resp.SuccessCount
		for _, e := range resp.Errors {
			c.logger.Warn("topic management failed for token", "topic", topic, "index", start+e.Index, "reason", e.Reason)
		}
	}
	if succeeded == 0 && len(tokens) > 0 {
		return fmt.Errorf("topic %s: all %d tokens rejected", topic, len(tokens))
	}
	return nil
}

// Publish sends n to its topic.
func (c *Client) Publish(ctx context.Context, n push.Notification) error {
	msgID, err := c.client.Send(ctx, toMessage(n))
	if err != nil {
		return fmt.Errorf("send to %s: %w", n.Topic, err)
	}
	c.logger.Debug("notification sent", "topic", n.Topic, "message_id", msgID)
	return nil
}

func toMessage(n push.Notification) *messaging.Message {
	return &messaging.Message{
		Topic: n.Topic,
		Data:  n.Data,
		Notification: &messaging.Notification{
			Title:    n.Title,
			Body:     n.Body,
			ImageURL: n.ImageURL,
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}
}
