package push

import (
	"context"
	"fmt"
	"log/slog"
)

// TokenLister returns the device tokens registered for a user.
type TokenLister func(ctx context.Context, userID string) ([]string, error)

// DeviceSubscriber manages topic subscriptions for all devices of one user.
type DeviceSubscriber struct {
	messenger Messenger
	tokens    TokenLister
	logger    *slog.Logger
	userID    string
}

// NewDeviceSubscriber binds messenger to userID's devices.
func NewDeviceSubscriber(messenger Messenger, tokens TokenLister, userID string, logger *slog.Logger) *DeviceSubscriber {
	return &DeviceSubscriber{messenger: messenger, tokens: tokens, userID: userID, logger: logger}
}

// Subscribe subscribes every device of the user to topic. A user without
// devices has nothing to subscribe, which is not an error.
func (d *DeviceSubscriber) Subscribe(ctx context.Context, topic string) error {
	return d.apply(ctx, topic, d.messenger.SubscribeToTopic, "subscribe")
}

// Unsubscribe removes every device of the user from topic.
func (d *DeviceSubscriber) Unsubscribe(ctx context.Context, topic string) error {
	return d.apply(ctx, topic, d.messenger.UnsubscribeFromTopic, "unsubscribe")
}

func (d *DeviceSubscriber) apply(
	ctx context.Context,
	topic string,
	fn func(context.Context, []string, string) error,
	action string,
) error {
	tokens, err := d.tokens(ctx, d.userID)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	if len(tokens) == 0 {
		d.logger.Debug("no devices registered, skipping topic "+action, "user_id", d.userID, "topic", topic)
		return nil
	}
	if err := fn(ctx, tokens, topic); err != nil {
		return fmt.Errorf("%s %d devices to %s: %w", action, len(tokens), topic, err)
	}
	return nil
}
