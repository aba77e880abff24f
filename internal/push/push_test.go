package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBroker_PublishReachesSubscribedTokens(t *testing.T) {
	b := NewLocalBroker(slog.Default())
	ctx := context.Background()

	var mu sync.Mutex
	got := map[string]string{}
	b.OnDeliver(func(_ context.Context, token string, n Notification) {
		mu.Lock()
		got[token] = n.ZineID()
		mu.Unlock()
	})

	require.NoError(t, b.SubscribeToTopic(ctx, []string{"tok-a", "tok-b"}, "zine_z1"))
	require.NoError(t, b.SubscribeToTopic(ctx, []string{"tok-c"}, "zine_z2"))
	require.NoError(t, b.UnsubscribeFromTopic(ctx, []string{"tok-b"}, "zine_z1"))

	require.NoError(t, b.Publish(ctx, Notification{Topic: "zine_z1", Data: map[string]string{DataZineID: "z1"}}))

	assert.Equal(t, map[string]string{"tok-a": "z1"}, got)
	assert.ElementsMatch(t, []string{"tok-a"}, b.Subscribers("zine_z1"))
}

func TestLocalBroker_EmptyTopicIsRemoved(t *testing.T) {
	b := NewLocalBroker(slog.Default())
	ctx := context.Background()

	require.NoError(t, b.SubscribeToTopic(ctx, []string{"tok"}, "zine_z1"))
	require.NoError(t, b.UnsubscribeFromTopic(ctx, []string{"tok"}, "zine_z1"))

	assert.Empty(t, b.topics)
	assert.NoError(t, b.Publish(ctx, Notification{Topic: "zine_z1"}))
}

type recordingMessenger struct {
	err   error
	calls []string
}

func (m *recordingMessenger) SubscribeToTopic(_ context.Context, tokens []string, topic string) error {
	m.calls = append(m.calls, "sub:"+topic)
	return m.err
}

func (m *recordingMessenger) UnsubscribeFromTopic(_ context.Context, tokens []string, topic string) error {
	m.calls = append(m.calls, "unsub:"+topic)
	return m.err
}

func (m *recordingMessenger) Publish(context.Context, Notification) error { return m.err }

func TestDeviceSubscriber(t *testing.T) {
	ctx := context.Background()

	t.Run("no devices is a no-op", func(t *testing.T) {
		m := &recordingMessenger{}
		d := NewDeviceSubscriber(m, func(context.Context, string) ([]string, error) { return nil, nil }, "u1", slog.Default())

		require.NoError(t, d.Subscribe(ctx, "zine_z1"))
		assert.Empty(t, m.calls)
	})

	t.Run("forwards tokens", func(t *testing.T) {
		m := &recordingMessenger{}
		d := NewDeviceSubscriber(m, func(_ context.Context, uid string) ([]string, error) {
			assert.Equal(t, "u1", uid)
			return []string{"tok"}, nil
		}, "u1", slog.Default())

		require.NoError(t, d.Subscribe(ctx, "zine_z1"))
		require.NoError(t, d.Unsubscribe(ctx, "zine_z1"))
		assert.Equal(t, []string{"sub:zine_z1", "unsub:zine_z1"}, m.calls)
	})

	t.Run("wraps failures", func(t *testing.T) {
		boom := errors.New("unavailable")
		m := &recordingMessenger{err: boom}
		d := NewDeviceSubscriber(m, func(context.Context, string) ([]string, error) { return []string{"tok"}, nil }, "u1", slog.Default())

		assert.ErrorIs(t, d.Subscribe(ctx, "zine_z1"), boom)
	})

	t.Run("device lookup failure", func(t *testing.T) {
		boom := errors.New("db down")
		d := NewDeviceSubscriber(&recordingMessenger{}, func(context.Context, string) ([]string, error) { return nil, boom }, "u1", slog.Default())

		assert.ErrorIs(t, d.Unsubscribe(ctx, "zine_z1"), boom)
	})
}
