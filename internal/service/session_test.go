package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/push"
	"github.com/tellmeastory/zine-server/internal/store"
	"github.com/tellmeastory/zine-server/internal/store/sqlite"
)

type sessionFixture struct {
	docs          *sqlite.Store
	broker        *push.LocalBroker
	notifications *NotificationService
	sessions      *SessionRegistry
}

func setupTestSessions(t *testing.T, idle time.Duration) *sessionFixture {
	t.Helper()
	docs := setupTestDocs(t)
	broker := push.NewLocalBroker(discardLogger())
	notifications := NewNotificationService(docs, broker, discardLogger())
	sessions := NewSessionRegistry(docs, notifications, NoopEmitter(), nil, idle, discardLogger())
	notifications.SetNotifier(sessions)
	broker.OnDeliver(notifications.Deliver)
	t.Cleanup(func() { sessions.Shutdown() })
	return &sessionFixture{docs: docs, broker: broker, notifications: notifications, sessions: sessions}
}

func TestSessionRegistry_GetReusesSession(t *testing.T) {
	f := setupTestSessions(t, 0)
	ctx := context.Background()

	s1, err := f.sessions.Get(ctx, "u1")
	require.NoError(t, err)
	s2, err := f.sessions.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, f.sessions.Len())

	uid, ok := s1.Auth.CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, "u1", uid)

	_, err = f.sessions.Get(ctx, "")
	assert.ErrorIs(t, err, domainerrors.ErrNotAuthenticated)
}

func TestSessionRegistry_LoadsExistingState(t *testing.T) {
	f := setupTestSessions(t, 0)
	ctx := context.Background()

	s, err := f.sessions.Get(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.Follows.Follow(ctx, alpha))
	_, err = s.Bookmarks.Toggle(ctx, beta, beta.Issues[0])
	require.NoError(t, err)

	f.sessions.Close("u1")
	assert.Equal(t, 0, f.sessions.Len())

	// A new session sees the persisted state straight away.
	s, err = f.sessions.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, s.Follows.IsFollowing("z1"))
	assert.True(t, s.Bookmarks.IsBookmarked("z2", "i2"))
}

func TestSessionRegistry_SignOutResetsStores(t *testing.T) {
	f := setupTestSessions(t, 0)
	ctx := context.Background()

	s, err := f.sessions.Get(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.Follows.Follow(ctx, alpha))

	f.sessions.Close("u1")
	assert.False(t, s.Follows.IsFollowing("z1"))
	assert.ErrorIs(t, s.Follows.Follow(ctx, beta), domainerrors.ErrNotAuthenticated)
}

func TestSessionRegistry_ClosesIdleSessions(t *testing.T) {
	f := setupTestSessions(t, time.Minute)
	ctx := context.Background()

	now := time.Now()
	f.sessions.now = func() time.Time { return now }
	_, err := f.sessions.Get(ctx, "u1")
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	_, err = f.sessions.Get(ctx, "u2")
	require.NoError(t, err)

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, f.sessions.closeIdle())
	assert.Equal(t, 1, f.sessions.Len())
}

// The full loop: follow, get a notification through the broker, view, unfollow.
func TestNotifications_EndToEnd(t *testing.T) {
	f := setupTestSessions(t, 0)
	ctx := context.Background()

	_, err := f.notifications.RegisterDevice(ctx, "u1", RegisterDeviceRequest{Token: "tok/1", Platform: "ios"})
	require.NoError(t, err)

	s, err := f.sessions.Get(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.Follows.Follow(ctx, alpha))
	assert.Equal(t, []string{"tok/1"}, f.broker.Subscribers("zine_z1"))

	f.notifications.PublishNewIssues(ctx, alpha, alpha.Issues)
	assert.Equal(t, 1, s.Follows.UnreadCount())
	rec, ok := s.Follows.Record("z1")
	require.True(t, ok)
	require.NotNil(t, rec.LastNotificationAt)

	require.NoError(t, s.Follows.UpdateLastViewed(ctx, "z1"))
	assert.Equal(t, 0, s.Follows.UnreadCount())

	require.NoError(t, s.Follows.Unfollow(ctx, "z1"))
	assert.Empty(t, f.broker.Subscribers("zine_z1"))

	// No longer followed, so a second notification changes nothing.
	f.notifications.PublishNewIssues(ctx, alpha, alpha.Issues[:1])
	assert.Equal(t, 0, s.Follows.UnreadCount())
}

func TestNotifications_RegisterDeviceSubscribesExistingFollows(t *testing.T) {
	f := setupTestSessions(t, 0)
	ctx := context.Background()

	s, err := f.sessions.Get(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.Follows.Follow(ctx, alpha))
	require.NoError(t, s.Follows.Follow(ctx, beta))

	dev, err := f.notifications.RegisterDevice(ctx, "u1", RegisterDeviceRequest{Token: "tok-a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-a"}, f.broker.Subscribers("zine_z1"))
	assert.Equal(t, []string{"tok-a"}, f.broker.Subscribers("zine_z2"))

	// Re-registering the same token keeps the device.
	again, err := f.notifications.RegisterDevice(ctx, "u1", RegisterDeviceRequest{Token: "tok-a"})
	require.NoError(t, err)
	assert.Equal(t, dev.ID, again.ID)

	devices, err := f.notifications.Devices(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, devices, 1)

	_, err = f.notifications.RegisterDevice(ctx, "u1", RegisterDeviceRequest{Token: " "})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestNotifications_Received(t *testing.T) {
	f := setupTestSessions(t, 0)
	ctx := context.Background()

	s, err := f.sessions.Get(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.Follows.Follow(ctx, alpha))

	require.NoError(t, f.notifications.Received(ctx, "u1", "z1", time.Time{}))
	assert.Equal(t, 1, s.Follows.UnreadCount())

	assert.ErrorIs(t, f.notifications.Received(ctx, "", "z1", time.Now()), domainerrors.ErrNotAuthenticated)
}

func TestNotifications_SimilarTokensRouteToTheirOwners(t *testing.T) {
	f := setupTestSessions(t, 0)
	ctx := context.Background()
	assert.NotEqual(t, tokenKey("tok/1"), tokenKey("tok_1"))

	_, err := f.notifications.RegisterDevice(ctx, "u1", RegisterDeviceRequest{Token: "tok/1"})
	require.NoError(t, err)
	_, err = f.notifications.RegisterDevice(ctx, "u2", RegisterDeviceRequest{Token: "tok_1"})
	require.NoError(t, err)

	s1, err := f.sessions.Get(ctx, "u1")
	require.NoError(t, err)
	s2, err := f.sessions.Get(ctx, "u2")
	require.NoError(t, err)
	require.NoError(t, s1.Follows.Follow(ctx, alpha))
	require.NoError(t, s2.Follows.Follow(ctx, alpha))

	f.notifications.PublishNewIssues(ctx, alpha, alpha.Issues)
	assert.Equal(t, 1, s1.Follows.UnreadCount())
	assert.Equal(t, 1, s2.Follows.UnreadCount())

	// Dropping u1's device must not touch u2's token index entry.
	require.NoError(t, f.notifications.UnregisterDevice(ctx, "u1", "tok/1"))
	_, err = f.docs.Get(ctx, store.CollectionDeviceTokens, tokenKey("tok_1"))
	require.NoError(t, err)

	require.NoError(t, s2.Follows.UpdateLastViewed(ctx, "z1"))
	f.notifications.now = func() time.Time { return time.Now().Add(time.Minute) }
	f.notifications.PublishNewIssues(ctx, alpha, alpha.Issues[:1])
	assert.Equal(t, 1, s2.Follows.UnreadCount())
}
