package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tellmeastory/zine-server/internal/domain"
	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/id"
	"github.com/tellmeastory/zine-server/internal/push"
	"github.com/tellmeastory/zine-server/internal/store"
)

// Notifier applies a received notification to a user's follow state.
// *SessionRegistry implements it.
type Notifier interface {
	MarkNotified(ctx context.Context, userID, zineID string, at time.Time) error
}

// NotificationService owns device registration and the push topics behind follows.
type NotificationService struct {
	docs      store.DocumentStore
	messenger push.Messenger
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewNotificationService creates the service. Call SetNotifier before routing
// received notifications.
func NewNotificationService(docs store.DocumentStore, messenger push.Messenger, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		docs:      docs,
		messenger: messenger,
		logger:    logger,
		now:       time.Now,
	}
}

// SetNotifier sets where received notifications go.
func (s *NotificationService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Subscriber returns a TopicSubscriber over every device of userID.
func (s *NotificationService) Subscriber(userID string) *push.DeviceSubscriber {
	return push.NewDeviceSubscriber(s.messenger, s.Tokens, userID, s.logger)
}

// RegisterDeviceRequest is a device token reported by the app.
type RegisterDeviceRequest struct {
	Token    string `json:"token" validate:"required,notblank,max=4096"`
	Platform string `json:"platform" validate:"omitempty,oneof=ios android web"`
}

// RegisterDevice stores the token and subscribes it to the topic of every zine the
// user already follows. Registering a known token refreshes it in place.
func (s *NotificationService) RegisterDevice(ctx context.Context, userID string, req RegisterDeviceRequest) (domain.Device, error) {
	if userID == "" {
		return domain.Device{}, domainerrors.NotAuthenticated()
	}
	if err := validate.Validate(req); err != nil {
		return domain.Device{}, err
	}
	token := strings.TrimSpace(req.Token)

	devices, err := s.Devices(ctx, userID)
	if err != nil {
		return domain.Device{}, err
	}
	dev := domain.Device{Token: token, Platform: req.Platform, RegisteredAt: s.now().UTC()}
	for _, d := range devices {
		if d.Token == token {
			dev.ID = d.ID
			break
		}
	}
	if dev.ID == "" {
		if dev.ID, err = id.Generate(id.PrefixDevice); err != nil {
			return domain.Device{}, domainerrors.Unknown(err)
		}
	}

	b := store.NewBatch().
		Set(store.Devices(userID), dev.ID, map[string]any{
			"id":           dev.ID,
			"token":        dev.Token,
			"platform":     dev.Platform,
			"registeredAt": dev.RegisteredAt,
		}, false).
		Set(store.CollectionDeviceTokens, tokenKey(token), map[string]any{"userId": userID}, false)
	if err := b.Commit(ctx, s.docs); err != nil {
		return domain.Device{}, persistence(err)
	}

	if err := s.reconcile(ctx, userID, token); err != nil {
		return dev, err
	}
	s.logger.Info("device registered", "user_id", userID, "device_id", dev.ID, "platform", dev.Platform)
	return dev, nil
}

// UnregisterDevice drops a token the app no longer uses, usually on sign-out.
// The token is unsubscribed from every followed zine's topic first. Unknown
// tokens are a no-op.
func (s *NotificationService) UnregisterDevice(ctx context.Context, userID, token string) error {
	if userID == "" {
		return domainerrors.NotAuthenticated()
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return domainerrors.Validation("token is required")
	}

	devices, err := s.Devices(ctx, userID)
	if err != nil {
		return err
	}
	var deviceID string
	for _, d := range devices {
		if d.Token == token {
			deviceID = d.ID
			break
		}
	}
	if deviceID == "" {
		return nil
	}

	follows, err := s.docs.Query(ctx, store.FollowedZines(userID), store.OrderBy{})
	if err != nil {
		return persistence(err)
	}
	for _, f := range follows {
		if err := s.messenger.UnsubscribeFromTopic(ctx, []string{token}, domain.ZineTopic(f.ID)); err != nil {
			s.logger.Warn("topic unsubscribe failed", "user_id", userID, "zine_id", f.ID, "error", err)
		}
	}

	b := store.NewBatch().
		Delete(store.Devices(userID), deviceID).
		Delete(store.CollectionDeviceTokens, tokenKey(token))
	if err := b.Commit(ctx, s.docs); err != nil {
		return persistence(err)
	}
	s.logger.Info("device unregistered", "user_id", userID, "device_id", deviceID)
	return nil
}

// reconcile subscribes one token to the topics of the user's followed zines.
func (s *NotificationService) reconcile(ctx context.Context, userID, token string) error {
	follows, err := s.docs.Query(ctx, store.FollowedZines(userID), store.OrderBy{})
	if err != nil {
		return persistence(err)
	}
	for _, f := range follows {
		if err := s.messenger.SubscribeToTopic(ctx, []string{token}, domain.ZineTopic(f.ID)); err != nil {
			return domainerrors.SubscriptionFailed(err)
		}
	}
	return nil
}

// Devices lists the user's registered devices.
func (s *NotificationService) Devices(ctx context.Context, userID string) ([]domain.Device, error) {
	docs, err := s.docs.Query(ctx, store.Devices(userID), store.OrderBy{})
	if err != nil {
		return nil, persistence(err)
	}
	devices, _ := store.DecodeAll(docs, func(d store.Document) (domain.Device, error) {
		var dev domain.Device
		err := store.Decode(d, &dev)
		dev.ID = d.ID
		return dev, err
	})
	return devices, nil
}

// Tokens lists the push tokens of the user's devices.
func (s *NotificationService) Tokens(ctx context.Context, userID string) ([]string, error) {
	devices, err := s.Devices(ctx, userID)
	if err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(devices))
	for _, d := range devices {
		if d.Token != "" {
			tokens = append(tokens, d.Token)
		}
	}
	return tokens, nil
}

// RemoveDevices unsubscribes every device of the user from topics and deletes the
// token index entries. The device documents themselves go with the user's collections.
func (s *NotificationService) RemoveDevices(ctx context.Context, userID string, topics []string) error {
	tokens, err := s.Tokens(ctx, userID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	for _, topic := range topics {
		if err := s.messenger.UnsubscribeFromTopic(ctx, tokens, topic); err != nil {
			// Stale tokens are common here.
			s.logger.Warn("topic unsubscribe failed", "user_id", userID, "topic", topic, "error", err)
		}
	}
	ops := make([]store.Op, 0, len(tokens))
	for _, t := range tokens {
		ops = append(ops, store.Op{Kind: store.OpDelete, Collection: store.CollectionDeviceTokens, ID: tokenKey(t)})
	}
	return persistence(store.CommitChunked(ctx, s.docs, ops))
}

// Received applies a notification the app reports as delivered.
func (s *NotificationService) Received(ctx context.Context, userID, zineID string, at time.Time) error {
	if userID == "" {
		return domainerrors.NotAuthenticated()
	}
	if s.notifier == nil {
		return domainerrors.Internal("notifications are not routed")
	}
	if at.IsZero() {
		at = s.now()
	}
	return s.notifier.MarkNotified(ctx, userID, zineID, at)
}

// Deliver handles a notification handed to a device by the in-process broker.
func (s *NotificationService) Deliver(ctx context.Context, token string, n push.Notification) {
	zineID := n.ZineID()
	if zineID == "" || s.notifier == nil {
		return
	}
	doc, err := s.docs.Get(ctx, store.CollectionDeviceTokens, tokenKey(token))
	if err != nil {
		s.logger.Warn("notification for unknown device", "topic", n.Topic, "error", err)
		return
	}
	var owner struct {
		UserID string `json:"userId"`
	}
	if err := store.Decode(doc, &owner); err != nil || owner.UserID == "" {
		s.logger.Warn("device token without owner", "topic", n.Topic)
		return
	}

	at := s.now()
	if sent, err := time.Parse(time.RFC3339Nano, n.Data[push.DataSentAt]); err == nil {
		at = sent
	}
	if err := s.notifier.MarkNotified(ctx, owner.UserID, zineID, at); err != nil {
		s.logger.Warn("failed to apply notification", "user_id", owner.UserID, "zine_id", zineID, "error", err)
	}
}

// PublishNewIssues announces the newest of issues to the zine's followers.
// It matches catalog.NewIssuesFunc.
func (s *NotificationService) PublishNewIssues(ctx context.Context, zine domain.Zine, issues []domain.Issue) {
	if len(issues) == 0 {
		return
	}
	newest := issues[0]
	for _, i := range issues[1:] {
		if i.Published().After(newest.Published()) {
			newest = i
		}
	}

	body := "New issue: " + newest.Title
	if len(issues) > 1 {
		body = fmt.Sprintf("%d new issues, including %s", len(issues), newest.Title)
	}
	n := push.Notification{
		Topic:    domain.ZineTopic(zine.ID),
		Title:    zine.Name,
		Body:     body,
		ImageURL: newest.CoverImageURL,
		Data: map[string]string{
			push.DataZineID:  zine.ID,
			push.DataIssueID: newest.ID,
			push.DataSentAt:  s.now().UTC().Format(time.RFC3339Nano),
		},
	}
	if err := s.messenger.Publish(ctx, n); err != nil {
		s.logger.Error("failed to publish new issue notification", "zine_id", zine.ID, "error", err)
		return
	}
	s.logger.Info("new issue notification published", "zine_id", zine.ID, "issues", len(issues))
}

// tokenKey makes a push token usable as a document ID. Tokens are opaque and may
// contain any byte, so the key is a digest rather than an escaped form.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
