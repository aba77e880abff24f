package service

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tellmeastory/zine-server/internal/domain"
	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/metrics"
	"github.com/tellmeastory/zine-server/internal/sse"
	"github.com/tellmeastory/zine-server/internal/store"
)

// followView is an immutable snapshot of the follow state. Writers build a new
// view and swap it in; readers never lock.
type followView struct {
	records map[string]domain.FollowRecord
	version uint64
	unread  int
}

func newFollowView(records map[string]domain.FollowRecord, version uint64) *followView {
	return &followView{records: records, version: version, unread: domain.UnreadCount(records)}
}

// FollowStore tracks the zines one user follows and their unread state.
type FollowStore struct {
	docs    store.DocumentStore
	users   UserIDSource
	topics  TopicSubscriber
	emitter Emitter
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	view atomic.Pointer[followView]
	mu   sync.Mutex // serializes view writers

	lifeMu   sync.Mutex
	listener *listenerHandle
}

// NewFollowStore creates an empty store. Call Listen once the user is known.
func NewFollowStore(
	docs store.DocumentStore,
	users UserIDSource,
	topics TopicSubscriber,
	emitter Emitter,
	m *metrics.Metrics,
	logger *slog.Logger,
) *FollowStore {
	f := &FollowStore{
		docs:    docs,
		users:   users,
		topics:  topics,
		emitter: emitter,
		metrics: m,
		logger:  logger.With("store", "follow"),
		now:     time.Now,
	}
	f.view.Store(newFollowView(map[string]domain.FollowRecord{}, 0))
	return f
}

// Follow subscribes the user's devices to the zine topic, then writes a fresh
// FollowRecord. Local state changes only once both succeed.
func (f *FollowStore) Follow(ctx context.Context, zine domain.Zine) (err error) {
	defer func() { f.count("follow", err) }()

	uid, err := requireUser(f.users)
	if err != nil {
		return err
	}

	if err := f.topics.Subscribe(ctx, domain.ZineTopic(zine.ID)); err != nil {
		return domainerrors.SubscriptionFailed(err)
	}

	rec := domain.FollowRecord{ZineName: zine.Name, FollowedAt: f.now().UTC()}
	data := map[string]any{
		"zineName":           rec.ZineName,
		"followedAt":         store.ServerTimestamp,
		"hasUnreadIssues":    false,
		"lastNotificationAt": nil,
	}
	if err := f.docs.Set(ctx, store.FollowedZines(uid), zine.ID, data, false); err != nil {
		return persistence(err)
	}

	rec.ZineID = zine.ID
	f.update(func(records map[string]domain.FollowRecord) {
		records[zine.ID] = rec
	})
	f.logger.Info("zine followed", "user_id", uid, "zine_id", zine.ID)
	return nil
}

// Unfollow unsubscribes the topic and deletes the record. A failure after the
// unsubscribe leaves the unsubscribe in place.
func (f *FollowStore) Unfollow(ctx context.Context, zineID string) (err error) {
	defer func() { f.count("unfollow", err) }()

	uid, err := requireUser(f.users)
	if err != nil {
		return err
	}

	if err := f.topics.Unsubscribe(ctx, domain.ZineTopic(zineID)); err != nil {
		return domainerrors.SubscriptionFailed(err)
	}
	if err := f.docs.Delete(ctx, store.FollowedZines(uid), zineID); err != nil {
		return persistence(err)
	}

	f.update(func(records map[string]domain.FollowRecord) {
		delete(records, zineID)
	})
	f.logger.Info("zine unfollowed", "user_id", uid, "zine_id", zineID)
	return nil
}

// IsFollowing reports whether the user follows zineID. No I/O.
func (f *FollowStore) IsFollowing(zineID string) bool {
	_, ok := f.view.Load().records[zineID]
	return ok
}

// Record returns the follow record for zineID.
func (f *FollowStore) Record(zineID string) (domain.FollowRecord, bool) {
	r, ok := f.view.Load().records[zineID]
	return r, ok
}

// Following returns a copy of every follow record keyed by zine ID.
func (f *FollowStore) Following() map[string]domain.FollowRecord {
	return maps.Clone(f.view.Load().records)
}

// UnreadCount is the number of followed zines with unread issues.
func (f *FollowStore) UnreadCount() int {
	return f.view.Load().unread
}

// UpdateLastViewed records that the user opened the zine and clears its unread
// flag. Zines the user does not follow are left alone.
func (f *FollowStore) UpdateLastViewed(ctx context.Context, zineID string) (err error) {
	defer func() { f.count("viewed", err) }()

	uid, err := requireUser(f.users)
	if err != nil {
		return err
	}
	if !f.IsFollowing(zineID) {
		return nil
	}

	rec, _ := f.Record(zineID)
	rec = rec.Viewed(f.now().UTC())
	data := map[string]any{"lastViewedAt": *rec.LastViewedAt, "hasUnreadIssues": false}
	if err := f.docs.Set(ctx, store.FollowedZines(uid), zineID, data, true); err != nil {
		return persistence(err)
	}

	f.update(func(records map[string]domain.FollowRecord) {
		if r, ok := records[zineID]; ok {
			records[zineID] = r.Viewed(*rec.LastViewedAt)
		}
	})
	return nil
}

// MarkNotified records a notification for a followed zine. It is unread only if
// it is newer than the last view.
// Notifications for zines the user does not follow are ignored.
func (f *FollowStore) MarkNotified(ctx context.Context, zineID string, at time.Time) (err error) {
	defer func() { f.count("notified", err) }()

	uid, err := requireUser(f.users)
	if err != nil {
		return err
	}
	if !f.IsFollowing(zineID) {
		f.logger.Debug("notification for unfollowed zine ignored", "zine_id", zineID)
		return nil
	}

	rec, _ := f.Record(zineID)
	rec = rec.Notified(at.UTC())
	data := map[string]any{"lastNotificationAt": *rec.LastNotificationAt, "hasUnreadIssues": rec.HasUnreadIssues}
	if err := f.docs.Set(ctx, store.FollowedZines(uid), zineID, data, true); err != nil {
		return persistence(err)
	}

	f.update(func(records map[string]domain.FollowRecord) {
		if r, ok := records[zineID]; ok {
			records[zineID] = r.Notified(*rec.LastNotificationAt)
		}
	})
	return nil
}

// Listen starts mirroring users/{uid}/followed_zines. Any previous listener is stopped.
func (f *FollowStore) Listen(uid string) {
	f.lifeMu.Lock()
	prev := f.listener
	f.listener = nil
	f.lifeMu.Unlock()
	prev.stop()

	h := startListener(f.logger,
		func(ctx context.Context) <-chan store.Snapshot {
			return f.docs.ListenCollection(ctx, store.FollowedZines(uid), store.OrderBy{})
		},
		f.applySnapshot,
	)

	f.lifeMu.Lock()
	f.listener = h
	f.lifeMu.Unlock()
}

// Reset stops the listener and forgets all state, as on sign-out.
func (f *FollowStore) Reset() {
	f.lifeMu.Lock()
	h := f.listener
	f.listener = nil
	f.lifeMu.Unlock()
	h.stop()

	f.mu.Lock()
	f.view.Store(newFollowView(map[string]domain.FollowRecord{}, f.view.Load().version+1))
	f.mu.Unlock()
}

// applySnapshot replaces the whole view. Unread is recomputed, never patched.
func (f *FollowStore) applySnapshot(snap store.Snapshot) {
	if snap.Err != nil {
		f.logger.Warn("follow listener error", "error", snap.Err)
		if f.metrics != nil {
			f.metrics.ListenerErrors.WithLabelValues("follow").Inc()
		}
		return
	}

	f.replace(snap.Documents)
	if f.metrics != nil {
		f.metrics.ListenerSnapshots.WithLabelValues("follow").Inc()
	}
}

// LoadAll replaces the view with the records currently stored.
func (f *FollowStore) LoadAll(ctx context.Context) error {
	uid, err := requireUser(f.users)
	if err != nil {
		return err
	}
	docs, err := f.docs.Query(ctx, store.FollowedZines(uid), store.OrderBy{})
	if err != nil {
		return persistence(err)
	}
	f.replace(docs)
	return nil
}

func (f *FollowStore) replace(docs []store.Document) {
	records := make(map[string]domain.FollowRecord, len(docs))
	for _, doc := range docs {
		var r domain.FollowRecord
		if err := store.Decode(doc, &r); err != nil {
			f.logger.Warn("skipping undecodable follow record", "zine_id", doc.ID, "error", err)
			continue
		}
		r.ZineID = doc.ID
		records[doc.ID] = r
	}

	f.mu.Lock()
	v := newFollowView(records, f.view.Load().version+1)
	f.view.Store(v)
	f.mu.Unlock()

	f.publish(v)
}

func (f *FollowStore) update(fn func(map[string]domain.FollowRecord)) {
	f.mu.Lock()
	cur := f.view.Load()
	records := maps.Clone(cur.records)
	fn(records)
	v := newFollowView(records, cur.version+1)
	f.view.Store(v)
	f.mu.Unlock()

	f.publish(v)
}

func (f *FollowStore) publish(v *followView) {
	uid, ok := f.users.CurrentUserID()
	if !ok {
		return
	}
	f.emitter.Emit(sse.NewFollowChangedEvent(uid, maps.Clone(v.records)))
	f.emitter.Emit(sse.NewUnreadCountEvent(uid, v.unread))
}

func (f *FollowStore) count(action string, err error) {
	if f.metrics != nil {
		f.metrics.FollowActions.WithLabelValues(action, metrics.Result(err)).Inc()
	}
}
