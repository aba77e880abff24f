package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tellmeastory/zine-server/internal/domain"
	"github.com/tellmeastory/zine-server/internal/metrics"
	"github.com/tellmeastory/zine-server/internal/sse"
	"github.com/tellmeastory/zine-server/internal/store"
)

// markKind describes one per-issue flag: where it is stored and how changes are announced.
type markKind struct {
	name       string
	collection func(uid string) string
	event      func(uid, zineID, issueID string, set bool) sse.Event
}

var (
	bookmarkKind = markKind{name: "bookmark", collection: store.BookmarkedIssues, event: sse.NewBookmarkToggledEvent}
	readKind     = markKind{name: "read", collection: store.ReadIssues, event: sse.NewReadToggledEvent}
)

// IssueMarkStore is a per-user set of issues backed by one record collection.
// Records are keyed by domain.IssueKey and hold a snapshot of the issue taken
// when the flag was set.
type IssueMarkStore struct {
	kind    markKind
	docs    store.DocumentStore
	users   UserIDSource
	emitter Emitter
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	keys   atomic.Pointer[map[string]struct{}]
	mu     sync.Mutex
	toggle sync.Mutex // one toggle at a time, so two toggles always cancel out

	lifeMu   sync.Mutex
	listener *listenerHandle
}

func newIssueMarkStore(kind markKind, docs store.DocumentStore, users UserIDSource, emitter Emitter, m *metrics.Metrics, logger *slog.Logger) *IssueMarkStore {
	s := &IssueMarkStore{
		kind:    kind,
		docs:    docs,
		users:   users,
		emitter: emitter,
		metrics: m,
		logger:  logger.With("store", kind.name),
		now:     time.Now,
	}
	s.swap(map[string]struct{}{})
	return s
}

// IsSet reports whether the issue is flagged. No I/O.
func (s *IssueMarkStore) IsSet(zineID, issueID string) bool {
	_, ok := (*s.keys.Load())[domain.IssueKey(zineID, issueID)]
	return ok
}

// Count returns the number of flagged issues.
func (s *IssueMarkStore) Count() int {
	return len(*s.keys.Load())
}

// Toggle flips the flag for issue and returns the new state. Setting writes a
// denormalized IssueRecord; clearing deletes it.
func (s *IssueMarkStore) Toggle(ctx context.Context, zine domain.Zine, issue domain.Issue) (set bool, err error) {
	defer func() {
		if s.metrics == nil {
			return
		}
		state := "cleared"
		switch {
		case err != nil:
			state = "error"
		case set:
			state = "set"
		}
		s.metrics.MarkToggles.WithLabelValues(s.kind.name, state).Inc()
	}()

	uid, err := requireUser(s.users)
	if err != nil {
		return false, err
	}

	key := domain.IssueKey(zine.ID, issue.ID)
	coll := s.kind.collection(uid)

	s.toggle.Lock()
	defer s.toggle.Unlock()

	if s.IsSet(zine.ID, issue.ID) {
		if err := s.docs.Delete(ctx, coll, key); err != nil {
			return true, persistence(err)
		}
		s.update(func(keys map[string]struct{}) { delete(keys, key) })
	} else {
		rec := domain.NewIssueRecord(zine, issue, s.now().UTC())
		if err := s.docs.Set(ctx, coll, key, recordData(rec), false); err != nil {
			return false, persistence(err)
		}
		s.update(func(keys map[string]struct{}) { keys[key] = struct{}{} })
		set = true
	}

	s.emitter.Emit(s.kind.event(uid, zine.ID, issue.ID, set))
	s.logger.Debug("issue toggled", "user_id", uid, "key", key, "set", set)
	return set, nil
}

// LoadAll replaces the local set with the record IDs currently stored.
func (s *IssueMarkStore) LoadAll(ctx context.Context) error {
	uid, err := requireUser(s.users)
	if err != nil {
		return err
	}
	docs, err := s.docs.Query(ctx, s.kind.collection(uid), store.OrderBy{})
	if err != nil {
		return persistence(err)
	}
	s.replace(docs)
	return nil
}

// Records fetches every record, newest first.
func (s *IssueMarkStore) Records(ctx context.Context) ([]domain.IssueRecord, error) {
	uid, err := requireUser(s.users)
	if err != nil {
		return nil, err
	}
	docs, err := s.docs.Query(ctx, s.kind.collection(uid), store.OrderBy{Field: "timestamp", Descending: true})
	if err != nil {
		return nil, persistence(err)
	}
	records, skipped := store.DecodeAll(docs, func(d store.Document) (domain.IssueRecord, error) {
		var r domain.IssueRecord
		err := store.Decode(d, &r)
		return r, err
	})
	if skipped > 0 {
		s.logger.Warn("skipped undecodable issue records", "count", skipped)
	}
	return records, nil
}

// FetchGrouped fetches every record and groups them by zine name. Nothing is cached.
func (s *IssueMarkStore) FetchGrouped(ctx context.Context) ([]domain.IssueGroup, error) {
	records, err := s.Records(ctx)
	if err != nil {
		return nil, err
	}
	return domain.GroupIssueRecords(records), nil
}

// Listen keeps the local set in step with the record collection of uid.
func (s *IssueMarkStore) Listen(uid string) {
	s.lifeMu.Lock()
	prev := s.listener
	s.listener = nil
	s.lifeMu.Unlock()
	prev.stop()

	h := startListener(s.logger,
		func(ctx context.Context) <-chan store.Snapshot {
			return s.docs.ListenCollection(ctx, s.kind.collection(uid), store.OrderBy{})
		},
		func(snap store.Snapshot) {
			if snap.Err != nil {
				s.logger.Warn("listener error", "error", snap.Err)
				if s.metrics != nil {
					s.metrics.ListenerErrors.WithLabelValues(s.kind.name).Inc()
				}
				return
			}
			s.replace(snap.Documents)
			if s.metrics != nil {
				s.metrics.ListenerSnapshots.WithLabelValues(s.kind.name).Inc()
			}
		},
	)

	s.lifeMu.Lock()
	s.listener = h
	s.lifeMu.Unlock()
}

// Reset stops the listener and empties the set.
func (s *IssueMarkStore) Reset() {
	s.lifeMu.Lock()
	h := s.listener
	s.listener = nil
	s.lifeMu.Unlock()
	h.stop()

	s.mu.Lock()
	s.swap(map[string]struct{}{})
	s.mu.Unlock()
}

func (s *IssueMarkStore) replace(docs []store.Document) {
	keys := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		keys[d.ID] = struct{}{}
	}
	s.mu.Lock()
	s.swap(keys)
	s.mu.Unlock()
}

func (s *IssueMarkStore) update(fn func(map[string]struct{})) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.keys.Load()
	next := make(map[string]struct{}, len(cur)+1)
	for k := range cur {
		next[k] = struct{}{}
	}
	fn(next)
	s.swap(next)
}

func (s *IssueMarkStore) swap(keys map[string]struct{}) {
	s.keys.Store(&keys)
}

func recordData(r domain.IssueRecord) map[string]any {
	return map[string]any{
		"issueId":       r.IssueID,
		"zineId":        r.ZineID,
		"zineName":      r.ZineName,
		"issueTitle":    r.IssueTitle,
		"coverImageUrl": r.CoverImageURL,
		"linkUrl":       r.LinkURL,
		"publishedDate": r.PublishedDate,
		"timestamp":     r.Timestamp,
	}
}

// BookmarkStore is the user's bookmarked issues.
type BookmarkStore struct {
	*IssueMarkStore
}

// NewBookmarkStore creates an empty bookmark store.
func NewBookmarkStore(docs store.DocumentStore, users UserIDSource, emitter Emitter, m *metrics.Metrics, logger *slog.Logger) *BookmarkStore {
	return &BookmarkStore{newIssueMarkStore(bookmarkKind, docs, users, emitter, m, logger)}
}

// IsBookmarked reports whether the issue is bookmarked.
func (b *BookmarkStore) IsBookmarked(zineID, issueID string) bool {
	return b.IsSet(zineID, issueID)
}

// ReadStore is the user's read issues.
type ReadStore struct {
	*IssueMarkStore
}

// NewReadStore creates an empty read store.
func NewReadStore(docs store.DocumentStore, users UserIDSource, emitter Emitter, m *metrics.Metrics, logger *slog.Logger) *ReadStore {
	return &ReadStore{newIssueMarkStore(readKind, docs, users, emitter, m, logger)}
}

// IsRead reports whether the issue has been read.
func (r *ReadStore) IsRead(zineID, issueID string) bool {
	return r.IsSet(zineID, issueID)
}
