package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tellmeastory/zine-server/internal/auth"
	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/metrics"
	"github.com/tellmeastory/zine-server/internal/store"
)

// UserSession is the live state of one signed-in user.
type UserSession struct {
	UserID    string
	Auth      *auth.State
	Follows   *FollowStore
	Bookmarks *BookmarkStore
	Reads     *ReadStore
	Votes     *VoteStore

	lastUsed   atomic.Int64
	cancelAuth func()
}

func (s *UserSession) touch(now time.Time) {
	s.lastUsed.Store(now.UnixNano())
}

func (s *UserSession) idleSince() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// reset empties every store. Runs when the session's auth state signs out.
func (s *UserSession) reset() {
	s.Follows.Reset()
	s.Bookmarks.Reset()
	s.Reads.Reset()
	s.Votes.Reset()
}

// SessionRegistry creates a UserSession on a user's first request and tears it
// down on sign-out, account deletion or after sitting idle.
type SessionRegistry struct {
	docs          store.DocumentStore
	notifications *NotificationService
	emitter       Emitter
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
	idleTimeout   time.Duration

	mu       sync.RWMutex
	sessions map[string]*UserSession
	creating *keyedMutex
}

// NewSessionRegistry creates an empty registry. idleTimeout <= 0 keeps sessions
// until sign-out.
func NewSessionRegistry(
	docs store.DocumentStore,
	notifications *NotificationService,
	emitter Emitter,
	m *metrics.Metrics,
	idleTimeout time.Duration,
	logger *slog.Logger,
) *SessionRegistry {
	return &SessionRegistry{
		docs:          docs,
		notifications: notifications,
		emitter:       emitter,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
		idleTimeout:   idleTimeout,
		sessions:      make(map[string]*UserSession),
		creating:      newKeyedMutex(),
	}
}

// Get returns the user's session, creating and loading it on first use.
func (r *SessionRegistry) Get(ctx context.Context, userID string) (*UserSession, error) {
	if userID == "" {
		return nil, domainerrors.NotAuthenticated()
	}
	if s := r.lookup(userID); s != nil {
		return s, nil
	}

	unlock := r.creating.Lock(userID)
	defer unlock()
	if s := r.lookup(userID); s != nil {
		return s, nil
	}

	s, err := r.open(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[userID] = s
	n := len(r.sessions)
	r.mu.Unlock()
	r.setGauge(n)

	r.logger.Info("session opened", "user_id", userID, "sessions", n)
	return s, nil
}

func (r *SessionRegistry) lookup(userID string) *UserSession {
	r.mu.RLock()
	s := r.sessions[userID]
	r.mu.RUnlock()
	if s != nil {
		s.touch(r.now())
	}
	return s
}

// open signs the user in, loads every store and only then starts the listeners,
// so the first listener snapshot is never older than the initial load.
func (r *SessionRegistry) open(ctx context.Context, userID string) (*UserSession, error) {
	state := auth.NewState()
	logger := r.logger.With("user_id", userID)

	s := &UserSession{
		UserID:    userID,
		Auth:      state,
		Follows:   NewFollowStore(r.docs, state, r.notifications.Subscriber(userID), r.emitter, r.metrics, logger),
		Bookmarks: NewBookmarkStore(r.docs, state, r.emitter, r.metrics, logger),
		Reads:     NewReadStore(r.docs, state, r.emitter, r.metrics, logger),
		Votes:     NewVoteStore(r.docs, state, r.emitter, r.metrics, logger),
	}
	s.touch(r.now())

	state.SignIn(userID)
	for _, load := range []func(context.Context) error{s.Follows.LoadAll, s.Bookmarks.LoadAll, s.Reads.LoadAll, s.Votes.LoadAll} {
		if err := load(ctx); err != nil {
			return nil, err
		}
	}

	s.Follows.Listen(userID)
	s.Bookmarks.Listen(userID)
	s.Reads.Listen(userID)
	s.Votes.Listen(userID)

	s.cancelAuth = state.OnAuthStateChange(func(uid string) {
		if uid == "" {
			s.reset()
		}
	})
	return s, nil
}

// Close signs the user's session out and forgets it. Closing an unknown user is a no-op.
func (r *SessionRegistry) Close(userID string) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	delete(r.sessions, userID)
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return
	}
	r.setGauge(n)

	s.Auth.SignOut()
	s.cancelAuth()
	r.logger.Info("session closed", "user_id", userID, "sessions", n)
}

// Len returns the number of open sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// MarkNotified routes a notification into the user's follow store.
func (r *SessionRegistry) MarkNotified(ctx context.Context, userID, zineID string, at time.Time) error {
	s, err := r.Get(ctx, userID)
	if err != nil {
		return err
	}
	return s.Follows.MarkNotified(ctx, zineID, at)
}

// Run closes idle sessions until ctx is done.
func (r *SessionRegistry) Run(ctx context.Context) {
	if r.idleTimeout <= 0 {
		return
	}
	interval := max(r.idleTimeout/4, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.closeIdle(); n > 0 {
				r.logger.Debug("closed idle sessions", "count", n)
			}
		}
	}
}

func (r *SessionRegistry) closeIdle() int {
	cutoff := r.now().Add(-r.idleTimeout)

	r.mu.RLock()
	var idle []string
	for uid, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, uid)
		}
	}
	r.mu.RUnlock()

	for _, uid := range idle {
		r.Close(uid)
	}
	return len(idle)
}

// Shutdown closes every session.
func (r *SessionRegistry) Shutdown() error {
	r.mu.RLock()
	uids := make([]string, 0, len(r.sessions))
	for uid := range r.sessions {
		uids = append(uids, uid)
	}
	r.mu.RUnlock()

	for _, uid := range uids {
		r.Close(uid)
	}
	return nil
}

func (r *SessionRegistry) setGauge(n int) {
	if r.metrics != nil {
		r.metrics.ActiveSessions.Set(float64(n))
	}
}
