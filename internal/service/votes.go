package service

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/tellmeastory/zine-server/internal/domain"
	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/metrics"
	"github.com/tellmeastory/zine-server/internal/sse"
	"github.com/tellmeastory/zine-server/internal/store"
)

// VoteStore mirrors the user's vote map from user_votes/{uid} and pushes every
// change to the user's clients, including votes cast from another device.
type VoteStore struct {
	docs    store.DocumentStore
	users   UserIDSource
	emitter Emitter
	metrics *metrics.Metrics
	logger  *slog.Logger

	votes atomic.Pointer[domain.UserVotes]
	mu    sync.Mutex

	lifeMu   sync.Mutex
	listener *listenerHandle
}

// NewVoteStore creates an empty store. Call Listen once the user is known.
func NewVoteStore(docs store.DocumentStore, users UserIDSource, emitter Emitter, m *metrics.Metrics, logger *slog.Logger) *VoteStore {
	v := &VoteStore{
		docs:    docs,
		users:   users,
		emitter: emitter,
		metrics: m,
		logger:  logger.With("store", "votes"),
	}
	v.votes.Store(&domain.UserVotes{})
	return v
}

// Votes returns a copy of the user's votes keyed by message ID.
func (v *VoteStore) Votes() domain.UserVotes {
	return maps.Clone(*v.votes.Load())
}

// Vote returns the user's vote on messageID: -1, +1 or 0 for none.
func (v *VoteStore) Vote(messageID string) int {
	return (*v.votes.Load())[messageID]
}

// LoadAll replaces the map with the stored votes.
func (v *VoteStore) LoadAll(ctx context.Context) error {
	uid, err := requireUser(v.users)
	if err != nil {
		return err
	}
	doc, err := v.docs.Get(ctx, store.CollectionUserVotes, uid)
	switch {
	case domainerrors.Is(err, store.ErrNotFound):
		v.replace(nil, false)
	case err != nil:
		return persistence(err)
	default:
		v.replace(&doc, false)
	}
	return nil
}

// Listen starts mirroring user_votes/{uid}. Any previous listener is stopped.
func (v *VoteStore) Listen(uid string) {
	v.lifeMu.Lock()
	prev := v.listener
	v.listener = nil
	v.lifeMu.Unlock()
	prev.stop()

	h := startListener(v.logger,
		func(ctx context.Context) <-chan store.Snapshot {
			return v.docs.ListenDocument(ctx, store.CollectionUserVotes, uid)
		},
		v.applySnapshot,
	)

	v.lifeMu.Lock()
	v.listener = h
	v.lifeMu.Unlock()
}

// Reset stops the listener and forgets all votes.
func (v *VoteStore) Reset() {
	v.lifeMu.Lock()
	h := v.listener
	v.listener = nil
	v.lifeMu.Unlock()
	h.stop()

	v.mu.Lock()
	v.votes.Store(&domain.UserVotes{})
	v.mu.Unlock()
}

// applySnapshot replaces the map. A missing document means no votes.
func (v *VoteStore) applySnapshot(snap store.Snapshot) {
	if snap.Err != nil {
		v.logger.Warn("votes listener error", "error", snap.Err)
		if v.metrics != nil {
			v.metrics.ListenerErrors.WithLabelValues("votes").Inc()
		}
		return
	}

	if snap.Exists && len(snap.Documents) > 0 {
		v.replace(&snap.Documents[0], true)
	} else {
		v.replace(nil, true)
	}
	if v.metrics != nil {
		v.metrics.ListenerSnapshots.WithLabelValues("votes").Inc()
	}
}

func (v *VoteStore) replace(doc *store.Document, publish bool) {
	votes := domain.UserVotes{}
	if doc != nil {
		if err := store.DecodeData(doc.Data, &votes); err != nil {
			v.logger.Warn("skipping undecodable vote map", "error", err)
			return
		}
		for k, n := range votes {
			if n == 0 {
				delete(votes, k)
			}
		}
	}

	v.mu.Lock()
	changed := !maps.Equal(*v.votes.Load(), votes)
	v.votes.Store(&votes)
	v.mu.Unlock()

	if !publish || !changed {
		return
	}
	if uid, ok := v.users.CurrentUserID(); ok {
		v.emitter.Emit(sse.NewVotesChangedEvent(uid, maps.Clone(votes)))
	}
}
