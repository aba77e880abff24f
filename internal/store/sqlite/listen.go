package sqlite

import (
	"context"
	"errors"

	"github.com/tellmeastory/zine-server/internal/store"
)

// listener watches a collection, or a single document when docID is set.
// Commits only signal wake; the listener then reads the current state itself,
// so every delivery is a full snapshot and bursts of writes coalesce.
type listener struct {
	collection string
	docID      string
	order      store.OrderBy
	wake       chan struct{}
	out        chan store.Snapshot
	seq        uint64
}

func (l *listener) matches(k docKey) bool {
	if l.collection != k.collection {
		return false
	}
	return l.docID == "" || l.docID == k.id
}

// ListenCollection streams full snapshots of a collection.
func (s *Store) ListenCollection(ctx context.Context, collection string, order store.OrderBy) <-chan store.Snapshot {
	return s.listen(ctx, &listener{collection: collection, order: order})
}

// ListenDocument streams snapshots of a single document.
func (s *Store) ListenDocument(ctx context.Context, collection, id string) <-chan store.Snapshot {
	return s.listen(ctx, &listener{collection: collection, docID: id})
}

func (s *Store) listen(ctx context.Context, l *listener) <-chan store.Snapshot {
	l.wake = make(chan struct{}, 1)
	l.out = make(chan store.Snapshot, 1)

	// Deliver the initial state before any commit wakes the listener.
	l.wake <- struct{}{}

	s.mu.Lock()
	if s.closed() {
		s.mu.Unlock()
		close(l.out)
		return l.out
	}
	s.listeners[l] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer close(l.out)
		defer func() {
			s.mu.Lock()
			delete(s.listeners, l)
			s.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-l.wake:
				l.deliver(s.snapshot(ctx, l))
			}
		}
	}()

	return l.out
}

func (s *Store) snapshot(ctx context.Context, l *listener) store.Snapshot {
	if l.docID != "" {
		doc, err := s.Get(ctx, l.collection, l.docID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return store.Snapshot{}
		case err != nil:
			s.logger.Warn("document listener read failed", "collection", l.collection, "id", l.docID, "error", err)
			return store.Snapshot{Err: err}
		}
		return store.Snapshot{Documents: []store.Document{doc}, Exists: true}
	}

	docs, err := s.Query(ctx, l.collection, l.order)
	if err != nil {
		s.logger.Warn("collection listener read failed", "collection", l.collection, "error", err)
		return store.Snapshot{Err: err}
	}
	return store.Snapshot{Documents: docs, Exists: true}
}

func (l *listener) deliver(snap store.Snapshot) {
	l.seq++
	snap.Seq = l.seq
	store.SendLatest(l.out, snap)
}

// notify wakes listeners affected by a commit without blocking the writer.
func (s *Store) notify(touched map[docKey]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for l := range s.listeners {
		for k := range touched {
			if l.matches(k) {
				select {
				case l.wake <- struct{}{}:
				default:
				}
				break
			}
		}
	}
}
