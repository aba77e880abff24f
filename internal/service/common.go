// Package service holds the per-user state stores and the request-level services
// the API calls. Stores own their in-memory view; the document store is the
// source of truth and listener snapshots replace the view wholesale.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/sse"
	"github.com/tellmeastory/zine-server/internal/store"
)

// Emitter receives events for connected clients. *sse.Manager implements it.
type Emitter interface {
	Emit(event sse.Event)
}

type noopEmitter struct{}

func (noopEmitter) Emit(sse.Event) {}

// NoopEmitter discards every event.
func NoopEmitter() Emitter { return noopEmitter{} }

// UserIDSource reports the signed-in user. *auth.State implements it.
type UserIDSource interface {
	CurrentUserID() (string, bool)
}

// TopicSubscriber subscribes the user's devices to push topics.
// *push.DeviceSubscriber implements it.
type TopicSubscriber interface {
	Subscribe(ctx context.Context, topic string) error
	Unsubscribe(ctx context.Context, topic string) error
}

func requireUser(src UserIDSource) (string, error) {
	uid, ok := src.CurrentUserID()
	if !ok || uid == "" {
		return "", domainerrors.NotAuthenticated()
	}
	return uid, nil
}

// persistence wraps a document store failure. Errors that already carry a code pass through.
func persistence(err error) error {
	if err == nil {
		return nil
	}
	var de *domainerrors.Error
	if domainerrors.As(err, &de) {
		return err
	}
	return domainerrors.PersistenceFailed(err)
}

// listenerRetry is how long a listener waits before reopening a closed stream.
const listenerRetry = time.Second

// runListener consumes snapshots from open until ctx is done. Within one stream a
// snapshot whose Seq is not newer than the last applied one is dropped. A stream
// that closes while ctx is still live is reopened after a short wait, so a backend
// hiccup never ends the subscription.
func runListener(
	ctx context.Context,
	logger *slog.Logger,
	open func(context.Context) <-chan store.Snapshot,
	apply func(store.Snapshot),
) {
	for {
		var last uint64
		for snap := range open(ctx) {
			if snap.Seq <= last {
				continue
			}
			last = snap.Seq
			apply(snap)
		}
		if ctx.Err() != nil {
			return
		}
		logger.Warn("listener stream closed, reopening")
		select {
		case <-ctx.Done():
			return
		case <-time.After(listenerRetry):
		}
	}
}

// listenerHandle stops a running listener goroutine.
type listenerHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startListener(
	logger *slog.Logger,
	open func(context.Context) <-chan store.Snapshot,
	apply func(store.Snapshot),
) *listenerHandle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &listenerHandle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		runListener(ctx, logger, open, apply)
	}()
	return h
}

// stop cancels the listener and waits for its goroutine. Safe on nil.
func (h *listenerHandle) stop() {
	if h == nil {
		return
	}
	h.cancel()
	<-h.done
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock locks key and returns its unlock function.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
