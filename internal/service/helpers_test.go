package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tellmeastory/zine-server/internal/domain"
	"github.com/tellmeastory/zine-server/internal/sse"
	"github.com/tellmeastory/zine-server/internal/store"
	"github.com/tellmeastory/zine-server/internal/store/sqlite"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDocs(t *testing.T) *sqlite.Store {
	t.Helper()
	docs, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })
	return docs
}

// signedIn is a UserIDSource fixed to one user. The zero value is signed out.
type signedIn string

func (u signedIn) CurrentUserID() (string, bool) { return string(u), u != "" }

var errBackend = errors.New("backend unavailable")

// failingDocs wraps a real store and fails chosen writes.
type failingDocs struct {
	store.DocumentStore

	mu           sync.Mutex
	commits      int
	failCommitAt int // 1-based commit call to fail, 0 never
	failWrites   bool
}

func (f *failingDocs) setFailWrites(fail bool) {
	f.mu.Lock()
	f.failWrites = fail
	f.mu.Unlock()
}

func (f *failingDocs) writeErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errBackend
	}
	return nil
}

func (f *failingDocs) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	if err := f.writeErr(); err != nil {
		return err
	}
	return f.DocumentStore.Set(ctx, collection, id, data, merge)
}

func (f *failingDocs) Delete(ctx context.Context, collection, id string) error {
	if err := f.writeErr(); err != nil {
		return err
	}
	return f.DocumentStore.Delete(ctx, collection, id)
}

func (f *failingDocs) Commit(ctx context.Context, ops []store.Op) error {
	f.mu.Lock()
	f.commits++
	fail := f.failWrites || f.commits == f.failCommitAt
	f.mu.Unlock()
	if fail {
		return errBackend
	}
	return f.DocumentStore.Commit(ctx, ops)
}

type fakeTopics struct {
	mu    sync.Mutex
	subs  map[string]bool
	calls []string
	err   error
}

func newFakeTopics() *fakeTopics {
	return &fakeTopics{subs: map[string]bool{}}
}

func (f *fakeTopics) Subscribe(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "sub:"+topic)
	if f.err != nil {
		return f.err
	}
	f.subs[topic] = true
	return nil
}

func (f *fakeTopics) Unsubscribe(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "unsub:"+topic)
	if f.err != nil {
		return f.err
	}
	delete(f.subs, topic)
	return nil
}

func (f *fakeTopics) subscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[topic]
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (e *recordingEmitter) Emit(event sse.Event) {
	e.mu.Lock()
	e.events = append(e.events, event)
	e.mu.Unlock()
}

func (e *recordingEmitter) types() []sse.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]sse.EventType, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

type staticCatalog []domain.Zine

func (c staticCatalog) Zines() []domain.Zine { return c }

func (c staticCatalog) Zine(id string) (domain.Zine, bool) {
	for _, z := range c {
		if z.ID == id {
			return z, true
		}
	}
	return domain.Zine{}, false
}

var (
	alpha = domain.Zine{
		ID:            "z1",
		Name:          "Alpha",
		CoverImageURL: "https://example.com/alpha.jpg",
		Issues: []domain.Issue{
			{ID: "i1", Title: "Z", CoverImageURL: "https://example.com/a1.jpg", PublishedDate: "2024-03-01"},
			{ID: "i3", Title: "A", CoverImageURL: "https://example.com/a3.jpg", PublishedDate: "2024-01-01"},
		},
	}
	beta = domain.Zine{
		ID:   "z2",
		Name: "Beta",
		Issues: []domain.Issue{
			{ID: "i2", Title: "M", CoverImageURL: "https://example.com/b2.jpg", PublishedDate: "2024-02-01"},
		},
	}
	gamma = domain.Zine{ID: "z3", Name: "Gamma"}
)

func countDocs(t *testing.T, docs store.DocumentStore, collection string) int {
	t.Helper()
	all, err := docs.Query(context.Background(), collection, store.OrderBy{})
	require.NoError(t, err)
	return len(all)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}
