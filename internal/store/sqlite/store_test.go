package sqlite

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellmeastory/zine-server/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err := Open(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func receive(t *testing.T, ch <-chan store.Snapshot) store.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "listener closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return store.Snapshot{}
	}
}

// receiveUntil reads snapshots until cond holds, checking Seq never goes backwards.
func receiveUntil(t *testing.T, ch <-chan store.Snapshot, cond func(store.Snapshot) bool) store.Snapshot {
	t.Helper()
	var last uint64
	for {
		snap := receive(t, ch)
		require.Greater(t, snap.Seq, last)
		last = snap.Seq
		if cond(snap) {
			return snap
		}
	}
}

func TestOpen(t *testing.T) {
	s := newTestStore(t)

	var journalMode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var name string
	require.NoError(t, s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='documents'").Scan(&name))
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "fan_mail", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSet_ReplaceAndMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	coll := store.FollowedZines("u1")

	require.NoError(t, s.Set(ctx, coll, "z1", map[string]any{"zineName": "Alpha", "hasUnreadIssues": true}, false))
	require.NoError(t, s.Set(ctx, coll, "z1", map[string]any{"hasUnreadIssues": false}, true))

	doc, err := s.Get(ctx, coll, "z1")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", doc.Data["zineName"])
	assert.Equal(t, false, doc.Data["hasUnreadIssues"])

	require.NoError(t, s.Set(ctx, coll, "z1", map[string]any{"zineName": "Beta"}, false))
	doc, err = s.Get(ctx, coll, "z1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"zineName": "Beta"}, doc.Data)
}

func TestSet_FieldSentinels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "fan_mail", "m1", map[string]any{
		"text":      "hi",
		"votes":     store.Increment(-1),
		"createdAt": store.ServerTimestamp,
	}, true))
	require.NoError(t, s.Set(ctx, "fan_mail", "m1", map[string]any{"votes": store.Increment(3), "text": store.DeleteField}, true))

	doc, err := s.Get(ctx, "fan_mail", "m1")
	require.NoError(t, err)

	var msg struct {
		Text      string    `json:"text"`
		Votes     int       `json:"votes"`
		CreatedAt time.Time `json:"createdAt"`
	}
	require.NoError(t, store.Decode(doc, &msg))
	assert.Empty(t, msg.Text)
	assert.Equal(t, 2, msg.Votes)
	assert.True(t, now.Equal(msg.CreatedAt))
	_, hasText := doc.Data["text"]
	assert.False(t, hasText)
}

func TestSet_TimesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	viewed := time.Date(2024, 6, 1, 8, 0, 0, 123, time.FixedZone("EST", -5*3600))

	require.NoError(t, s.Set(ctx, "c", "d", map[string]any{"lastViewedAt": &viewed, "lastNotificationAt": (*time.Time)(nil)}, false))

	doc, err := s.Get(ctx, "c", "d")
	require.NoError(t, err)

	var r struct {
		LastViewedAt       *time.Time `json:"lastViewedAt"`
		LastNotificationAt *time.Time `json:"lastNotificationAt"`
	}
	require.NoError(t, store.Decode(doc, &r))
	require.NotNil(t, r.LastViewedAt)
	assert.True(t, viewed.Equal(*r.LastViewedAt))
	assert.Nil(t, r.LastNotificationAt)
}

func TestCommit_IsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Commit(ctx, []store.Op{
		{Kind: store.OpSet, Collection: "c", ID: "ok", Data: map[string]any{"a": 1}},
		{Kind: store.OpSet, Collection: "c", ID: "bad", Data: map[string]any{"ch": make(chan int)}},
	})
	require.Error(t, err)

	_, err = s.Get(ctx, "c", "ok")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete_MissingIsNotAnError(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Delete(context.Background(), "c", "nope"))
}

func TestQuery_OrdersByField(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Set(ctx, "c", "mid", map[string]any{"timestamp": base.Add(time.Hour)}, false))
	require.NoError(t, s.Set(ctx, "c", "old", map[string]any{"timestamp": base}, false))
	require.NoError(t, s.Set(ctx, "c", "new", map[string]any{"timestamp": base.Add(48 * time.Hour)}, false))
	require.NoError(t, s.Set(ctx, "c", "none", map[string]any{}, false))
	require.NoError(t, s.Set(ctx, "other", "x", map[string]any{"timestamp": base}, false))

	docs, err := s.Query(ctx, "c", store.OrderBy{Field: "timestamp", Descending: true})
	require.NoError(t, err)

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"new", "mid", "old", "none"}, ids)
}

func TestQuery_RejectsFieldExpressions(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Query(context.Background(), "c", store.OrderBy{Field: "a') --"})
	assert.Error(t, err)
}

func TestListenCollection_DeliversFullSnapshots(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coll := store.BookmarkedIssues("u1")

	require.NoError(t, s.Set(ctx, coll, "z1_i1", map[string]any{"issueTitle": "One"}, false))

	ch := s.ListenCollection(ctx, coll, store.OrderBy{Field: "issueTitle"})
	first := receive(t, ch)
	require.NoError(t, first.Err)
	assert.Len(t, first.Documents, 1)

	require.NoError(t, s.Set(ctx, coll, "z1_i2", map[string]any{"issueTitle": "Two"}, false))
	require.NoError(t, s.Set(ctx, "users/u2/bookmarked_issues", "z9_i9", map[string]any{}, false))

	snap := receiveUntil(t, ch, func(s store.Snapshot) bool { return len(s.Documents) == 2 })
	assert.Greater(t, snap.Seq, first.Seq)
	assert.Equal(t, "z1_i1", snap.Documents[0].ID)
	assert.Equal(t, "z1_i2", snap.Documents[1].ID)
}

func TestListenCollection_CoalescesBursts(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.ListenCollection(ctx, "fan_mail", store.OrderBy{})
	receive(t, ch)

	for i := range 20 {
		require.NoError(t, s.Set(ctx, "fan_mail", string(rune('a'+i)), map[string]any{"votes": i}, false))
	}

	snap := receiveUntil(t, ch, func(s store.Snapshot) bool { return len(s.Documents) == 20 })
	assert.LessOrEqual(t, snap.Seq, uint64(21))
}

func TestListenDocument_TracksExistence(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.ListenDocument(ctx, "user_votes", "u1")
	assert.False(t, receive(t, ch).Exists)

	require.NoError(t, s.Set(ctx, "user_votes", "u1", map[string]any{"m1": 1}, true))
	snap := receiveUntil(t, ch, func(s store.Snapshot) bool { return s.Exists })
	require.Len(t, snap.Documents, 1)

	require.NoError(t, s.Delete(ctx, "user_votes", "u1"))
	receiveUntil(t, ch, func(s store.Snapshot) bool { return !s.Exists })
}

func TestListen_ClosesOnCancelAndClose(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch := s.ListenCollection(ctx, "c", store.OrderBy{})
	receive(t, ch)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			_, ok = <-ch
		}
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("listener not closed after cancel")
	}

	other := s.ListenDocument(context.Background(), "c", "d")
	receive(t, other)
	require.NoError(t, s.Close())
	_, ok := <-other
	assert.False(t, ok)

	assert.ErrorIs(t, s.Set(context.Background(), "c", "d", map[string]any{}, false), store.ErrClosed)
	_, ok = <-s.ListenCollection(context.Background(), "c", store.OrderBy{})
	assert.False(t, ok)
}
