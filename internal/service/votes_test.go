package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/metrics"
	"github.com/tellmeastory/zine-server/internal/sse"
	"github.com/tellmeastory/zine-server/internal/store"
)

func TestVoteStore_MirrorsVotesCastElsewhere(t *testing.T) {
	docs := setupTestDocs(t)
	emitter := &recordingEmitter{}
	fanmail := NewFanMailService(docs, NoopEmitter(), nil, metrics.New(), discardLogger())
	ctx := context.Background()

	msg, err := fanmail.Post(ctx, "author", alpha, "lovely issue")
	require.NoError(t, err)
	_, err = fanmail.Vote(ctx, "u1", msg.ID, true)
	require.NoError(t, err)

	v := NewVoteStore(docs, signedIn("u1"), emitter, metrics.New(), discardLogger())
	t.Cleanup(v.Reset)
	require.NoError(t, v.LoadAll(ctx))
	assert.Equal(t, 1, v.Vote(msg.ID))
	assert.Empty(t, emitter.types(), "the initial load is not pushed")

	v.Listen("u1")

	// Flip the vote from another device.
	_, err = fanmail.Vote(ctx, "u1", msg.ID, false)
	require.NoError(t, err)
	eventually(t, func() bool { return v.Vote(msg.ID) == -1 })

	// Retracting deletes the document, which empties the map.
	require.NoError(t, fanmail.RetractVotes(ctx, "u1"))
	eventually(t, func() bool { return len(v.Votes()) == 0 })

	emitter.mu.Lock()
	var last sse.Event
	for _, ev := range emitter.events {
		if ev.Type == sse.EventVotesChanged {
			last = ev
		}
	}
	emitter.mu.Unlock()
	require.Equal(t, sse.EventVotesChanged, last.Type)
	assert.Equal(t, "u1", last.UserID)
	assert.Empty(t, last.Data.(sse.VotesChangedEventData).Votes)
}

func TestVoteStore_IgnoresClearedEntries(t *testing.T) {
	docs := setupTestDocs(t)
	ctx := context.Background()
	require.NoError(t, docs.Set(ctx, store.CollectionUserVotes, "u1", map[string]any{"m1": 1, "m2": 0}, false))

	v := NewVoteStore(docs, signedIn("u1"), NoopEmitter(), nil, discardLogger())
	require.NoError(t, v.LoadAll(ctx))
	assert.Equal(t, map[string]int{"m1": 1}, map[string]int(v.Votes()))

	v.Reset()
	assert.Empty(t, v.Votes())
}

func TestVoteStore_RequiresUser(t *testing.T) {
	v := NewVoteStore(setupTestDocs(t), signedIn(""), NoopEmitter(), nil, discardLogger())
	assert.ErrorIs(t, v.LoadAll(context.Background()), domainerrors.ErrNotAuthenticated)
}

func TestSessionRegistry_SessionTracksVotes(t *testing.T) {
	f := setupTestSessions(t, 0)
	ctx := context.Background()
	fanmail := NewFanMailService(f.docs, NoopEmitter(), nil, nil, discardLogger())

	s, err := f.sessions.Get(ctx, "u1")
	require.NoError(t, err)

	msg, err := fanmail.Post(ctx, "author", alpha, "more please")
	require.NoError(t, err)
	_, err = fanmail.Vote(ctx, "u1", msg.ID, true)
	require.NoError(t, err)
	eventually(t, func() bool { return s.Votes.Vote(msg.ID) == 1 })

	f.sessions.Close("u1")
	assert.Empty(t, s.Votes.Votes())
}
