package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellmeastory/zine-server/internal/domain"
	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/metrics"
	"github.com/tellmeastory/zine-server/internal/ratelimit"
	"github.com/tellmeastory/zine-server/internal/sse"
	"github.com/tellmeastory/zine-server/internal/store"
	"github.com/tellmeastory/zine-server/internal/store/sqlite"
)

func setupTestFanMail(t *testing.T, perMinute int) (*FanMailService, *sqlite.Store, *recordingEmitter) {
	t.Helper()
	docs := setupTestDocs(t)
	emitter := &recordingEmitter{}
	var limiter *ratelimit.KeyedRateLimiter
	if perMinute > 0 {
		limiter = ratelimit.PerMinute(perMinute)
		t.Cleanup(limiter.Stop)
	}
	return NewFanMailService(docs, emitter, limiter, metrics.New(), discardLogger()), docs, emitter
}

func TestFanMail_PostAndGet(t *testing.T) {
	svc, _, emitter := setupTestFanMail(t, 0)
	ctx := context.Background()

	msg, err := svc.Post(ctx, "u1", alpha, "  love issue one  ")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msg.ID, "msg"))
	assert.Equal(t, "love issue one", msg.Text)
	assert.Equal(t, "Alpha", msg.ZineName)
	assert.Equal(t, 0, msg.Votes)

	got, err := svc.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.Text, got.Text)
	assert.Equal(t, "z1", got.ZineID)
	assert.Equal(t, []sse.EventType{sse.EventFanMailCreated}, emitter.types())

	_, err = svc.Get(ctx, "msg_missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestFanMail_PostValidation(t *testing.T) {
	svc, docs, _ := setupTestFanMail(t, 0)
	ctx := context.Background()

	_, err := svc.Post(ctx, "u1", alpha, "   ")
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = svc.Post(ctx, "u1", alpha, strings.Repeat("é", domain.MaxFanMailLength+1))
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = svc.Post(ctx, "", alpha, "hi")
	assert.ErrorIs(t, err, domainerrors.ErrNotAuthenticated)

	assert.Equal(t, 0, countDocs(t, docs, store.CollectionFanMail))
}

func TestFanMail_PostRateLimited(t *testing.T) {
	svc, _, _ := setupTestFanMail(t, 2)
	ctx := context.Background()

	for range 2 {
		_, err := svc.Post(ctx, "u1", alpha, "hello")
		require.NoError(t, err)
	}
	_, err := svc.Post(ctx, "u1", alpha, "hello")
	assert.ErrorIs(t, err, domainerrors.ErrRateLimited)

	// Limits are per user.
	_, err = svc.Post(ctx, "u2", alpha, "hello")
	assert.NoError(t, err)
}

func TestFanMail_VoteConvergence(t *testing.T) {
	svc, _, _ := setupTestFanMail(t, 0)
	ctx := context.Background()

	msg, err := svc.Post(ctx, "author", alpha, "great zine")
	require.NoError(t, err)

	res, err := svc.Vote(ctx, "u1", msg.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Vote)
	assert.Equal(t, 1, res.Message.Votes)

	// Switching direction moves the tally by two.
	res, err = svc.Vote(ctx, "u1", msg.ID, false)
	require.NoError(t, err)
	assert.Equal(t, -1, res.Vote)
	assert.Equal(t, -1, res.Message.Votes)

	res, err = svc.Vote(ctx, "u2", msg.ID, false)
	require.NoError(t, err)
	assert.Equal(t, -2, res.Message.Votes)

	// Same direction again clears the vote and drops the entry.
	res, err = svc.Vote(ctx, "u1", msg.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Vote)
	assert.Equal(t, -1, res.Message.Votes)

	votes, err := svc.UserVotes(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, votes)

	votes, err = svc.UserVotes(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, domain.UserVotes{msg.ID: -1}, votes)
}

func TestFanMail_VoteUnknownMessage(t *testing.T) {
	svc, docs, _ := setupTestFanMail(t, 0)

	_, err := svc.Vote(context.Background(), "u1", "msg_nope", true)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	assert.Equal(t, 0, countDocs(t, docs, store.CollectionUserVotes))
}

func TestFanMail_ListHidesDownvotedAndFilters(t *testing.T) {
	svc, _, _ := setupTestFanMail(t, 0)
	ctx := context.Background()

	a, err := svc.Post(ctx, "author", alpha, "first")
	require.NoError(t, err)
	b, err := svc.Post(ctx, "author", beta, "second")
	require.NoError(t, err)
	_, err = svc.Post(ctx, "author", gamma, "third")
	require.NoError(t, err)

	for _, voter := range []string{"u1", "u2"} {
		_, err := svc.Vote(ctx, voter, b.ID, false)
		require.NoError(t, err)
	}

	visible, err := svc.List(ctx, ListParams{})
	require.NoError(t, err)
	assert.Len(t, visible, 2)
	for _, m := range visible {
		assert.NotEqual(t, b.ID, m.ID)
	}

	all, err := svc.List(ctx, ListParams{IncludeHidden: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	onlyAlpha, err := svc.List(ctx, ListParams{ZineIDs: []string{"z1"}})
	require.NoError(t, err)
	require.Len(t, onlyAlpha, 1)
	assert.Equal(t, a.ID, onlyAlpha[0].ID)

	byName, err := svc.List(ctx, ListParams{Query: "gam"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "Gamma", byName[0].ZineName)
}

func TestFanMail_RetractVotes(t *testing.T) {
	svc, docs, _ := setupTestFanMail(t, 0)
	ctx := context.Background()

	a, err := svc.Post(ctx, "author", alpha, "one")
	require.NoError(t, err)
	b, err := svc.Post(ctx, "author", beta, "two")
	require.NoError(t, err)

	_, err = svc.Vote(ctx, "u1", a.ID, true)
	require.NoError(t, err)
	_, err = svc.Vote(ctx, "u1", b.ID, false)
	require.NoError(t, err)
	_, err = svc.Vote(ctx, "u2", a.ID, true)
	require.NoError(t, err)

	require.NoError(t, svc.RetractVotes(ctx, "u1"))

	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Votes)
	got, err = svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Votes)

	_, err = docs.Get(ctx, store.CollectionUserVotes, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Nothing to retract is fine.
	assert.NoError(t, svc.RetractVotes(ctx, "nobody"))
}

func TestFanMail_RetractVotesRetryAfterPartialFailure(t *testing.T) {
	docs := setupTestDocs(t)
	ctx := context.Background()

	// Enough votes to need more than one commit.
	const n = store.MaxBatchOps/2 + 10
	listed := map[string]any{}
	for i := range n {
		msgID := fmt.Sprintf("fm_%03d", i)
		require.NoError(t, docs.Set(ctx, store.CollectionFanMail, msgID, map[string]any{
			"id":        msgID,
			"text":      "hi",
			"zineId":    alpha.ID,
			"zineName":  alpha.Name,
			"createdAt": time.Now().UTC(),
			"votes":     1,
		}, false))
		listed[msgID] = 1
	}
	require.NoError(t, docs.Set(ctx, store.CollectionUserVotes, "u1", listed, false))

	flaky := &failingDocs{DocumentStore: docs, failCommitAt: 2}
	svc := NewFanMailService(flaky, NoopEmitter(), nil, metrics.New(), discardLogger())

	err := svc.RetractVotes(ctx, "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrPersistenceFailed)

	// Every tally still agrees with the votes left on record.
	remaining, err := svc.UserVotes(ctx, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, remaining)
	assert.Less(t, len(remaining), n)
	for msgID := range listed {
		got, err := svc.Get(ctx, msgID)
		require.NoError(t, err)
		assert.Equal(t, remaining[msgID], got.Votes, msgID)
	}

	require.NoError(t, svc.RetractVotes(ctx, "u1"))

	for msgID := range listed {
		got, err := svc.Get(ctx, msgID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Votes, msgID)
	}
	_, err = docs.Get(ctx, store.CollectionUserVotes, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
