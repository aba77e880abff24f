package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/tellmeastory/zine-server/internal/domain"
	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/id"
	"github.com/tellmeastory/zine-server/internal/metrics"
	"github.com/tellmeastory/zine-server/internal/ratelimit"
	"github.com/tellmeastory/zine-server/internal/sse"
	"github.com/tellmeastory/zine-server/internal/store"
)

// FanMailService posts, lists and votes on fan mail.
type FanMailService struct {
	docs    store.DocumentStore
	emitter Emitter
	posts   *ratelimit.KeyedRateLimiter
	metrics *metrics.Metrics
	logger  *slog.Logger
	voters  *keyedMutex
	now     func() time.Time
}

// NewFanMailService creates the service. posts limits posting per user and may be nil.
func NewFanMailService(
	docs store.DocumentStore,
	emitter Emitter,
	posts *ratelimit.KeyedRateLimiter,
	m *metrics.Metrics,
	logger *slog.Logger,
) *FanMailService {
	return &FanMailService{
		docs:    docs,
		emitter: emitter,
		posts:   posts,
		metrics: m,
		logger:  logger,
		voters:  newKeyedMutex(),
		now:     time.Now,
	}
}

// ListParams filters a fan mail listing.
type ListParams struct {
	// ZineIDs keeps messages about these zines. Empty keeps all.
	ZineIDs []string
	// Query matches zine names term by term.
	Query string
	// IncludeHidden keeps messages voted down to the hide threshold.
	IncludeHidden bool
}

// Post appends a message about zine.
func (s *FanMailService) Post(ctx context.Context, userID string, zine domain.Zine, text string) (msg domain.FanMailMessage, err error) {
	defer func() {
		if s.metrics != nil {
			s.metrics.FanMailPosts.WithLabelValues(metrics.Result(err)).Inc()
		}
	}()

	if userID == "" {
		return msg, domainerrors.NotAuthenticated()
	}
	text, err = domain.ValidateFanMailText(text)
	if err != nil {
		return msg, err
	}
	if s.posts != nil && !s.posts.Allow(userID) {
		retry := s.posts.RetryAfter(userID)
		return msg, domainerrors.RateLimited("too many messages").
			WithDetails(map[string]string{"retry_after": retry.Round(time.Second).String()})
	}

	msgID, err := id.Generate(id.PrefixFanMail)
	if err != nil {
		return msg, domainerrors.Unknown(err)
	}

	msg = domain.FanMailMessage{
		ID:        msgID,
		Text:      text,
		ZineID:    zine.ID,
		ZineName:  zine.Name,
		CreatedAt: s.now().UTC(),
	}
	data := map[string]any{
		"id":        msg.ID,
		"text":      msg.Text,
		"zineId":    msg.ZineID,
		"zineName":  msg.ZineName,
		"createdAt": msg.CreatedAt,
		"votes":     0,
	}
	if err := s.docs.Set(ctx, store.CollectionFanMail, msg.ID, data, false); err != nil {
		return domain.FanMailMessage{}, persistence(err)
	}

	s.emitter.Emit(sse.NewFanMailCreatedEvent(msg))
	s.logger.Info("fan mail posted", "message_id", msg.ID, "zine_id", zine.ID, "user_id", userID)
	return msg, nil
}

// Get returns one message.
func (s *FanMailService) Get(ctx context.Context, messageID string) (domain.FanMailMessage, error) {
	doc, err := s.docs.Get(ctx, store.CollectionFanMail, messageID)
	if err != nil {
		if domainerrors.Is(err, store.ErrNotFound) {
			return domain.FanMailMessage{}, domainerrors.NotFoundf("message %s not found", messageID)
		}
		return domain.FanMailMessage{}, persistence(err)
	}
	return decodeMessage(doc)
}

// List returns messages newest first, hiding voted-down ones unless asked.
func (s *FanMailService) List(ctx context.Context, params ListParams) ([]domain.FanMailMessage, error) {
	docs, err := s.docs.Query(ctx, store.CollectionFanMail, store.OrderBy{Field: "createdAt", Descending: true})
	if err != nil {
		return nil, persistence(err)
	}
	msgs, skipped := store.DecodeAll(docs, decodeMessage)
	if skipped > 0 {
		s.logger.Warn("skipped undecodable fan mail", "count", skipped)
	}

	if !params.IncludeHidden {
		msgs = domain.VisibleMessages(msgs)
	}
	msgs = domain.FilterByZines(msgs, params.ZineIDs)
	return domain.SearchMessages(msgs, params.Query), nil
}

// UserVotes returns the user's live votes. A user who never voted has none.
func (s *FanMailService) UserVotes(ctx context.Context, userID string) (domain.UserVotes, error) {
	if userID == "" {
		return nil, domainerrors.NotAuthenticated()
	}
	doc, err := s.docs.Get(ctx, store.CollectionUserVotes, userID)
	if err != nil {
		if domainerrors.Is(err, store.ErrNotFound) {
			return domain.UserVotes{}, nil
		}
		return nil, persistence(err)
	}
	votes := domain.UserVotes{}
	if err := store.DecodeData(doc.Data, &votes); err != nil {
		return nil, persistence(err)
	}
	for k, v := range votes {
		if v == 0 {
			delete(votes, k)
		}
	}
	return votes, nil
}

// VoteResult is the state after a vote.
type VoteResult struct {
	Message domain.FanMailMessage `json:"message"`
	Vote    int                   `json:"vote"`
}

// Vote casts an up or down vote. Casting the same direction twice clears the
// vote. The tally increment and the user's vote entry commit in one batch.
func (s *FanMailService) Vote(ctx context.Context, userID, messageID string, isUpvote bool) (VoteResult, error) {
	if userID == "" {
		return VoteResult{}, domainerrors.NotAuthenticated()
	}

	// Votes by one user are read-modify-write on their own vote document.
	unlock := s.voters.Lock(userID)
	defer unlock()

	if _, err := s.Get(ctx, messageID); err != nil {
		return VoteResult{}, err
	}
	votes, err := s.UserVotes(ctx, userID)
	if err != nil {
		return VoteResult{}, err
	}

	final, delta := domain.ComputeVote(votes[messageID], isUpvote)

	var entry any = final
	if final == 0 {
		entry = store.DeleteField
	}
	b := store.NewBatch().
		Set(store.CollectionFanMail, messageID, map[string]any{"votes": store.Increment(int64(delta))}, true).
		Set(store.CollectionUserVotes, userID, map[string]any{messageID: entry}, true)
	if err := b.Commit(ctx, s.docs); err != nil {
		return VoteResult{}, persistence(err)
	}

	if s.metrics != nil {
		s.metrics.Votes.WithLabelValues(strconv.Itoa(final)).Inc()
	}

	msg, err := s.Get(ctx, messageID)
	if err != nil {
		return VoteResult{}, err
	}
	s.emitter.Emit(sse.NewFanMailUpdatedEvent(msg))
	s.logger.Debug("vote cast", "message_id", messageID, "user_id", userID, "final", final, "delta", delta)
	return VoteResult{Message: msg, Vote: final}, nil
}

// RetractVotes removes every vote the user holds, taking each one back out of
// its message tally, then deletes the vote document. Each commit pairs a tally
// decrement with the removal of that vote's entry, so a retry after a partial
// failure only retracts what is still listed.
func (s *FanMailService) RetractVotes(ctx context.Context, userID string) error {
	unlock := s.voters.Lock(userID)
	defer unlock()

	votes, err := s.UserVotes(ctx, userID)
	if err != nil {
		return err
	}

	retracted := 0
	ops := make([]store.Op, 0, min(2*len(votes), store.MaxBatchOps))
	flush := func() error {
		if len(ops) == 0 {
			return nil
		}
		if err := s.docs.Commit(ctx, ops); err != nil {
			return persistence(err)
		}
		ops = ops[:0]
		return nil
	}

	for msgID, v := range votes {
		if len(ops)+2 > store.MaxBatchOps {
			if err := flush(); err != nil {
				return err
			}
		}
		unlist := store.Op{
			Kind:       store.OpSet,
			Collection: store.CollectionUserVotes,
			ID:         userID,
			Data:       map[string]any{msgID: store.DeleteField},
			Merge:      true,
		}
		if _, err := s.docs.Get(ctx, store.CollectionFanMail, msgID); err != nil {
			if !domainerrors.Is(err, store.ErrNotFound) {
				return persistence(err)
			}
			ops = append(ops, unlist)
			continue
		}
		ops = append(ops, store.Op{
			Kind:       store.OpSet,
			Collection: store.CollectionFanMail,
			ID:         msgID,
			Data:       map[string]any{"votes": store.Increment(int64(-v))},
			Merge:      true,
		}, unlist)
		retracted++
	}
	if len(ops)+1 > store.MaxBatchOps {
		if err := flush(); err != nil {
			return err
		}
	}
	ops = append(ops, store.Op{Kind: store.OpDelete, Collection: store.CollectionUserVotes, ID: userID})
	if err := flush(); err != nil {
		return err
	}

	s.logger.Info("votes retracted", "user_id", userID, "count", retracted)
	return nil
}

func decodeMessage(doc store.Document) (domain.FanMailMessage, error) {
	var m domain.FanMailMessage
	if err := store.Decode(doc, &m); err != nil {
		return m, err
	}
	if m.ID == "" {
		m.ID = doc.ID
	}
	return m, nil
}
