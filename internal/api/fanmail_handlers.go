package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tellmeastory/zine-server/internal/domain"
	"github.com/tellmeastory/zine-server/internal/service"
)

func (s *Server) registerFanMailRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listFanMail",
		Method:      http.MethodGet,
		Path:        "/api/v1/fanmail",
		Summary:     "List fan mail",
		Description: "Messages newest first. Messages voted down to -2 are hidden.",
		Tags:        []string{"Fan Mail"},
	}, s.handleListFanMail)

	huma.Register(s.api, huma.Operation{
		OperationID:   "postFanMail",
		Method:        http.MethodPost,
		Path:          "/api/v1/fanmail",
		Summary:       "Post fan mail",
		Description:   "Posts an anonymous message of up to 140 characters about a zine",
		Tags:          []string{"Fan Mail"},
		Security:      bearerSecurity,
		DefaultStatus: http.StatusCreated,
	}, s.handlePostFanMail)

	huma.Register(s.api, huma.Operation{
		OperationID: "voteFanMail",
		Method:      http.MethodPost,
		Path:        "/api/v1/fanmail/{id}/vote",
		Summary:     "Vote on fan mail",
		Description: "Casts an up or down vote. Repeating the caller's current vote clears it.",
		Tags:        []string{"Fan Mail"},
		Security:    bearerSecurity,
	}, s.handleVoteFanMail)

	huma.Register(s.api, huma.Operation{
		OperationID: "getFanMailVotes",
		Method:      http.MethodGet,
		Path:        "/api/v1/fanmail/votes",
		Summary:     "Get my votes",
		Description: "Message ID to the caller's vote, -1 or 1",
		Tags:        []string{"Fan Mail"},
		Security:    bearerSecurity,
	}, s.handleGetFanMailVotes)
}

// === DTOs ===

// ListFanMailInput filters the listing.
type ListFanMailInput struct {
	ZineIDs       []string `query:"zine_id" doc:"Only messages about these zines. Comma-separated."`
	Query         string   `query:"q" maxLength:"200" doc:"Match zine names term by term"`
	IncludeHidden bool     `query:"include_hidden" doc:"Include messages voted down to the hide threshold"`
	Limit         int      `query:"limit" minimum:"0" maximum:"200" doc:"Max messages (default 50)"`
	Offset        int      `query:"offset" minimum:"0" doc:"Pagination offset"`
}

// FanMailListResponse is one page of messages.
type FanMailListResponse struct {
	Messages []domain.FanMailMessage `json:"messages" doc:"Messages, newest first"`
	Total    int                     `json:"total" doc:"Matching messages before paging"`
}

// FanMailListOutput wraps the listing for Huma.
type FanMailListOutput struct {
	Body FanMailListResponse
}

// PostFanMailRequest is a new message.
type PostFanMailRequest struct {
	ZineID string `json:"zine_id" minLength:"1" doc:"Zine the message is about"`
	Text   string `json:"text" doc:"Message text, at most 140 characters"`
}

// PostFanMailInput wraps the request for Huma.
type PostFanMailInput struct {
	Body PostFanMailRequest
}

// FanMailOutput wraps one message for Huma.
type FanMailOutput struct {
	Body domain.FanMailMessage
}

// VoteRequest is one vote.
type VoteRequest struct {
	Upvote bool `json:"upvote" doc:"true for an up vote, false for a down vote"`
}

// VoteInput wraps the vote for Huma.
type VoteInput struct {
	ID   string `path:"id" doc:"Message ID"`
	Body VoteRequest
}

// VoteOutput wraps the vote result for Huma.
type VoteOutput struct {
	Body service.VoteResult
}

// VotesResponse is the caller's votes.
type VotesResponse struct {
	Votes domain.UserVotes `json:"votes" doc:"Message ID to vote"`
}

// VotesOutput wraps the votes for Huma.
type VotesOutput struct {
	Body VotesResponse
}

const defaultFanMailLimit = 50

// === Handlers ===

func (s *Server) handleListFanMail(ctx context.Context, input *ListFanMailInput) (*FanMailListOutput, error) {
	msgs, err := s.services.FanMail.List(ctx, service.ListParams{
		ZineIDs:       input.ZineIDs,
		Query:         input.Query,
		IncludeHidden: input.IncludeHidden,
	})
	if err != nil {
		return nil, err
	}

	total := len(msgs)
	limit := input.Limit
	if limit == 0 {
		limit = defaultFanMailLimit
	}
	start := min(input.Offset, total)
	end := min(start+limit, total)

	page := msgs[start:end]
	if page == nil {
		page = []domain.FanMailMessage{}
	}
	return &FanMailListOutput{Body: FanMailListResponse{Messages: page, Total: total}}, nil
}

func (s *Server) handlePostFanMail(ctx context.Context, input *PostFanMailInput) (*FanMailOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	zine, err := s.catalogZine(input.Body.ZineID)
	if err != nil {
		return nil, err
	}
	msg, err := s.services.FanMail.Post(ctx, userID, zine, input.Body.Text)
	if err != nil {
		return nil, err
	}
	return &FanMailOutput{Body: msg}, nil
}

func (s *Server) handleVoteFanMail(ctx context.Context, input *VoteInput) (*VoteOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.services.FanMail.Vote(ctx, userID, input.ID, input.Body.Upvote)
	if err != nil {
		return nil, err
	}
	return &VoteOutput{Body: res}, nil
}

func (s *Server) handleGetFanMailVotes(ctx context.Context, _ *struct{}) (*VotesOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	votes, err := s.services.FanMail.UserVotes(ctx, userID)
	if err != nil {
		return nil, err
	}
	if votes == nil {
		votes = domain.UserVotes{}
	}
	return &VotesOutput{Body: VotesResponse{Votes: votes}}, nil
}
