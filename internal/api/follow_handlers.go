package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tellmeastory/zine-server/internal/service"
)

func (s *Server) registerFollowRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getFollowing",
		Method:      http.MethodGet,
		Path:        "/api/v1/following",
		Summary:     "Following feed",
		Description: "Lists followed zines, most recently notified first, with the unread count",
		Tags:        []string{"Following"},
		Security:    bearerSecurity,
	}, s.handleGetFollowing)

	huma.Register(s.api, huma.Operation{
		OperationID: "followZine",
		Method:      http.MethodPost,
		Path:        "/api/v1/zines/{id}/follow",
		Summary:     "Follow zine",
		Description: "Subscribes the caller's devices to the zine's topic and records the follow",
		Tags:        []string{"Following"},
		Security:    bearerSecurity,
	}, s.handleFollowZine)

	huma.Register(s.api, huma.Operation{
		OperationID: "unfollowZine",
		Method:      http.MethodDelete,
		Path:        "/api/v1/zines/{id}/follow",
		Summary:     "Unfollow zine",
		Description: "Unsubscribes the caller's devices from the zine's topic and removes the follow",
		Tags:        []string{"Following"},
		Security:    bearerSecurity,
	}, s.handleUnfollowZine)

	huma.Register(s.api, huma.Operation{
		OperationID: "markZineViewed",
		Method:      http.MethodPost,
		Path:        "/api/v1/zines/{id}/viewed",
		Summary:     "Mark zine viewed",
		Description: "Clears the zine's unread state. A zine that is not followed is left alone.",
		Tags:        []string{"Following"},
		Security:    bearerSecurity,
	}, s.handleMarkZineViewed)
}

// === DTOs ===

// FeedOutput wraps the following feed for Huma.
type FeedOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         service.Feed
}

// FollowResponse is the caller's follow state for one zine after a change.
type FollowResponse struct {
	ZineID          string `json:"zine_id" doc:"Zine ID"`
	Following       bool   `json:"following" doc:"Whether the caller now follows the zine"`
	HasUnreadIssues bool   `json:"has_unread_issues" doc:"Whether the zine has unread issues"`
	UnreadCount     int    `json:"unread_count" doc:"Followed zines with unread issues"`
}

// FollowOutput wraps a FollowResponse for Huma.
type FollowOutput struct {
	Body FollowResponse
}

// === Handlers ===

func (s *Server) handleGetFollowing(ctx context.Context, _ *struct{}) (*FeedOutput, error) {
	sess, err := s.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	return &FeedOutput{
		CacheControl: CachePrivateNone,
		Body:         s.services.Feed.Following(sess.Follows),
	}, nil
}

func (s *Server) handleFollowZine(ctx context.Context, input *ZineInput) (*FollowOutput, error) {
	sess, err := s.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	zine, err := s.catalogZine(input.ID)
	if err != nil {
		return nil, err
	}
	if err := sess.Follows.Follow(ctx, zine); err != nil {
		return nil, err
	}
	return &FollowOutput{Body: followState(sess, input.ID)}, nil
}

func (s *Server) handleUnfollowZine(ctx context.Context, input *ZineInput) (*FollowOutput, error) {
	sess, err := s.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := sess.Follows.Unfollow(ctx, input.ID); err != nil {
		return nil, err
	}
	return &FollowOutput{Body: followState(sess, input.ID)}, nil
}

func (s *Server) handleMarkZineViewed(ctx context.Context, input *ZineInput) (*FollowOutput, error) {
	sess, err := s.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := sess.Follows.UpdateLastViewed(ctx, input.ID); err != nil {
		return nil, err
	}
	return &FollowOutput{Body: followState(sess, input.ID)}, nil
}

func followState(sess *service.UserSession, zineID string) FollowResponse {
	resp := FollowResponse{ZineID: zineID, UnreadCount: sess.Follows.UnreadCount()}
	if rec, ok := sess.Follows.Record(zineID); ok {
		resp.Following = true
		resp.HasUnreadIssues = rec.HasUnread()
	}
	return resp
}
