package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tellmeastory/zine-server/internal/domain"
	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/service"
)

func (s *Server) registerIssueMarkRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBookmarks",
		Method:      http.MethodGet,
		Path:        "/api/v1/bookmarks",
		Summary:     "List bookmarks",
		Description: "Bookmarked issues grouped by zine name",
		Tags:        []string{"Issues"},
		Security:    bearerSecurity,
	}, s.handleListBookmarks)

	huma.Register(s.api, huma.Operation{
		OperationID: "listReads",
		Method:      http.MethodGet,
		Path:        "/api/v1/reads",
		Summary:     "List read issues",
		Description: "Read issues grouped by zine name",
		Tags:        []string{"Issues"},
		Security:    bearerSecurity,
	}, s.handleListReads)

	huma.Register(s.api, huma.Operation{
		OperationID: "toggleBookmark",
		Method:      http.MethodPost,
		Path:        "/api/v1/zines/{zineId}/issues/{issueId}/bookmark",
		Summary:     "Toggle bookmark",
		Description: "Bookmarks the issue, or removes the bookmark when it is already set",
		Tags:        []string{"Issues"},
		Security:    bearerSecurity,
	}, s.handleToggleBookmark)

	huma.Register(s.api, huma.Operation{
		OperationID: "toggleRead",
		Method:      http.MethodPost,
		Path:        "/api/v1/zines/{zineId}/issues/{issueId}/read",
		Summary:     "Toggle read",
		Description: "Marks the issue read, or unread when it is already marked",
		Tags:        []string{"Issues"},
		Security:    bearerSecurity,
	}, s.handleToggleRead)
}

// === DTOs ===

// IssueGroupsResponse is a grouped listing of marked issues.
type IssueGroupsResponse struct {
	Groups []domain.IssueGroup `json:"groups" doc:"Issues grouped by zine name, both sorted by name"`
	Total  int                 `json:"total" doc:"Number of marked issues"`
}

// IssueGroupsOutput wraps the listing for Huma.
type IssueGroupsOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         IssueGroupsResponse
}

// IssueInput identifies an issue by path.
type IssueInput struct {
	ZineID  string `path:"zineId" doc:"Zine ID"`
	IssueID string `path:"issueId" doc:"Issue ID"`
}

// IssueMarkResponse is the state of a mark after a toggle.
type IssueMarkResponse struct {
	ZineID  string `json:"zine_id" doc:"Zine ID"`
	IssueID string `json:"issue_id" doc:"Issue ID"`
	Set     bool   `json:"set" doc:"Whether the mark is now set"`
}

// IssueMarkOutput wraps the toggle result for Huma.
type IssueMarkOutput struct {
	Body IssueMarkResponse
}

// === Handlers ===

func (s *Server) handleListBookmarks(ctx context.Context, _ *struct{}) (*IssueGroupsOutput, error) {
	return s.listMarks(ctx, func(sess *service.UserSession) *service.IssueMarkStore {
		return sess.Bookmarks.IssueMarkStore
	})
}

func (s *Server) handleListReads(ctx context.Context, _ *struct{}) (*IssueGroupsOutput, error) {
	return s.listMarks(ctx, func(sess *service.UserSession) *service.IssueMarkStore {
		return sess.Reads.IssueMarkStore
	})
}

func (s *Server) handleToggleBookmark(ctx context.Context, input *IssueInput) (*IssueMarkOutput, error) {
	return s.toggleMark(ctx, input, func(sess *service.UserSession) *service.IssueMarkStore {
		return sess.Bookmarks.IssueMarkStore
	})
}

func (s *Server) handleToggleRead(ctx context.Context, input *IssueInput) (*IssueMarkOutput, error) {
	return s.toggleMark(ctx, input, func(sess *service.UserSession) *service.IssueMarkStore {
		return sess.Reads.IssueMarkStore
	})
}

type markSelector func(*service.UserSession) *service.IssueMarkStore

func (s *Server) listMarks(ctx context.Context, pick markSelector) (*IssueGroupsOutput, error) {
	sess, err := s.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := pick(sess).FetchGrouped(ctx)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, g := range groups {
		total += len(g.Issues)
	}
	if groups == nil {
		groups = []domain.IssueGroup{}
	}
	return &IssueGroupsOutput{
		CacheControl: CachePrivateNone,
		Body:         IssueGroupsResponse{Groups: groups, Total: total},
	}, nil
}

func (s *Server) toggleMark(ctx context.Context, input *IssueInput, pick markSelector) (*IssueMarkOutput, error) {
	sess, err := s.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	zine, err := s.catalogZine(input.ZineID)
	if err != nil {
		return nil, err
	}
	issue, ok := zine.Issue(input.IssueID)
	if !ok {
		return nil, domainerrors.NotFoundf("issue %s not found in zine %s", input.IssueID, input.ZineID)
	}

	set, err := pick(sess).Toggle(ctx, zine, issue)
	if err != nil {
		return nil, err
	}
	return &IssueMarkOutput{Body: IssueMarkResponse{ZineID: zine.ID, IssueID: issue.ID, Set: set}}, nil
}
