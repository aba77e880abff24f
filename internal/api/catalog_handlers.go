package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tellmeastory/zine-server/internal/color"
	"github.com/tellmeastory/zine-server/internal/domain"
	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/search"
)

func (s *Server) registerCatalogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getCatalog",
		Method:      http.MethodGet,
		Path:        "/api/v1/catalog",
		Summary:     "Get catalog",
		Description: "Returns every zine with its issues, zines by name and issues newest first",
		Tags:        []string{"Catalog"},
	}, s.handleGetCatalog)

	huma.Register(s.api, huma.Operation{
		OperationID: "getZine",
		Method:      http.MethodGet,
		Path:        "/api/v1/catalog/zines/{id}",
		Summary:     "Get zine",
		Description: "Returns one zine. Signed-in callers also get their follow, bookmark and read state for it.",
		Tags:        []string{"Catalog"},
	}, s.handleGetZine)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchCatalog",
		Method:      http.MethodGet,
		Path:        "/api/v1/catalog/search",
		Summary:     "Search catalog",
		Description: "Full-text search over zine names, bios and issue titles",
		Tags:        []string{"Catalog"},
	}, s.handleSearchCatalog)
}

// === DTOs ===

// ZineResponse is a catalog zine with its display color.
type ZineResponse struct {
	domain.Zine
	Color string `json:"color" doc:"Accent color derived from the zine ID, as #rrggbb"`
}

func toZineResponse(z domain.Zine) ZineResponse {
	return ZineResponse{Zine: z, Color: color.ForKey(z.ID)}
}

// CatalogResponse is the whole catalog.
type CatalogResponse struct {
	Version     string         `json:"version" doc:"Catalog version"`
	LastUpdated string         `json:"last_updated" doc:"When the catalog was last edited"`
	Zines       []ZineResponse `json:"zines" doc:"Zines sorted by name"`
}

// CatalogOutput wraps the catalog for Huma.
type CatalogOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         CatalogResponse
}

// ZineInput identifies a zine by path.
type ZineInput struct {
	ID string `path:"id" doc:"Zine ID"`
}

// ZineDetailResponse is a zine plus the caller's state for it.
type ZineDetailResponse struct {
	ZineResponse
	Following          bool     `json:"following" doc:"Whether the caller follows the zine"`
	HasUnreadIssues    bool     `json:"has_unread_issues" doc:"Whether a notification arrived after the caller last viewed the zine"`
	BookmarkedIssueIDs []string `json:"bookmarked_issue_ids" doc:"Issues of this zine the caller bookmarked"`
	ReadIssueIDs       []string `json:"read_issue_ids" doc:"Issues of this zine the caller marked read"`
}

// ZineDetailOutput wraps a zine for Huma.
type ZineDetailOutput struct {
	Body ZineDetailResponse
}

// SearchCatalogInput contains parameters for searching the catalog.
type SearchCatalogInput struct {
	Query  string `query:"q" maxLength:"200" doc:"Search query"`
	Type   string `query:"type" doc:"Restrict to zine or issue. Omit for both."`
	ZineID string `query:"zine_id" doc:"Restrict to issues of one zine"`
	Limit  int    `query:"limit" minimum:"0" maximum:"100" doc:"Max results (default 20)"`
	Offset int    `query:"offset" minimum:"0" doc:"Pagination offset"`
}

// SearchCatalogOutput wraps search results for Huma.
type SearchCatalogOutput struct {
	Body *search.SearchResult
}

// === Handlers ===

func (s *Server) handleGetCatalog(_ context.Context, _ *struct{}) (*CatalogOutput, error) {
	c, err := s.services.Catalog.Current()
	if err != nil {
		return nil, err
	}

	zines := make([]ZineResponse, len(c.Zines))
	for i, z := range c.Zines {
		zines[i] = toZineResponse(z)
	}
	return &CatalogOutput{
		CacheControl: CacheFiveMinutes,
		Body: CatalogResponse{
			Version:     c.Version,
			LastUpdated: c.LastUpdated,
			Zines:       zines,
		},
	}, nil
}

func (s *Server) handleGetZine(ctx context.Context, input *ZineInput) (*ZineDetailOutput, error) {
	zine, err := s.catalogZine(input.ID)
	if err != nil {
		return nil, err
	}

	resp := ZineDetailResponse{
		ZineResponse:       toZineResponse(zine),
		BookmarkedIssueIDs: []string{},
		ReadIssueIDs:       []string{},
	}

	if optionalUserID(ctx) != "" {
		sess, err := s.RequireSession(ctx)
		if err != nil {
			return nil, err
		}
		if rec, ok := sess.Follows.Record(zine.ID); ok {
			resp.Following = true
			resp.HasUnreadIssues = rec.HasUnread()
		}
		for _, issue := range zine.Issues {
			if sess.Bookmarks.IsBookmarked(zine.ID, issue.ID) {
				resp.BookmarkedIssueIDs = append(resp.BookmarkedIssueIDs, issue.ID)
			}
			if sess.Reads.IsRead(zine.ID, issue.ID) {
				resp.ReadIssueIDs = append(resp.ReadIssueIDs, issue.ID)
			}
		}
	}

	return &ZineDetailOutput{Body: resp}, nil
}

func (s *Server) handleSearchCatalog(ctx context.Context, input *SearchCatalogInput) (*SearchCatalogOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domainerrors.Validation("q is required")
	}

	params := search.SearchParams{
		Query:  query,
		ZineID: input.ZineID,
		Limit:  input.Limit,
		Offset: input.Offset,
	}
	switch t := search.DocType(strings.ToLower(input.Type)); t {
	case "":
	case search.DocTypeZine, search.DocTypeIssue:
		params.Types = []search.DocType{t}
	default:
		return nil, domainerrors.Validationf("unknown type %q", input.Type)
	}

	result, err := s.services.Catalog.Search(ctx, params)
	if err != nil {
		return nil, err
	}
	return &SearchCatalogOutput{Body: result}, nil
}

// catalogZine looks a zine up in the live catalog.
func (s *Server) catalogZine(id string) (domain.Zine, error) {
	if _, err := s.services.Catalog.Current(); err != nil {
		return domain.Zine{}, err
	}
	zine, ok := s.services.Catalog.Zine(id)
	if !ok {
		return domain.Zine{}, domainerrors.NotFoundf("zine %s not found", id)
	}
	return zine, nil
}

