package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tellmeastory/zine-server/internal/domain"
	"github.com/tellmeastory/zine-server/internal/service"
)

func (s *Server) registerPassportRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getPassportStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/passport/stats",
		Summary:     "Reading stats",
		Description: "The three zines the caller has read the most issues of",
		Tags:        []string{"Passport"},
		Security:    bearerSecurity,
	}, s.handleGetPassportStats)

	huma.Register(s.api, huma.Operation{
		OperationID: "listPassportThemes",
		Method:      http.MethodGet,
		Path:        "/api/v1/passport/themes",
		Summary:     "List themes",
		Description: "Background colors a passport can be rendered with",
		Tags:        []string{"Passport"},
	}, s.handleListPassportThemes)

	huma.Register(s.api, huma.Operation{
		OperationID: "renderPassport",
		Method:      http.MethodPost,
		Path:        "/api/v1/passport",
		Summary:     "Render passport",
		Description: "Composes the covers of every read issue onto a shareable image and stores it",
		Tags:        []string{"Passport"},
		Security:    bearerSecurity,
	}, s.handleRenderPassport)

	huma.Register(s.api, huma.Operation{
		OperationID: "getLatestPassport",
		Method:      http.MethodGet,
		Path:        "/api/v1/passport/latest",
		Summary:     "Download passport",
		Description: "The caller's most recent passport render as PNG",
		Tags:        []string{"Passport"},
		Security:    bearerSecurity,
	}, s.handleGetLatestPassport)
}

// === DTOs ===

// PassportStatsResponse lists the caller's top zines.
type PassportStatsResponse struct {
	Zines []domain.ZineReadStats `json:"zines" doc:"Top zines by read issue count"`
}

// PassportStatsOutput wraps the stats for Huma.
type PassportStatsOutput struct {
	Body PassportStatsResponse
}

// PassportThemesResponse lists themes.
type PassportThemesResponse struct {
	Themes []domain.PassportTheme `json:"themes" doc:"Available themes"`
}

// PassportThemesOutput wraps the themes for Huma.
type PassportThemesOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         PassportThemesResponse
}

// RenderPassportRequest picks the theme.
type RenderPassportRequest struct {
	Theme string `json:"theme,omitempty" doc:"Theme name. Defaults to the server's theme."`
}

// RenderPassportInput wraps the request for Huma.
type RenderPassportInput struct {
	Body RenderPassportRequest
}

// PassportOutput wraps a render result for Huma.
type PassportOutput struct {
	Body service.PassportImage
}

// === Handlers ===

func (s *Server) handleGetPassportStats(ctx context.Context, _ *struct{}) (*PassportStatsOutput, error) {
	sess, err := s.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.services.Passport.Stats(ctx, sess.Reads)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []domain.ZineReadStats{}
	}
	return &PassportStatsOutput{Body: PassportStatsResponse{Zines: stats}}, nil
}

func (s *Server) handleListPassportThemes(_ context.Context, _ *struct{}) (*PassportThemesOutput, error) {
	return &PassportThemesOutput{
		CacheControl: CacheFiveMinutes,
		Body:         PassportThemesResponse{Themes: s.services.Passport.Themes()},
	}, nil
}

func (s *Server) handleRenderPassport(ctx context.Context, input *RenderPassportInput) (*PassportOutput, error) {
	sess, err := s.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	img, err := s.services.Passport.Render(ctx, sess.UserID, sess.Reads, input.Body.Theme)
	if err != nil {
		return nil, err
	}
	return &PassportOutput{Body: img}, nil
}

func (s *Server) handleGetLatestPassport(ctx context.Context, _ *struct{}) (*huma.StreamResponse, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	data, err := s.services.Passport.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &huma.StreamResponse{
		Body: func(ctx huma.Context) {
			ctx.SetHeader("Content-Type", "image/png")
			ctx.SetHeader("Content-Length", strconv.Itoa(len(data)))
			ctx.SetHeader("Cache-Control", CachePrivateNone)
			ctx.SetHeader("Content-Disposition", `inline; filename="passport.png"`)
			if _, err := ctx.BodyWriter().Write(data); err != nil {
				s.logger.Debug("passport download interrupted", "user_id", userID, "error", err)
			}
		},
	}, nil
}
