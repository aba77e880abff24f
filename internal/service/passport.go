package service

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/tellmeastory/zine-server/internal/color"
	"github.com/tellmeastory/zine-server/internal/domain"
	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/objectstore"
	"github.com/tellmeastory/zine-server/internal/passport"
)

// MaxPassportCovers caps how many read issues one passport shows, newest first.
const MaxPassportCovers = 60

// PassportImage describes a stored passport render.
type PassportImage struct {
	Path       string    `json:"path"`
	BlurHash   string    `json:"blurhash"`
	Theme      string    `json:"theme"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CoverCount int       `json:"cover_count"`
	RenderedAt time.Time `json:"rendered_at"`
}

// PassportService computes reading stats and renders passports.
type PassportService struct {
	catalog      CatalogReader
	compositor   *passport.Compositor
	objects      objectstore.Store
	logger       *slog.Logger
	canvasURL    string
	defaultTheme string
	now          func() time.Time
	rand         func() *rand.Rand
}

// NewPassportService creates the service. canvasURL may be empty, in which case
// the theme background fills the canvas.
func NewPassportService(
	catalog CatalogReader,
	compositor *passport.Compositor,
	objects objectstore.Store,
	canvasURL, defaultTheme string,
	logger *slog.Logger,
) *PassportService {
	return &PassportService{
		catalog:      catalog,
		compositor:   compositor,
		objects:      objects,
		logger:       logger,
		canvasURL:    canvasURL,
		defaultTheme: defaultTheme,
		now:          time.Now,
		rand:         func() *rand.Rand { return nil },
	}
}

// Themes lists the available themes.
func (s *PassportService) Themes() []domain.PassportTheme {
	return domain.PassportThemes
}

// Stats returns the user's top zines by issues read.
func (s *PassportService) Stats(ctx context.Context, reads *ReadStore) ([]domain.ZineReadStats, error) {
	groups, err := reads.FetchGrouped(ctx)
	if err != nil {
		return nil, err
	}
	return domain.ReadStats(groups, s.catalog.Zines()), nil
}

// PassportPath is where a user's latest passport is stored.
func PassportPath(userID string) string {
	return "passports/" + userID + "/passport.png"
}

// Render draws the covers of the user's read issues in the named theme and
// stores the PNG, replacing the previous one.
func (s *PassportService) Render(ctx context.Context, userID string, reads *ReadStore, themeName string) (PassportImage, error) {
	if themeName == "" {
		themeName = s.defaultTheme
	}
	theme, ok := domain.ThemeByName(themeName)
	if !ok {
		return PassportImage{}, domainerrors.Validationf("unknown theme %q", themeName)
	}
	bg, err := color.ParseHex(theme.Background)
	if err != nil {
		return PassportImage{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "invalid theme color")
	}

	records, err := reads.Records(ctx)
	if err != nil {
		return PassportImage{}, err
	}
	if len(records) == 0 {
		return PassportImage{}, domainerrors.Validation("read an issue before making a passport")
	}
	if len(records) > MaxPassportCovers {
		records = records[:MaxPassportCovers]
	}

	covers := make([]passport.Cover, 0, len(records))
	for _, r := range records {
		if r.CoverImageURL == "" {
			continue
		}
		covers = append(covers, passport.Cover{IssueID: r.IssueID, ImageURL: r.CoverImageURL})
	}

	res, err := s.compositor.Render(ctx, passport.Request{
		Background: bg,
		Rand:       s.rand(),
		CanvasURL:  s.canvasURL,
		Covers:     covers,
	})
	if err != nil {
		return PassportImage{}, domainerrors.Wrap(err, domainerrors.CodeUnknown, "failed to generate passport image")
	}

	path, err := s.objects.Put(ctx, PassportPath(userID), res.PNG, "image/png")
	if err != nil {
		return PassportImage{}, persistence(err)
	}

	s.logger.Info("passport rendered", "user_id", userID, "covers", len(covers), "theme", theme.Name)
	return PassportImage{
		Path:       path,
		BlurHash:   res.BlurHash,
		Theme:      theme.Name,
		Width:      res.Width,
		Height:     res.Height,
		CoverCount: len(covers),
		RenderedAt: s.now().UTC(),
	}, nil
}

// Latest returns the user's stored passport PNG.
func (s *PassportService) Latest(ctx context.Context, userID string) ([]byte, error) {
	data, err := s.objects.Get(ctx, PassportPath(userID))
	if err != nil {
		if domainerrors.Is(err, objectstore.ErrNotFound) {
			return nil, domainerrors.NotFound("no passport rendered yet")
		}
		return nil, persistence(err)
	}
	return data, nil
}
