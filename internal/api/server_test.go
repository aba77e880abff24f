package api

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/require"

	"github.com/tellmeastory/zine-server/internal/auth"
	"github.com/tellmeastory/zine-server/internal/catalog"
	"github.com/tellmeastory/zine-server/internal/domain"
	"github.com/tellmeastory/zine-server/internal/objectstore"
	"github.com/tellmeastory/zine-server/internal/passport"
	"github.com/tellmeastory/zine-server/internal/push"
	"github.com/tellmeastory/zine-server/internal/ratelimit"
	"github.com/tellmeastory/zine-server/internal/search"
	"github.com/tellmeastory/zine-server/internal/service"
	"github.com/tellmeastory/zine-server/internal/sse"
	"github.com/tellmeastory/zine-server/internal/store/sqlite"
)

var testCatalog = &domain.Catalog{
	Version:     "3",
	LastUpdated: "2024-06-01",
	Zines: []domain.Zine{
		{
			ID:            "z1",
			Name:          "Alpha Zine",
			Bio:           "Collages and comics",
			CoverImageURL: "https://example.com/alpha.jpg",
			Issues: []domain.Issue{
				{ID: "i2", Title: "Second", CoverImageURL: "https://example.com/a2.jpg", PublishedDate: "2024-05-01"},
				{ID: "i1", Title: "First", CoverImageURL: "https://example.com/a1.jpg", PublishedDate: "2024-01-01"},
			},
		},
		{
			ID:   "z2",
			Name: "Riot Grrrl Zine",
			Bio:  "Punk feminism since forever",
			Issues: []domain.Issue{
				{ID: "i1", Title: "Revolution", CoverImageURL: "https://example.com/r1.jpg", PublishedDate: "2024-03-01"},
			},
		},
	},
}

type staticSource struct{ c *domain.Catalog }

func (s staticSource) Fetch(context.Context) (*domain.Catalog, error) { return s.c, nil }

type solidImages struct{}

func (solidImages) Image(context.Context, string) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 14))
	for y := range 14 {
		for x := range 10 {
			img.Set(x, y, color.RGBA{R: 30, G: 90, B: 160, A: 255})
		}
	}
	return img, nil
}

type testServer struct {
	*Server
	api      humatest.TestAPI
	tokens   *auth.TokenService
	docs     *sqlite.Store
	broker   *push.LocalBroker
	sessions *service.SessionRegistry
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestServer wires the real services over a temp SQLite store. With
// loadCatalog false the catalog stays unloaded.
func setupTestServer(t *testing.T, loadCatalog bool) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := discardLogger()

	docs, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)

	key, err := auth.LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, time.Hour)
	require.NoError(t, err)

	objects, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	index, err := search.NewSearchIndex(logger)
	require.NoError(t, err)
	catalogService := catalog.NewService(staticSource{testCatalog}, index, time.Hour, logger)
	if loadCatalog {
		_, err = catalogService.Refresh(ctx)
		require.NoError(t, err)
	}

	sseManager := sse.NewManager(logger, nil)
	broker := push.NewLocalBroker(logger)
	notifications := service.NewNotificationService(docs, broker, logger)
	sessions := service.NewSessionRegistry(docs, notifications, sseManager, nil, 0, logger)
	notifications.SetNotifier(sessions)
	broker.OnDeliver(notifications.Deliver)

	postLimiter := ratelimit.PerMinute(5)
	fanMail := service.NewFanMailService(docs, sseManager, postLimiter, nil, logger)

	services := &Services{
		Catalog:       catalogService,
		Sessions:      sessions,
		Feed:          service.NewFeedService(catalogService),
		FanMail:       fanMail,
		Notifications: notifications,
		Passport: service.NewPassportService(catalogService, passport.NewCompositor(solidImages{}, nil, logger),
			objects, "", domain.PassportThemes[0].Name, logger),
		Submissions: service.NewSubmissionService(docs, objects, catalogService, logger),
		Accounts:    service.NewAccountService(docs, tokens, nil, sessions, notifications, fanMail, logger),
	}

	s := NewServer(docs, services, index, sseManager, tokens, nil, []string{"*"}, logger)

	t.Cleanup(func() {
		s.Close()
		postLimiter.Stop()
		_ = sessions.Shutdown()
		_ = index.Close()
		_ = docs.Close()
	})

	return &testServer{
		Server:   s,
		api:      humatest.Wrap(t, s.api),
		tokens:   tokens,
		docs:     docs,
		broker:   broker,
		sessions: sessions,
	}
}

// testEnvelope is the versioned envelope as a client decodes it.
type testEnvelope[T any] struct {
	Version int             `json:"v"`
	Success bool            `json:"success"`
	Data    T               `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

func decodeEnvelope[T any](t *testing.T, resp *httptest.ResponseRecorder) testEnvelope[T] {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	require.Equal(t, EnvelopeVersion, env.Version)
	return env
}

// register creates a local account and returns its token and user ID.
func (ts *testServer) register(t *testing.T, email string) (token, userID string) {
	t.Helper()
	resp := ts.api.Post("/api/v1/auth/register", map[string]any{
		"email":    email,
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decodeEnvelope[service.AuthResult](t, resp)
	return env.Data.AccessToken, env.Data.Account.ID
}

func bearer(token string) string {
	return "Authorization: Bearer " + token
}
