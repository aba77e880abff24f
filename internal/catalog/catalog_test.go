package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellmeastory/zine-server/internal/domain"
	"github.com/tellmeastory/zine-server/internal/metrics"
	"github.com/tellmeastory/zine-server/internal/search"
)

const catalogV1 = `{
  "version": "1",
  "last_updated": "2024-06-01",
  "zines": [
    {"id": "z2", "name": "beta Beat", "bio": "plain bio", "issues": [
      {"id": "i1", "title": "Old", "published_date": "2023-01-01"},
      {"id": "i2", "title": "New", "published_date": "2024-05-01"}
    ]},
    {"id": "z1", "name": "Alpha", "bio": "<p>Made in <strong>Olympia</strong></p>", "issues": []}
  ]
}`

const catalogV2 = `{
  "version": "2",
  "last_updated": "2024-06-08",
  "zines": [
    {"id": "z2", "name": "beta Beat", "issues": [
      {"id": "i1", "title": "Old", "published_date": "2023-01-01"},
      {"id": "i2", "title": "New", "published_date": "2024-05-01"},
      {"id": "i3", "title": "Newest", "published_date": "2024-06-07"}
    ]},
    {"id": "z1", "name": "Alpha", "issues": []},
    {"id": "z9", "name": "Brand New", "issues": [{"id": "i1", "title": "First"}]}
  ]
}`

func TestDecode(t *testing.T) {
	c, err := Decode(strings.NewReader(catalogV1))
	require.NoError(t, err)

	require.Len(t, c.Zines, 2)
	assert.Equal(t, "Alpha", c.Zines[0].Name)
	assert.Equal(t, "Made in **Olympia**", c.Zines[0].Bio)
	assert.Equal(t, "plain bio", c.Zines[1].Bio)
	assert.Equal(t, "i2", c.Zines[1].Issues[0].ID)

	_, err = Decode(strings.NewReader("{"))
	assert.Error(t, err)
}

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/catalog.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(catalogV1))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/catalog.json", time.Second).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", c.Version)

	_, err = NewClient(srv.URL+"/missing", time.Second).Fetch(context.Background())
	assert.ErrorContains(t, err, "status 404")
}

type stubSource struct {
	mu   sync.Mutex
	body string
}

func (s *stubSource) set(body string) {
	s.mu.Lock()
	s.body = body
	s.mu.Unlock()
}

func (s *stubSource) Fetch(context.Context) (*domain.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Decode(strings.NewReader(s.body))
}

func TestService_Refresh(t *testing.T) {
	index, err := search.NewSearchIndex(nil)
	require.NoError(t, err)
	defer index.Close()

	src := &stubSource{body: catalogV1}
	svc := NewService(src, index, 0, slog.Default())

	_, err = svc.Current()
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.Nil(t, svc.Zines())

	got := map[string][]string{}
	svc.OnNewIssues(func(_ context.Context, z domain.Zine, issues []domain.Issue) {
		for _, i := range issues {
			got[z.ID] = append(got[z.ID], i.ID)
		}
	})
	refreshes := 0
	svc.OnRefresh(func(*domain.Catalog) { refreshes++ })

	changed, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, got, "first load announces nothing")

	changed, err = svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	src.set(catalogV2)
	changed, err = svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, map[string][]string{"z2": {"i3"}}, got)
	assert.Equal(t, 2, refreshes)

	z, ok := svc.Zine("z9")
	require.True(t, ok)
	assert.Equal(t, "Brand New", z.Name)
	assert.False(t, svc.LoadedAt().IsZero())

	res, err := svc.Search(context.Background(), search.SearchParams{Query: "newest"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "i3", res.Hits[0].IssueID)
}

func TestService_RefreshFailureKeepsPrevious(t *testing.T) {
	src := &stubSource{body: catalogV1}
	svc := NewService(src, nil, 0, slog.Default())
	m := metrics.New()
	svc.SetMetrics(m)

	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	src.set("not json")
	_, err = svc.Refresh(context.Background())
	require.Error(t, err)

	c, err := svc.Current()
	require.NoError(t, err)
	assert.Equal(t, "1", c.Version)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CatalogRefreshes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CatalogRefreshes.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CatalogZines))
}

func TestFileSource_FetchAndWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(catalogV1), 0o600))

	src := NewFileSource(path, slog.Default())
	src.debounce = 20 * time.Millisecond

	c, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", c.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 10)
	go func() {
		_ = src.Watch(ctx, func() { changed <- struct{}{} })
	}()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte(catalogV2), 0o600))

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}

	c, err = src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", c.Version)
}
