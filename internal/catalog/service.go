package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tellmeastory/zine-server/internal/domain"
	"github.com/tellmeastory/zine-server/internal/metrics"
	"github.com/tellmeastory/zine-server/internal/search"
)

// ErrNotLoaded is returned before the first successful load.
var ErrNotLoaded = errors.New("catalog not loaded")

// NewIssuesFunc is called after a refresh for each zine that gained issues.
type NewIssuesFunc func(ctx context.Context, zine domain.Zine, issues []domain.Issue)

// RefreshFunc is called after every refresh that changed the catalog.
type RefreshFunc func(c *domain.Catalog)

// Service holds the current catalog as an immutable snapshot that is swapped
// whole on every refresh.
type Service struct {
	source    Source
	index     *search.SearchIndex
	logger    *slog.Logger
	metrics   *metrics.Metrics
	current   atomic.Pointer[domain.Catalog]
	loadedAt  atomic.Int64
	newIssues []NewIssuesFunc
	refreshed []RefreshFunc
	interval  time.Duration
	hooksMu   sync.RWMutex
	refreshMu sync.Mutex
}

// NewService creates a catalog service. index may be nil.
func NewService(source Source, index *search.SearchIndex, interval time.Duration, logger *slog.Logger) *Service {
	return &Service{source: source, index: index, interval: interval, logger: logger}
}

// SetMetrics records refresh results and catalog size in m.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// OnNewIssues registers fn for new-issue events.
func (s *Service) OnNewIssues(fn NewIssuesFunc) {
	s.hooksMu.Lock()
	s.newIssues = append(s.newIssues, fn)
	s.hooksMu.Unlock()
}

// OnRefresh registers fn for catalog changes.
func (s *Service) OnRefresh(fn RefreshFunc) {
	s.hooksMu.Lock()
	s.refreshed = append(s.refreshed, fn)
	s.hooksMu.Unlock()
}

// Current returns the loaded catalog. The returned value must not be modified.
func (s *Service) Current() (*domain.Catalog, error) {
	c := s.current.Load()
	if c == nil {
		return nil, ErrNotLoaded
	}
	return c, nil
}

// Zines returns the loaded zines, or nil before the first load.
func (s *Service) Zines() []domain.Zine {
	if c := s.current.Load(); c != nil {
		return c.Zines
	}
	return nil
}

// Zine looks up one zine.
func (s *Service) Zine(id string) (domain.Zine, bool) {
	return s.current.Load().Zine(id)
}

// LoadedAt returns when the current catalog was loaded.
func (s *Service) LoadedAt() time.Time {
	if n := s.loadedAt.Load(); n != 0 {
		return time.Unix(0, n)
	}
	return time.Time{}
}

// Search queries the catalog index.
func (s *Service) Search(ctx context.Context, params search.SearchParams) (*search.SearchResult, error) {
	if s.index == nil {
		return &search.SearchResult{Query: params.Query, Hits: []search.SearchHit{}}, nil
	}
	return s.index.Search(ctx, params)
}

// Refresh fetches the catalog and swaps it in. It reports whether the catalog
// changed. An unchanged version leaves everything as it is.
func (s *Service) Refresh(ctx context.Context) (changed bool, err error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.metrics != nil {
		defer func() {
			s.metrics.CatalogRefreshes.WithLabelValues(metrics.Result(err)).Inc()
			if c := s.current.Load(); c != nil {
				s.metrics.CatalogZines.Set(float64(len(c.Zines)))
			}
		}()
	}

	next, err := s.source.Fetch(ctx)
	if err != nil {
		return false, err
	}

	prev := s.current.Load()
	if prev != nil && prev.Version == next.Version && prev.LastUpdated == next.LastUpdated {
		s.logger.Debug("catalog unchanged", "version", next.Version)
		return false, nil
	}

	if s.index != nil {
		if err := s.index.Rebuild(next); err != nil {
			s.logger.Warn("failed to rebuild catalog search index", "error", err)
		}
	}
	s.current.Store(next)
	s.loadedAt.Store(time.Now().UnixNano())
	s.logger.Info("catalog loaded", "version", next.Version, "zines", len(next.Zines))

	s.hooksMu.RLock()
	newIssues := append([]NewIssuesFunc(nil), s.newIssues...)
	refreshed := append([]RefreshFunc(nil), s.refreshed...)
	s.hooksMu.RUnlock()

	if prev != nil && len(newIssues) > 0 {
		for zineID, issueIDs := range domain.NewIssueIDs(prev.Zines, next.Zines) {
			z, _ := next.Zine(zineID)
			issues := make([]domain.Issue, 0, len(issueIDs))
			for _, id := range issueIDs {
				if issue, ok := z.Issue(id); ok {
					issues = append(issues, issue)
				}
			}
			for _, fn := range newIssues {
				fn(ctx, z, issues)
			}
		}
	}
	for _, fn := range refreshed {
		fn(next)
	}
	return true, nil
}

// Run refreshes on the configured interval, and on file changes when the
// source is a FileSource, until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if fs, ok := s.source.(*FileSource); ok {
		go func() {
			err := fs.Watch(ctx, func() { s.refreshLogged(ctx) })
			if err != nil {
				s.logger.Warn("catalog file watch stopped", "error", err)
			}
		}()
	}
	if s.interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshLogged(ctx)
		}
	}
}

func (s *Service) refreshLogged(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("catalog refresh failed, keeping previous version", "error", err)
	}
}
