package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/tellmeastory/zine-server/internal/catalog"
	"github.com/tellmeastory/zine-server/internal/config"
	"github.com/tellmeastory/zine-server/internal/domain"
	"github.com/tellmeastory/zine-server/internal/logger"
	"github.com/tellmeastory/zine-server/internal/metrics"
	"github.com/tellmeastory/zine-server/internal/service"
	"github.com/tellmeastory/zine-server/internal/sse"
)

// ProvideCatalogService provides the catalog service. Refreshing starts in
// the catalog refresher once every listener is registered.
func ProvideCatalogService(i do.Injector) (*catalog.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	index := do.MustInvoke[*SearchIndexHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	var source catalog.Source
	if cfg.Catalog.File != "" {
		source = catalog.NewFileSource(cfg.Catalog.File, log.Logger)
		log.Info("Catalog source", "file", cfg.Catalog.File)
	} else {
		source = catalog.NewClient(cfg.Catalog.URL, cfg.Catalog.FetchTimeout)
		log.Info("Catalog source", "url", cfg.Catalog.URL, "refresh_interval", cfg.Catalog.RefreshInterval)
	}

	svc := catalog.NewService(source, index.SearchIndex, cfg.Catalog.RefreshInterval, log.Logger)
	svc.SetMetrics(m)
	svc.OnRefresh(func(c *domain.Catalog) {
		sseHandle.Emit(sse.NewCatalogRefreshedEvent(c))
	})

	return svc, nil
}

// CatalogRefresherHandle runs the catalog refresh loop.
type CatalogRefresherHandle struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *CatalogRefresherHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideCatalogRefresher loads the catalog once and keeps it fresh. A failed
// first load is logged; the catalog endpoints answer 503 until a later refresh
// succeeds.
func ProvideCatalogRefresher(i do.Injector) (*CatalogRefresherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	svc := do.MustInvoke[*catalog.Service](i)
	// New-issue notifications must be hooked up before the first refresh.
	_ = do.MustInvoke[*service.NotificationService](i)

	ctx, cancel := context.WithCancel(context.Background())

	loadCtx, loadCancel := context.WithTimeout(ctx, cfg.Catalog.FetchTimeout)
	if _, err := svc.Refresh(loadCtx); err != nil {
		log.WithError(err).Warn("Initial catalog load failed, will retry")
	}
	loadCancel()

	go svc.Run(ctx)

	return &CatalogRefresherHandle{cancel: cancel}, nil
}
