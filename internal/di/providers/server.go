package providers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/samber/do/v2"

	"github.com/tellmeastory/zine-server/internal/api"
	"github.com/tellmeastory/zine-server/internal/catalog"
	"github.com/tellmeastory/zine-server/internal/config"
	"github.com/tellmeastory/zine-server/internal/logger"
	"github.com/tellmeastory/zine-server/internal/mdns"
	"github.com/tellmeastory/zine-server/internal/metrics"
	"github.com/tellmeastory/zine-server/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	api *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Server.Shutdown(ctx)
	h.api.Close()
	return err
}

// ProvideHTTPServer assembles the API and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	searchHandle := do.MustInvoke[*SearchIndexHandle](i)
	authn := do.MustInvoke[*Authenticator](i)
	sessions := do.MustInvoke[*SessionRegistryHandle](i)
	fanMail := do.MustInvoke[*FanMailServiceHandle](i)

	services := &api.Services{
		Catalog:       do.MustInvoke[*catalog.Service](i),
		Sessions:      sessions.SessionRegistry,
		Feed:          do.MustInvoke[*service.FeedService](i),
		FanMail:       fanMail.FanMailService,
		Notifications: do.MustInvoke[*service.NotificationService](i),
		Passport:      do.MustInvoke[*service.PassportService](i),
		Submissions:   do.MustInvoke[*service.SubmissionService](i),
		Accounts:      do.MustInvoke[*service.AccountService](i),
	}

	handler := api.NewServer(
		storeHandle.DocumentStore,
		services,
		searchHandle.SearchIndex,
		sseHandle.Manager,
		authn.Verifier,
		m,
		cfg.Server.CORSOrigins,
		log.Logger,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server error")
		}
	}()

	return &HTTPServerHandle{Server: srv, api: handler}, nil
}

// MDNSServiceHandle wraps mdns.Service with Shutdownable.
type MDNSServiceHandle struct {
	*mdns.Service
}

// Shutdown implements do.Shutdownable.
func (h *MDNSServiceHandle) Shutdown() error {
	if h.Service != nil {
		h.Stop()
	}
	return nil
}

// ProvideMDNSService advertises the server on the LAN when enabled.
func ProvideMDNSService(i do.Injector) (*MDNSServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Server.AdvertiseMDNS {
		log.Info("mDNS advertisement disabled by configuration")
		return &MDNSServiceHandle{}, nil
	}

	port, err := strconv.Atoi(cfg.Server.Port)
	if err != nil {
		log.WithField("port", cfg.Server.Port).Warn("Failed to parse server port for mDNS, using default")
		port = 8080
	}

	svc := mdns.NewService(log.Logger)
	err = svc.Start(mdns.Advertisement{
		Name:     cfg.Server.Name,
		Version:  api.Version,
		AuthMode: cfg.Auth.Mode,
		Port:     port,
	})
	if err != nil {
		// Non-fatal: the server works without mDNS (e.g., Docker, cloud).
		log.WithError(err).Warn("mDNS advertisement unavailable")
	}

	return &MDNSServiceHandle{Service: svc}, nil
}
