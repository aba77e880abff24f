package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/tellmeastory/zine-server/internal/config"
	"github.com/tellmeastory/zine-server/internal/logger"
	"github.com/tellmeastory/zine-server/internal/metrics"
	"github.com/tellmeastory/zine-server/internal/service"
)

// SessionRegistryHandle wraps the per-user session registry and its idle sweeper.
type SessionRegistryHandle struct {
	*service.SessionRegistry
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable. Every session's listeners are detached.
func (h *SessionRegistryHandle) Shutdown() error {
	h.cancel()
	return h.SessionRegistry.Shutdown()
}

// ProvideSessionRegistry provides the session registry and starts the idle sweeper.
func ProvideSessionRegistry(i do.Injector) (*SessionRegistryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	notifications := do.MustInvoke[*service.NotificationService](i)

	registry := service.NewSessionRegistry(
		storeHandle.DocumentStore,
		notifications,
		sseHandle.Manager,
		m,
		cfg.Session.IdleTimeout,
		log.Logger,
	)
	notifications.SetNotifier(registry)

	ctx, cancel := context.WithCancel(context.Background())
	go registry.Run(ctx)

	log.Info("Session registry started", "idle_timeout", cfg.Session.IdleTimeout)

	return &SessionRegistryHandle{SessionRegistry: registry, cancel: cancel}, nil
}
