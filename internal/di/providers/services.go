package providers

import (
	"github.com/samber/do/v2"

	"github.com/tellmeastory/zine-server/internal/catalog"
	"github.com/tellmeastory/zine-server/internal/config"
	"github.com/tellmeastory/zine-server/internal/logger"
	"github.com/tellmeastory/zine-server/internal/metrics"
	"github.com/tellmeastory/zine-server/internal/objectstore"
	"github.com/tellmeastory/zine-server/internal/passport"
	"github.com/tellmeastory/zine-server/internal/ratelimit"
	"github.com/tellmeastory/zine-server/internal/service"
)

// ProvideNotificationService provides device registration and notification
// fan-out. In local push mode the broker delivers straight back into it.
func ProvideNotificationService(i do.Injector) (*service.NotificationService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	gateway := do.MustInvoke[*PushGateway](i)
	catalogService := do.MustInvoke[*catalog.Service](i)

	svc := service.NewNotificationService(storeHandle.DocumentStore, gateway.Messenger, log.Logger)

	if gateway.Broker != nil {
		gateway.Broker.OnDeliver(svc.Deliver)
	}
	if cfg.Catalog.NotifyNewIssues {
		catalogService.OnNewIssues(svc.PublishNewIssues)
	}

	return svc, nil
}

// ProvideFeedService provides the following feed.
func ProvideFeedService(i do.Injector) (*service.FeedService, error) {
	return service.NewFeedService(do.MustInvoke[*catalog.Service](i)), nil
}

// FanMailServiceHandle wraps the fan mail service and its posting limiter.
type FanMailServiceHandle struct {
	*service.FanMailService
	limiter *ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *FanMailServiceHandle) Shutdown() error {
	h.limiter.Stop()
	return nil
}

// ProvideFanMailService provides the fan mail board.
func ProvideFanMailService(i do.Injector) (*FanMailServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	limiter := ratelimit.PerMinute(cfg.FanMail.PostsPerMinute)
	svc := service.NewFanMailService(storeHandle.DocumentStore, sseHandle.Manager, limiter, m, log.Logger)

	return &FanMailServiceHandle{FanMailService: svc, limiter: limiter}, nil
}

// ProvidePassportService provides passport rendering.
func ProvidePassportService(i do.Injector) (*service.PassportService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	catalogService := do.MustInvoke[*catalog.Service](i)
	compositor := do.MustInvoke[*passport.Compositor](i)
	objects := do.MustInvoke[objectstore.Store](i)

	return service.NewPassportService(
		catalogService, compositor, objects,
		cfg.Passport.CanvasURL, cfg.Passport.ThemeName,
		log.Logger,
	), nil
}

// ProvideSubmissionService provides zine and issue submissions.
func ProvideSubmissionService(i do.Injector) (*service.SubmissionService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	objects := do.MustInvoke[objectstore.Store](i)
	catalogService := do.MustInvoke[*catalog.Service](i)

	return service.NewSubmissionService(storeHandle.DocumentStore, objects, catalogService, log.Logger), nil
}

// ProvideAccountService provides sign-up, sign-in and account deletion.
func ProvideAccountService(i do.Injector) (*service.AccountService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	authn := do.MustInvoke[*Authenticator](i)
	sessions := do.MustInvoke[*SessionRegistryHandle](i)
	notifications := do.MustInvoke[*service.NotificationService](i)
	fanMail := do.MustInvoke[*FanMailServiceHandle](i)

	return service.NewAccountService(
		storeHandle.DocumentStore,
		authn.Tokens,
		authn.Identities,
		sessions.SessionRegistry,
		notifications,
		fanMail.FanMailService,
		log.Logger,
	), nil
}
