// Package di provides dependency injection configuration for the zine server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/tellmeastory/zine-server/internal/catalog"
	"github.com/tellmeastory/zine-server/internal/config"
	"github.com/tellmeastory/zine-server/internal/di/providers"
	"github.com/tellmeastory/zine-server/internal/logger"
	"github.com/tellmeastory/zine-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideMetrics)
	do.Provide(injector, providers.ProvideFirebaseApp)

	// Storage
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideObjectStore)
	do.Provide(injector, providers.ProvideImageCache)
	do.Provide(injector, providers.ProvideCompositor)

	// Catalog and search
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideCatalogService)

	// Auth and push
	do.Provide(injector, providers.ProvideAuthKey)
	do.Provide(injector, providers.ProvideAuthenticator)
	do.Provide(injector, providers.ProvidePushGateway)

	// Business services
	do.Provide(injector, providers.ProvideNotificationService)
	do.Provide(injector, providers.ProvideSessionRegistry)
	do.Provide(injector, providers.ProvideFeedService)
	do.Provide(injector, providers.ProvideFanMailService)
	do.Provide(injector, providers.ProvidePassportService)
	do.Provide(injector, providers.ProvideSubmissionService)
	do.Provide(injector, providers.ProvideAccountService)

	// Workers
	do.Provide(injector, providers.ProvideCatalogRefresher)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideMDNSService)

	return injector
}

// Bootstrap initializes all services in dependency order and starts the
// workers and the HTTP server. Firebase is only touched when a component is
// configured to use it.
func Bootstrap(injector *do.RootScope) error {
	steps := []func(do.Injector) error{
		invoke[*config.Config],
		invoke[*logger.Logger],
		invoke[*providers.SSEManagerHandle],
		invoke[*providers.StoreHandle],
		invoke[*providers.SearchIndexHandle],
		invoke[*catalog.Service],
		invoke[*providers.Authenticator],
		invoke[*providers.PushGateway],

		// Business services
		invoke[*service.NotificationService],
		invoke[*providers.SessionRegistryHandle],
		invoke[*providers.FanMailServiceHandle],
		invoke[*service.PassportService],
		invoke[*service.AccountService],

		// Workers
		invoke[*providers.CatalogRefresherHandle],

		// Server
		invoke[*providers.HTTPServerHandle],
		invoke[*providers.MDNSServiceHandle],
	}
	for _, step := range steps {
		if err := step(injector); err != nil {
			return err
		}
	}
	return nil
}

func invoke[T any](i do.Injector) error {
	_, err := do.Invoke[T](i)
	return err
}
