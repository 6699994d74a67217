// Package di provides dependency injection configuration for the CardLink server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/cardlinkapp/cardlink-server/internal/auth"
	"github.com/cardlinkapp/cardlink-server/internal/config"
	"github.com/cardlinkapp/cardlink-server/internal/di/providers"
	"github.com/cardlinkapp/cardlink-server/internal/logger"
	"github.com/cardlinkapp/cardlink-server/internal/media/images"
	"github.com/cardlinkapp/cardlink-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideAuthKey)

	// Storage layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideMirror)
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideAvatarService)

	// External clients
	do.Provide(injector, providers.ProvideDirectoryClient)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)

	// Business services
	do.Provide(injector, providers.ProvideInstanceService)
	do.Provide(injector, providers.ProvideSessionService)
	do.Provide(injector, providers.ProvideExchangeService)
	do.Provide(injector, providers.ProvideAuthService)

	// Workers
	do.Provide(injector, providers.ProvideImporter)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideMDNSService)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	// Invoke core services to trigger initialization
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.MirrorHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*images.AvatarService](injector)
	_ = do.MustInvoke[*providers.DirectoryClientHandle](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)

	// Business services
	_ = do.MustInvoke[*service.InstanceService](injector)
	_ = do.MustInvoke[*service.SessionService](injector)
	_ = do.MustInvoke[*service.ExchangeService](injector)
	_ = do.MustInvoke[*service.AuthService](injector)

	// Workers
	_ = do.MustInvoke[*providers.ImporterHandle](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)
	_ = do.MustInvoke[*providers.MDNSServiceHandle](injector)

	return nil
}
