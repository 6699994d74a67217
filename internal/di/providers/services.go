package providers

import (
	"github.com/samber/do/v2"

	"github.com/cardlinkapp/cardlink-server/internal/auth"
	"github.com/cardlinkapp/cardlink-server/internal/logger"
	"github.com/cardlinkapp/cardlink-server/internal/service"
)

// ProvideInstanceService provides the server instance service.
func ProvideInstanceService(i do.Injector) (*service.InstanceService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewInstanceService(storeHandle.Store, log.Logger), nil
}

// ProvideSessionService provides the session management service.
func ProvideSessionService(i do.Injector) (*service.SessionService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokenService := do.MustInvoke[*auth.TokenService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSessionService(storeHandle.Store, tokenService, log.Logger), nil
}

// ProvideExchangeService provides the contact exchange engine.
func ProvideExchangeService(i do.Injector) (*service.ExchangeService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	mirrorHandle := do.MustInvoke[*MirrorHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	directoryHandle := do.MustInvoke[*DirectoryClientHandle](i)
	searchHandle := do.MustInvoke[*SearchIndexHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	// A typed nil inside the interface would defeat the nil checks in the
	// exchange service, so only pass the client when it exists.
	var profiles service.ProfileSource
	if directoryHandle.Client != nil {
		profiles = directoryHandle.Client
	}

	svc := service.NewExchangeService(
		storeHandle.Store,
		mirrorHandle.Mirror,
		sseHandle.Manager,
		profiles,
		log.Logger,
	)
	svc.SetIndexer(searchHandle.ContactIndex)

	return svc, nil
}

// ProvideAuthService provides the authentication service.
func ProvideAuthService(i do.Injector) (*service.AuthService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sessionService := do.MustInvoke[*service.SessionService](i)
	instanceService := do.MustInvoke[*service.InstanceService](i)
	exchangeService := do.MustInvoke[*service.ExchangeService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAuthService(storeHandle.Store, sessionService, instanceService, exchangeService, log.Logger), nil
}
