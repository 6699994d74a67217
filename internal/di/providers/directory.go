package providers

import (
	"github.com/samber/do/v2"

	"github.com/cardlinkapp/cardlink-server/internal/config"
	"github.com/cardlinkapp/cardlink-server/internal/directory"
	"github.com/cardlinkapp/cardlink-server/internal/logger"
)

// DirectoryClientHandle wraps the attendee directory client.
// Client is nil when enrichment is disabled by configuration.
type DirectoryClientHandle struct {
	Client *directory.Client
}

// Shutdown implements do.Shutdownable.
func (h *DirectoryClientHandle) Shutdown() error {
	if h.Client != nil {
		h.Client.Close()
	}
	return nil
}

// ProvideDirectoryClient provides the attendee directory client.
func ProvideDirectoryClient(i do.Injector) (*DirectoryClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Directory.BaseURL == "" {
		log.Info("Directory enrichment disabled by configuration")
		return &DirectoryClientHandle{}, nil
	}

	client, err := directory.New(cfg.Directory.BaseURL, cfg.Directory.RequestsPerMinute, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Directory client initialized",
		"base_url", cfg.Directory.BaseURL,
		"requests_per_minute", cfg.Directory.RequestsPerMinute,
	)

	return &DirectoryClientHandle{Client: client}, nil
}
