package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/cardlinkapp/cardlink-server/internal/config"
	"github.com/cardlinkapp/cardlink-server/internal/importer"
	"github.com/cardlinkapp/cardlink-server/internal/logger"
	"github.com/cardlinkapp/cardlink-server/internal/service"
)

// ImporterHandle wraps the CSV badge importer.
// Importer is nil when no watch path is configured.
type ImporterHandle struct {
	Importer *importer.Importer
	cancel   context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ImporterHandle) Shutdown() error {
	if h.Importer != nil {
		h.cancel()
		h.Importer.Stop()
	}
	return nil
}

// ProvideImporter provides the badge-scanner CSV importer.
func ProvideImporter(i do.Injector) (*ImporterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Importer.WatchPath == "" {
		log.Info("Badge importer disabled by configuration")
		return &ImporterHandle{}, nil
	}

	instanceService := do.MustInvoke[*service.InstanceService](i)
	exchangeService := do.MustInvoke[*service.ExchangeService](i)

	instance, err := instanceService.GetInstance(context.Background())
	if err != nil {
		return nil, err
	}

	im, err := importer.New(cfg.Importer.WatchPath, instance.EventID, exchangeService, log.Logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	im.Start(ctx)

	log.Info("Badge importer watching", "path", cfg.Importer.WatchPath, "event_id", instance.EventID)

	return &ImporterHandle{Importer: im, cancel: cancel}, nil
}
