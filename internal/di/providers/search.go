package providers

import (
	"github.com/samber/do/v2"

	"github.com/cardlinkapp/cardlink-server/internal/config"
	"github.com/cardlinkapp/cardlink-server/internal/logger"
	"github.com/cardlinkapp/cardlink-server/internal/search"
)

// SearchIndexHandle wraps the contact search index with shutdown capability.
type SearchIndexHandle struct {
	*search.ContactIndex
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex provides the Bleve contact index.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	index, err := search.NewContactIndex(search.Options{
		DataPath: cfg.SearchIndexPath(),
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	log.Info("Search index initialized", "path", cfg.SearchIndexPath())

	return &SearchIndexHandle{ContactIndex: index}, nil
}
