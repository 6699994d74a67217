package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/cardlinkapp/cardlink-server/internal/config"
	"github.com/cardlinkapp/cardlink-server/internal/logger"
	"github.com/cardlinkapp/cardlink-server/internal/mirror"
	"github.com/cardlinkapp/cardlink-server/internal/sse"
	"github.com/cardlinkapp/cardlink-server/internal/store"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// StoreHandle wraps the snapshot store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the local snapshot store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	db, err := store.New(cfg.SnapshotPath(), log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Snapshot store initialized", "path", cfg.SnapshotPath())

	return &StoreHandle{Store: db}, nil
}

// MirrorHandle wraps the shared mirror database with shutdown capability.
type MirrorHandle struct {
	*mirror.Mirror
}

// Shutdown implements do.Shutdownable.
func (h *MirrorHandle) Shutdown() error {
	return h.Close()
}

// ProvideMirror provides the shared mirror database.
func ProvideMirror(i do.Injector) (*MirrorHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	m, err := mirror.Open(cfg.MirrorPath(), log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Mirror database initialized", "path", cfg.MirrorPath())

	return &MirrorHandle{Mirror: m}, nil
}
