// Package importer watches a drop directory for badge-scanner CSV exports
// and merges their rows into attendee contact lists. Event organizers run
// dedicated badge scanners at the door; this is how those scans reach
// CardLink without every attendee rescanning by hand.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

// settleDelay is how long a file must stay unchanged before it's imported.
// Badge scanners write exports incrementally.
const settleDelay = 2 * time.Second

// CardMerger merges an imported card into an owner's contact list.
// The exchange service implements this.
type CardMerger interface {
	AddCard(ctx context.Context, scope domain.Scope, card domain.Card, isReciprocal bool) error
}

// Importer watches a directory for CSV drops.
type Importer struct {
	watchPath string
	eventID   string
	merger    CardMerger
	logger    *slog.Logger
	watcher   *fsnotify.Watcher

	pending map[string]*pendingFile // path -> settle state
	mu      sync.Mutex              // protects pending map

	done chan struct{}
	wg   sync.WaitGroup
}

// pendingFile tracks a CSV that may still be written to.
type pendingFile struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

// New creates an importer for the given drop directory.
func New(watchPath, eventID string, merger CardMerger, logger *slog.Logger) (*Importer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := os.MkdirAll(watchPath, 0o755); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("create watch directory: %w", err)
	}
	if err := watcher.Add(watchPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", watchPath, err)
	}

	return &Importer{
		watchPath: watchPath,
		eventID:   eventID,
		merger:    merger,
		logger:    logger,
		watcher:   watcher,
		pending:   make(map[string]*pendingFile),
		done:      make(chan struct{}),
	}, nil
}

// Start processes watch events until the context is canceled.
// Files already present in the drop directory are imported immediately.
func (im *Importer) Start(ctx context.Context) {
	im.importExisting(ctx)

	im.wg.Add(1)
	go im.processEvents(ctx)
}

// Stop shuts the importer down and waits for in-flight work.
func (im *Importer) Stop() {
	close(im.done)

	im.mu.Lock()
	for _, pending := range im.pending {
		pending.timer.Stop()
	}
	clear(im.pending)
	im.mu.Unlock()

	im.watcher.Close()
	im.wg.Wait()
}

// importExisting handles files dropped while the server was down.
func (im *Importer) importExisting(ctx context.Context) {
	entries, err := os.ReadDir(im.watchPath)
	if err != nil {
		im.logger.Warn("read drop directory failed", "path", im.watchPath, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isCSV(entry.Name()) {
			continue
		}
		im.importFile(ctx, filepath.Join(im.watchPath, entry.Name()))
	}
}

func (im *Importer) processEvents(ctx context.Context) {
	defer im.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-im.done:
			return
		case event, ok := <-im.watcher.Events:
			if !ok {
				return
			}
			im.handleEvent(ctx, event)
		case err, ok := <-im.watcher.Errors:
			if !ok {
				return
			}
			im.logger.Warn("watcher error", "error", err)
		}
	}
}

func (im *Importer) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !isCSV(event.Name) {
		return
	}

	if event.Op&fsnotify.Remove != 0 {
		im.cancelPending(event.Name)
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
		im.startSettling(ctx, event.Name)
	}
}

// startSettling begins or restarts the settle timer for a file.
func (im *Importer) startSettling(ctx context.Context, path string) {
	im.mu.Lock()
	defer im.mu.Unlock()

	if pending, exists := im.pending[path]; exists {
		pending.timer.Stop()
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(im.pending, path)
		return
	}

	pending := &pendingFile{
		size:    info.Size(),
		modTime: info.ModTime(),
	}
	pending.timer = time.AfterFunc(settleDelay, func() {
		im.checkSettled(ctx, path)
	})
	im.pending[path] = pending
}

// cancelPending cancels a pending event
func (im *Importer) cancelPending(path string) {
	im.mu.Lock()
	defer im.mu.Unlock()

	if pending, exists := im.pending[path]; exists {
		pending.timer.Stop()
		delete(im.pending, path)
	}
}

// checkSettled imports the file once its size and mtime stop moving.
func (im *Importer) checkSettled(ctx context.Context, path string) {
	im.mu.Lock()
	pending, exists := im.pending[path]
	if !exists {
		im.mu.Unlock()
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(im.pending, path)
		im.mu.Unlock()
		return
	}

	if info.Size() != pending.size || info.ModTime() != pending.modTime {
		// Still being written, restart timer
		pending.size = info.Size()
		pending.modTime = info.ModTime()
		pending.timer = time.AfterFunc(settleDelay, func() {
			im.checkSettled(ctx, path)
		})
		im.mu.Unlock()
		return
	}

	delete(im.pending, path)
	im.mu.Unlock()

	im.importFile(ctx, path)
}

// importFile parses one CSV and merges its rows. The file is renamed with a
// .done suffix afterwards so a restart never double-imports.
func (im *Importer) importFile(ctx context.Context, path string) {
	batchID := uuid.NewString()
	logger := im.logger.With("batch_id", batchID, "file", filepath.Base(path))

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("open import file failed", "error", err)
		return
	}
	rows, err := ParseCSV(f)
	f.Close()
	if err != nil {
		logger.Warn("parse import file failed", "error", err)
		im.markDone(path, ".failed", logger)
		return
	}

	merged := 0
	for _, row := range rows {
		if row.OwnerID == "" || row.Card.ID == "" {
			logger.Warn("skipping row without owner or card ID")
			continue
		}

		scope := domain.Scope{EventID: im.eventID, UserID: row.OwnerID}
		// Imported rows merge like reciprocal deliveries: duplicates and
		// invalid rows drop silently instead of aborting the batch.
		if err := im.merger.AddCard(ctx, scope, row.Card, true); err != nil {
			logger.Warn("merge imported card failed", "owner", row.OwnerID, "card_id", row.Card.ID, "error", err)
			continue
		}
		merged++
	}

	logger.Info("badge import complete", "rows", len(rows), "merged", merged)
	im.markDone(path, ".done", logger)
}

func (im *Importer) markDone(path, suffix string, logger *slog.Logger) {
	if err := os.Rename(path, path+suffix); err != nil {
		logger.Warn("rename imported file failed", "error", err)
	}
}

func isCSV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}
