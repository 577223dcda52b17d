package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"

	"filmstrip/internal/config"
	"filmstrip/internal/logging"
	"filmstrip/internal/notifications"
	"filmstrip/internal/queue"
)

// inboxMonitor watches a drop directory and enqueues image files copied into
// it. Writes are debounced so a file being copied in is only ingested once
// it has settled; the source file is removed after staging succeeds.
type inboxMonitor struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service

	dir         string
	settleDelay time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
	running bool

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newInboxMonitor(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *inboxMonitor {
	if !cfg.Inbox.Enabled {
		return nil
	}
	dir := strings.TrimSpace(cfg.Inbox.Dir)
	if dir == "" {
		return nil
	}
	return &inboxMonitor{
		cfg:         cfg,
		store:       store,
		logger:      logging.NewComponentLogger(logger, "inbox-monitor"),
		notifier:    notifier,
		dir:         dir,
		settleDelay: 500 * time.Millisecond,
		pending:     make(map[string]time.Time),
	}
}

func (m *inboxMonitor) start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create inbox directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create inbox watcher: %w", err)
	}
	if err := watcher.Add(m.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch inbox directory: %w", err)
	}

	m.watcher = watcher
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	// Files dropped before the daemon started still get picked up.
	m.scanExisting()

	go m.run(ctx)
	m.logger.Info("inbox monitor watching", logging.String("dir", m.dir))
	return nil
}

func (m *inboxMonitor) stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	<-m.doneCh
	if err := m.watcher.Close(); err != nil {
		m.logger.Warn("failed to close inbox watcher", logging.Error(err))
	}
}

func (m *inboxMonitor) run(ctx context.Context) {
	defer close(m.doneCh)

	settleTicker := time.NewTicker(200 * time.Millisecond)
	defer settleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("inbox watcher error", logging.Error(err))
		case <-settleTicker.C:
			m.ingestSettled(ctx)
		}
	}
}

func (m *inboxMonitor) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	if !m.cfg.ExtensionAllowed(ext) {
		return
	}
	m.mu.Lock()
	m.pending[event.Name] = time.Now()
	m.mu.Unlock()
}

func (m *inboxMonitor) scanExisting() {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		m.logger.Warn("failed to scan inbox directory", logging.Error(err))
		return
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !m.cfg.ExtensionAllowed(ext) {
			continue
		}
		m.pending[filepath.Join(m.dir, entry.Name())] = now
	}
}

func (m *inboxMonitor) ingestSettled(ctx context.Context) {
	m.mu.Lock()
	now := time.Now()
	var ready []string
	for path, seen := range m.pending {
		if now.Sub(seen) >= m.settleDelay {
			ready = append(ready, path)
			delete(m.pending, path)
		}
	}
	m.mu.Unlock()

	for _, path := range ready {
		m.ingest(ctx, path)
	}
}

// ingest stages one settled inbox file, enqueues it for immediate
// processing, and removes the source. Inbox files have no browser session
// behind them, so they are released to pending right away.
func (m *inboxMonitor) ingest(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		// Removed or renamed away between settle and ingest.
		return
	}
	if info.IsDir() {
		return
	}
	if info.Size() == 0 || info.Size() > m.cfg.MaxUploadBytes() {
		m.logger.Warn("skipping inbox file outside size limits",
			logging.String("path", path),
			logging.Int64("size_bytes", info.Size()))
		return
	}

	stagedPath, err := stageIncoming(m.cfg, path, info.Name())
	if err != nil {
		m.logger.Warn("failed to stage inbox file", logging.String("path", path), logging.Error(err))
		return
	}
	item, err := m.store.NewUpload(ctx, info.Name(), stagedPath, "", info.Size())
	if err != nil {
		_ = os.Remove(stagedPath)
		m.logger.Error("failed to enqueue inbox file", logging.String("path", path), logging.Error(err))
		return
	}
	if _, _, err := m.store.Release(ctx, item.Token); err != nil {
		m.logger.Error("failed to release inbox item", logging.Int64("item_id", item.ID), logging.Error(err))
		return
	}
	if err := os.Remove(path); err != nil {
		m.logger.Warn("failed to remove ingested inbox file", logging.String("path", path), logging.Error(err))
	}

	m.logger.Info("inbox file queued",
		logging.Int64("item_id", item.ID),
		logging.String("token", item.Token),
		logging.String("filename", item.Filename))
	if err := m.notifier.NotifyUploadReceived(ctx, item.Filename); err != nil {
		m.logger.Warn("upload notification failed", logging.Error(err))
	}
}
