package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"filmstrip/internal/config"
	"filmstrip/internal/logging"
	"filmstrip/internal/notifications"
	"filmstrip/internal/queue"
	"filmstrip/internal/workflow"
	"filmstrip/internal/ws"
)

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	hub      *ws.Hub
	notifier notifications.Service
	stream   *logging.StreamHub

	api   *apiServer
	inbox *inboxMonitor

	logPath  string
	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	Sessions     int
}

// New constructs a daemon with initialized dependencies. The WebSocket hub is
// registered as the workflow progress sink so stage updates reach connected
// browsers as they happen.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, hub *ws.Hub) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil || hub == nil {
		return nil, errors.New("daemon requires config, store, logger, workflow manager, and hub")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "filmstripd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: wf,
		hub:      hub,
		notifier: notifications.NewService(cfg),
		logPath:  filepath.Join(cfg.Paths.LogDir, "filmstrip.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	wf.SetProgressSink(hub)

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	d.inbox = newInboxMonitor(cfg, store, logger, d.notifier)
	return d, nil
}

// SetLogStream attaches the in-memory log buffer served by /api/logs.
func (d *Daemon) SetLogStream(stream *logging.StreamHub) {
	d.stream = stream
}

// Start acquires the daemon lock and launches the workflow manager, API
// server, and inbox monitor. Items left mid-stage by a previous run are
// rolled back before processing resumes.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another filmstrip daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if reset, err := d.store.ResetStuckProcessing(d.ctx); err != nil {
		d.logger.Warn("failed to reset interrupted items", logging.Error(err))
	} else if reset > 0 {
		d.logger.Info("reset interrupted items", logging.Int64("count", reset))
	}

	if err := d.workflow.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}

	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	if d.inbox != nil {
		if err := d.inbox.start(d.ctx); err != nil {
			d.logger.Warn("inbox monitor failed to start", logging.Error(err))
		}
	}

	d.running.Store(true)
	d.logger.Info("filmstrip daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.cfg.Paths.APIBind))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.inbox != nil {
		d.inbox.stop()
	}
	d.api.stop()
	d.workflow.Stop()
	d.hub.Close()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("filmstrip daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr returns the address the HTTP API is listening on, or empty when
// the server is not running. Useful when the bind address requests an
// ephemeral port.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// LogStream returns the live log buffer, if configured.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.stream
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// ListQueue returns queue items filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Item, error) {
	if len(statuses) == 0 {
		return d.store.List(ctx)
	}
	return d.store.List(ctx, statuses...)
}

// DescribeItem fetches a single queue item by identifier.
func (d *Daemon) DescribeItem(ctx context.Context, id int64) (*queue.Item, error) {
	return d.store.GetByID(ctx, id)
}

// ClearQueue removes all queue items.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed queue items.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed queue items.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// ResetStuck transitions in-flight items back to their previous state for retry.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	return d.store.ResetStuckProcessing(ctx)
}

// RetryFailed resets failed items (optionally a subset) back to pending.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	return d.store.RetryFailed(ctx, ids...)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// ImportFile stages a local image file and enqueues it for processing. Unlike
// browser uploads, imported files skip the explicit release step and go
// straight to pending.
func (d *Daemon) ImportFile(ctx context.Context, sourcePath string) (*queue.Item, error) {
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return nil, errors.New("source path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source path %q is a directory", absPath)
	}
	ext := strings.ToLower(filepath.Ext(info.Name()))
	if !d.cfg.ExtensionAllowed(ext) {
		return nil, fmt.Errorf("unsupported file extension %q", ext)
	}
	if info.Size() > d.cfg.MaxUploadBytes() {
		return nil, fmt.Errorf("file exceeds %d MiB limit", d.cfg.Upload.MaxFileMiB)
	}

	stagedPath, err := stageIncoming(d.cfg, absPath, info.Name())
	if err != nil {
		return nil, err
	}
	item, err := d.store.NewUpload(ctx, info.Name(), stagedPath, "", info.Size())
	if err != nil {
		_ = os.Remove(stagedPath)
		return nil, fmt.Errorf("enqueue imported file: %w", err)
	}
	if _, _, err := d.store.Release(ctx, item.Token); err != nil {
		return nil, fmt.Errorf("release imported file: %w", err)
	}
	item.Status = queue.StatusPending

	d.logger.Info("file imported",
		logging.Int64("item_id", item.ID),
		logging.String("token", item.Token),
		logging.String("source", absPath))
	return item, nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Sessions:     d.hub.SessionCount(),
	}
}
