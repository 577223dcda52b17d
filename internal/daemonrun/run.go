// Package daemonrun hosts the daemon runtime loop shared by filmstripd and
// the hidden "filmstrip daemon" subcommand.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"filmstrip/internal/config"
	"filmstrip/internal/daemon"
	"filmstrip/internal/inspect"
	"filmstrip/internal/ipc"
	"filmstrip/internal/logging"
	"filmstrip/internal/notifications"
	"filmstrip/internal/publish"
	"filmstrip/internal/queue"
	"filmstrip/internal/render"
	"filmstrip/internal/workflow"
	"filmstrip/internal/ws"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the filmstrip daemon and blocks until the context is cancelled
// or the process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logPath := filepath.Join(cfg.Paths.LogDir, "filmstrip.log")
	stream := logging.NewStreamHub(4096)

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		StreamHub:        stream,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "filmstrip.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)
	manager := workflow.NewManagerWithNotifier(cfg, store, logger, notifier)
	manager.ConfigureStages(workflow.StageSet{
		Inspector: inspect.NewInspector(cfg, store, logger),
		Renderer:  render.NewRenderer(cfg, store, logger),
		Publisher: publish.NewPublisherWithNotifier(cfg, store, logger, notifier),
	})

	hub := ws.NewHub(cfg, store, logger)

	d, err := daemon.New(cfg, store, logger, manager, hub)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	d.SetLogStream(stream)
	defer d.Close()

	socketPath := filepath.Join(cfg.Paths.LogDir, "filmstrip.sock")
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("filmstrip daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
