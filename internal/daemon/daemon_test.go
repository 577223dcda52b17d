package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filmstrip/internal/config"
	"filmstrip/internal/daemon"
	"filmstrip/internal/logging"
	"filmstrip/internal/queue"
	"filmstrip/internal/stage"
	"filmstrip/internal/testsupport"
	"filmstrip/internal/workflow"
	"filmstrip/internal/ws"
)

type noopStage struct{}

func (noopStage) Prepare(context.Context, *queue.Item) error { return nil }
func (noopStage) Execute(context.Context, *queue.Item) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health   { return stage.Healthy("noop") }

func newDaemon(t *testing.T, opts ...testsupport.ConfigOption) (*daemon.Daemon, *queue.Store, *config.Config) {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	cfg.Workflow.QueuePollInterval = 0
	cfg.Workflow.ErrorRetryInterval = 0
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{
		Inspector: noopStage{},
		Renderer:  noopStage{},
		Publisher: noopStage{},
	})
	hub := ws.NewHub(cfg, store, logger)

	d, err := daemon.New(cfg, store, logger, mgr, hub)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
	})
	return d, store, cfg
}

func TestDaemonStartStop(t *testing.T) {
	d, _, cfg := newDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.PID != os.Getpid() {
		t.Fatalf("PID = %d, want %d", status.PID, os.Getpid())
	}
	if status.Sessions != 0 {
		t.Fatalf("Sessions = %d, want 0", status.Sessions)
	}
	wantLock := filepath.Join(cfg.Paths.LogDir, "filmstripd.lock")
	if status.LockFilePath != wantLock {
		t.Fatalf("LockFilePath = %q, want %q", status.LockFilePath, wantLock)
	}
	if _, err := os.Stat(wantLock); err != nil {
		t.Fatalf("expected lock file to exist: %v", err)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonImportFile(t *testing.T) {
	d, store, cfg := newDaemon(t)

	source := filepath.Join(t.TempDir(), "holiday.jpg")
	testsupport.WriteFile(t, source, 2048)

	ctx := context.Background()
	item, err := d.ImportFile(ctx, source)
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if item.Status != queue.StatusPending {
		t.Fatalf("Status = %q, want %q", item.Status, queue.StatusPending)
	}
	if item.Filename != "holiday.jpg" {
		t.Fatalf("Filename = %q", item.Filename)
	}

	stored, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.StagedPath == "" {
		t.Fatal("expected staged path to be recorded")
	}
	if !strings.HasPrefix(stored.StagedPath, cfg.Paths.StagingDir) {
		t.Fatalf("StagedPath %q not under staging dir", stored.StagedPath)
	}
	if _, err := os.Stat(stored.StagedPath); err != nil {
		t.Fatalf("expected staged copy to exist: %v", err)
	}
}

func TestDaemonImportFileRejectsUnsupportedExtension(t *testing.T) {
	d, _, _ := newDaemon(t)

	source := filepath.Join(t.TempDir(), "notes.txt")
	testsupport.WriteFile(t, source, 64)

	if _, err := d.ImportFile(context.Background(), source); err == nil {
		t.Fatal("expected import of .txt file to fail")
	}
}

func TestDaemonTestNotificationWithoutTopic(t *testing.T) {
	d, _, _ := newDaemon(t)

	sent, detail, err := d.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if sent {
		t.Fatal("expected no notification without configured topic")
	}
	if detail == "" {
		t.Fatal("expected explanatory detail")
	}
}

func TestDaemonProcessesImportedFile(t *testing.T) {
	d, store, _ := newDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	source := filepath.Join(t.TempDir(), "sunset.png")
	testsupport.WriteFile(t, source, 512)
	item, err := d.ImportFile(ctx, source)
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}

	deadline := time.Now().Add(30 * time.Second)
	for {
		current, err := store.GetByID(ctx, item.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if current.Status == queue.StatusCompleted {
			break
		}
		if current.Status == queue.StatusFailed {
			t.Fatalf("item failed: %s", current.ErrorMessage)
		}
		if time.Now().After(deadline) {
			t.Fatalf("item stuck in status %q", current.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
