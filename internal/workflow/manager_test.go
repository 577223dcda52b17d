package workflow_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"filmstrip/internal/config"
	"filmstrip/internal/queue"
	"filmstrip/internal/services"
	"filmstrip/internal/stage"
	"filmstrip/internal/testsupport"
	"filmstrip/internal/workflow"

	"filmstrip/internal/logging"
)

type stubStage struct {
	name        string
	prepareHook func(*queue.Item)
	executeHook func(*queue.Item)
	prepareErr  error
	executeErr  error
	health      stage.Health
}

func newStubStage(name string) *stubStage {
	return &stubStage{name: name, health: stage.Healthy(name)}
}

func (s *stubStage) Prepare(_ context.Context, item *queue.Item) error {
	if s.prepareHook != nil {
		s.prepareHook(item)
	}
	return s.prepareErr
}

func (s *stubStage) Execute(_ context.Context, item *queue.Item) error {
	if s.executeHook != nil {
		s.executeHook(item)
	}
	return s.executeErr
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return s.health
}

type recordingNotifier struct {
	mu             sync.Mutex
	errors         []string
	queueCompletes int
}

func (r *recordingNotifier) NotifyUploadReceived(context.Context, string) error          { return nil }
func (r *recordingNotifier) NotifyRenderCompleted(context.Context, string, string) error { return nil }
func (r *recordingNotifier) NotifyRenderFailed(context.Context, string, string) error    { return nil }

func (r *recordingNotifier) NotifyQueueCompleted(_ context.Context, processed, failed int, _ time.Duration) error {
	r.mu.Lock()
	r.queueCompletes++
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) NotifyError(_ context.Context, err error, contextLabel string) error {
	r.mu.Lock()
	r.errors = append(r.errors, contextLabel)
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) TestNotification(context.Context) error { return nil }

func (r *recordingNotifier) completions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queueCompletes
}

func (r *recordingNotifier) errorLabels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

type capturingSink struct {
	mu      sync.Mutex
	updates []queue.Status
}

func (c *capturingSink) ItemProgress(item *queue.Item) {
	c.mu.Lock()
	c.updates = append(c.updates, item.Status)
	c.mu.Unlock()
}

func (c *capturingSink) statuses() []queue.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]queue.Status(nil), c.updates...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 0
	cfg.Workflow.ErrorRetryInterval = 0
	return cfg
}

func waitForStatus(t *testing.T, store *queue.Store, id int64, want queue.Status) *queue.Item {
	t.Helper()
	deadline := time.After(30 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for status %s", want)
		default:
		}
		updated, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if updated.Status == want {
			return updated
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManagerProcessesItemThroughPipeline(t *testing.T) {
	cfg := testConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	renderer := newStubStage("renderer")
	renderer.executeHook = func(item *queue.Item) {
		item.SetProgressComplete("Rendered", "clip ready")
	}

	notifier := &recordingNotifier{}
	sink := &capturingSink{}
	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), notifier)
	mgr.ConfigureStages(workflow.StageSet{
		Inspector: newStubStage("inspector"),
		Renderer:  renderer,
		Publisher: newStubStage("publisher"),
	})
	mgr.SetProgressSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	item := testsupport.NewUpload(t, store, "beach.jpg")
	if _, _, err := store.Release(ctx, item.Token); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	final := waitForStatus(t, store, item.ID, queue.StatusCompleted)
	if final.ProgressPercent != 100 {
		t.Errorf("ProgressPercent = %v, want 100", final.ProgressPercent)
	}
	if final.ErrorMessage != "" {
		t.Errorf("unexpected error message %q", final.ErrorMessage)
	}

	deadline := time.After(10 * time.Second)
	for notifier.completions() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected queue completion notification")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	seen := make(map[queue.Status]bool)
	for _, status := range sink.statuses() {
		seen[status] = true
	}
	for _, want := range []queue.Status{queue.StatusInspecting, queue.StatusRendering, queue.StatusPublishing, queue.StatusCompleted} {
		if !seen[want] {
			t.Errorf("progress sink never saw status %s", want)
		}
	}
}

func TestManagerMarksStageFailure(t *testing.T) {
	cfg := testConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	inspector := newStubStage("inspector")
	inspector.executeErr = services.Wrap(services.ErrExternalTool, "inspecting", "probe image", "ffprobe exploded", nil)

	notifier := &recordingNotifier{}
	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), notifier)
	mgr.ConfigureStages(workflow.StageSet{
		Inspector: inspector,
		Renderer:  newStubStage("renderer"),
		Publisher: newStubStage("publisher"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	item := testsupport.NewUpload(t, store, "broken.jpg")
	if _, _, err := store.Release(ctx, item.Token); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	failed := waitForStatus(t, store, item.ID, queue.StatusFailed)
	if !strings.Contains(failed.ErrorMessage, "ffprobe exploded") {
		t.Errorf("unexpected error message %q", failed.ErrorMessage)
	}

	deadline := time.After(10 * time.Second)
	for len(notifier.errorLabels()) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected stage error notification")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	if labels := notifier.errorLabels(); !strings.Contains(labels[0], "inspector") {
		t.Errorf("unexpected error context %q", labels[0])
	}
}

func TestManagerStatusIncludesStageHealth(t *testing.T) {
	cfg := testConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	inspector := newStubStage("inspector")
	inspector.health = stage.Unhealthy("inspector", "ffprobe missing")

	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), &recordingNotifier{})
	mgr.ConfigureStages(workflow.StageSet{Inspector: inspector})

	status := mgr.Status(context.Background())
	health, ok := status.StageHealth["inspector"]
	if !ok {
		t.Fatal("expected stage health entry for inspector")
	}
	if health.Ready {
		t.Error("expected unready health")
	}
	if health.Detail != "ffprobe missing" {
		t.Errorf("unexpected detail %q", health.Detail)
	}
}

func TestManagerStartRequiresStages(t *testing.T) {
	cfg := testConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), &recordingNotifier{})
	if err := mgr.Start(context.Background()); err == nil {
		mgr.Stop()
		t.Fatal("expected error when no stages configured")
	}
}
