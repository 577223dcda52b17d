package publish_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filmstrip/internal/config"
	"filmstrip/internal/publish"
	"filmstrip/internal/queue"
	"filmstrip/internal/services"
	"filmstrip/internal/testsupport"
)

type recordingNotifier struct {
	completedTitle string
	completedURL   string
}

func (r *recordingNotifier) NotifyUploadReceived(context.Context, string) error { return nil }
func (r *recordingNotifier) NotifyRenderCompleted(_ context.Context, title, videoURL string) error {
	r.completedTitle = title
	r.completedURL = videoURL
	return nil
}
func (r *recordingNotifier) NotifyRenderFailed(context.Context, string, string) error { return nil }
func (r *recordingNotifier) NotifyQueueCompleted(context.Context, int, int, time.Duration) error {
	return nil
}
func (r *recordingNotifier) NotifyError(context.Context, error, string) error { return nil }
func (r *recordingNotifier) TestNotification(context.Context) error           { return nil }

func renderedItem(t *testing.T, cfg *config.Config, store *queue.Store) *queue.Item {
	t.Helper()
	item := testsupport.NewUpload(t, store, "beach sunset.jpg")
	root := item.StagingRoot(cfg.Paths.StagingDir)
	rendered := filepath.Join(root, "rendered", item.OutputBasename()+".mp4")
	testsupport.WriteFile(t, rendered, 4096)
	item.RenderedFile = rendered
	item.StagedPath = filepath.Join(root, "source", "beach sunset.jpg")
	item.Status = queue.StatusPublishing
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return item
}

func TestPublisherMovesRenderIntoLibrary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := renderedItem(t, cfg, store)
	notifier := &recordingNotifier{}

	pub := publish.NewPublisherWithNotifier(cfg, store, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), notifier)
	if err := pub.Prepare(context.Background(), item); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := pub.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	wantFinal := filepath.Join(cfg.Paths.LibraryDir, item.OutputBasename()+".mp4")
	if item.FinalFile != wantFinal {
		t.Errorf("FinalFile = %q, want %q", item.FinalFile, wantFinal)
	}
	if _, err := os.Stat(wantFinal); err != nil {
		t.Errorf("published file missing: %v", err)
	}
	if item.VideoURL != "/videos/"+item.OutputBasename()+".mp4" {
		t.Errorf("unexpected VideoURL %q", item.VideoURL)
	}
	if item.ProgressPercent != 100 || item.ProgressStage != "Published" {
		t.Errorf("unexpected progress %q/%v", item.ProgressStage, item.ProgressPercent)
	}
	if item.RenderedFile != "" {
		t.Errorf("RenderedFile not cleared: %q", item.RenderedFile)
	}
	if _, err := os.Stat(item.StagingRoot(cfg.Paths.StagingDir)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("staging root should be removed, stat err = %v", err)
	}
	if notifier.completedURL != item.VideoURL {
		t.Errorf("notifier got URL %q, want %q", notifier.completedURL, item.VideoURL)
	}
	if !strings.Contains(notifier.completedTitle, "Beach") {
		t.Errorf("unexpected notification title %q", notifier.completedTitle)
	}
}

func TestPublisherAllocatesUniqueName(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := renderedItem(t, cfg, store)

	taken := filepath.Join(cfg.Paths.LibraryDir, item.OutputBasename()+".mp4")
	testsupport.WriteFile(t, taken, 64)

	pub := publish.NewPublisherWithNotifier(cfg, store, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), nil)
	if err := pub.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := filepath.Join(cfg.Paths.LibraryDir, item.OutputBasename()+"-1.mp4")
	if item.FinalFile != want {
		t.Errorf("FinalFile = %q, want %q", item.FinalFile, want)
	}
}

func TestPublisherRejectsMissingRender(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewUpload(t, store, "beach.jpg")
	item.RenderedFile = filepath.Join(cfg.Paths.StagingDir, "nope", "missing.mp4")

	pub := publish.NewPublisherWithNotifier(cfg, store, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), nil)
	err := pub.Execute(context.Background(), item)
	if err == nil {
		t.Fatal("expected error for missing rendered file")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestPublisherRejectsTinyRender(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewUpload(t, store, "beach.jpg")
	tiny := filepath.Join(cfg.Paths.StagingDir, "tiny.mp4")
	testsupport.WriteFile(t, tiny, 16)
	item.RenderedFile = tiny

	pub := publish.NewPublisherWithNotifier(cfg, store, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), nil)
	err := pub.Execute(context.Background(), item)
	if !errors.Is(err, services.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestPublisherHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	pub := publish.NewPublisherWithNotifier(cfg, store, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), nil)

	if health := pub.HealthCheck(context.Background()); !health.Ready {
		t.Errorf("expected healthy, got %+v", health)
	}

	cfg.Paths.LibraryDir = ""
	if health := pub.HealthCheck(context.Background()); health.Ready {
		t.Error("expected unhealthy with empty library_dir")
	}
}
