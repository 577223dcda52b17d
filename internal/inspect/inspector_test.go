package inspect_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"filmstrip/internal/inspect"
	"filmstrip/internal/logging"
	"filmstrip/internal/media/ffprobe"
	"filmstrip/internal/services"
	"filmstrip/internal/testsupport"
)

func TestInspectorRecordsDimensions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	item := testsupport.NewUpload(t, store, "photo.jpg")
	staged := filepath.Join(cfg.Paths.StagingDir, "photo.jpg")
	testsupport.WriteFile(t, staged, 4096)
	item.StagedPath = staged
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	probe := func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{
			Streams: []ffprobe.Stream{{CodecType: "video", CodecName: "mjpeg", Width: 1920, Height: 1080}},
		}, nil
	}
	ins := inspect.NewInspectorWithProbe(cfg, store, logging.NewNop(), probe)

	if err := ins.Prepare(context.Background(), item); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := ins.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if item.Width != 1920 || item.Height != 1080 {
		t.Fatalf("dimensions not recorded: %dx%d", item.Width, item.Height)
	}
	if item.ProgressPercent != 100 {
		t.Fatalf("expected progress complete, got %v", item.ProgressPercent)
	}
}

func TestInspectorRejectsMissingFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	item := testsupport.NewUpload(t, store, "gone.jpg")
	item.StagedPath = filepath.Join(cfg.Paths.StagingDir, "gone.jpg")

	ins := inspect.NewInspectorWithProbe(cfg, store, logging.NewNop(), func(context.Context, string, string) (ffprobe.Result, error) {
		t.Fatal("probe should not run for missing file")
		return ffprobe.Result{}, nil
	})

	err := ins.Execute(context.Background(), item)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInspectorRejectsNonImage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	item := testsupport.NewUpload(t, store, "noise.bin")
	staged := filepath.Join(cfg.Paths.StagingDir, "noise.bin")
	testsupport.WriteFile(t, staged, 128)
	item.StagedPath = staged

	ins := inspect.NewInspectorWithProbe(cfg, store, logging.NewNop(), func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{}, nil
	})

	err := ins.Execute(context.Background(), item)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInspectorWrapsProbeFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	item := testsupport.NewUpload(t, store, "bad.jpg")
	staged := filepath.Join(cfg.Paths.StagingDir, "bad.jpg")
	testsupport.WriteFile(t, staged, 128)
	item.StagedPath = staged

	ins := inspect.NewInspectorWithProbe(cfg, store, logging.NewNop(), func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{}, errors.New("boom")
	})

	err := ins.Execute(context.Background(), item)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestInspectorHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("ffprobe"))
	store := testsupport.MustOpenStore(t, cfg)
	ins := inspect.NewInspector(cfg, store, logging.NewNop())

	health := ins.HealthCheck(context.Background())
	if !health.Ready {
		t.Fatalf("expected healthy with stubbed ffprobe: %s", health.Detail)
	}
	if health.Name != "inspector" {
		t.Fatalf("unexpected health name %q", health.Name)
	}
}
