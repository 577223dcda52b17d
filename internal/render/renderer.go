package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"filmstrip/internal/config"
	"filmstrip/internal/logging"
	"filmstrip/internal/media/ffprobe"
	"filmstrip/internal/queue"
	"filmstrip/internal/services"
	ffmpegsvc "filmstrip/internal/services/ffmpeg"
	"filmstrip/internal/stage"
)

// ProgressSink receives progress snapshots while a render runs. The
// websocket hub implements this to push updates to connected browsers.
type ProgressSink interface {
	ItemProgress(item *queue.Item)
}

// Renderer manages ffmpeg rendering of inspected images.
type Renderer struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	client ffmpegsvc.Client
	sink   ProgressSink
	probe  func(context.Context, string, string) (ffprobe.Result, error)
}

const progressPersistInterval = 2 * time.Second

// NewRenderer constructs the rendering handler.
func NewRenderer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Renderer {
	client := ffmpegsvc.NewCLI(ffmpegsvc.WithBinary(cfg.FFmpegBinary()))
	return NewRendererWithDependencies(cfg, store, logger, client)
}

// NewRendererWithDependencies allows injecting a custom ffmpeg client (used for tests).
func NewRendererWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, client ffmpegsvc.Client) *Renderer {
	r := &Renderer{
		store:  store,
		cfg:    cfg,
		client: client,
		probe:  ffprobe.Inspect,
	}
	r.SetLogger(logger)
	return r
}

// SetLogger updates the renderer's logging destination while preserving component labeling.
func (r *Renderer) SetLogger(logger *slog.Logger) {
	r.logger = logging.NewComponentLogger(logger, "renderer")
}

// SetProgressSink wires a sink that receives live progress snapshots.
func (r *Renderer) SetProgressSink(sink ProgressSink) {
	r.sink = sink
}

func (r *Renderer) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, r.logger)
	item.InitProgress("Rendering", "Starting video render")
	logger.Debug("starting render preparation")
	return nil
}

func (r *Renderer) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, r.logger)
	stageStart := time.Now()

	staged := strings.TrimSpace(item.StagedPath)
	if staged == "" {
		return services.Wrap(
			services.ErrValidation,
			"render",
			"validate inputs",
			"No staged file available for rendering; ensure the inspection stage completed",
			nil,
		)
	}
	if item.Width <= 0 || item.Height <= 0 {
		return services.Wrap(
			services.ErrValidation,
			"render",
			"validate inputs",
			"Image dimensions unknown; rerun inspection",
			nil,
		)
	}

	stagingRoot := item.StagingRoot(r.cfg.Paths.StagingDir)
	if stagingRoot == "" {
		stagingRoot = filepath.Join(r.cfg.Paths.StagingDir, fmt.Sprintf("queue-%d", item.ID))
	}
	renderedDir := filepath.Join(stagingRoot, "rendered")
	if err := r.cleanupRenderedDir(logger, renderedDir); err != nil {
		return err
	}
	if err := os.MkdirAll(renderedDir, 0o755); err != nil {
		return services.Wrap(
			services.ErrConfiguration,
			"render",
			"ensure rendered dir",
			"Failed to create rendered directory; set staging_dir to a writable path",
			err,
		)
	}

	outputPath := filepath.Join(renderedDir, item.OutputBasename()+".mp4")
	spec := ffmpegsvc.RenderSpec{
		InputPath:   staged,
		OutputPath:  outputPath,
		ClipSeconds: r.cfg.Render.ClipSeconds,
		Framerate:   r.cfg.Render.Framerate,
		Width:       r.cfg.Render.Width,
		Height:      r.cfg.Render.Height,
		VideoCodec:  r.cfg.Render.VideoCodec,
		Preset:      r.cfg.Render.Preset,
	}

	logger.Info(
		"launching ffmpeg render",
		logging.String("input", staged),
		logging.String("output", outputPath),
		logging.Int("clip_seconds", spec.ClipSeconds),
		logging.String("codec", spec.VideoCodec),
	)

	if err := r.client.Render(ctx, spec, r.progressFunc(ctx, item, logger)); err != nil {
		return services.Wrap(
			services.ErrExternalTool,
			"render",
			"ffmpeg render",
			"ffmpeg rendering failed; inspect the log output and confirm ffmpeg is installed",
			err,
		)
	}

	if err := r.validateRenderedArtifact(ctx, outputPath); err != nil {
		return err
	}

	item.RenderedFile = outputPath
	item.SetProgressComplete("Rendered", "Video render completed")

	logger.Info(
		"render stage summary",
		logging.String("rendered_file", outputPath),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	return nil
}

// progressFunc persists throttled progress and pushes every update to the
// websocket sink so the browser sees smooth movement.
func (r *Renderer) progressFunc(ctx context.Context, item *queue.Item, logger *slog.Logger) func(ffmpegsvc.ProgressUpdate) {
	var lastPersisted time.Time
	gate := newProgressLogGate(5)
	return func(update ffmpegsvc.ProgressUpdate) {
		copy := *item
		changed := false
		if update.Percent >= 0 && update.Percent != copy.ProgressPercent {
			copy.ProgressPercent = update.Percent
			changed = true
		}
		message := renderProgressMessage(update)
		if message != "" && message != copy.ProgressMessage {
			copy.ProgressMessage = message
			changed = true
		}
		if !changed {
			return
		}

		if gate.admit(update.Percent, copy.ProgressStage) {
			logger.Info(
				"render progress",
				logging.Float64("progress_percent", update.Percent),
				logging.Int64("frame", update.Frame),
				logging.Float64("speed", update.Speed),
			)
		}

		*item = copy
		if r.sink != nil {
			r.sink.ItemProgress(item)
		}

		now := time.Now()
		if !update.Done && !lastPersisted.IsZero() && now.Sub(lastPersisted) < progressPersistInterval {
			return
		}
		lastPersisted = now
		if err := r.store.UpdateProgress(ctx, item.ID, item.ProgressStage, item.ProgressMessage, item.ProgressPercent); err != nil {
			logger.Warn("failed to persist render progress", logging.Error(err))
		}
	}
}

func renderProgressMessage(update ffmpegsvc.ProgressUpdate) string {
	if update.Done {
		return "Finalizing clip"
	}
	if update.Percent < 0 {
		return ""
	}
	if update.Speed > 0 {
		return fmt.Sprintf("Encoding %.1f%% @ %.1fx", update.Percent, update.Speed)
	}
	return fmt.Sprintf("Encoding %.1f%%", update.Percent)
}

func (r *Renderer) cleanupRenderedDir(logger *slog.Logger, renderedDir string) error {
	info, err := os.Stat(renderedDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return services.Wrap(
			services.ErrConfiguration,
			"render",
			"inspect rendered dir",
			"Failed to inspect previous rendered artifacts",
			err,
		)
	}
	if !info.IsDir() {
		return services.Wrap(
			services.ErrConfiguration,
			"render",
			"inspect rendered dir",
			fmt.Sprintf("Expected rendered path %q to be a directory", renderedDir),
			nil,
		)
	}
	if err := os.RemoveAll(renderedDir); err != nil {
		return services.Wrap(
			services.ErrConfiguration,
			"render",
			"remove stale artifacts",
			"Failed to remove previous rendered outputs",
			err,
		)
	}
	if logger != nil {
		logger.Info("removed stale rendered artifacts", logging.String("rendered_dir", renderedDir))
	}
	return nil
}

func (r *Renderer) validateRenderedArtifact(ctx context.Context, path string) error {
	logger := logging.WithContext(ctx, r.logger)
	info, err := os.Stat(path)
	if err != nil {
		logger.Error("render validation failed", logging.String("reason", "stat failure"), logging.Error(err))
		return services.Wrap(
			services.ErrValidation,
			"render",
			"validate output",
			"Rendered file is missing",
			err,
		)
	}
	if info.Size() == 0 {
		logger.Error("render validation failed", logging.String("reason", "empty file"))
		return services.Wrap(
			services.ErrValidation,
			"render",
			"validate output",
			fmt.Sprintf("Rendered file %q is empty", path),
			nil,
		)
	}

	probe, err := r.probe(ctx, r.cfg.FFprobeBinary(), path)
	if err != nil {
		logger.Error("render validation failed", logging.String("reason", "ffprobe"), logging.Error(err))
		return services.Wrap(
			services.ErrExternalTool,
			"render",
			"ffprobe validation",
			"Failed to inspect rendered file with ffprobe",
			err,
		)
	}
	if probe.VideoStreamCount() == 0 {
		logger.Error("render validation failed", logging.String("reason", "no video stream"))
		return services.Wrap(
			services.ErrValidation,
			"render",
			"validate video stream",
			"Rendered file does not contain a video stream",
			nil,
		)
	}
	return nil
}

// HealthCheck verifies rendering dependencies for ffmpeg.
func (r *Renderer) HealthCheck(ctx context.Context) stage.Health {
	const name = "renderer"
	if r.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(r.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	if r.client == nil {
		return stage.Unhealthy(name, "ffmpeg client unavailable")
	}
	binary := strings.TrimSpace(r.cfg.FFmpegBinary())
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("ffmpeg binary %q not found", binary))
	}
	return stage.Healthy(name)
}
