package inspect

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"filmstrip/internal/config"
	"filmstrip/internal/logging"
	"filmstrip/internal/media/ffprobe"
	"filmstrip/internal/queue"
	"filmstrip/internal/services"
	"filmstrip/internal/stage"
)

// Inspector validates staged uploads and extracts image dimensions.
type Inspector struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	probe  func(context.Context, string, string) (ffprobe.Result, error)
}

// NewInspector constructs the inspection handler.
func NewInspector(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Inspector {
	return NewInspectorWithProbe(cfg, store, logger, ffprobe.Inspect)
}

// NewInspectorWithProbe allows injecting a custom probe function (used for tests).
func NewInspectorWithProbe(cfg *config.Config, store *queue.Store, logger *slog.Logger, probe func(context.Context, string, string) (ffprobe.Result, error)) *Inspector {
	ins := &Inspector{store: store, cfg: cfg, probe: probe}
	ins.SetLogger(logger)
	return ins
}

// SetLogger updates the inspector's logging destination while preserving component labeling.
func (ins *Inspector) SetLogger(logger *slog.Logger) {
	ins.logger = logging.NewComponentLogger(logger, "inspector")
}

func (ins *Inspector) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, ins.logger)
	item.InitProgress("Inspecting", "Probing uploaded image")
	logger.Debug("starting inspection preparation")
	return nil
}

func (ins *Inspector) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, ins.logger)
	stageStart := time.Now()

	staged := strings.TrimSpace(item.StagedPath)
	if staged == "" {
		return services.Wrap(
			services.ErrValidation,
			"inspect",
			"validate inputs",
			"No staged file recorded for this upload; re-upload the image",
			nil,
		)
	}
	info, err := os.Stat(staged)
	if err != nil {
		return services.Wrap(
			services.ErrValidation,
			"inspect",
			"stat staged file",
			"Staged file is missing; the staging directory may have been cleaned",
			err,
		)
	}
	if info.IsDir() {
		return services.Wrap(
			services.ErrValidation,
			"inspect",
			"stat staged file",
			fmt.Sprintf("Staged path %q is a directory", staged),
			nil,
		)
	}

	result, err := ins.probe(ctx, ins.cfg.FFprobeBinary(), staged)
	if err != nil {
		return services.Wrap(
			services.ErrExternalTool,
			"inspect",
			"ffprobe",
			"Failed to probe uploaded image; the file may be corrupt or an unsupported format",
			err,
		)
	}

	width, height := result.Dimensions()
	if width <= 0 || height <= 0 {
		return services.Wrap(
			services.ErrValidation,
			"inspect",
			"validate image stream",
			"Uploaded file does not contain a decodable image",
			nil,
		)
	}

	item.Width = width
	item.Height = height
	if item.SizeBytes == 0 {
		item.SizeBytes = info.Size()
	}
	item.SetProgressComplete("Inspected", fmt.Sprintf("Image is %dx%d", width, height))

	logger.Info(
		"inspection complete",
		logging.Int("width", width),
		logging.Int("height", height),
		logging.Int64("size_bytes", info.Size()),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	return nil
}

// HealthCheck verifies that ffprobe is available.
func (ins *Inspector) HealthCheck(ctx context.Context) stage.Health {
	const name = "inspector"
	if ins.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	binary := strings.TrimSpace(ins.cfg.FFprobeBinary())
	if binary == "" {
		return stage.Unhealthy(name, "ffprobe binary not configured")
	}
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("ffprobe binary %q not found", binary))
	}
	return stage.Healthy(name)
}
