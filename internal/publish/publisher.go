package publish

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"filmstrip/internal/config"
	"filmstrip/internal/logging"
	"filmstrip/internal/notifications"
	"filmstrip/internal/queue"
	"filmstrip/internal/services"
	"filmstrip/internal/stage"
	"filmstrip/internal/textutil"
)

// minPublishedFileSizeBytes guards against empty or truncated renders
// sneaking into the library.
const minPublishedFileSizeBytes = 1024

// Publisher moves rendered clips from staging into the library directory
// and records the URL the browser uses to play them back.
type Publisher struct {
	store    *queue.Store
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Service
}

// NewPublisher builds a Publisher with a notifier derived from config.
func NewPublisher(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Publisher {
	return NewPublisherWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewPublisherWithNotifier allows tests to substitute the notification service.
func NewPublisherWithNotifier(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Publisher {
	return &Publisher{store: store, cfg: cfg, logger: logger, notifier: notifier}
}

// SetLogger replaces the stage logger.
func (p *Publisher) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	p.logger = logging.NewComponentLogger(logger, "publisher")
}

// Prepare marks the item as entering publication.
func (p *Publisher) Prepare(ctx context.Context, item *queue.Item) error {
	item.InitProgress("Publishing", "Moving rendered video into library")
	return nil
}

// Execute moves the rendered file into the library and assigns its URL.
func (p *Publisher) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, p.logger)

	source := strings.TrimSpace(item.RenderedFile)
	if source == "" {
		return services.Wrap(
			services.ErrValidation,
			"publishing",
			"resolve rendered file",
			"Item reached publishing without a rendered file",
			nil,
		)
	}
	info, err := os.Stat(source)
	if err != nil {
		return services.Wrap(services.ErrValidation, "publishing", "stat rendered file", "Rendered file is missing from staging", err)
	}
	if info.Size() < minPublishedFileSizeBytes {
		return services.Wrap(
			services.ErrValidation,
			"publishing",
			"validate rendered file",
			fmt.Sprintf("Rendered file %q is unexpectedly small (%d bytes)", source, info.Size()),
			nil,
		)
	}

	libraryDir := strings.TrimSpace(p.cfg.Paths.LibraryDir)
	if libraryDir == "" {
		return services.Wrap(
			services.ErrConfiguration,
			"publishing",
			"resolve library dir",
			"Library directory not configured; set library_dir in your filmstrip config.toml",
			nil,
		)
	}
	if err := os.MkdirAll(libraryDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "publishing", "ensure library dir", "Failed to create library directory", err)
	}

	target, err := nextLibraryPath(libraryDir, item.OutputBasename(), filepath.Ext(source))
	if err != nil {
		return services.Wrap(services.ErrTransient, "publishing", "allocate library filename", "Unable to allocate library filename", err)
	}

	item.SetProgress("Publishing", fmt.Sprintf("Moving %s into library", filepath.Base(target)), 50)
	if err := p.store.Update(ctx, item); err != nil {
		logger.Warn("failed to persist publish progress", logging.Error(err))
	}

	if err := moveFile(logger, source, target); err != nil {
		return err
	}

	item.RenderedFile = ""
	item.FinalFile = target
	item.VideoURL = "/videos/" + filepath.Base(target)
	item.SetProgressComplete("Published", fmt.Sprintf("Video available at %s", item.VideoURL))

	p.cleanupStaging(logger, item)

	logger.Info(
		"publication completed",
		logging.String("final_file", target),
		logging.String("video_url", item.VideoURL),
	)

	if p.notifier != nil {
		title := textutil.DisplayTitle(item.Filename)
		if err := p.notifier.NotifyRenderCompleted(ctx, title, item.VideoURL); err != nil {
			logger.Warn("publish notifier failed", logging.Error(err))
		}
	}
	return nil
}

// HealthCheck verifies the library directory can be created and written.
func (p *Publisher) HealthCheck(ctx context.Context) stage.Health {
	const name = "publisher"
	libraryDir := strings.TrimSpace(p.cfg.Paths.LibraryDir)
	if libraryDir == "" {
		return stage.Unhealthy(name, "library_dir is not configured")
	}
	if err := os.MkdirAll(libraryDir, 0o755); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("library directory unavailable: %v", err))
	}
	return stage.Healthy(name)
}

func (p *Publisher) cleanupStaging(logger *slog.Logger, item *queue.Item) {
	root := strings.TrimSpace(item.StagingRoot(p.cfg.Paths.StagingDir))
	if root == "" {
		return
	}
	if err := os.RemoveAll(root); err != nil {
		logger.Warn("failed to remove staging directory", logging.String("staging_root", root), logging.Error(err))
	}
	item.StagedPath = ""
}

// nextLibraryPath returns the first free path for base in dir, suffixing a
// counter when the plain name is already taken.
func nextLibraryPath(dir, base, ext string) (string, error) {
	const maxAttempts = 10000
	if strings.TrimSpace(base) == "" {
		base = "render"
	}
	if ext == "" {
		ext = ".mp4"
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		name := base + ext
		if attempt > 0 {
			name = fmt.Sprintf("%s-%d%s", base, attempt, ext)
		}
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return candidate, nil
			}
			return "", err
		}
	}
	return "", fmt.Errorf("exhausted library filename slots in %s", dir)
}

// moveFile renames source into target, falling back to a verified copy and
// delete when staging and library live on different filesystems.
func moveFile(logger *slog.Logger, source, target string) error {
	renameErr := os.Rename(source, target)
	if renameErr == nil {
		return nil
	}
	var linkErr *os.LinkError
	if errors.As(renameErr, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if copyErr := copyFile(source, target); copyErr != nil {
			return services.Wrap(services.ErrTransient, "publishing", "copy into library", "Failed to copy video into library", copyErr)
		}
		if err := os.Remove(source); err != nil {
			logger.Warn("failed to remove source file after copy", logging.Error(err))
		}
		return nil
	}
	return services.Wrap(services.ErrTransient, "publishing", "move into library", "Failed to move video into library", renameErr)
}

// copyFile copies src to dst, verifying both size and content hash.
func copyFile(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	srcSize := srcInfo.Size()

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	tee := io.TeeReader(in, srcHasher)
	multi := io.MultiWriter(out, dstHasher)

	written, err := io.Copy(multi, tee)
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if written != srcSize {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcSize, written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}
