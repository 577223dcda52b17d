package daemon

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"filmstrip/internal/config"
)

// incomingDirName holds staged source files before the workflow claims them.
const incomingDirName = "incoming"

func ensureIncomingDir(cfg *config.Config) (string, error) {
	dir := filepath.Join(cfg.Paths.StagingDir, incomingDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create incoming directory: %w", err)
	}
	return dir, nil
}

// createIncoming opens a fresh staging file for an upload. The random name
// keeps concurrent uploads of the same filename from colliding.
func createIncoming(cfg *config.Config, filename string) (*os.File, error) {
	dir, err := ensureIncomingDir(cfg)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(filename))
	target := filepath.Join(dir, uuid.NewString()+ext)
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	return f, nil
}

// stageIncoming copies a local file into the incoming staging area.
func stageIncoming(cfg *config.Config, sourcePath, filename string) (string, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("open source file: %w", err)
	}
	defer src.Close()

	dst, err := createIncoming(cfg, filename)
	if err != nil {
		return "", err
	}
	stagedPath := dst.Name()

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(stagedPath)
		return "", fmt.Errorf("stage source file: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(stagedPath)
		return "", fmt.Errorf("close staging file: %w", err)
	}
	return stagedPath, nil
}
