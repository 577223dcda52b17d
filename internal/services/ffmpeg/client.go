package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

// ProgressUpdate captures ffmpeg render progress events.
type ProgressUpdate struct {
	Percent float64
	Frame   int64
	OutTime time.Duration
	Speed   float64
	Done    bool
}

// RenderSpec describes a single image-to-clip render job.
type RenderSpec struct {
	InputPath   string
	OutputPath  string
	ClipSeconds int
	Framerate   int
	Width       int
	Height      int
	VideoCodec  string
	Preset      string
}

// Client defines ffmpeg rendering behaviour.
type Client interface {
	Render(ctx context.Context, spec RenderSpec, progress func(ProgressUpdate)) error
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// CLI wraps the ffmpeg command-line renderer.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ffmpeg"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Args returns the ffmpeg invocation for a render spec. Exposed so callers
// can log the exact command.
func (c *CLI) Args(spec RenderSpec) []string {
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,format=yuv420p",
		spec.Width, spec.Height, spec.Width, spec.Height,
	)
	return []string{
		"-y", "-v", "error", "-nostats",
		"-loop", "1",
		"-i", spec.InputPath,
		"-t", fmt.Sprintf("%d", spec.ClipSeconds),
		"-r", fmt.Sprintf("%d", spec.Framerate),
		"-vf", filter,
		"-c:v", spec.VideoCodec,
		"-preset", spec.Preset,
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		spec.OutputPath,
	}
}

// Render launches ffmpeg and streams progress until the clip is written.
func (c *CLI) Render(ctx context.Context, spec RenderSpec, progress func(ProgressUpdate)) error {
	if strings.TrimSpace(spec.InputPath) == "" {
		return errors.New("input path required")
	}
	if strings.TrimSpace(spec.OutputPath) == "" {
		return errors.New("output path required")
	}
	if spec.ClipSeconds <= 0 {
		return errors.New("clip duration must be positive")
	}

	cmd := commandContext(ctx, c.binary, c.Args(spec)...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	total := time.Duration(spec.ClipSeconds) * time.Second
	parser := newProgressParser(total)
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		update, ok := parser.Feed(scanner.Text())
		if !ok {
			continue
		}
		if progress != nil {
			progress(update)
		}
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return fmt.Errorf("read ffmpeg output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("ffmpeg render failed: %w: %s", err, detail)
		}
		return fmt.Errorf("ffmpeg render failed: %w", err)
	}
	return nil
}

var _ Client = (*CLI)(nil)
