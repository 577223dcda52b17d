package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate checks that the configuration is internally consistent. It is
// called after normalize, so paths are already expanded.
func (c *Config) Validate() error {
	var problems []string

	if err := c.validatePaths(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.validateRender(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.validateUpload(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.validateWebSocket(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.validateWorkflow(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.validateLogging(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return errors.New("paths.library_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q must be host:port", c.Paths.APIBind)
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.ClipSeconds <= 0 {
		return fmt.Errorf("render.clip_seconds must be positive, got %d", c.Render.ClipSeconds)
	}
	if c.Render.Framerate <= 0 {
		return fmt.Errorf("render.framerate must be positive, got %d", c.Render.Framerate)
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return fmt.Errorf("render dimensions must be positive, got %dx%d", c.Render.Width, c.Render.Height)
	}
	if c.Render.Width%2 != 0 || c.Render.Height%2 != 0 {
		return fmt.Errorf("render dimensions must be even for %s, got %dx%d", c.Render.VideoCodec, c.Render.Width, c.Render.Height)
	}
	if strings.TrimSpace(c.Render.VideoCodec) == "" {
		return errors.New("render.video_codec must be set")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.MaxFileMiB <= 0 {
		return fmt.Errorf("upload.max_file_mib must be positive, got %d", c.Upload.MaxFileMiB)
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return errors.New("upload.allowed_extensions must list at least one extension")
	}
	return nil
}

func (c *Config) validateWebSocket() error {
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket.ping_interval must be positive, got %d", c.WebSocket.PingInterval)
	}
	if c.WebSocket.PongTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket.pong_timeout (%d) must exceed ping_interval (%d)", c.WebSocket.PongTimeout, c.WebSocket.PingInterval)
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket.write_timeout must be positive, got %d", c.WebSocket.WriteTimeout)
	}
	if c.WebSocket.HandshakeTimeout <= 0 {
		return fmt.Errorf("websocket.handshake_timeout must be positive, got %d", c.WebSocket.HandshakeTimeout)
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket.send_buffer must be positive, got %d", c.WebSocket.SendBuffer)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QueuePollInterval <= 0 {
		return fmt.Errorf("workflow.queue_poll_interval must be positive, got %d", c.Workflow.QueuePollInterval)
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return fmt.Errorf("workflow.error_retry_interval must be positive, got %d", c.Workflow.ErrorRetryInterval)
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return fmt.Errorf("workflow.heartbeat_interval must be positive, got %d", c.Workflow.HeartbeatInterval)
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return fmt.Errorf("workflow.heartbeat_timeout (%d) must exceed heartbeat_interval (%d)", c.Workflow.HeartbeatTimeout, c.Workflow.HeartbeatInterval)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
