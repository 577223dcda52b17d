package config

import (
	"strings"
	"testing"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return cfg
}

func TestValidateRejectsOddDimensions(t *testing.T) {
	cfg := validConfig(t)
	cfg.Render.Width = 1279

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "even") {
		t.Fatalf("expected even-dimension error, got: %v", err)
	}
}

func TestValidateRejectsBadBindAddress(t *testing.T) {
	cfg := validConfig(t)
	cfg.Paths.APIBind = "localhost"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "api_bind") {
		t.Fatalf("expected api_bind error, got: %v", err)
	}
}

func TestValidateRejectsPongShorterThanPing(t *testing.T) {
	cfg := validConfig(t)
	cfg.WebSocket.PongTimeout = cfg.WebSocket.PingInterval

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "pong_timeout") {
		t.Fatalf("expected pong_timeout error, got: %v", err)
	}
}

func TestValidateRejectsHeartbeatTimeoutTooShort(t *testing.T) {
	cfg := validConfig(t)
	cfg.Workflow.HeartbeatTimeout = cfg.Workflow.HeartbeatInterval

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "heartbeat_timeout") {
		t.Fatalf("expected heartbeat_timeout error, got: %v", err)
	}
}

func TestValidateRejectsUnknownLogFormat(t *testing.T) {
	cfg := validConfig(t)
	cfg.Logging.Format = "yaml"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "logging.format") {
		t.Fatalf("expected logging.format error, got: %v", err)
	}
}

func TestValidateCollectsMultipleProblems(t *testing.T) {
	cfg := validConfig(t)
	cfg.Render.ClipSeconds = 0
	cfg.Upload.MaxFileMiB = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "clip_seconds") || !strings.Contains(msg, "max_file_mib") {
		t.Fatalf("expected both problems reported, got: %v", err)
	}
}
