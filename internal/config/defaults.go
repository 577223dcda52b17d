package config

// Default returns the built-in configuration values. Downstream callers
// overlay the user's TOML file on top of this base.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: "~/.local/share/filmstrip/staging",
			LibraryDir: "~/.local/share/filmstrip/library",
			LogDir:     "~/.local/share/filmstrip/logs",
			APIBind:    "127.0.0.1:7474",
		},
		Render: Render{
			ClipSeconds: 6,
			Framerate:   30,
			Width:       1280,
			Height:      720,
			VideoCodec:  "libx264",
			Preset:      "medium",
		},
		Upload: Upload{
			MaxFileMiB:        50,
			AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"},
		},
		WebSocket: WebSocket{
			PingInterval:     25,
			PongTimeout:      60,
			WriteTimeout:     10,
			HandshakeTimeout: 10,
			SendBuffer:       64,
		},
		Inbox: Inbox{
			Enabled: false,
			Dir:     "~/.local/share/filmstrip/inbox",
		},
		Workflow: Workflow{
			QueuePollInterval:  3,
			ErrorRetryInterval: 5,
			HeartbeatInterval:  15,
			HeartbeatTimeout:   120,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Uploads:        true,
			Renders:        true,
			Errors:         true,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
