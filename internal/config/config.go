package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const (
	BackendMediaDevices = "mediadevices"
	BackendFFmpeg       = "ffmpeg"
)

// Config stores runtime configuration for the camera session.
type Config struct {
	Backend string
	Session SessionConfig
	Video   VideoConfig
	FFmpeg  FFmpegConfig
	Remote  RemoteConfig
	Log     LogConfig
}

type SessionConfig struct {
	PreferredDeviceID string
}

type VideoConfig struct {
	Width     int
	Height    int
	FrameRate int
}

type FFmpegConfig struct {
	Command     string
	InputFormat string
	DeviceGlob  string
}

type RemoteConfig struct {
	Addr string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Backend: strings.ToLower(envOrDefault("CAMSWITCH_BACKEND", BackendMediaDevices)),
		Session: SessionConfig{
			PreferredDeviceID: strings.TrimSpace(os.Getenv("CAMSWITCH_PREFERRED_DEVICE")),
		},
		Video: VideoConfig{
			Width:     envOrDefaultInt("CAMSWITCH_VIDEO_WIDTH", 640),
			Height:    envOrDefaultInt("CAMSWITCH_VIDEO_HEIGHT", 480),
			FrameRate: envOrDefaultInt("CAMSWITCH_VIDEO_FPS", 30),
		},
		FFmpeg: FFmpegConfig{
			Command:     envOrDefault("CAMSWITCH_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat: envOrDefault("CAMSWITCH_FFMPEG_INPUT_FORMAT", "v4l2"),
			DeviceGlob:  envOrDefault("CAMSWITCH_DEVICE_GLOB", "/dev/video*"),
		},
		Remote: RemoteConfig{
			Addr: envOrDefault("CAMSWITCH_HTTP_ADDR", "127.0.0.1:8089"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envOrDefault("CAMSWITCH_LOG_LEVEL", "info")),
			Format: strings.ToLower(envOrDefault("CAMSWITCH_LOG_FORMAT", "text")),
		},
	}

	// Non-positive hints mean "let the driver choose".
	if cfg.Video.Width < 0 {
		cfg.Video.Width = 0
	}
	if cfg.Video.Height < 0 {
		cfg.Video.Height = 0
	}
	if cfg.Video.FrameRate < 0 {
		cfg.Video.FrameRate = 0
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects values the bootstrap cannot act on.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMediaDevices, BackendFFmpeg:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendMediaDevices, BackendFFmpeg)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if strings.TrimSpace(c.Remote.Addr) == "" {
		return fmt.Errorf("remote address is empty")
	}
	return nil
}

// SlogLevel maps the configured level name onto slog.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch l.Level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", l.Level)
	}
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
