package config

import (
	"log/slog"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CAMSWITCH_BACKEND",
		"CAMSWITCH_PREFERRED_DEVICE",
		"CAMSWITCH_VIDEO_WIDTH",
		"CAMSWITCH_VIDEO_HEIGHT",
		"CAMSWITCH_VIDEO_FPS",
		"CAMSWITCH_FFMPEG_COMMAND",
		"CAMSWITCH_FFMPEG_INPUT_FORMAT",
		"CAMSWITCH_DEVICE_GLOB",
		"CAMSWITCH_HTTP_ADDR",
		"CAMSWITCH_LOG_LEVEL",
		"CAMSWITCH_LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Backend != BackendMediaDevices {
		t.Fatalf("expected mediadevices backend, got %q", cfg.Backend)
	}
	if cfg.Session.PreferredDeviceID != "" {
		t.Fatalf("expected no preferred device, got %q", cfg.Session.PreferredDeviceID)
	}
	if cfg.Video.Width != 640 || cfg.Video.Height != 480 || cfg.Video.FrameRate != 30 {
		t.Fatalf("unexpected video defaults: %+v", cfg.Video)
	}
	if cfg.FFmpeg.Command != "ffmpeg" || cfg.FFmpeg.InputFormat != "v4l2" || cfg.FFmpeg.DeviceGlob != "/dev/video*" {
		t.Fatalf("unexpected ffmpeg defaults: %+v", cfg.FFmpeg)
	}
	if cfg.Remote.Addr != "127.0.0.1:8089" {
		t.Fatalf("unexpected remote addr: %q", cfg.Remote.Addr)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
}

func TestLoadRespectsOverridesAndFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("CAMSWITCH_BACKEND", "FFmpeg")
	t.Setenv("CAMSWITCH_PREFERRED_DEVICE", "  /dev/video2 ")
	t.Setenv("CAMSWITCH_VIDEO_WIDTH", "1280")
	t.Setenv("CAMSWITCH_VIDEO_HEIGHT", "bad")
	t.Setenv("CAMSWITCH_VIDEO_FPS", "-5")
	t.Setenv("CAMSWITCH_FFMPEG_COMMAND", "/opt/ffmpeg")
	t.Setenv("CAMSWITCH_DEVICE_GLOB", "/tmp/cams/*")
	t.Setenv("CAMSWITCH_HTTP_ADDR", ":9000")
	t.Setenv("CAMSWITCH_LOG_LEVEL", "DEBUG")
	t.Setenv("CAMSWITCH_LOG_FORMAT", "json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Backend != BackendFFmpeg {
		t.Fatalf("expected ffmpeg backend, got %q", cfg.Backend)
	}
	if cfg.Session.PreferredDeviceID != "/dev/video2" {
		t.Fatalf("expected trimmed preferred device, got %q", cfg.Session.PreferredDeviceID)
	}
	if cfg.Video.Width != 1280 {
		t.Fatalf("expected width override, got %d", cfg.Video.Width)
	}
	if cfg.Video.Height != 480 {
		t.Fatalf("expected invalid height to fall back, got %d", cfg.Video.Height)
	}
	if cfg.Video.FrameRate != 0 {
		t.Fatalf("expected negative fps to clamp to 0, got %d", cfg.Video.FrameRate)
	}
	if cfg.FFmpeg.Command != "/opt/ffmpeg" || cfg.FFmpeg.DeviceGlob != "/tmp/cams/*" {
		t.Fatalf("unexpected ffmpeg config: %+v", cfg.FFmpeg)
	}
	if cfg.Remote.Addr != ":9000" {
		t.Fatalf("unexpected remote addr: %q", cfg.Remote.Addr)
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil || level != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v (%v)", level, err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{name: "backend", key: "CAMSWITCH_BACKEND", value: "gstreamer", want: "unknown backend"},
		{name: "level", key: "CAMSWITCH_LOG_LEVEL", value: "loud", want: "unknown log level"},
		{name: "format", key: "CAMSWITCH_LOG_FORMAT", value: "xml", want: "unknown log format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateRequiresRemoteAddr(t *testing.T) {
	t.Parallel()

	cfg := Config{Backend: BackendFFmpeg, Log: LogConfig{Level: "info", Format: "text"}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected empty remote address to be rejected")
	}
	cfg.Remote.Addr = "localhost:1"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
