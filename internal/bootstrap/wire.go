package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"camswitch/internal/config"
	"camswitch/internal/domain"
	"camswitch/internal/platform/ffmpeg"
	"camswitch/internal/platform/mediadev"
	"camswitch/internal/ports"
	"camswitch/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	Logger     *slog.Logger
	Platform   ports.CapturePlatform
}

// Build wires all backend dependencies for the current runtime. Every sink
// receives every session event.
func Build(sinks ...ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWith(cfg, os.Stderr, sinks...)
}

// BuildWith wires from an already loaded configuration, logging to w.
func BuildWith(cfg config.Config, w io.Writer, sinks ...ports.EventSink) (Services, error) {
	logger, err := NewLogger(cfg.Log, w)
	if err != nil {
		return Services{}, err
	}

	platform, err := newPlatform(cfg, logger)
	if err != nil {
		return Services{}, err
	}

	controller := usecase.NewSessionController(
		platform,
		MultiSink(sinks),
		logger,
		usecase.Config{PreferredDeviceID: cfg.Session.PreferredDeviceID},
	)

	logger.Debug("services wired", "backend", cfg.Backend, "preferred_device", cfg.Session.PreferredDeviceID)
	return Services{Controller: controller, Config: cfg, Logger: logger, Platform: platform}, nil
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(handler).With("app", "camswitch"), nil
}

func newPlatform(cfg config.Config, logger *slog.Logger) (ports.CapturePlatform, error) {
	switch cfg.Backend {
	case config.BackendMediaDevices:
		return mediadev.NewPlatform(mediadev.Config{
			Width:     cfg.Video.Width,
			Height:    cfg.Video.Height,
			FrameRate: cfg.Video.FrameRate,
		}, logger), nil
	case config.BackendFFmpeg:
		return ffmpeg.NewPlatform(ffmpeg.Config{
			Command:     cfg.FFmpeg.Command,
			InputFormat: cfg.FFmpeg.InputFormat,
			DeviceGlob:  cfg.FFmpeg.DeviceGlob,
			Width:       cfg.Video.Width,
			Height:      cfg.Video.Height,
			FrameRate:   cfg.Video.FrameRate,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// MultiSink forwards each event to every non-nil sink in order.
type MultiSink []ports.EventSink

func (m MultiSink) SessionStateChanged(snapshot domain.Snapshot, reason domain.SessionStateReason) {
	for _, sink := range m {
		if sink != nil {
			sink.SessionStateChanged(snapshot, reason)
		}
	}
}

func (m MultiSink) SessionError(code domain.ErrorCode, detail string) {
	for _, sink := range m {
		if sink != nil {
			sink.SessionError(code, detail)
		}
	}
}
