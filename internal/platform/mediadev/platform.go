// Package mediadev adapts pion/mediadevices to the capture platform boundary.
package mediadev

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera" // registers the camera driver
	"github.com/pion/mediadevices/pkg/prop"

	"camswitch/internal/domain"
	"camswitch/internal/ports"
)

// Config holds capture hints. Zero values leave the choice to the driver.
type Config struct {
	Width     int
	Height    int
	FrameRate int
}

// Platform enumerates and opens cameras through mediadevices.
type Platform struct {
	cfg    Config
	logger *slog.Logger

	enumerate    func() []mediadevices.MediaDeviceInfo
	getUserMedia func(mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error)
}

func NewPlatform(cfg Config, logger *slog.Logger) *Platform {
	if logger == nil {
		logger = slog.Default()
	}
	return &Platform{
		cfg:          cfg,
		logger:       logger.With("component", "mediadevices-platform"),
		enumerate:    mediadevices.EnumerateDevices,
		getUserMedia: mediadevices.GetUserMedia,
	}
}

func (p *Platform) EnumerateDevices(ctx context.Context) ([]ports.RawDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEnumeration, err)
	}

	devices := p.enumerate()
	result := make([]ports.RawDevice, 0, len(devices))
	for _, device := range devices {
		result = append(result, ports.RawDevice{
			ID:    device.DeviceID,
			Label: device.Label,
			Kind:  kindName(device.Kind),
		})
	}
	return result, nil
}

func (p *Platform) Acquire(_ context.Context, deviceID string) (ports.CaptureStream, error) {
	stream, err := p.getUserMedia(p.constraints(deviceID, true))
	if err != nil && p.hasHints() {
		p.logger.Warn("capture hints rejected, retrying without them", "device", deviceID, "error", err)
		stream, err = p.getUserMedia(p.constraints(deviceID, false))
	}
	if err != nil {
		return nil, p.classify(deviceID, err)
	}

	videoTracks := stream.GetVideoTracks()
	if len(videoTracks) == 0 {
		for _, track := range stream.GetTracks() {
			_ = track.Close()
		}
		return nil, fmt.Errorf("%w: no video track for device %q", domain.ErrDeviceUnavailable, deviceID)
	}

	tracks := make([]ports.CaptureTrack, 0, len(videoTracks))
	for _, track := range videoTracks {
		tracks = append(tracks, newMediaTrack(track, p.logger))
	}
	return &mediaStream{native: stream, tracks: tracks}, nil
}

func (p *Platform) hasHints() bool {
	return p.cfg.Width > 0 || p.cfg.Height > 0 || p.cfg.FrameRate > 0
}

func (p *Platform) constraints(deviceID string, withHints bool) mediadevices.MediaStreamConstraints {
	return mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			if withHints {
				if p.cfg.Width > 0 {
					c.Width = prop.Int(int32(p.cfg.Width))
				}
				if p.cfg.Height > 0 {
					c.Height = prop.Int(int32(p.cfg.Height))
				}
				if p.cfg.FrameRate > 0 {
					c.FrameRate = prop.Float(float32(p.cfg.FrameRate))
				}
			}
			if deviceID != "" {
				c.DeviceID = prop.String(deviceID)
			}
		},
	}
}

// classify tells a vanished device apart from a refusal by listing again.
func (p *Platform) classify(deviceID string, err error) error {
	present := false
	videoInputs := 0
	for _, device := range p.enumerate() {
		if device.Kind != mediadevices.VideoInput {
			continue
		}
		videoInputs++
		if device.DeviceID == deviceID {
			present = true
		}
	}

	switch {
	case videoInputs == 0:
		return fmt.Errorf("%w: no video input devices: %v", domain.ErrDeviceUnavailable, err)
	case deviceID != "" && !present:
		return fmt.Errorf("%w: device %q is gone: %v", domain.ErrDeviceUnavailable, deviceID, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrCaptureDenied, err)
	}
}

func kindName(kind mediadevices.MediaDeviceType) string {
	switch kind {
	case mediadevices.VideoInput:
		return domain.DeviceKindVideoInput
	case mediadevices.AudioInput:
		return "audioinput"
	case mediadevices.AudioOutput:
		return "audiooutput"
	default:
		return "unknown"
	}
}

type mediaStream struct {
	native mediadevices.MediaStream
	tracks []ports.CaptureTrack
}

func (s *mediaStream) Tracks() []ports.CaptureTrack { return s.tracks }

// Native returns the mediadevices.MediaStream.
func (s *mediaStream) Native() any { return s.native }

// endableTrack is the part of mediadevices.Track the adapter relies on.
type endableTrack interface {
	ID() string
	OnEnded(func(error))
	Close() error
}

type mediaTrack struct {
	source endableTrack
	ended  chan struct{}

	endOnce   sync.Once
	closeOnce sync.Once
	closeErr  error
}

func newMediaTrack(source endableTrack, logger *slog.Logger) *mediaTrack {
	t := &mediaTrack{source: source, ended: make(chan struct{})}
	source.OnEnded(func(err error) {
		if err != nil {
			logger.Debug("media track ended", "track", source.ID(), "error", err)
		}
		t.markEnded()
	})
	return t
}

func (t *mediaTrack) ID() string { return t.source.ID() }

func (t *mediaTrack) Ended() <-chan struct{} { return t.ended }

func (t *mediaTrack) Stop() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.source.Close()
		t.markEnded()
	})
	return t.closeErr
}

func (t *mediaTrack) markEnded() {
	t.endOnce.Do(func() { close(t.ended) })
}
