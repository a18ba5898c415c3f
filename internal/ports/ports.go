package ports

import (
	"context"

	"camswitch/internal/domain"
)

// RawDevice is device metadata as reported by the platform.
type RawDevice struct {
	ID    string
	Label string
	Kind  string
}

// DeviceEnumerator lists the capture devices the platform currently exposes.
type DeviceEnumerator interface {
	EnumerateDevices(ctx context.Context) ([]RawDevice, error)
}

// CaptureTrack is one media flow inside a capture stream.
type CaptureTrack interface {
	ID() string
	// Ended is closed once the track stops delivering media for any reason.
	Ended() <-chan struct{}
	Stop() error
}

// CaptureStream is a live capture session opened on one device.
type CaptureStream interface {
	Tracks() []CaptureTrack
	// Native returns the platform object a renderer consumes.
	Native() any
}

// StreamAcquirer opens capture streams. An empty deviceID selects the platform default.
type StreamAcquirer interface {
	Acquire(ctx context.Context, deviceID string) (CaptureStream, error)
}

// CapturePlatform is the full platform boundary.
type CapturePlatform interface {
	DeviceEnumerator
	StreamAcquirer
}

// EventSink emits session state/events to the UI.
type EventSink interface {
	SessionStateChanged(snapshot domain.Snapshot, reason domain.SessionStateReason)
	SessionError(code domain.ErrorCode, detail string)
}
