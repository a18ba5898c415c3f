package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"camswitch/internal/domain"
	"camswitch/internal/ports"
)

// StreamHandle is a live capture stream owned by a StreamSession. UIs borrow it
// for rendering only; once released no further reads are valid.
type StreamHandle struct {
	id     string
	device domain.DeviceDescriptor
	stream ports.CaptureStream
	tracks []ports.CaptureTrack
	watch  *trackWatcher

	releaseOnce sync.Once
	released    atomic.Bool
}

func (h *StreamHandle) ID() string { return h.id }

// Device describes the device the stream was opened on. An empty ID means the
// platform default camera.
func (h *StreamHandle) Device() domain.DeviceDescriptor { return h.device }

func (h *StreamHandle) TrackIDs() []string {
	ids := make([]string, 0, len(h.tracks))
	for _, track := range h.tracks {
		ids = append(ids, track.ID())
	}
	return ids
}

// Native returns the platform stream object for rendering.
func (h *StreamHandle) Native() any {
	if h.released.Load() {
		return nil
	}
	return h.stream.Native()
}

func (h *StreamHandle) Released() bool { return h.released.Load() }

// StreamSession holds at most one live handle and guarantees release-before-acquire.
type StreamSession struct {
	acquirer ports.StreamAcquirer
	logger   *slog.Logger
	onEnded  func(h *StreamHandle, trackID string)

	// onStopError hears about tracks that failed to stop; release itself never fails.
	onStopError func(h *StreamHandle, err error)

	mu      sync.Mutex
	phase   domain.SessionPhase
	index   int
	current *StreamHandle
}

func NewStreamSession(acquirer ports.StreamAcquirer, logger *slog.Logger) *StreamSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamSession{
		acquirer: acquirer,
		logger:   logger.With("component", "stream-session"),
		phase:    domain.SessionPhaseIdle,
	}
}

// Acquire opens a new handle. It never releases an existing one.
func (s *StreamSession) Acquire(ctx context.Context, deviceID string) (*StreamHandle, error) {
	return s.acquireDevice(ctx, domain.DeviceDescriptor{ID: deviceID, Kind: domain.DeviceKindVideoInput})
}

// Release stops every track of h. Nil and already released handles are ignored.
func (s *StreamSession) Release(h *StreamHandle) {
	if h == nil {
		return
	}
	h.releaseOnce.Do(func() {
		h.released.Store(true)
		if h.watch != nil {
			h.watch.cancel()
		}
		for _, track := range h.tracks {
			if err := track.Stop(); err != nil {
				s.logger.Warn("failed to stop camera track", "stream", h.id, "track", track.ID(), "error", err)
				if s.onStopError != nil {
					s.onStopError(h, err)
				}
			}
		}
		s.logger.Debug("camera stream released", "stream", h.id, "device", h.device.ID)
	})
}

// Start brings the session live on catalog[index], or on the platform default
// when the catalog is empty. A live handle is released first. restarted reports
// whether one was.
func (s *StreamSession) Start(ctx context.Context, catalog []domain.DeviceDescriptor, index int) (handle *StreamHandle, restarted bool, err error) {
	s.mu.Lock()
	previous := s.current
	s.current = nil
	s.phase = domain.SessionPhaseStarting
	s.mu.Unlock()

	if previous != nil {
		s.retire(previous)
	}

	device := domain.DeviceDescriptor{Kind: domain.DeviceKindVideoInput}
	if len(catalog) > 0 {
		if index < 0 || index >= len(catalog) {
			index = 0
		}
		device = catalog[index]
	} else {
		index = 0
	}

	handle, err = s.acquireDevice(ctx, device)
	if err == nil {
		err = s.commit(index, handle)
	}
	if err != nil {
		s.settleIdle()
		return nil, previous != nil, err
	}
	return handle, previous != nil, nil
}

// SwitchToNext releases the live handle and acquires the next device in cycle
// order. It returns nil, nil when nothing is live. On acquisition failure the
// session is idle; the old handle is gone either way.
func (s *StreamSession) SwitchToNext(ctx context.Context, catalog []domain.DeviceDescriptor) (*StreamHandle, error) {
	s.mu.Lock()
	if s.phase != domain.SessionPhaseLive || s.current == nil {
		s.mu.Unlock()
		return nil, nil
	}
	if len(catalog) < 2 {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d device(s) available", domain.ErrNoAlternateDevice, len(catalog))
	}

	current := s.current
	from := indexOfDevice(catalog, current.device.ID)
	if from < 0 {
		from = s.index % len(catalog)
	}
	next := (from + 1) % len(catalog)

	s.current = nil
	s.phase = domain.SessionPhaseSwitching
	s.mu.Unlock()

	s.retire(current)

	handle, err := s.acquireDevice(ctx, catalog[next])
	if err == nil {
		err = s.commit(next, handle)
	}
	if err != nil {
		s.settleIdle()
		return nil, err
	}
	return handle, nil
}

// Stop releases the live handle, if any, and returns it.
func (s *StreamSession) Stop() *StreamHandle {
	s.mu.Lock()
	h := s.current
	s.current = nil
	s.phase = domain.SessionPhaseIdle
	s.mu.Unlock()

	if h != nil {
		s.retire(h)
	}
	return h
}

func (s *StreamSession) state() (domain.SessionPhase, int, *StreamHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase, s.index, s.current
}

func (s *StreamSession) acquireDevice(ctx context.Context, device domain.DeviceDescriptor) (*StreamHandle, error) {
	stream, err := s.acquirer.Acquire(ctx, device.ID)
	if err != nil {
		s.logger.Warn("camera acquisition failed", "device", device.ID, "error", err)
		return nil, classifyAcquireError(err)
	}
	if stream == nil {
		return nil, fmt.Errorf("%w: platform returned no stream for %q", domain.ErrDeviceUnavailable, device.ID)
	}

	handle := &StreamHandle{
		id:     uuid.NewString(),
		device: device,
		stream: stream,
		tracks: stream.Tracks(),
	}
	s.logger.Info("camera stream acquired", "stream", handle.id, "device", device.ID, "label", device.Label, "tracks", len(handle.tracks))
	return handle, nil
}

// commit makes h live. A stream whose tracks ended before it could be watched
// is released and reported as unavailable instead.
func (s *StreamSession) commit(index int, h *StreamHandle) error {
	for _, track := range h.tracks {
		select {
		case <-track.Ended():
			s.Release(h)
			return fmt.Errorf("%w: track %s ended before the stream went live", domain.ErrDeviceUnavailable, track.ID())
		default:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = domain.SessionPhaseLive
	s.index = index
	s.current = h
	h.watch = watchTracks(h.tracks, func(trackID string) {
		s.handleEnded(h, trackID)
	})
	return nil
}

func (s *StreamSession) settleIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = domain.SessionPhaseIdle
	s.current = nil
}

// retire detaches the watcher before releasing so a deliberate release is
// never reported as an external end.
func (s *StreamSession) retire(h *StreamHandle) {
	if h.watch != nil {
		h.watch.detach()
	}
	s.Release(h)
}

func (s *StreamSession) handleEnded(h *StreamHandle, trackID string) {
	s.mu.Lock()
	if s.current != h {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.phase = domain.SessionPhaseIdle
	s.mu.Unlock()

	s.logger.Info("camera track ended", "stream", h.id, "track", trackID, "device", h.device.ID)
	s.Release(h)
	if s.onEnded != nil {
		s.onEnded(h, trackID)
	}
}

func classifyAcquireError(err error) error {
	if errors.Is(err, domain.ErrCaptureDenied) || errors.Is(err, domain.ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrCaptureDenied, err)
}
