package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"camswitch/internal/domain"
	"camswitch/internal/ports"
)

// Config controls camera session behavior.
type Config struct {
	// PreferredDeviceID is started on when present in the catalog; otherwise index 0.
	PreferredDeviceID string
}

// SessionController is the surface a UI binds to. Start, Stop, SwitchNext and
// RefreshDevices are serialized; a call that finds another in flight fails with
// domain.ErrSessionBusy.
type SessionController struct {
	catalog *DeviceCatalog
	session *StreamSession
	events  ports.EventSink
	logger  *slog.Logger
	cfg     Config

	op     sync.Mutex
	closed bool

	// emitMu orders snapshot capture with delivery so the last event a sink
	// sees always carries the latest state.
	emitMu sync.Mutex

	mu           sync.Mutex
	devices      []domain.DeviceDescriptor
	devicesKnown bool
}

func NewSessionController(platform ports.CapturePlatform, events ports.EventSink, logger *slog.Logger, cfg Config) *SessionController {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = discardSink{}
	}
	cfg.PreferredDeviceID = strings.TrimSpace(cfg.PreferredDeviceID)

	c := &SessionController{
		catalog: NewDeviceCatalog(platform),
		session: NewStreamSession(platform, logger),
		events:  events,
		logger:  logger.With("component", "session-controller"),
		cfg:     cfg,
	}
	c.session.onEnded = c.handleCameraEnded
	c.session.onStopError = func(_ *StreamHandle, err error) {
		c.events.SessionError(domain.ErrorCodeRelease, err.Error())
	}
	return c
}

// Start re-enumerates devices and brings the session live on the first (or
// preferred) device. A live stream is released before the new one is acquired.
func (c *SessionController) Start(ctx context.Context) (*StreamHandle, error) {
	if !c.op.TryLock() {
		return nil, c.busy("start")
	}
	defer c.op.Unlock()
	if c.closed {
		return nil, c.closedErr("start")
	}

	catalog, err := c.catalog.Refresh(ctx)
	if err != nil {
		c.session.Stop()
		c.fail(err, domain.SessionReasonStartFailed)
		return nil, err
	}
	c.setDevices(catalog)

	index := 0
	if c.cfg.PreferredDeviceID != "" {
		if i := indexOfDevice(catalog, c.cfg.PreferredDeviceID); i >= 0 {
			index = i
		}
	}

	handle, restarted, err := c.session.Start(ctx, catalog, index)
	if err != nil {
		c.fail(err, domain.SessionReasonStartFailed)
		return nil, err
	}

	if handle.Released() {
		// Ended right after going live; the watcher already reported it.
		return nil, nil
	}

	reason := domain.SessionReasonCameraStarted
	if restarted {
		reason = domain.SessionReasonCameraRestarted
	}
	c.emit(reason)
	return handle, nil
}

// Stop releases the live stream. Stopping an idle session is a no-op.
func (c *SessionController) Stop() error {
	if !c.op.TryLock() {
		return c.busy("stop")
	}
	defer c.op.Unlock()

	if c.session.Stop() == nil {
		return nil
	}
	c.emit(domain.SessionReasonCameraStopped)
	return nil
}

// SwitchNext moves the live session to the next device in catalog order. It
// returns nil, nil when the session is not live, unless the last known catalog
// already rules a switch out. A failed switch leaves the
// session idle, except for domain.ErrNoAlternateDevice and enumeration
// failures, which leave it untouched.
func (c *SessionController) SwitchNext(ctx context.Context) (*StreamHandle, error) {
	if !c.op.TryLock() {
		return nil, c.busy("switch")
	}
	defer c.op.Unlock()
	if c.closed {
		return nil, c.closedErr("switch")
	}

	if phase, _, current := c.session.state(); phase != domain.SessionPhaseLive || current == nil {
		// Idle never enumerates; only an already known single-device catalog is reported.
		if devices, known := c.AvailableDevices(); known && len(devices) < 2 {
			err := fmt.Errorf("%w: %d device(s) available", domain.ErrNoAlternateDevice, len(devices))
			c.reportError(err)
			return nil, err
		}
		return nil, nil
	}

	catalog, err := c.catalog.Refresh(ctx)
	if err != nil {
		c.reportError(err)
		return nil, err
	}
	c.setDevices(catalog)

	handle, err := c.session.SwitchToNext(ctx, catalog)
	if err != nil {
		if errors.Is(err, domain.ErrNoAlternateDevice) {
			c.fail(err, domain.SessionReasonNoAlternate)
			return nil, err
		}
		c.fail(err, domain.SessionReasonSwitchFailed)
		return nil, err
	}
	if handle == nil || handle.Released() {
		// The stream ended around the switch; the watcher reported it.
		return nil, nil
	}

	c.emit(domain.SessionReasonCameraSwitched)
	return handle, nil
}

// Close waits for any in-flight verb, releases the live stream and rejects
// further Start and SwitchNext calls with domain.ErrSessionClosed. It is the
// teardown path; Stop stays non-blocking for UIs.
func (c *SessionController) Close() error {
	c.op.Lock()
	defer c.op.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if c.session.Stop() != nil {
		c.emit(domain.SessionReasonCameraStopped)
	}
	c.logger.Debug("camera session closed")
	return nil
}

// RefreshDevices re-enumerates devices without touching the stream.
func (c *SessionController) RefreshDevices(ctx context.Context) ([]domain.DeviceDescriptor, error) {
	if !c.op.TryLock() {
		return nil, c.busy("refresh devices")
	}
	defer c.op.Unlock()

	catalog, err := c.catalog.Refresh(ctx)
	if err != nil {
		c.reportError(err)
		return nil, err
	}
	c.setDevices(catalog)
	c.emit(domain.SessionReasonDevicesRefreshed)
	return cloneCatalog(catalog), nil
}

// CurrentStream returns the live handle, or nil.
func (c *SessionController) CurrentStream() *StreamHandle {
	phase, _, current := c.session.state()
	if phase != domain.SessionPhaseLive {
		return nil
	}
	return current
}

func (c *SessionController) IsStreaming() bool {
	return c.CurrentStream() != nil
}

// AvailableDevices returns the last fetched catalog. ok is false until devices
// have been enumerated once.
func (c *SessionController) AvailableDevices() (devices []domain.DeviceDescriptor, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneCatalog(c.devices), c.devicesKnown
}

func (c *SessionController) HasMultipleDevices() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.devices) > 1
}

// Snapshot returns the read-only state a UI renders. Device fields and
// DeviceIndex are only set while live.
func (c *SessionController) Snapshot() domain.Snapshot {
	phase, index, current := c.session.state()
	devices, known := c.AvailableDevices()

	snapshot := domain.Snapshot{
		State:              phase,
		Devices:            devices,
		DevicesKnown:       known,
		HasMultipleDevices: len(devices) > 1,
	}
	if phase == domain.SessionPhaseSwitching {
		snapshot.State = domain.SessionPhaseStarting
	}
	if phase == domain.SessionPhaseLive && current != nil {
		device := current.Device()
		snapshot.Streaming = true
		snapshot.DeviceIndex = index
		snapshot.StreamID = current.ID()
		snapshot.DeviceID = device.ID
		snapshot.DeviceLabel = device.Label
	}
	return snapshot
}

func (c *SessionController) handleCameraEnded(h *StreamHandle, trackID string) {
	c.logger.Info("camera ended outside the session", "stream", h.ID(), "track", trackID)
	c.emit(domain.SessionReasonCameraEnded)
}

func (c *SessionController) setDevices(catalog []domain.DeviceDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = cloneCatalog(catalog)
	c.devicesKnown = true
}

func (c *SessionController) busy(op string) error {
	err := fmt.Errorf("%w: cannot %s while another operation is in flight", domain.ErrSessionBusy, op)
	c.reportError(err)
	return err
}

func (c *SessionController) fail(err error, reason domain.SessionStateReason) {
	c.reportError(err)
	c.emit(reason)
}

func (c *SessionController) reportError(err error) {
	c.logger.Warn("camera session operation failed", "error", err)
	c.events.SessionError(domain.CodeFor(err), err.Error())
}

func (c *SessionController) closedErr(op string) error {
	err := fmt.Errorf("%w: cannot %s", domain.ErrSessionClosed, op)
	c.reportError(err)
	return err
}

// emit runs only after any watcher detach has returned, so the watcher can
// always take emitMu.
func (c *SessionController) emit(reason domain.SessionStateReason) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.events.SessionStateChanged(c.Snapshot(), reason)
}

type discardSink struct{}

func (discardSink) SessionStateChanged(domain.Snapshot, domain.SessionStateReason) {}
func (discardSink) SessionError(domain.ErrorCode, string)                          {}
