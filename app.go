package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"camswitch/internal/bootstrap"
	"camswitch/internal/config"
	"camswitch/internal/domain"
	"camswitch/internal/usecase"
)

const (
	eventSession = "camswitch:session"
	eventError   = "camswitch:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.SessionController
	cfg        config.Config
	bootErr    error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.SessionStateChanged(a.controller.Snapshot(), domain.SessionReasonCameraCold)
}

// shutdown releases the camera when the window closes, waiting out any
// start or switch still acquiring.
func (a *App) shutdown(_ context.Context) {
	if a.controller == nil {
		return
	}
	_ = a.controller.Close()
}

// StartCamera brings the camera live on the first or preferred device.
func (a *App) StartCamera() (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}
	if _, err := a.controller.Start(a.ctx); err != nil {
		return a.controller.Snapshot(), err
	}
	return a.controller.Snapshot(), nil
}

// StopCamera releases the live camera.
func (a *App) StopCamera() (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}
	if err := a.controller.Stop(); err != nil {
		return a.controller.Snapshot(), err
	}
	return a.controller.Snapshot(), nil
}

// SwitchCamera moves the live session to the next device.
func (a *App) SwitchCamera() (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}
	if _, err := a.controller.SwitchNext(a.ctx); err != nil {
		return a.controller.Snapshot(), err
	}
	return a.controller.Snapshot(), nil
}

// RefreshDevices re-lists cameras without touching the stream.
func (a *App) RefreshDevices() ([]domain.DeviceDescriptor, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.controller.RefreshDevices(a.ctx)
}

// GetSnapshot returns the current session view.
func (a *App) GetSnapshot() domain.Snapshot {
	if a.controller == nil {
		return domain.Snapshot{State: domain.SessionPhaseIdle}
	}
	return a.controller.Snapshot()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"backend":         a.cfg.Backend,
		"preferredDevice": a.cfg.Session.PreferredDeviceID,
		"videoSize":       fmt.Sprintf("%dx%d", a.cfg.Video.Width, a.cfg.Video.Height),
		"frameRate":       strconv.Itoa(a.cfg.Video.FrameRate),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(snapshot domain.Snapshot, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, map[string]any{
		"state":    string(snapshot.State),
		"reason":   string(reason),
		"message":  sessionReasonMessage(reason),
		"snapshot": snapshot,
	})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonCameraCold:
		return "Camera off"
	case domain.SessionReasonCameraStarted:
		return "Camera started"
	case domain.SessionReasonCameraRestarted:
		return "Camera restarted; previous stream released"
	case domain.SessionReasonCameraSwitched:
		return "Switched camera"
	case domain.SessionReasonCameraStopped:
		return "Camera stopped"
	case domain.SessionReasonCameraEnded:
		return "Camera disconnected"
	case domain.SessionReasonStartFailed:
		return "Camera failed to start"
	case domain.SessionReasonSwitchFailed:
		return "Camera switch failed"
	case domain.SessionReasonNoAlternate:
		return "No other camera to switch to"
	case domain.SessionReasonDevicesRefreshed:
		return "Camera list updated"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeEnumeration:
		return "Could not list cameras"
	case domain.ErrorCodeCaptureDenied:
		return "Camera access denied"
	case domain.ErrorCodeDeviceUnavailable:
		return "Camera unavailable"
	case domain.ErrorCodeNoAlternateDevice:
		return "Only one camera available"
	case domain.ErrorCodeSessionBusy:
		return "Camera is busy"
	case domain.ErrorCodeSessionClosed:
		return "Camera session closed"
	case domain.ErrorCodeRelease:
		return "Camera release issue"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
