package domain

import "errors"

var (
	// ErrEnumeration means the platform refused to list devices.
	ErrEnumeration = errors.New("device enumeration unavailable")
	// ErrCaptureDenied means the user or OS refused camera access, including prompt timeouts.
	ErrCaptureDenied = errors.New("camera capture denied")
	// ErrDeviceUnavailable means the device vanished between listing and acquisition.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	// ErrNoAlternateDevice means a switch was requested with fewer than two devices.
	ErrNoAlternateDevice = errors.New("no alternate camera device")
	// ErrSessionBusy means another session operation is in flight.
	ErrSessionBusy = errors.New("camera session busy")
	// ErrSessionClosed means the session was torn down and accepts no new streams.
	ErrSessionClosed = errors.New("camera session closed")
)

// CodeFor maps an error onto the code reported to the UI.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrEnumeration):
		return ErrorCodeEnumeration
	case errors.Is(err, ErrCaptureDenied):
		return ErrorCodeCaptureDenied
	case errors.Is(err, ErrDeviceUnavailable):
		return ErrorCodeDeviceUnavailable
	case errors.Is(err, ErrNoAlternateDevice):
		return ErrorCodeNoAlternateDevice
	case errors.Is(err, ErrSessionBusy):
		return ErrorCodeSessionBusy
	case errors.Is(err, ErrSessionClosed):
		return ErrorCodeSessionClosed
	default:
		return ErrorCodeUnknown
	}
}
