package domain

// DeviceKindVideoInput is the only device kind the catalog keeps.
const DeviceKindVideoInput = "videoinput"

// DeviceDescriptor identifies one video capture device.
type DeviceDescriptor struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

// SessionPhase models the camera session lifecycle.
type SessionPhase string

const (
	SessionPhaseIdle      SessionPhase = "idle"
	SessionPhaseStarting  SessionPhase = "starting"
	SessionPhaseLive      SessionPhase = "live"
	SessionPhaseSwitching SessionPhase = "switching"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonCameraCold       SessionStateReason = "camera_cold"
	SessionReasonCameraStarted    SessionStateReason = "camera_started"
	SessionReasonCameraRestarted  SessionStateReason = "camera_restarted"
	SessionReasonCameraSwitched   SessionStateReason = "camera_switched"
	SessionReasonCameraStopped    SessionStateReason = "camera_stopped"
	SessionReasonCameraEnded      SessionStateReason = "camera_ended"
	SessionReasonStartFailed      SessionStateReason = "start_failed"
	SessionReasonSwitchFailed     SessionStateReason = "switch_failed"
	SessionReasonNoAlternate      SessionStateReason = "no_alternate_device"
	SessionReasonDevicesRefreshed SessionStateReason = "devices_refreshed"
)

// ErrorCode identifies errors reported to the UI.
type ErrorCode string

const (
	ErrorCodeStartup           ErrorCode = "startup"
	ErrorCodeEnumeration       ErrorCode = "enumeration"
	ErrorCodeCaptureDenied     ErrorCode = "capture_denied"
	ErrorCodeDeviceUnavailable ErrorCode = "device_unavailable"
	ErrorCodeNoAlternateDevice ErrorCode = "no_alternate_device"
	ErrorCodeSessionBusy       ErrorCode = "session_busy"
	ErrorCodeSessionClosed     ErrorCode = "session_closed"
	ErrorCodeRelease           ErrorCode = "release"
	ErrorCodeUnknown           ErrorCode = "unknown"
)

// Snapshot is the read-only view a UI renders after every transition.
type Snapshot struct {
	State              SessionPhase       `json:"state"`
	Streaming          bool               `json:"streaming"`
	StreamID           string             `json:"streamId,omitempty"`
	DeviceIndex        int                `json:"deviceIndex"`
	DeviceID           string             `json:"deviceId,omitempty"`
	DeviceLabel        string             `json:"deviceLabel,omitempty"`
	Devices            []DeviceDescriptor `json:"devices"`
	DevicesKnown       bool               `json:"devicesKnown"`
	HasMultipleDevices bool               `json:"hasMultipleDevices"`
}
