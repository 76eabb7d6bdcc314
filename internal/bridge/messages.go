package bridge

import (
	"errors"
	"time"

	"github.com/nerrad567/spimrig/internal/device"
	"github.com/nerrad567/spimrig/internal/setup"
)

// Actions accepted on {prefix}/command/{action}.
const (
	ActionMove     = "move"
	ActionHome     = "home"
	ActionVelocity = "velocity"
	ActionLaser    = "laser"
	ActionSnap     = "snap"
)

// CommandMessage is a rig request received on {prefix}/command/{action}.
// The action comes from the topic; fields not used by it are ignored.
type CommandMessage struct {
	// ID correlates the request with its acknowledgment.
	ID string `json:"id"`

	// Timestamp is when the request was issued.
	Timestamp time.Time `json:"timestamp"`

	// Slot targets home, velocity and laser requests.
	Slot device.Slot `json:"slot,omitempty"`

	// X, Y, Z and Theta are move targets in micrometres (degrees for Theta).
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
	Z     *float64 `json:"z,omitempty"`
	Theta *float64 `json:"theta,omitempty"`

	// Wait blocks a 3D move until the stages report idle.
	Wait bool `json:"wait,omitempty"`

	Velocity *float64 `json:"velocity,omitempty"`

	// Watts and On drive laser requests; either or both may be set.
	Watts *float64 `json:"watts,omitempty"`
	On    *bool    `json:"on,omitempty"`

	// Source names the requester, e.g. "script" or "panel".
	Source string `json:"source,omitempty"`
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	// AckAccepted means the command was executed on the rig.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the command was rejected or could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage answers a command on {prefix}/ack/{action}.
type AckMessage struct {
	CommandID string         `json:"command_id"`
	Action    string         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	Status    AckStatus      `json:"status"`
	Result    map[string]any `json:"result,omitempty"`
	Error     *AckError      `json:"error,omitempty"`
}

// AckError describes why a command failed.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for failed commands.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeUnsupported       = "UNSUPPORTED"
	ErrCodeRejected          = "REJECTED"
	ErrCodeDeviceError       = "DEVICE_ERROR"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// StateMessage is the retained state of one slot on {prefix}/state/{slot}.
//
// State keys depend on the slot:
//
//	stage:  {"position": 120.5, "velocity": 3, "homed_at": "..."}
//	laser:  {"power_w": 0.02, "on": true}
//	camera: {"width": 512, "height": 512, "duration_ms": 12.5}
type StateMessage struct {
	Slot      device.Slot    `json:"slot"`
	Label     string         `json:"label,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	OK        bool           `json:"ok"`
	State     map[string]any `json:"state"`
}

// NewAckMessage creates a successful acknowledgment.
func NewAckMessage(cmd CommandMessage, action string, result map[string]any) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Action:    action,
		Timestamp: time.Now().UTC(),
		Status:    AckAccepted,
		Result:    result,
	}
}

// NewAckError creates a failed acknowledgment.
func NewAckError(cmd CommandMessage, action, code, message string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Action:    action,
		Timestamp: time.Now().UTC(),
		Status:    AckFailed,
		Error:     &AckError{Code: code, Message: message},
	}
}

// errorCode maps an execution error onto an ack error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrInvalidParameters),
		errors.Is(err, device.ErrInvalidArgument),
		errors.Is(err, device.ErrUnknownSlot):
		return ErrCodeInvalidParameters
	case errors.Is(err, setup.ErrSlotUnbound),
		errors.Is(err, setup.ErrNo3DStage),
		errors.Is(err, setup.ErrNoCamera):
		return ErrCodeNotConfigured
	case errors.Is(err, setup.ErrWrongDeviceKind),
		errors.Is(err, device.ErrUnsupported):
		return ErrCodeUnsupported
	case errors.Is(err, setup.ErrOriginMoveRejected):
		return ErrCodeRejected
	case errors.Is(err, setup.ErrSnapFailed),
		errors.Is(err, device.ErrBackendCall):
		return ErrCodeDeviceError
	default:
		return ErrCodeBridgeError
	}
}
