package setup

import "errors"

// Domain errors for the setup package.
var (
	// ErrNoCamera is returned when an acquisition is requested without a
	// bound primary camera.
	ErrNoCamera = errors.New("setup: no camera bound")

	// ErrSnapFailed is returned when the camera produced no image. The
	// backend failure itself has been reported to the failure sink.
	ErrSnapFailed = errors.New("setup: snap failed")

	// ErrOriginMoveRejected is returned when origin-move protection is on and
	// a move to (0, 0, 0) is requested.
	ErrOriginMoveRejected = errors.New("setup: move to origin rejected")

	// ErrNo3DStage is returned by MoveTo when the X, Y and Z slots are not all
	// connected.
	ErrNo3DStage = errors.New("setup: no 3D stage connected")

	// ErrSlotUnbound is returned when an operation targets an empty slot.
	ErrSlotUnbound = errors.New("setup: slot unbound")

	// ErrWrongDeviceKind is returned when the device in a slot does not offer
	// the requested capability.
	ErrWrongDeviceKind = errors.New("setup: device does not support operation")

	// ErrNoFactory is returned by Bind when no factory handles the device at
	// the label.
	ErrNoFactory = errors.New("setup: no device implementation for label")
)
