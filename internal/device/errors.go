package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrInvalidArgument) {
//	    // reject the request, nothing was sent to the hardware
//	}
var (
	// ErrBackendCall is reported when a call into the hardware backend fails.
	// It never terminates the caller; the device returns a sentinel instead.
	ErrBackendCall = errors.New("device: backend call failed")

	// ErrConfigurationConflict is returned when two factories claim the same
	// (slot, model name) identity.
	ErrConfigurationConflict = errors.New("device: conflicting factory registration")

	// ErrInvalidArgument is returned when a vendor-constrained input is
	// rejected before any backend call is attempted.
	ErrInvalidArgument = errors.New("device: invalid argument")

	// ErrWaitTimeout is reported when a device stays busy past the wait bound.
	ErrWaitTimeout = errors.New("device: wait timed out")

	// ErrUnsupported is returned when a variant does not offer an operation.
	ErrUnsupported = errors.New("device: operation not supported")

	// ErrUnknownSlot is returned when a slot key is not recognised.
	ErrUnknownSlot = errors.New("device: unknown slot")
)
