package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrInvalidCommand is returned for unknown actions or malformed payloads.
	ErrInvalidCommand = errors.New("bridge: invalid command")

	// ErrInvalidParameters is returned when a command lacks a required field.
	ErrInvalidParameters = errors.New("bridge: invalid parameters")

	// ErrBridgeStopped is returned for commands that arrive after Stop.
	ErrBridgeStopped = errors.New("bridge: stopped")
)
