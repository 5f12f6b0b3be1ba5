package actuator

import "errors"

// Errors returned by the dispatcher.
var (
	// ErrLinkDown is returned when a command is dropped because the
	// actuator link is not established.
	ErrLinkDown = errors.New("actuator: link down")

	// ErrInvalidAngle is returned for servo angles outside 0..180.
	ErrInvalidAngle = errors.New("actuator: invalid servo angle")
)
