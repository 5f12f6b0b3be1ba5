package serial

import "errors"

// Errors for actuator link operations.
var (
	// ErrNotOpen is returned when writing while no port is open.
	ErrNotOpen = errors.New("serial: port not open")

	// ErrNoPort is returned when no port is configured and none can be discovered.
	ErrNoPort = errors.New("serial: no port available")

	// ErrClosed is returned when the link has been shut down.
	ErrClosed = errors.New("serial: link closed")
)
