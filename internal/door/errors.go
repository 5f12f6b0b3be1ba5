package door

import "errors"

var (
	// ErrStopped is returned when a request reaches a controller whose event
	// loop has exited.
	ErrStopped = errors.New("door: controller stopped")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("door: controller already running")
)
