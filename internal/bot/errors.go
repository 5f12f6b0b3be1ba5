package bot

import "errors"

// Domain errors for the bot package.
var (
	// ErrRunInProgress is returned when a run is requested while one is active.
	ErrRunInProgress = errors.New("bot: run in progress")

	// ErrEmptySequence is returned when the sequence has no steps.
	ErrEmptySequence = errors.New("bot: empty sequence")

	// ErrNoClickCommand is returned by NewCommandSink for an empty command.
	ErrNoClickCommand = errors.New("bot: click command not configured")
)
