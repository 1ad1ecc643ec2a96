package jobengine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAutomation is returned for a name not in the catalogue.
	ErrUnknownAutomation = errors.New("unknown automation")

	// ErrAlreadyRunning is returned by Start when a Job for the same
	// automation is still running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning is returned by Cancel when there is nothing to cancel.
	// Cancel is an idempotent no-op in that case, not a hard failure.
	ErrNotRunning = errors.New("not running")
)

// LaunchError is returned when a Job's process could not be spawned at all:
// executable missing, permission denied, bad arguments. No Job is recorded
// when launch fails.
type LaunchError struct {
	err error
}

func (e LaunchError) Error() string {
	return fmt.Sprintf("launch failed: %s", e.err)
}

func (e LaunchError) Unwrap() error {
	return e.err
}

func NewLaunchError(err error) LaunchError {
	return LaunchError{err}
}
