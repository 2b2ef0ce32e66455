package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
var (
	ErrNotFound          = errors.New("not found")
	ErrRobotNotFound     = fmt.Errorf("robot %w", ErrNotFound)
	ErrTaskNotFound      = fmt.Errorf("task %w", ErrNotFound)
	ErrAlertNotFound     = fmt.Errorf("alert %w", ErrNotFound)
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnknownZone       = errors.New("unknown zone")
	ErrInvalidTask       = errors.New("invalid task")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}
