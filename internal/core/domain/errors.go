package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown transport type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrSyncInProgress indicates a sync is already running for the source.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrSourceDisabled indicates a sync was requested for a disabled source.
	ErrSourceDisabled = errors.New("source disabled")

	// Task control errors.

	// ErrTaskCancelled is returned at a checkpoint once a stop was requested.
	ErrTaskCancelled = errors.New("task cancelled")

	// ErrTaskPaused is returned at a checkpoint once a pause was requested.
	ErrTaskPaused = errors.New("task paused")

	// ErrQueueFull indicates the worker pool cannot accept more tasks.
	ErrQueueFull = errors.New("task queue full")

	// ErrEngineClosed indicates the engine has been shut down.
	ErrEngineClosed = errors.New("engine closed")
)

// ValidationError reports a source field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets callers match validation failures with errors.Is(err, ErrInvalidInput).
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// IsTaskInterrupt reports whether err is a stop or pause signal rather than a failure.
func IsTaskInterrupt(err error) bool {
	return errors.Is(err, ErrTaskCancelled) || errors.Is(err, ErrTaskPaused)
}
