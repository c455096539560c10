package pipeline

import (
	"errors"
	"fmt"

	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
)

var (
	// ErrNoSavedSession is returned by Resume when no snapshot exists.
	ErrNoSavedSession = errors.New("no saved session")
	// ErrSessionExists is returned when a session id is already live in this process.
	ErrSessionExists = errors.New("session already running")
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCancelled is returned once the owning job has been cancelled.
	ErrCancelled = errors.New("pipeline cancelled")
)

// StepFailedError is returned when a producer errors or its output is unusable.
type StepFailedError struct {
	Step steps.Name
	Err  error
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepFailedError) Unwrap() error {
	return e.Err
}

// RejectedError is returned when a reviewer rejects or cancels a step.
type RejectedError struct {
	Step steps.Name
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("step %s rejected", e.Step)
}

// ApprovalTimeoutError is returned when no decision arrives in time.
type ApprovalTimeoutError struct {
	Step steps.Name
}

func (e *ApprovalTimeoutError) Error() string {
	return fmt.Sprintf("step %s approval timeout", e.Step)
}
