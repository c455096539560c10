// Package jobs runs long pipeline work in a worker pool and records job status in the
// shared store so any process can poll or cancel it.
package jobs

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Messages written by the queue itself.
const (
	MessageQueued    = "Job queued"
	MessageStarted   = "Job started"
	MessageCancelled = "Job cancelled by user"
	MessageTimedOut  = "job timed out"
)

const cancelledSuffix = "cancelled by user"

// CancelledMessage names what the user cancelled, e.g. "step research cancelled by user".
func CancelledMessage(subject string) string {
	return subject + " " + cancelledSuffix
}

// DefaultTimeout bounds a job's run time when Enqueue gets zero.
const DefaultTimeout = 30 * time.Minute

var (
	// ErrJobNotFound is returned when no status record exists for a job.
	ErrJobNotFound = errors.New("job not found")
	// ErrQueueFull is returned when the in-process queue cannot accept more work.
	ErrQueueFull = errors.New("job queue is full")
	// ErrUnknownKind is returned when no handler is registered for a job kind.
	ErrUnknownKind = errors.New("no handler registered for job kind")
	// ErrStopped is returned by Enqueue after Stop.
	ErrStopped = errors.New("job queue stopped")
	// ErrJobCancelled is returned by SetStatus once a user has cancelled the job.
	ErrJobCancelled = errors.New("job was cancelled")
)

// Record is the persisted status of a job.
type Record struct {
	JobID     string          `json:"job_id"`
	Kind      string          `json:"kind,omitempty"`
	Status    Status          `json:"status"`
	Progress  int             `json:"progress"`
	Message   string          `json:"message"`
	Result    json.RawMessage `json:"result,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Cancelled reports whether the record reflects a user cancellation.
func (r *Record) Cancelled() bool {
	return r.Status == StatusFailed && strings.HasSuffix(r.Message, cancelledSuffix)
}

// Spec describes work to enqueue.
type Spec struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// JobID reuses an existing id, e.g. when resuming a pipeline. Empty assigns a new one.
	JobID string `json:"job_id,omitempty"`
}
