package steps

import (
	"encoding/json"
	"time"
)

// Status is a step's approval state.
type Status string

const (
	StatusPending          Status = "pending"
	StatusRunning          Status = "running"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusCompleted        Status = "completed"
	// StatusRegenerate is written by an approval channel and consumed by the runner,
	// which moves the step back to running.
	StatusRegenerate Status = "regenerate"
)

// Record is the persisted status of one step of one job.
type Record struct {
	JobID     string          `json:"job_id"`
	Step      Name            `json:"step_name"`
	Status    Status          `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Active reports whether the step occupies the job's single active slot.
func (r *Record) Active() bool {
	return r.Status == StatusRunning || r.Status == StatusAwaitingApproval || r.Status == StatusRegenerate
}
