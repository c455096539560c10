package store

import "time"

// Retention windows for persisted records.
const (
	JobStatusTTL     = 24 * time.Hour
	StepStatusTTL    = 7 * 24 * time.Hour
	PipelineStateTTL = 7 * 24 * time.Hour
)

// JobStatusKey returns the key holding a job's status record.
func JobStatusKey(jobID string) string {
	return "job_status:" + jobID
}

// StepStatusKey returns the key holding one step's status record.
func StepStatusKey(jobID, stepName string) string {
	return "step_status:" + jobID + ":" + stepName
}

// PipelineStateKey returns the key holding a session's latest snapshot.
func PipelineStateKey(sessionID string) string {
	return "pipeline_state:" + sessionID
}
