// Package types provides the request and response bodies of the HTTP API.
package types

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// StartJobRequest starts a pipeline from a topic, a source URL, or a manifest file.
type StartJobRequest struct {
	Topic         string   `json:"topic,omitempty" validate:"required_without_all=SourceURL Manifest"`
	SourceURL     string   `json:"source_url,omitempty" validate:"omitempty,url"`
	ResearchURLs  []string `json:"research_urls,omitempty" validate:"omitempty,max=20,dive,url"`
	Style         string   `json:"style,omitempty"`
	AudioDir      string   `json:"audio_dir,omitempty"`
	Manifest      string   `json:"manifest,omitempty"`
	Privacy       string   `json:"privacy,omitempty" validate:"omitempty,oneof=private unlisted public"`
	BurnSubtitles bool     `json:"burn_subtitles,omitempty"`
}

// Validate validates the StartJobRequest using the validator.
func (r *StartJobRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// StartJobResponse is returned once a pipeline job is queued.
type StartJobResponse struct {
	JobID     string `json:"job_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// ActionRequest applies a reviewer decision to a step.
type ActionRequest struct {
	Action string `json:"action" validate:"required,oneof=approve regenerate regen cancel"`
}

// Validate validates the ActionRequest using the validator.
func (r *ActionRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// ActionResponse reports an applied decision.
type ActionResponse struct {
	JobID  string `json:"job_id"`
	Step   string `json:"step"`
	Action string `json:"action"`
	Status string `json:"status"`
}

// StepResponse is one step's status record.
type StepResponse struct {
	Step      string    `json:"step_name"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StepListResponse lists the steps of a job in pipeline order.
type StepListResponse struct {
	JobID string          `json:"job_id"`
	Steps []*StepResponse `json:"steps"`
	Count int             `json:"count"`
}

// CancelResponse reports whether a cancel took effect.
type CancelResponse struct {
	JobID     string `json:"job_id"`
	Cancelled bool   `json:"cancelled"`
}
