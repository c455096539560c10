package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/video-pipeline/internal/approval"
	"github.com/jonathan/video-pipeline/internal/jobs"
	"github.com/jonathan/video-pipeline/internal/pipeline"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrUnauthorized indicates a signed link that failed verification.
type ErrUnauthorized struct {
	Err error
}

func (e *ErrUnauthorized) Error() string {
	return e.Err.Error()
}

func (e *ErrUnauthorized) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation    *ErrValidation
		unauthorized  *ErrUnauthorized
		invalidAction *approval.InvalidActionError
		unknownStep   *steps.UnknownStepError
		transition    *steps.TransitionError
		sequence      *steps.SequenceError
		fields        validator.ValidationErrors
	)

	switch {
	case errors.As(err, &validation), errors.As(err, &fields),
		errors.As(err, &invalidAction), errors.As(err, &unknownStep):
		return http.StatusBadRequest
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, jobs.ErrJobNotFound),
		errors.Is(err, pipeline.ErrSessionNotFound),
		errors.Is(err, pipeline.ErrNoSavedSession):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrSessionExists),
		errors.Is(err, approval.ErrNotAwaiting),
		errors.As(err, &transition), errors.As(err, &sequence):
		return http.StatusConflict
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
