// Package approval delivers step previews to humans and applies their decisions
// back onto the step records.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jonathan/video-pipeline/internal/jobs"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
)

// Action is a decision on a step awaiting approval.
type Action string

const (
	ActionApprove    Action = "approve"
	ActionRegenerate Action = "regenerate"
	ActionCancel     Action = "cancel"
)

// AllActions is the set offered with every notification.
var AllActions = []Action{ActionApprove, ActionRegenerate, ActionCancel}

// ErrNotAwaiting is returned when an action targets a step that is not awaiting approval.
var ErrNotAwaiting = errors.New("step is not awaiting approval")

// InvalidActionError is returned for an unrecognized action name.
type InvalidActionError struct {
	Value string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("invalid action: %q", e.Value)
}

// ParseAction accepts approve, regenerate (or regen), and cancel.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve":
		return ActionApprove, nil
	case "regenerate", "regen":
		return ActionRegenerate, nil
	case "cancel":
		return ActionCancel, nil
	default:
		return "", &InvalidActionError{Value: s}
	}
}

// targetStatus maps an action to the step status it writes.
func (a Action) targetStatus() steps.Status {
	switch a {
	case ActionApprove:
		return steps.StatusApproved
	case ActionRegenerate:
		return steps.StatusRegenerate
	default:
		return steps.StatusRejected
	}
}

// JobCanceller cancels a job by id, recording message as its failure.
type JobCanceller interface {
	CancelWithMessage(ctx context.Context, jobID, message string) (bool, error)
}

// Applier applies inbound decisions to step records.
type Applier struct {
	tracker *steps.Tracker
	jobs    JobCanceller
}

// NewApplier creates an Applier. canceller may be nil when cancellation is not wired.
func NewApplier(tracker *steps.Tracker, canceller JobCanceller) *Applier {
	return &Applier{tracker: tracker, jobs: canceller}
}

// Apply records the decision for a step awaiting approval. Cancel also fails the
// job with a message naming the step.
func (a *Applier) Apply(ctx context.Context, jobID string, step steps.Name, action Action) error {
	rec, err := a.tracker.Get(ctx, jobID, step)
	if err != nil {
		return err
	}
	if rec.Status != steps.StatusAwaitingApproval {
		return fmt.Errorf("%w: %s is %s", ErrNotAwaiting, step, rec.Status)
	}

	msg := fmt.Sprintf("%s by user", action)
	if _, err := a.tracker.Transition(ctx, jobID, step, action.targetStatus(), steps.Update{Message: msg}); err != nil {
		var te *steps.TransitionError
		if errors.As(err, &te) {
			return fmt.Errorf("%w: %s is %s", ErrNotAwaiting, step, te.From)
		}
		return err
	}

	if action == ActionCancel && a.jobs != nil {
		if _, err := a.jobs.CancelWithMessage(ctx, jobID, jobs.CancelledMessage("step "+string(step))); err != nil {
			return fmt.Errorf("failed to cancel job: %w", err)
		}
	}

	log.Printf("[approval] %s %s: %s", jobID, step, action)
	return nil
}
