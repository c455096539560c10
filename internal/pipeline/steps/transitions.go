package steps

import "fmt"

// transitions lists the legal edges of the step state machine.
var transitions = map[Status][]Status{
	StatusPending:          {StatusRunning},
	StatusRunning:          {StatusAwaitingApproval, StatusRejected},
	StatusAwaitingApproval: {StatusApproved, StatusRejected, StatusRegenerate, StatusCompleted},
	StatusRegenerate:       {StatusRunning},
	StatusApproved:         {StatusCompleted},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError is returned for an illegal status change.
type TransitionError struct {
	JobID string
	Step  Name
	From  Status
	To    Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition for step %s of %s: %s -> %s", e.Step, e.JobID, e.From, e.To)
}

// SequenceError is returned when a step would start out of order.
type SequenceError struct {
	JobID   string
	Step    Name
	Blocker Name
	Status  Status
}

func (e *SequenceError) Error() string {
	if prev, ok := Previous(e.Step); ok && prev == e.Blocker {
		return fmt.Sprintf("step %s cannot start: predecessor %s is %s", e.Step, e.Blocker, e.Status)
	}
	return fmt.Sprintf("step %s cannot start: step %s is %s", e.Step, e.Blocker, e.Status)
}
