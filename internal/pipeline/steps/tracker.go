package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonathan/video-pipeline/internal/store"
)

// Tracker reads and writes step records and enforces the transition rules.
type Tracker struct {
	store   store.Store
	signals *Signals
	now     func() time.Time
	mu      sync.Mutex
}

// NewTracker creates a tracker. signals may be nil.
func NewTracker(s store.Store, signals *Signals) *Tracker {
	if signals == nil {
		signals = NewSignals()
	}
	return &Tracker{store: s, signals: signals, now: time.Now}
}

// Signals returns the hub notified on every write.
func (t *Tracker) Signals() *Signals {
	return t.signals
}

// Get returns the step record, or a pending record when none is stored.
func (t *Tracker) Get(ctx context.Context, jobID string, step Name) (*Record, error) {
	var rec Record
	err := store.GetJSON(ctx, t.store, store.StepStatusKey(jobID, string(step)), &rec)
	if errors.Is(err, store.ErrNotFound) {
		return &Record{JobID: jobID, Step: step, Status: StatusPending}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load step %s: %w", step, err)
	}
	return &rec, nil
}

// List returns every step record of the job in sequence order.
func (t *Tracker) List(ctx context.Context, jobID string) ([]*Record, error) {
	records := make([]*Record, 0, len(Order))
	for _, step := range Order {
		rec, err := t.Get(ctx, jobID, step)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Update carries optional fields for Transition.
type Update struct {
	Data    json.RawMessage
	Message string
}

// Transition moves a step to a new status. Illegal edges return *TransitionError;
// entering running out of order returns *SequenceError.
func (t *Tracker) Transition(ctx context.Context, jobID string, step Name, to Status, u Update) (*Record, error) {
	if _, ok := Registry[step]; !ok {
		return nil, &UnknownStepError{Name: string(step)}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur, err := t.Get(ctx, jobID, step)
	if err != nil {
		return nil, err
	}
	if !CanTransition(cur.Status, to) {
		return nil, &TransitionError{JobID: jobID, Step: step, From: cur.Status, To: to}
	}

	if to == StatusRunning {
		if err := t.checkSequence(ctx, jobID, step); err != nil {
			return nil, err
		}
	}

	next := &Record{
		JobID:   jobID,
		Step:    step,
		Status:  to,
		Data:    cur.Data,
		Message: u.Message,
	}
	if to == StatusRunning {
		next.Data = nil
	}
	if u.Data != nil {
		next.Data = u.Data
	}

	if err := t.write(ctx, next); err != nil {
		return nil, err
	}
	log.Printf("[step %s] %s: %s -> %s", step, jobID, cur.Status, to)
	return next, nil
}

// Restore writes a record directly, bypassing the transition rules. Used when
// resuming from a snapshot whose step records have expired or gone stale.
func (t *Tracker) Restore(ctx context.Context, jobID string, step Name, status Status, data json.RawMessage) error {
	if _, ok := Registry[step]; !ok {
		return &UnknownStepError{Name: string(step)}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.write(ctx, &Record{JobID: jobID, Step: step, Status: status, Data: data, Message: "restored"})
}

func (t *Tracker) checkSequence(ctx context.Context, jobID string, step Name) error {
	if prev, ok := Previous(step); ok {
		rec, err := t.Get(ctx, jobID, prev)
		if err != nil {
			return err
		}
		if rec.Status != StatusCompleted {
			return &SequenceError{JobID: jobID, Step: step, Blocker: prev, Status: rec.Status}
		}
	}

	for _, other := range Order {
		if other == step {
			continue
		}
		rec, err := t.Get(ctx, jobID, other)
		if err != nil {
			return err
		}
		if rec.Active() {
			return &SequenceError{JobID: jobID, Step: step, Blocker: other, Status: rec.Status}
		}
	}
	return nil
}

func (t *Tracker) write(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = t.now().UTC()
	if err := store.PutJSON(ctx, t.store, store.StepStatusKey(rec.JobID, string(rec.Step)), rec, store.StepStatusTTL); err != nil {
		return fmt.Errorf("failed to save step %s: %w", rec.Step, err)
	}
	t.signals.Notify(rec.JobID, rec.Step)
	return nil
}
