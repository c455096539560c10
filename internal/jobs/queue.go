package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jonathan/video-pipeline/internal/store"
)

// Handler runs one job. The returned result is stored on the completed record.
type Handler func(ctx context.Context, job *Job) (any, error)

// Job is a unit of queued work handed to a Handler.
type Job struct {
	ID      string
	Kind    string
	Payload json.RawMessage
	Timeout time.Duration

	queue *Queue
}

// Progress records running progress for the job.
func (j *Job) Progress(ctx context.Context, progress int, message string) error {
	return j.queue.SetStatus(ctx, j.ID, StatusRunning, progress, message, nil)
}

// Cancelled reports whether the job was cancelled by a user.
func (j *Job) Cancelled(ctx context.Context) (bool, error) {
	return j.queue.IsCancelled(ctx, j.ID)
}

// Queue is an in-process job queue whose status lives in a shared store.
type Queue struct {
	store    store.Store
	handlers map[string]Handler
	pending  chan *Job
	now      func() time.Time

	mu      sync.Mutex
	queued  map[string]*Job
	running map[string]struct{}
	started bool
	stopped bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewQueue creates a queue holding up to capacity waiting jobs.
func NewQueue(s store.Store, capacity int) *Queue {
	if capacity <= 0 {
		capacity = 100
	}
	return &Queue{
		store:    s,
		handlers: make(map[string]Handler),
		pending:  make(chan *Job, capacity),
		now:      time.Now,
		queued:   make(map[string]*Job),
		running:  make(map[string]struct{}),
		quit:     make(chan struct{}),
	}
}

// Register installs the handler for a job kind. Call before Start.
func (q *Queue) Register(kind string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = h
}

// Enqueue records a pending job and schedules it without waiting for it to run.
func (q *Queue) Enqueue(ctx context.Context, spec Spec, timeout time.Duration) (string, error) {
	q.mu.Lock()
	_, ok := q.handlers[spec.Kind]
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return "", ErrStopped
	}
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	id := spec.JobID
	if id == "" {
		id = NewJobID(q.now())
	}
	q.mu.Lock()
	_, dup := q.queued[id]
	_, live := q.running[id]
	q.mu.Unlock()
	if dup || live {
		return "", fmt.Errorf("job %s is already queued or running", id)
	}

	job := &Job{
		ID:      id,
		Kind:    spec.Kind,
		Payload: spec.Payload,
		Timeout: timeout,
		queue:   q,
	}

	if err := q.writeRecord(ctx, &Record{
		JobID:    job.ID,
		Kind:     job.Kind,
		Status:   StatusPending,
		Progress: 0,
		Message:  MessageQueued,
	}); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.mu.Lock()
	q.queued[job.ID] = job
	q.mu.Unlock()

	select {
	case q.pending <- job:
	default:
		q.mu.Lock()
		delete(q.queued, job.ID)
		q.mu.Unlock()
		q.record(ctx, job.ID, StatusFailed, 0, ErrQueueFull.Error(), nil)
		return "", ErrQueueFull
	}

	log.Printf("[job %s] queued (%s)", job.ID, job.Kind)
	return job.ID, nil
}

// SetStatus overwrites a job's status record. A cancelled job keeps its record
// and ErrJobCancelled is returned instead.
func (q *Queue) SetStatus(ctx context.Context, jobID string, status Status, progress int, message string, result any) error {
	rec := &Record{
		JobID:    jobID,
		Status:   status,
		Progress: progress,
		Message:  message,
	}
	if prev, err := q.GetStatus(ctx, jobID); err == nil {
		if prev.Cancelled() {
			return fmt.Errorf("%w: %s", ErrJobCancelled, jobID)
		}
		rec.Kind = prev.Kind
	}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal job result: %w", err)
		}
		rec.Result = data
	}
	return q.writeRecord(ctx, rec)
}

// record writes a status the queue itself owns. A write that cannot be stored is
// logged with the status it lost.
func (q *Queue) record(ctx context.Context, jobID string, status Status, progress int, message string, result any) {
	if err := q.SetStatus(ctx, jobID, status, progress, message, result); err != nil {
		log.Printf("[job %s] failed to record %s status %q: %v", jobID, status, message, err)
	}
}

func (q *Queue) writeRecord(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = q.now().UTC()
	return store.PutJSON(ctx, q.store, store.JobStatusKey(rec.JobID), rec, store.JobStatusTTL)
}

// GetStatus returns the current record for jobID or ErrJobNotFound.
func (q *Queue) GetStatus(ctx context.Context, jobID string) (*Record, error) {
	var rec Record
	if err := store.GetJSON(ctx, q.store, store.JobStatusKey(jobID), &rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Cancel marks a job cancelled with MessageCancelled. See CancelWithMessage.
func (q *Queue) Cancel(ctx context.Context, jobID string) (bool, error) {
	return q.CancelWithMessage(ctx, jobID, MessageCancelled)
}

// CancelWithMessage marks a job failed with message, which should come from
// CancelledMessage. Cancellation only writes status: a queued job is dropped
// before it starts and a running handler stops at its next cancellation check.
// It returns false when the job is unknown or already finished.
func (q *Queue) CancelWithMessage(ctx context.Context, jobID, message string) (bool, error) {
	if message == "" {
		message = MessageCancelled
	}
	rec, err := q.GetStatus(ctx, jobID)
	if errors.Is(err, ErrJobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.Status.Terminal() {
		return false, nil
	}

	rec.Status = StatusFailed
	rec.Progress = 0
	rec.Message = message
	rec.Result = nil
	if err := q.writeRecord(ctx, rec); err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}

	q.mu.Lock()
	_, queued := q.queued[jobID]
	delete(q.queued, jobID)
	q.mu.Unlock()
	if queued {
		log.Printf("[job %s] removed from queue: %s", jobID, message)
	} else {
		log.Printf("[job %s] %s", jobID, message)
	}
	return true, nil
}

// IsCancelled reports whether a user cancelled the job.
func (q *Queue) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	rec, err := q.GetStatus(ctx, jobID)
	if err != nil {
		return false, err
	}
	return rec.Cancelled(), nil
}

// Start launches the worker pool. Workers exit when ctx ends or Stop is called.
func (q *Queue) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	log.Printf("[jobs] started %d workers", workers)
}

// Stop refuses new jobs and waits for running ones to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.quit)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.quit:
			return
		case job := <-q.pending:
			q.run(ctx, job)
		}
	}
}

func (q *Queue) run(parent context.Context, job *Job) {
	q.mu.Lock()
	_, stillQueued := q.queued[job.ID]
	delete(q.queued, job.ID)
	handler := q.handlers[job.Kind]
	if stillQueued {
		q.running[job.ID] = struct{}{}
	}
	q.mu.Unlock()
	if !stillQueued {
		return
	}
	defer func() {
		q.mu.Lock()
		delete(q.running, job.ID)
		q.mu.Unlock()
	}()

	// Status writes after the run use a fresh context so a timed out job can still be recorded.
	bg := context.WithoutCancel(parent)

	// Another process may have cancelled the job while it waited here.
	rec, err := q.GetStatus(parent, job.ID)
	if err != nil {
		log.Printf("[job %s] not started: failed to read status: %v", job.ID, err)
		q.record(bg, job.ID, StatusFailed, 0, fmt.Sprintf("failed to read job status: %v", err), nil)
		return
	}
	if rec.Status.Terminal() {
		log.Printf("[job %s] not started: already %s (%s)", job.ID, rec.Status, rec.Message)
		return
	}

	// Besides shutdown, only the timeout cancels the handler's context.
	ctx, cancel := context.WithTimeout(parent, job.Timeout)
	defer cancel()

	if err := q.SetStatus(ctx, job.ID, StatusRunning, 0, MessageStarted, nil); err != nil {
		log.Printf("[job %s] not started: failed to mark running: %v", job.ID, err)
		if !errors.Is(err, ErrJobCancelled) {
			q.record(bg, job.ID, StatusFailed, 0, fmt.Sprintf("failed to mark job running: %v", err), nil)
		}
		return
	}

	start := time.Now()
	result, err := q.invoke(ctx, handler, job)

	if cancelled, cerr := q.IsCancelled(bg, job.ID); cerr == nil && cancelled {
		log.Printf("[job %s] stopped after cancellation (%v)", job.ID, time.Since(start).Round(time.Millisecond))
		return
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		log.Printf("[job %s] timed out after %v", job.ID, job.Timeout)
		q.record(bg, job.ID, StatusFailed, 0, MessageTimedOut, nil)
	case err != nil:
		log.Printf("[job %s] failed: %v", job.ID, err)
		q.record(bg, job.ID, StatusFailed, 0, err.Error(), nil)
	default:
		log.Printf("[job %s] completed in %v", job.ID, time.Since(start).Round(time.Millisecond))
		q.record(bg, job.ID, StatusCompleted, 100, "Job completed", result)
	}
}

func (q *Queue) invoke(ctx context.Context, handler Handler, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[job %s] panic: %v\n%s", job.ID, r, debug.Stack())
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}
