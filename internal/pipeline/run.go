// Package pipeline drives a session through the ordered steps, gating each one on
// a reviewer's decision and checkpointing progress so a restarted process can resume.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/video-pipeline/internal/approval"
	"github.com/jonathan/video-pipeline/internal/artifacts"
	"github.com/jonathan/video-pipeline/internal/jobs"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
	"github.com/jonathan/video-pipeline/internal/store"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step      string `json:"step"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	JobID     string `json:"job_id,omitempty"`
	Progress  int    `json:"progress"`
	Content   any    `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// JobControl is the part of the job queue the runner reports to.
type JobControl interface {
	SetStatus(ctx context.Context, jobID string, status jobs.Status, progress int, message string, result any) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
}

// Config tunes the approval wait.
type Config struct {
	PollInterval    time.Duration
	ApprovalTimeout time.Duration
	// AutoApprove completes each step without waiting for a reviewer.
	AutoApprove bool
	// PublicBaseURL enables signed action links in notifications.
	PublicBaseURL string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:    2 * time.Second,
		ApprovalTimeout: time.Hour,
	}
}

// Deps are the collaborators shared by Runner and Resumer.
type Deps struct {
	Tracker   *steps.Tracker
	Jobs      JobControl
	Store     store.Store
	Artifacts artifacts.Store
	Channel   approval.Channel
	// Signer is optional; without it notifications carry no action links.
	Signer    *approval.Signer
	Producers Producers
}

func (d Deps) validate(needProducers bool) error {
	if d.Tracker == nil || d.Store == nil {
		return errors.New("pipeline requires a step tracker and a store")
	}
	if d.Artifacts == nil {
		return errors.New("pipeline requires an artifact store")
	}
	if needProducers {
		if d.Jobs == nil {
			return errors.New("pipeline requires job control")
		}
		return d.Producers.Validate()
	}
	return nil
}

// Result summarizes a finished pipeline. It becomes the job's result.
type Result struct {
	SessionID string                `json:"session_id"`
	JobID     string                `json:"job_id"`
	VideoURL  string                `json:"video_url,omitempty"`
	UploadURL string                `json:"upload_url,omitempty"`
	Summaries map[steps.Name]string `json:"summaries"`
}

// Runner executes the step sequence for one session at a time per call.
type Runner struct {
	deps Deps
	cfg  Config
	now  func() time.Time

	OnProgress ProgressCallback
}

// NewRunner validates deps and fills zero config values with defaults.
func NewRunner(d Deps, cfg Config) (*Runner, error) {
	if err := d.validate(true); err != nil {
		return nil, err
	}
	if d.Channel == nil {
		d.Channel = approval.LogChannel{}
	}
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = def.ApprovalTimeout
	}
	return &Runner{deps: d, cfg: cfg, now: time.Now}, nil
}

// Run drives every unfinished step to completion. Steps already completed in st
// are skipped, so a resumed state continues where it stopped.
func (r *Runner) Run(ctx context.Context, st *State) (*Result, error) {
	st.SetCancelCheck(func() bool {
		cancelled, err := r.deps.Jobs.IsCancelled(ctx, st.JobID)
		return err == nil && cancelled
	})
	defer st.SetCancelCheck(nil)

	for _, step := range steps.Order {
		if st.IsCompleted(step) {
			continue
		}
		if err := r.runStep(ctx, st, step); err != nil {
			log.Printf("[pipeline %s] stopped at %s: %v", st.SessionID, step, err)
			return nil, err
		}
	}

	st.SetCurrent("")
	if err := DeleteSnapshot(ctx, r.deps.Store, st.SessionID); err != nil {
		return nil, err
	}
	res := buildResult(st)
	r.emit(st, "", "Pipeline completed", steps.DoneProgress, res)
	log.Printf("[pipeline %s] completed", st.SessionID)
	return res, nil
}

func (r *Runner) runStep(ctx context.Context, st *State, step steps.Name) error {
	for {
		if err := r.checkCancelled(ctx, st.JobID); err != nil {
			return err
		}
		rec, err := r.deps.Tracker.Get(ctx, st.JobID, step)
		if err != nil {
			return err
		}

		switch rec.Status {
		case steps.StatusCompleted:
			return r.adoptCompleted(st, step, rec)
		case steps.StatusApproved:
			return r.complete(ctx, st, step)
		case steps.StatusRejected:
			return &RejectedError{Step: step}
		case steps.StatusAwaitingApproval:
			// Presented before a restart; wait for the decision again.
			if _, ok := st.Output(step); !ok {
				if err := adopt(st, step, rec); err != nil {
					return err
				}
			}
			st.SetCurrent(step)
		default:
			if err := r.produce(ctx, st, step, rec.Status); err != nil {
				return err
			}
		}

		if r.cfg.AutoApprove {
			if _, err := r.deps.Tracker.Transition(ctx, st.JobID, step, steps.StatusApproved, steps.Update{Message: "auto-approved"}); err != nil {
				return err
			}
			return r.complete(ctx, st, step)
		}

		decision, err := r.await(ctx, st.JobID, step)
		if err != nil {
			var timeout *ApprovalTimeoutError
			if errors.As(err, &timeout) {
				if _, terr := r.deps.Tracker.Transition(ctx, st.JobID, step, steps.StatusRejected, steps.Update{Message: "approval timeout"}); terr != nil {
					log.Printf("[pipeline %s] failed to mark %s timed out: %v", st.SessionID, step, terr)
				}
			}
			return err
		}

		switch decision {
		case steps.StatusApproved:
			return r.complete(ctx, st, step)
		case steps.StatusRejected:
			return &RejectedError{Step: step}
		case steps.StatusRegenerate:
			st.DiscardOutput(step)
			r.emit(st, step, fmt.Sprintf("Regenerating %s", step), steps.ProgressFor(step), nil)
			log.Printf("[pipeline %s] regenerating %s", st.SessionID, step)
		}
	}
}

// produce runs the step's producer and presents the output for approval.
func (r *Runner) produce(ctx context.Context, st *State, step steps.Name, from steps.Status) error {
	// A step left running by a crashed process is reclaimed in place.
	if from != steps.StatusRunning {
		if _, err := r.deps.Tracker.Transition(ctx, st.JobID, step, steps.StatusRunning, steps.Update{Message: "running"}); err != nil {
			return err
		}
	}
	st.SetCurrent(step)

	progress := steps.ProgressFor(step)
	msg := fmt.Sprintf("Running step %s", step)
	if err := r.deps.Jobs.SetStatus(ctx, st.JobID, jobs.StatusRunning, progress, msg, nil); err != nil {
		return err
	}
	r.emit(st, step, msg, progress, nil)

	out, err := r.deps.Producers[step].Produce(ctx, st)
	if err == nil {
		err = checkOutput(step, out)
	}
	if err == nil {
		err = r.upload(ctx, st, step, out)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if cerr := r.checkCancelled(ctx, st.JobID); cerr != nil {
			return cerr
		}
		if _, terr := r.deps.Tracker.Transition(ctx, st.JobID, step, steps.StatusRejected, steps.Update{Message: err.Error()}); terr != nil {
			log.Printf("[pipeline %s] failed to record %s failure: %v", st.SessionID, step, terr)
		}
		return &StepFailedError{Step: step, Err: err}
	}

	data, err := EncodeOutput(out)
	if err != nil {
		return err
	}
	st.SetOutput(out)
	if err := r.checkpoint(ctx, st); err != nil {
		return err
	}
	if _, err := r.deps.Tracker.Transition(ctx, st.JobID, step, steps.StatusAwaitingApproval, steps.Update{Data: data, Message: out.Summary()}); err != nil {
		return err
	}
	if err := r.deps.Jobs.SetStatus(ctx, st.JobID, jobs.StatusRunning, progress, fmt.Sprintf("Awaiting approval for %s", step), nil); err != nil {
		return err
	}
	r.emit(st, step, out.Summary(), progress, out)

	if !r.cfg.AutoApprove {
		present(ctx, r.deps, r.cfg.PublicBaseURL, st, step, out)
	}
	return nil
}

func checkOutput(step steps.Name, out Output) error {
	if out == nil {
		return errors.New("producer returned no output")
	}
	if out.Step() != step {
		return fmt.Errorf("producer returned %s output", out.Step())
	}
	return out.Validate()
}

// upload stores every local artifact and records the resulting URLs.
func (r *Runner) upload(ctx context.Context, st *State, step steps.Name, out Output) error {
	var urls []string
	for _, a := range out.Artifacts() {
		if a.Path != "" && a.URL == "" {
			name := a.Name
			if name == "" {
				name = filepath.Base(a.Path)
				a.Name = name
			}
			data, err := os.ReadFile(a.Path)
			if err != nil {
				return fmt.Errorf("failed to read artifact %s: %w", name, err)
			}
			url, err := r.deps.Artifacts.Upload(ctx, data, artifacts.Namespace(st.JobID, string(step)), name)
			if err != nil {
				return err
			}
			a.URL = url
		}
		if a.URL != "" {
			urls = append(urls, a.URL)
		}
	}
	st.setArtifactURLs(step, urls)
	return nil
}

func (r *Runner) complete(ctx context.Context, st *State, step steps.Name) error {
	if _, err := r.deps.Tracker.Transition(ctx, st.JobID, step, steps.StatusCompleted, steps.Update{Message: "completed"}); err != nil {
		return err
	}
	st.MarkCompleted(step)
	next, _ := steps.Next(step)
	st.SetCurrent(next)
	r.emit(st, step, fmt.Sprintf("Completed %s", step), steps.ProgressFor(step), nil)
	return r.checkpoint(ctx, st)
}

// adoptCompleted picks up a step finished by an earlier process.
func (r *Runner) adoptCompleted(st *State, step steps.Name, rec *steps.Record) error {
	if _, ok := st.Output(step); !ok {
		if err := adopt(st, step, rec); err != nil {
			return err
		}
	}
	st.MarkCompleted(step)
	return nil
}

func adopt(st *State, step steps.Name, rec *steps.Record) error {
	if len(rec.Data) == 0 {
		return &StepFailedError{Step: step, Err: errors.New("recorded output is missing")}
	}
	out, err := DecodeOutput(rec.Data)
	if err != nil {
		return &StepFailedError{Step: step, Err: err}
	}
	st.SetOutput(out)
	return nil
}

// await blocks until the step leaves awaiting_approval. It polls the store so a
// decision applied by another process is seen, and wakes early on local writes.
func (r *Runner) await(ctx context.Context, jobID string, step steps.Name) (steps.Status, error) {
	wake, release := r.deps.Tracker.Signals().Subscribe(jobID, step)
	defer release()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(r.cfg.ApprovalTimeout)
	defer deadline.Stop()

	for {
		rec, err := r.deps.Tracker.Get(ctx, jobID, step)
		if err != nil {
			return "", err
		}
		switch rec.Status {
		case steps.StatusApproved, steps.StatusRejected, steps.StatusRegenerate:
			return rec.Status, nil
		}
		if err := r.checkCancelled(ctx, jobID); err != nil {
			return "", err
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", &ApprovalTimeoutError{Step: step}
		case <-ticker.C:
		case <-wake:
		}
	}
}

func (r *Runner) checkCancelled(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cancelled, err := r.deps.Jobs.IsCancelled(ctx, jobID)
	if err != nil {
		return err
	}
	if cancelled {
		return ErrCancelled
	}
	return nil
}

func (r *Runner) checkpoint(ctx context.Context, st *State) error {
	snap, err := st.Snapshot(r.now())
	if err != nil {
		return err
	}
	return SaveSnapshot(ctx, r.deps.Store, snap)
}

// emitProgress calls the progress callback if configured
func (r *Runner) emit(st *State, step steps.Name, message string, progress int, content any) {
	if r.OnProgress == nil {
		return
	}
	r.OnProgress(ProgressEvent{
		Step:      string(step),
		Category:  steps.Registry[step].Category,
		Message:   message,
		SessionID: st.SessionID,
		JobID:     st.JobID,
		Progress:  progress,
		Content:   content,
	})
}

// present sends a step's output to the approval channel. Delivery failures are
// logged; the decision can still be applied through the API.
func present(ctx context.Context, d Deps, baseURL string, st *State, step steps.Name, out Output) {
	n := approval.Notification{
		SessionID: st.SessionID,
		JobID:     st.JobID,
		Step:      string(step),
		Text:      out.Summary(),
		Actions:   approval.AllActions,
		Links:     st.ArtifactURLs(step),
	}
	if d.Signer != nil && baseURL != "" {
		links, err := d.Signer.Links(baseURL, st.JobID, string(step), approval.AllActions)
		if err != nil {
			log.Printf("[pipeline %s] failed to sign action links: %v", st.SessionID, err)
		} else {
			n.ActionURLs = links
		}
	}
	if err := d.Channel.Notify(ctx, n); err != nil {
		log.Printf("[pipeline %s] failed to notify approval channel for %s: %v", st.SessionID, step, err)
	}
}

func buildResult(st *State) *Result {
	res := &Result{
		SessionID: st.SessionID,
		JobID:     st.JobID,
		Summaries: make(map[steps.Name]string),
	}
	for _, step := range st.Completed() {
		if o, ok := st.Output(step); ok {
			res.Summaries[step] = o.Summary()
		}
	}
	if v, ok := OutputAs[*VideoOutput](st, steps.Video); ok {
		res.VideoURL = v.Video.URL
	}
	if s, ok := OutputAs[*SubtitlesOutput](st, steps.Subtitles); ok && s.Burned != nil && s.Burned.URL != "" {
		res.VideoURL = s.Burned.URL
	}
	if u, ok := OutputAs[*UploadOutput](st, steps.Upload); ok {
		res.UploadURL = u.URL
	}
	return res
}
