package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/video-pipeline/internal/jobs"
)

// JobKind is the queue kind that runs a pipeline session.
const JobKind = "pipeline"

type jobPayload struct {
	SessionID string `json:"session_id"`
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	WorkRoot    string
	JobTimeout  time.Duration
	KeepWorkDir bool
	// OnDone is called when a session's job finishes, successfully or not.
	OnDone func(sess Session, res *Result, err error)
}

// Service starts and resumes sessions by queueing them as jobs.
type Service struct {
	runner   *Runner
	resumer  *Resumer
	queue    *jobs.Queue
	sessions *Registry
	opts     ServiceOptions
}

// NewService registers the pipeline handler on queue.
func NewService(runner *Runner, resumer *Resumer, queue *jobs.Queue, sessions *Registry, opts ServiceOptions) *Service {
	if opts.WorkRoot == "" {
		opts.WorkRoot = filepath.Join(os.TempDir(), "video-pipeline")
	}
	s := &Service{runner: runner, resumer: resumer, queue: queue, sessions: sessions, opts: opts}
	queue.Register(JobKind, s.handle)
	return s
}

// Sessions returns the live session registry.
func (s *Service) Sessions() *Registry {
	return s.sessions
}

// Start creates a session for input and queues its pipeline.
func (s *Service) Start(ctx context.Context, input Input) (Session, error) {
	sess := &Session{ID: uuid.NewString(), Input: input}
	if err := s.sessions.Create(sess); err != nil {
		return Session{}, err
	}
	jobID, err := s.enqueue(ctx, sess.ID, "")
	if err != nil {
		s.sessions.Remove(sess.ID)
		return Session{}, err
	}
	s.sessions.bind(sess.ID, jobID)
	log.Printf("[session %s] started job %s", sess.ID, jobID)
	return Session{ID: sess.ID, JobID: jobID, Input: input, CreatedAt: sess.CreatedAt}, nil
}

// Resume restores a session from its snapshot and queues it under its original
// job id. Returns ErrNoSavedSession when there is nothing to resume.
func (s *Service) Resume(ctx context.Context, sessionID string) (Session, error) {
	if _, ok := s.sessions.Get(sessionID); ok {
		return Session{}, ErrSessionExists
	}
	st, err := s.resumer.Resume(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	sess := &Session{ID: st.SessionID, JobID: st.JobID, Input: st.Input, Resumed: true, state: st}
	if err := s.sessions.Create(sess); err != nil {
		os.RemoveAll(st.WorkDir)
		return Session{}, err
	}
	if _, err := s.enqueue(ctx, sess.ID, st.JobID); err != nil {
		s.sessions.Remove(sess.ID)
		os.RemoveAll(st.WorkDir)
		return Session{}, err
	}
	log.Printf("[session %s] resumed job %s", sess.ID, st.JobID)
	return *sess, nil
}

func (s *Service) enqueue(ctx context.Context, sessionID, jobID string) (string, error) {
	payload, err := json.Marshal(jobPayload{SessionID: sessionID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}
	return s.queue.Enqueue(ctx, jobs.Spec{Kind: JobKind, Payload: payload, JobID: jobID}, s.opts.JobTimeout)
}

func (s *Service) handle(ctx context.Context, job *jobs.Job) (any, error) {
	var p jobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return nil, fmt.Errorf("invalid pipeline payload: %w", err)
	}
	sess, ok := s.sessions.Get(p.SessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, p.SessionID)
	}
	defer s.sessions.Remove(p.SessionID)

	st, ok := s.sessions.State(p.SessionID)
	if !ok {
		dir := filepath.Join(s.opts.WorkRoot, sess.ID)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create work dir: %w", err)
		}
		st = NewState(sess.ID, job.ID, sess.Input, dir)
		s.sessions.attach(sess.ID, st)
	}
	if !s.opts.KeepWorkDir {
		defer os.RemoveAll(st.WorkDir)
	}

	res, err := s.runner.Run(ctx, st)
	if s.opts.OnDone != nil {
		done := sess
		done.JobID = st.JobID
		s.opts.OnDone(done, res, err)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}
