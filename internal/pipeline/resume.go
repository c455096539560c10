package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"

	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
)

// Resumer rebuilds a session's state from its snapshot after a restart. Binary
// artifacts are downloaded again; no earlier local path is assumed to exist.
type Resumer struct {
	deps     Deps
	baseURL  string
	workRoot string
}

// NewResumer creates a resumer whose scratch directories live under workRoot
// (the system temp dir when empty).
func NewResumer(d Deps, cfg Config, workRoot string) (*Resumer, error) {
	if err := d.validate(false); err != nil {
		return nil, err
	}
	return &Resumer{deps: d, baseURL: cfg.PublicBaseURL, workRoot: workRoot}, nil
}

// Resume loads the latest snapshot for sessionID into a fresh state. A step that
// was awaiting approval is presented to the approval channel again. Returns
// ErrNoSavedSession when nothing was checkpointed.
func (r *Resumer) Resume(ctx context.Context, sessionID string) (_ *State, err error) {
	snap, err := LoadSnapshot(ctx, r.deps.Store, sessionID)
	if err != nil {
		return nil, err
	}

	if r.workRoot != "" {
		if err := os.MkdirAll(r.workRoot, 0755); err != nil {
			return nil, fmt.Errorf("failed to create work root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(r.workRoot, "session-"+filepath.Base(sessionID)+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dir)
		}
	}()

	st := NewState(snap.SessionID, snap.JobID, snap.Input, dir)
	for _, step := range steps.Order {
		raw, ok := snap.Outputs[step]
		if !ok {
			continue
		}
		out, err := DecodeOutput(raw)
		if err != nil {
			return nil, err
		}
		if err := r.fetchArtifacts(ctx, st, step, out); err != nil {
			return nil, err
		}
		st.SetOutput(out)
	}
	for step, urls := range snap.ArtifactURLs {
		st.setArtifactURLs(step, urls)
	}

	for _, step := range snap.Completed {
		st.MarkCompleted(step)
		rec, err := r.deps.Tracker.Get(ctx, st.JobID, step)
		if err != nil {
			return nil, err
		}
		if rec.Status != steps.StatusCompleted {
			if err := r.deps.Tracker.Restore(ctx, st.JobID, step, steps.StatusCompleted, snap.Outputs[step]); err != nil {
				return nil, err
			}
		}
	}
	st.SetCurrent(snap.CurrentStep)

	if err := r.represent(ctx, st, snap); err != nil {
		return nil, err
	}
	log.Printf("[resume %s] restored job %s: %d steps completed, current %q",
		sessionID, st.JobID, len(snap.Completed), snap.CurrentStep)
	return st, nil
}

// represent puts the current step back in front of the reviewer if its output
// was produced before the restart.
func (r *Resumer) represent(ctx context.Context, st *State, snap *Snapshot) error {
	cur := snap.CurrentStep
	if cur == "" || st.IsCompleted(cur) {
		return nil
	}
	out, ok := st.Output(cur)
	if !ok {
		return nil
	}

	rec, err := r.deps.Tracker.Get(ctx, st.JobID, cur)
	if err != nil {
		return err
	}
	switch rec.Status {
	case steps.StatusApproved, steps.StatusRegenerate:
		// A decision already arrived; the runner acts on it.
		return nil
	case steps.StatusAwaitingApproval:
	default:
		if err := r.deps.Tracker.Restore(ctx, st.JobID, cur, steps.StatusAwaitingApproval, snap.Outputs[cur]); err != nil {
			return err
		}
	}

	if r.deps.Channel != nil {
		present(ctx, r.deps, r.baseURL, st, cur, out)
	}
	return nil
}

func (r *Resumer) fetchArtifacts(ctx context.Context, st *State, step steps.Name, out Output) error {
	assets := out.Artifacts()
	if len(assets) == 0 {
		return nil
	}
	dir, err := st.StepDir(step)
	if err != nil {
		return err
	}
	for _, a := range assets {
		if a.URL == "" {
			return fmt.Errorf("artifact %q of step %s was never stored", a.Name, step)
		}
		name := a.Name
		if name == "" {
			name = path.Base(a.URL)
		}
		dest := filepath.Join(dir, filepath.Base(name))
		if err := r.deps.Artifacts.Download(ctx, a.URL, dest); err != nil {
			return fmt.Errorf("failed to restore %s artifact %s: %w", step, name, err)
		}
		a.Path = dest
	}
	return nil
}
