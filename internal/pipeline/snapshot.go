package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
	"github.com/jonathan/video-pipeline/internal/store"
)

// Snapshot is the durable checkpoint of a session. Outputs carry content and
// artifact URLs only, never local paths.
type Snapshot struct {
	SessionID    string                         `json:"session_id"`
	JobID        string                         `json:"job_id"`
	Input        Input                          `json:"input"`
	CurrentStep  steps.Name                     `json:"current_step,omitempty"`
	Completed    []steps.Name                   `json:"completed"`
	Outputs      map[steps.Name]json.RawMessage `json:"outputs"`
	ArtifactURLs map[steps.Name][]string        `json:"artifact_urls,omitempty"`
	Style        string                         `json:"style,omitempty"`
	SavedAt      time.Time                      `json:"saved_at"`
}

// Snapshot captures the state for persistence.
func (s *State) Snapshot(now time.Time) (*Snapshot, error) {
	s.mu.RLock()
	outputs := make(map[steps.Name]Output, len(s.outputs))
	for k, v := range s.outputs {
		outputs[k] = v
	}
	urls := make(map[steps.Name][]string, len(s.artifactURLs))
	for k, v := range s.artifactURLs {
		urls[k] = append([]string(nil), v...)
	}
	current := s.current
	s.mu.RUnlock()

	snap := &Snapshot{
		SessionID:    s.SessionID,
		JobID:        s.JobID,
		Input:        s.Input,
		CurrentStep:  current,
		Completed:    s.Completed(),
		Outputs:      make(map[steps.Name]json.RawMessage, len(outputs)),
		ArtifactURLs: urls,
		Style:        s.Style(),
		SavedAt:      now.UTC(),
	}
	for step, o := range outputs {
		data, err := EncodeOutput(o)
		if err != nil {
			return nil, err
		}
		snap.Outputs[step] = data
	}
	return snap, nil
}

// SaveSnapshot replaces the stored snapshot for the session.
func SaveSnapshot(ctx context.Context, s store.Store, snap *Snapshot) error {
	if err := store.PutJSON(ctx, s, store.PipelineStateKey(snap.SessionID), snap, store.PipelineStateTTL); err != nil {
		return fmt.Errorf("failed to save snapshot for session %s: %w", snap.SessionID, err)
	}
	return nil
}

// LoadSnapshot reads a session's snapshot. A missing one returns ErrNoSavedSession.
func LoadSnapshot(ctx context.Context, s store.Store, sessionID string) (*Snapshot, error) {
	var snap Snapshot
	if err := store.GetJSON(ctx, s, store.PipelineStateKey(sessionID), &snap); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoSavedSession
		}
		return nil, fmt.Errorf("failed to load snapshot for session %s: %w", sessionID, err)
	}
	return &snap, nil
}

// DeleteSnapshot removes a session's snapshot.
func DeleteSnapshot(ctx context.Context, s store.Store, sessionID string) error {
	if err := s.Delete(ctx, store.PipelineStateKey(sessionID)); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to delete snapshot for session %s: %w", sessionID, err)
	}
	return nil
}
