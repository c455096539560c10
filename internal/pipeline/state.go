package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
)

// Input is what a session was started with.
type Input struct {
	Topic         string   `json:"topic" validate:"required_without=SourceURL"`
	SourceURL     string   `json:"source_url,omitempty" validate:"omitempty,url"`
	ResearchURLs  []string `json:"research_urls,omitempty" validate:"omitempty,dive,url"`
	Style         string   `json:"style,omitempty"`
	AudioDir      string   `json:"audio_dir,omitempty"`
	ManifestPath  string   `json:"manifest_path,omitempty"`
	Privacy       string   `json:"privacy,omitempty" validate:"omitempty,oneof=private unlisted public"`
	BurnSubtitles bool     `json:"burn_subtitles,omitempty"`
}

// State is one session's in-memory pipeline progress.
type State struct {
	SessionID string
	JobID     string
	Input     Input
	WorkDir   string

	mu           sync.RWMutex
	outputs      map[steps.Name]Output
	artifactURLs map[steps.Name][]string
	completed    map[steps.Name]bool
	current      steps.Name
	stopCheck    func() bool
}

// NewState creates an empty state rooted at workDir.
func NewState(sessionID, jobID string, input Input, workDir string) *State {
	return &State{
		SessionID:    sessionID,
		JobID:        jobID,
		Input:        input,
		WorkDir:      workDir,
		outputs:      make(map[steps.Name]Output),
		artifactURLs: make(map[steps.Name][]string),
		completed:    make(map[steps.Name]bool),
	}
}

// CancelRequested reports whether the owning job was cancelled. Producers with
// many units of work check it between units and stop early.
func (s *State) CancelRequested() bool {
	s.mu.RLock()
	check := s.stopCheck
	s.mu.RUnlock()
	return check != nil && check()
}

// SetCancelCheck installs the function behind CancelRequested. The runner sets
// it for the length of a run.
func (s *State) SetCancelCheck(check func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCheck = check
}

// Output returns the current output of a step.
func (s *State) Output(step steps.Name) (Output, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outputs[step]
	return o, ok
}

// SetOutput replaces the output for o.Step().
func (s *State) SetOutput(o Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[o.Step()] = o
}

// DiscardOutput drops a step's output and uploaded URLs.
func (s *State) DiscardOutput(step steps.Name) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.outputs, step)
	delete(s.artifactURLs, step)
}

// OutputAs returns a step's output as its concrete type.
func OutputAs[T Output](s *State, step steps.Name) (T, bool) {
	var zero T
	o, ok := s.Output(step)
	if !ok {
		return zero, false
	}
	t, ok := o.(T)
	return t, ok
}

// Require is OutputAs for producers that cannot run without an earlier step.
func Require[T Output](s *State, step steps.Name) (T, error) {
	t, ok := OutputAs[T](s, step)
	if !ok {
		return t, fmt.Errorf("missing %s output", step)
	}
	return t, nil
}

// ArtifactURLs returns the uploaded URLs of a step's artifacts.
func (s *State) ArtifactURLs(step steps.Name) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.artifactURLs[step]...)
}

func (s *State) setArtifactURLs(step steps.Name, urls []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(urls) == 0 {
		delete(s.artifactURLs, step)
		return
	}
	s.artifactURLs[step] = urls
}

// MarkCompleted records a step as done.
func (s *State) MarkCompleted(step steps.Name) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[step] = true
}

// IsCompleted reports whether a step is done.
func (s *State) IsCompleted(step steps.Name) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completed[step]
}

// Completed returns the finished steps in pipeline order.
func (s *State) Completed() []steps.Name {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []steps.Name
	for _, n := range steps.Order {
		if s.completed[n] {
			out = append(out, n)
		}
	}
	return out
}

// Current returns the step in progress, empty once finished.
func (s *State) Current() steps.Name {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetCurrent records the step in progress.
func (s *State) SetCurrent(step steps.Name) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = step
}

// Style returns the selected style id, falling back to the requested one.
func (s *State) Style() string {
	if o, ok := OutputAs[*StyleOutput](s, steps.Style); ok && o.StyleID != "" {
		return o.StyleID
	}
	return s.Input.Style
}

// StepDir returns (and creates) the scratch directory for a step.
func (s *State) StepDir(step steps.Name) (string, error) {
	dir := filepath.Join(s.WorkDir, string(step))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create work dir for %s: %w", step, err)
	}
	return dir, nil
}
