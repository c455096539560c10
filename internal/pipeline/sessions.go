package pipeline

import (
	"sort"
	"sync"
	"time"
)

// Session is a pipeline live in this process.
type Session struct {
	ID        string    `json:"session_id"`
	JobID     string    `json:"job_id,omitempty"`
	Input     Input     `json:"input"`
	CreatedAt time.Time `json:"created_at"`
	Resumed   bool      `json:"resumed"`

	state *State
}

// Registry tracks the sessions live in this process. Durable progress lives in
// the store; the registry only routes requests to running pipelines.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers a session. It fails with ErrSessionExists if the id is live.
func (r *Registry) Create(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return ErrSessionExists
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	r.sessions[s.ID] = s
	return nil
}

// Get returns a copy of a live session.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// State returns the session's pipeline state once its job has started.
func (r *Registry) State(id string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok || s.state == nil {
		return nil, false
	}
	return s.state, true
}

// Remove forgets a session. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// List returns copies of live sessions, oldest first.
func (r *Registry) List() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *Registry) bind(id, jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.JobID == "" {
		s.JobID = jobID
	}
}

func (r *Registry) attach(id string, st *State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.state = st
		s.JobID = st.JobID
	}
}
