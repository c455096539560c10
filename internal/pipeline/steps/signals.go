package steps

import "sync"

// Signals wakes in-process waiters when a step record changes, so approvals
// applied in the same process do not wait for the next poll.
type Signals struct {
	mu      sync.Mutex
	waiters map[string]map[chan struct{}]struct{}
}

// NewSignals creates an empty hub.
func NewSignals() *Signals {
	return &Signals{waiters: make(map[string]map[chan struct{}]struct{})}
}

func signalKey(jobID string, step Name) string {
	return jobID + ":" + string(step)
}

// Subscribe returns a channel that receives after each change to the step, and
// a function that releases it.
func (s *Signals) Subscribe(jobID string, step Name) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	key := signalKey(jobID, step)

	s.mu.Lock()
	if s.waiters[key] == nil {
		s.waiters[key] = make(map[chan struct{}]struct{})
	}
	s.waiters[key][ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.waiters[key], ch)
		if len(s.waiters[key]) == 0 {
			delete(s.waiters, key)
		}
		s.mu.Unlock()
	}
}

// Notify wakes every subscriber of the step without blocking.
func (s *Signals) Notify(jobID string, step Name) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.waiters[signalKey(jobID, step)] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
