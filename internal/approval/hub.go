package approval

import (
	"context"
	"sync"
	"time"
)

// Event types published on the hub.
const (
	EventApproval = "approval"
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// Event is one message for session subscribers.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	JobID     string    `json:"job_id,omitempty"`
	Step      string    `json:"step,omitempty"`
	Data      any       `json:"data,omitempty"`
	Time      time.Time `json:"time"`
}

// Hub is an in-process pub/sub of session events. It is also a Channel so the
// runner's approval requests reach stream subscribers.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan Event]struct{}
	buffer int
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: make(map[string]map[chan Event]struct{}), buffer: buffer}
}

// Subscribe returns the event stream for a session and a release function.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[sessionID], ch)
			if len(h.subs[sessionID]) == 0 {
				delete(h.subs, sessionID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to current subscribers, dropping it for any that are full.
func (h *Hub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[e.SessionID] {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns how many streams are open for a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

// Notify publishes the notification as an approval event.
func (h *Hub) Notify(_ context.Context, n Notification) error {
	h.Publish(Event{
		Type:      EventApproval,
		SessionID: n.SessionID,
		JobID:     n.JobID,
		Step:      n.Step,
		Data:      n,
	})
	return nil
}
