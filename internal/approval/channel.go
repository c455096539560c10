package approval

import (
	"context"
	"errors"
	"log"
	"strings"
)

// Notification presents one step's output for a decision.
type Notification struct {
	SessionID string   `json:"session_id"`
	JobID     string   `json:"job_id"`
	Step      string   `json:"step"`
	Text      string   `json:"text"`
	Actions   []Action `json:"actions"`
	// Links are artifact URLs previewed with the text, such as generated images.
	Links []string `json:"links,omitempty"`
	// ActionURLs maps each action to a signed link that applies it.
	ActionURLs map[Action]string `json:"action_urls,omitempty"`
}

// Channel delivers notifications to a human.
type Channel interface {
	Notify(ctx context.Context, n Notification) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, n Notification) error

// Notify calls f.
func (f ChannelFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// LogChannel writes notifications to the process log.
type LogChannel struct{}

// Notify logs the notification.
func (LogChannel) Notify(_ context.Context, n Notification) error {
	actions := make([]string, len(n.Actions))
	for i, a := range n.Actions {
		actions[i] = string(a)
	}
	log.Printf("[approval] %s %s awaiting decision (%s)\n%s", n.JobID, n.Step, strings.Join(actions, "/"), n.Text)
	for _, l := range n.Links {
		log.Printf("[approval]   %s", l)
	}
	return nil
}

// Multi fans a notification out to several channels and joins their errors.
type Multi []Channel

// Notify delivers to every channel even when one fails.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, c := range m {
		if c == nil {
			continue
		}
		if err := c.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
