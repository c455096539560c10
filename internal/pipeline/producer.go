package pipeline

import (
	"context"
	"fmt"

	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
)

// Producer generates the output of one step from the state so far.
// Producers may retry internally; an error fails the step.
type Producer interface {
	Produce(ctx context.Context, st *State) (Output, error)
}

// ProducerFunc adapts a function to Producer.
type ProducerFunc func(ctx context.Context, st *State) (Output, error)

// Produce calls f.
func (f ProducerFunc) Produce(ctx context.Context, st *State) (Output, error) {
	return f(ctx, st)
}

// Producers maps every step to its producer.
type Producers map[steps.Name]Producer

// Validate checks that every step in the sequence has a producer.
func (p Producers) Validate() error {
	for _, n := range steps.Order {
		if p[n] == nil {
			return fmt.Errorf("no producer registered for step %s", n)
		}
	}
	return nil
}
