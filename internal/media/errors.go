package media

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by Assemble when the ShouldStop hook asked it to stop.
var ErrStopped = errors.New("assembly stopped")

// ErrNoSegments is returned when no segment could be rendered.
var ErrNoSegments = errors.New("no segments rendered")

// CommandError represents a failed ffmpeg or ffprobe invocation.
type CommandError struct {
	Command   string
	Message   string
	LogOutput string
	Cause     error
}

func (e *CommandError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Command, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Command, e.Message)
}

func (e *CommandError) Unwrap() error {
	return e.Cause
}

// SegmentError records why one segment was dropped or failed.
type SegmentError struct {
	Index   int    `json:"index"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

func (e SegmentError) Error() string {
	return fmt.Sprintf("segment %d %s: %s", e.Index, e.Stage, e.Message)
}
