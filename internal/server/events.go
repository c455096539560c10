package server

import (
	"github.com/jonathan/video-pipeline/internal/approval"
	"github.com/jonathan/video-pipeline/internal/pipeline"
)

// ProgressPublisher forwards runner progress to session event streams.
func ProgressPublisher(hub *approval.Hub) pipeline.ProgressCallback {
	return func(e pipeline.ProgressEvent) {
		hub.Publish(approval.Event{
			Type:      approval.EventProgress,
			SessionID: e.SessionID,
			JobID:     e.JobID,
			Step:      e.Step,
			Data:      e,
		})
	}
}

// DonePublisher ends session event streams with a complete or error event.
func DonePublisher(hub *approval.Hub) func(pipeline.Session, *pipeline.Result, error) {
	return func(sess pipeline.Session, res *pipeline.Result, err error) {
		e := approval.Event{SessionID: sess.ID, JobID: sess.JobID}
		if err != nil {
			e.Type = approval.EventError
			e.Data = map[string]string{"error": err.Error()}
		} else {
			e.Type = approval.EventComplete
			e.Data = res
		}
		hub.Publish(e)
	}
}
