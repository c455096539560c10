package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/jonathan/video-pipeline/internal/approval"
	"github.com/jonathan/video-pipeline/internal/pipeline"
	"github.com/jonathan/video-pipeline/internal/producers"
	"github.com/jonathan/video-pipeline/internal/types"
)

// heartbeatInterval keeps idle event streams open through proxies.
const heartbeatInterval = 15 * time.Second

// handleStartJob queues a pipeline from a topic, source URL, or manifest.
func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var req types.StartJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.errorFor(w, err)
		return
	}

	input, err := InputFor(&req)
	if err != nil {
		s.errorFor(w, err)
		return
	}

	sess, err := s.pipelines.Start(r.Context(), input)
	if err != nil {
		s.errorFor(w, err)
		return
	}

	s.jsonResponse(w, http.StatusAccepted, types.StartJobResponse{
		JobID:     sess.JobID,
		SessionID: sess.ID,
		Status:    "queued",
	})
}

// InputFor builds the session input. Request fields override the manifest's.
func InputFor(req *types.StartJobRequest) (pipeline.Input, error) {
	input := pipeline.Input{
		Topic:     req.Topic,
		SourceURL: req.SourceURL,
		Style:     req.Style,
		Privacy:   req.Privacy,
	}
	if req.Manifest != "" {
		m, err := producers.LoadManifest(req.Manifest)
		if err != nil {
			return pipeline.Input{}, &ErrValidation{Field: "manifest", Message: err.Error()}
		}
		input = m.Input(req.Manifest)
		if req.Topic != "" {
			input.Topic = req.Topic
		}
		if req.Style != "" {
			input.Style = req.Style
		}
		if req.Privacy != "" {
			input.Privacy = req.Privacy
		}
	}
	input.ResearchURLs = req.ResearchURLs
	input.AudioDir = req.AudioDir
	input.BurnSubtitles = req.BurnSubtitles
	return input, nil
}

// handleGetJob returns a job's status record.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.jobs.GetStatus(r.Context(), r.PathValue("job_id"))
	if err != nil {
		s.errorFor(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, rec)
}

// handleCancelJob cancels a queued or running job.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	if _, err := s.jobs.GetStatus(r.Context(), jobID); err != nil {
		s.errorFor(w, err)
		return
	}

	cancelled, err := s.jobs.Cancel(r.Context(), jobID)
	if err != nil {
		s.errorFor(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, types.CancelResponse{JobID: jobID, Cancelled: cancelled})
}

// handleListSessions lists the sessions live in this process.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.pipelines.Sessions().List()
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleResumeSession restores a checkpointed session and queues it again.
func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.pipelines.Resume(r.Context(), r.PathValue("session_id"))
	if err != nil {
		s.errorFor(w, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, types.StartJobResponse{
		JobID:     sess.JobID,
		SessionID: sess.ID,
		Status:    "resumed",
	})
}

// handleSessionEvents streams a session's progress and approval requests until
// it completes or fails.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.errorResponse(w, http.StatusNotFound, "event streaming is not enabled")
		return
	}
	sessionID := r.PathValue("session_id")

	stream, err := newEventStream(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	events, release := s.hub.Subscribe(sessionID)
	defer release()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := stream.keepalive(); err != nil {
				return
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := stream.send(e); err != nil {
				log.Printf("[events %s] stream closed: %v", sessionID, err)
				return
			}
			if e.Type == approval.EventComplete || e.Type == approval.EventError {
				return
			}
		}
	}
}

// handleArtifact serves a file from the local artifact store.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		s.errorResponse(w, http.StatusNotFound, "artifact serving is not enabled")
		return
	}
	path, err := s.files.Resolve(r.PathValue("path"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	http.ServeFile(w, r, path)
}
