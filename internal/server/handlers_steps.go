package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/jonathan/video-pipeline/internal/approval"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
	"github.com/jonathan/video-pipeline/internal/server/middleware"
	"github.com/jonathan/video-pipeline/internal/types"
)

func stepResponse(rec *steps.Record) *types.StepResponse {
	resp := &types.StepResponse{
		Step:      string(rec.Step),
		Status:    string(rec.Status),
		Message:   rec.Message,
		UpdatedAt: rec.UpdatedAt,
	}
	if len(rec.Data) > 0 {
		resp.Data = rec.Data
	}
	return resp
}

// handleListSteps returns every step of a job in pipeline order.
func (s *Server) handleListSteps(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	if _, err := s.jobs.GetStatus(r.Context(), jobID); err != nil {
		s.errorFor(w, err)
		return
	}

	records, err := s.tracker.List(r.Context(), jobID)
	if err != nil {
		s.errorFor(w, err)
		return
	}

	resp := types.StepListResponse{JobID: jobID, Steps: make([]*types.StepResponse, 0, len(records))}
	for _, rec := range records {
		resp.Steps = append(resp.Steps, stepResponse(rec))
	}
	resp.Count = len(resp.Steps)
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleGetStep returns one step's status and output.
func (s *Server) handleGetStep(w http.ResponseWriter, r *http.Request) {
	step, err := steps.Parse(r.PathValue("step_name"))
	if err != nil {
		s.errorFor(w, err)
		return
	}
	rec, err := s.tracker.Get(r.Context(), r.PathValue("job_id"), step)
	if err != nil {
		s.errorFor(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, stepResponse(rec))
}

// handleStepAction applies approve, regenerate, or cancel to a step awaiting approval.
func (s *Server) handleStepAction(w http.ResponseWriter, r *http.Request) {
	step, err := steps.Parse(r.PathValue("step_name"))
	if err != nil {
		s.errorFor(w, err)
		return
	}

	var req types.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.errorFor(w, err)
		return
	}
	action, err := approval.ParseAction(req.Action)
	if err != nil {
		s.errorFor(w, err)
		return
	}

	jobID := r.PathValue("job_id")
	resp, err := s.apply(r.Context(), jobID, step, action)
	if err != nil {
		s.errorFor(w, err)
		return
	}
	caller, err := middleware.GetCaller(r)
	if err != nil {
		caller = "anonymous"
	}
	log.Printf("[job %s] %s: %s by %s", jobID, step, action, caller)
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleSignedApproval applies the decision carried by a signed link.
func (s *Server) handleSignedApproval(w http.ResponseWriter, r *http.Request) {
	if s.signer == nil {
		s.errorResponse(w, http.StatusNotFound, "signed approval links are not enabled")
		return
	}

	claims, err := s.signer.Verify(r.PathValue("token"))
	if err != nil {
		s.errorFor(w, &ErrUnauthorized{Err: err})
		return
	}
	step, err := steps.Parse(claims.Step)
	if err != nil {
		s.errorFor(w, err)
		return
	}

	resp, err := s.apply(r.Context(), claims.JobID, step, claims.Action)
	if err != nil {
		s.errorFor(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) apply(ctx context.Context, jobID string, step steps.Name, action approval.Action) (*types.ActionResponse, error) {
	if err := s.applier.Apply(ctx, jobID, step, action); err != nil {
		return nil, err
	}
	rec, err := s.tracker.Get(ctx, jobID, step)
	if err != nil {
		return nil, err
	}
	return &types.ActionResponse{
		JobID:  jobID,
		Step:   string(step),
		Action: string(action),
		Status: string(rec.Status),
	}, nil
}

// handleTelegramWebhook applies inline button presses. Every decodable update is
// answered 200 so Telegram does not redeliver one that cannot be applied.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	var update approval.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid update: "+err.Error())
		return
	}
	cb := update.CallbackQuery
	if cb == nil {
		s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	reply, err := s.applyCallback(r.Context(), cb.Data)
	if err != nil {
		log.Printf("[telegram] callback %q from %d: %v", cb.Data, cb.From.ID, err)
		reply = callbackErrorText(err)
	}

	if s.telegram != nil {
		if err := s.telegram.AnswerCallback(r.Context(), cb.ID, reply); err != nil {
			log.Printf("[telegram] failed to answer callback %s: %v", cb.ID, err)
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok", "reply": reply})
}

func (s *Server) applyCallback(ctx context.Context, data string) (string, error) {
	action, jobID, stepName, err := approval.ParseCallbackData(data)
	if err != nil {
		return "", err
	}

	// Legacy cancel_{job_id} buttons cancel the whole job.
	if stepName == "" {
		cancelled, err := s.jobs.Cancel(ctx, jobID)
		if err != nil {
			return "", err
		}
		if !cancelled {
			return "Job already finished", nil
		}
		return "Job cancelled", nil
	}

	step, err := steps.Parse(stepName)
	if err != nil {
		return "", err
	}
	if err := s.applier.Apply(ctx, jobID, step, action); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: %s", step, action), nil
}

func callbackErrorText(err error) string {
	var invalid *approval.InvalidActionError
	switch {
	case errors.Is(err, approval.ErrNotAwaiting):
		return "This step is no longer awaiting a decision"
	case errors.As(err, &invalid):
		return "Unknown action"
	default:
		return "Could not apply that action"
	}
}
