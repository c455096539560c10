// Package server provides the HTTP API for starting, reviewing and resuming video pipelines.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jonathan/video-pipeline/internal/approval"
	"github.com/jonathan/video-pipeline/internal/artifacts"
	"github.com/jonathan/video-pipeline/internal/jobs"
	"github.com/jonathan/video-pipeline/internal/pipeline"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
	"github.com/jonathan/video-pipeline/internal/server/middleware"
	"github.com/jonathan/video-pipeline/internal/server/ratelimit"
)

// Pipelines starts and resumes pipeline sessions.
type Pipelines interface {
	Start(ctx context.Context, input pipeline.Input) (pipeline.Session, error)
	Resume(ctx context.Context, sessionID string) (pipeline.Session, error)
	Sessions() *pipeline.Registry
}

// JobStore reads and cancels queued jobs.
type JobStore interface {
	GetStatus(ctx context.Context, jobID string) (*jobs.Record, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
}

// CallbackAnswerer acknowledges Telegram button presses.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	pipelines   Pipelines
	jobs        JobStore
	tracker     *steps.Tracker
	applier     *approval.Applier
	signer      *approval.Signer
	telegram    CallbackAnswerer
	hub         *approval.Hub
	files       *artifacts.FileStore
	rateLimiter *ratelimit.Limiter
	onClose     func()
}

// Config holds server configuration. Signer, Telegram, Hub and Files are
// optional; the routes that need them answer 404 when unset.
type Config struct {
	Port      int
	Pipelines Pipelines
	Jobs      JobStore
	Tracker   *steps.Tracker
	Applier   *approval.Applier
	Signer    *approval.Signer
	Telegram  CallbackAnswerer
	Hub       *approval.Hub
	Files     *artifacts.FileStore
	RateLimit *ratelimit.Config

	// APIToken protects the operator routes when set.
	APIToken string
	// WebhookSecret must match Telegram's secret header when set.
	WebhookSecret string
	// OnClose runs after the HTTP server has shut down.
	OnClose func()
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Pipelines == nil || cfg.Jobs == nil || cfg.Tracker == nil || cfg.Applier == nil {
		return nil, fmt.Errorf("server requires pipelines, jobs, a step tracker and an applier")
	}

	s := &Server{
		pipelines:   cfg.Pipelines,
		jobs:        cfg.Jobs,
		tracker:     cfg.Tracker,
		applier:     cfg.Applier,
		signer:      cfg.Signer,
		telegram:    cfg.Telegram,
		hub:         cfg.Hub,
		files:       cfg.Files,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		onClose:     cfg.OnClose,
	}

	operator := func(h http.HandlerFunc) http.Handler { return h }
	if cfg.APIToken != "" {
		auth := middleware.AuthMiddleware(middleware.StaticToken(cfg.APIToken))
		operator = func(h http.HandlerFunc) http.Handler { return auth(h) }
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Jobs
	mux.Handle("POST /jobs", operator(s.handleStartJob))
	mux.HandleFunc("GET /jobs/{job_id}", s.handleGetJob)
	mux.Handle("POST /jobs/{job_id}/cancel", operator(s.handleCancelJob))

	// Steps and approvals
	mux.HandleFunc("GET /jobs/{job_id}/steps", s.handleListSteps)
	mux.HandleFunc("GET /jobs/{job_id}/steps/{step_name}", s.handleGetStep)
	mux.Handle("POST /jobs/{job_id}/steps/{step_name}/actions", operator(s.handleStepAction))
	mux.HandleFunc("GET /approvals/{token}", s.handleSignedApproval)
	mux.Handle("POST /telegram/webhook", middleware.WebhookSecret(cfg.WebhookSecret)(http.HandlerFunc(s.handleTelegramWebhook)))

	// Sessions
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.Handle("POST /sessions/{session_id}/resume", operator(s.handleResumeSession))
	mux.HandleFunc("GET /sessions/{session_id}/events", s.handleSessionEvents)

	mux.HandleFunc("GET /artifacts/{path...}", s.handleArtifact)

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadTimeout: 30 * time.Second,
		// No write timeout: event streams stay open for the life of a session.
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for requests and blocks until SIGINT or SIGTERM.
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		s.close()
		return fmt.Errorf("server error: %w", err)
	}
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.close()
	log.Println("Server stopped")
	return nil
}

func (s *Server) close() {
	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.onClose != nil {
		s.onClose()
	}
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := s.extractClientID(r)
		d := s.rateLimiter.Allow(client, r.Method, r.URL.Path)
		s.setRateLimitHeaders(w, d)
		if !d.Allowed {
			s.rateLimitResponse(w, client, d)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// errorFor writes err with the status HTTPStatus maps it to.
func (s *Server) errorFor(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= 500 {
		log.Printf("[server] internal error: %v", err)
	}
	s.errorResponse(w, status, err.Error())
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	if d.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 naming the exhausted rule.
func (s *Server) rateLimitResponse(w http.ResponseWriter, client string, d ratelimit.Decision) {
	response := map[string]any{
		"error":   "rate_limit_exceeded",
		"message": "Rate limit exceeded. Please try again later.",
		"rule":    d.Rule,
	}
	if d.Limit > 0 {
		response["limit"] = d.Limit
		response["reset_at"] = d.ResetAt.Format(time.RFC3339)
	}
	if d.RetryAfter > 0 {
		retry := int(math.Ceil(d.RetryAfter.Seconds()))
		response["retry_after"] = retry
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	}

	log.Printf("[rate-limit] %s exceeded rule %q", client, d.Rule)
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
