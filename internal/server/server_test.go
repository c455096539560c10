package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/video-pipeline/internal/approval"
	"github.com/jonathan/video-pipeline/internal/artifacts"
	"github.com/jonathan/video-pipeline/internal/jobs"
	"github.com/jonathan/video-pipeline/internal/pipeline"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
	"github.com/jonathan/video-pipeline/internal/server/ratelimit"
	"github.com/jonathan/video-pipeline/internal/store"
	"github.com/jonathan/video-pipeline/internal/types"
)

const testJobID = "job_20260101_120000_deadbeef"

type fakePipelines struct {
	mu        sync.Mutex
	registry  *pipeline.Registry
	started   []pipeline.Input
	startErr  error
	resumeErr error
}

func (f *fakePipelines) Start(_ context.Context, input pipeline.Input) (pipeline.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return pipeline.Session{}, f.startErr
	}
	f.started = append(f.started, input)
	return pipeline.Session{ID: "session-1", JobID: testJobID, Input: input}, nil
}

func (f *fakePipelines) Resume(_ context.Context, sessionID string) (pipeline.Session, error) {
	if f.resumeErr != nil {
		return pipeline.Session{}, f.resumeErr
	}
	return pipeline.Session{ID: sessionID, JobID: testJobID, Resumed: true}, nil
}

func (f *fakePipelines) Sessions() *pipeline.Registry {
	return f.registry
}

type fakeJobs struct {
	mu      sync.Mutex
	records map[string]*jobs.Record
}

func (f *fakeJobs) GetStatus(_ context.Context, jobID string) (*jobs.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[jobID]
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeJobs) Cancel(ctx context.Context, jobID string) (bool, error) {
	return f.CancelWithMessage(ctx, jobID, jobs.MessageCancelled)
}

func (f *fakeJobs) CancelWithMessage(_ context.Context, jobID, message string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[jobID]
	if !ok || rec.Status.Terminal() {
		return false, nil
	}
	rec.Status = jobs.StatusFailed
	rec.Message = message
	return true, nil
}

type fakeAnswerer struct {
	mu      sync.Mutex
	answers map[string]string
}

func (f *fakeAnswerer) AnswerCallback(_ context.Context, callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[callbackID] = text
	return nil
}

type testEnv struct {
	server    *Server
	handler   http.Handler
	pipelines *fakePipelines
	jobs      *fakeJobs
	tracker   *steps.Tracker
	signer    *approval.Signer
	telegram  *fakeAnswerer
	hub       *approval.Hub
	files     *artifacts.FileStore
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	tracker := steps.NewTracker(store.NewMemory(), steps.NewSignals())
	fj := &fakeJobs{records: map[string]*jobs.Record{
		testJobID: {JobID: testJobID, Kind: pipeline.JobKind, Status: jobs.StatusRunning, Progress: 25},
	}}
	signer, err := approval.NewSigner("0123456789abcdef", time.Hour)
	require.NoError(t, err)
	files, err := artifacts.NewFileStore(t.TempDir(), "")
	require.NoError(t, err)

	env := &testEnv{
		pipelines: &fakePipelines{registry: pipeline.NewRegistry()},
		jobs:      fj,
		tracker:   tracker,
		signer:    signer,
		telegram:  &fakeAnswerer{answers: map[string]string{}},
		hub:       approval.NewHub(8),
		files:     files,
	}
	cfg := Config{
		Pipelines: env.pipelines,
		Jobs:      fj,
		Tracker:   tracker,
		Applier:   approval.NewApplier(tracker, fj),
		Signer:    signer,
		Telegram:  env.telegram,
		Hub:       env.hub,
		Files:     files,
		RateLimit: &ratelimit.Config{Enabled: false},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	env.server, err = New(cfg)
	require.NoError(t, err)
	t.Cleanup(env.server.close)
	env.handler = env.server.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) await(t *testing.T, step steps.Name) {
	t.Helper()
	require.NoError(t, e.tracker.Restore(context.Background(), testJobID, step, steps.StatusAwaitingApproval, json.RawMessage(`{"kind":"script"}`)))
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestStartJob(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/jobs", types.StartJobRequest{
		Topic:         "deep sea vents",
		ResearchURLs:  []string{"https://example.com/a"},
		Privacy:       "unlisted",
		BurnSubtitles: true,
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	resp := decode[types.StartJobResponse](t, w)
	assert.Equal(t, testJobID, resp.JobID)
	assert.Equal(t, "session-1", resp.SessionID)
	assert.Equal(t, "queued", resp.Status)

	require.Len(t, env.pipelines.started, 1)
	in := env.pipelines.started[0]
	assert.Equal(t, "deep sea vents", in.Topic)
	assert.Equal(t, []string{"https://example.com/a"}, in.ResearchURLs)
	assert.Equal(t, "unlisted", in.Privacy)
	assert.True(t, in.BurnSubtitles)
}

func TestStartJob_FromManifest(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "video.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"title": "Vents",
		"privacy": "public",
		"segments": [{"text": "Deep down.", "audio": "0.mp3"}]
	}`), 0o644))

	w := env.do(t, http.MethodPost, "/jobs", types.StartJobRequest{Manifest: path, Privacy: "private"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	in := env.pipelines.started[0]
	assert.Equal(t, "Vents", in.Topic)
	assert.Equal(t, path, in.ManifestPath)
	assert.Equal(t, "private", in.Privacy, "request fields override the manifest")
}

func TestStartJob_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		startErr error
		wantCode int
	}{
		{name: "malformed body", body: "{", wantCode: http.StatusBadRequest},
		{name: "nothing to start from", body: types.StartJobRequest{Style: "ghibli_cartoon"}, wantCode: http.StatusBadRequest},
		{name: "bad privacy", body: types.StartJobRequest{Topic: "x", Privacy: "friends"}, wantCode: http.StatusBadRequest},
		{name: "missing manifest", body: types.StartJobRequest{Manifest: "/nonexistent/video.json"}, wantCode: http.StatusBadRequest},
		{name: "queue full", body: types.StartJobRequest{Topic: "x"}, startErr: jobs.ErrQueueFull, wantCode: http.StatusServiceUnavailable},
		{name: "store down", body: types.StartJobRequest{Topic: "x"}, startErr: errors.New("redis: connection refused"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.pipelines.startErr = tt.startErr

			w := env.do(t, http.MethodPost, "/jobs", tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.NotEmpty(t, decode[map[string]string](t, w)["error"])
		})
	}
}

func TestGetJob(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/jobs/"+testJobID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rec := decode[jobs.Record](t, w)
	assert.Equal(t, jobs.StatusRunning, rec.Status)
	assert.Equal(t, 25, rec.Progress)

	w = env.do(t, http.MethodGet, "/jobs/job_unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelJob(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/jobs/"+testJobID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[types.CancelResponse](t, w).Cancelled)

	w = env.do(t, http.MethodPost, "/jobs/"+testJobID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[types.CancelResponse](t, w).Cancelled, "a finished job cannot be cancelled again")

	w = env.do(t, http.MethodPost, "/jobs/job_unknown/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOperatorToken(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.APIToken = "operator-token-123" })

	w := env.do(t, http.MethodPost, "/jobs", types.StartJobRequest{Topic: "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{"topic":"x"}`))
	req.Header.Set("Authorization", "Bearer operator-token-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// Reads stay open.
	w = env.do(t, http.MethodGet, "/jobs/"+testJobID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.RateLimit = &ratelimit.Config{
			Enabled: true,
			Default: ratelimit.Rule{Name: "default", Limit: 100, Window: time.Minute},
			Rules: []ratelimit.Rule{
				{Name: "start", Method: "POST", Pattern: "/jobs", Limit: 1, Window: time.Hour},
			},
		}
	})

	w := env.do(t, http.MethodPost, "/jobs", types.StartJobRequest{Topic: "x"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = env.do(t, http.MethodPost, "/jobs", types.StartJobRequest{Topic: "y"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	body := decode[map[string]any](t, w)
	assert.Equal(t, "rate_limit_exceeded", body["error"])
	assert.Equal(t, "start", body["rule"])
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodOptions, "/jobs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestSessions(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.pipelines.registry.Create(&pipeline.Session{ID: "s1", JobID: testJobID, Input: pipeline.Input{Topic: "vents"}}))

	w := env.do(t, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Sessions []pipeline.Session `json:"sessions"`
		Count    int                `json:"count"`
	}](t, w)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "vents", body.Sessions[0].Input.Topic)

	w = env.do(t, http.MethodPost, "/sessions/s2/resume", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	resp := decode[types.StartJobResponse](t, w)
	assert.Equal(t, "s2", resp.SessionID)
	assert.Equal(t, "resumed", resp.Status)
}

func TestResumeSession_Errors(t *testing.T) {
	for err, code := range map[error]int{
		pipeline.ErrNoSavedSession: http.StatusNotFound,
		pipeline.ErrSessionExists:  http.StatusConflict,
	} {
		env := newTestEnv(t)
		env.pipelines.resumeErr = err

		w := env.do(t, http.MethodPost, "/sessions/s1/resume", nil)
		assert.Equal(t, code, w.Code, err.Error())
	}
}

func TestSessionEvents(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sessions/s1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return env.hub.Subscribers("s1") == 1 }, time.Second, 5*time.Millisecond)

	ProgressPublisher(env.hub)(pipeline.ProgressEvent{SessionID: "s1", JobID: testJobID, Step: "script", Message: "Running step script", Progress: 25})
	require.NoError(t, env.hub.Notify(ctx, approval.Notification{SessionID: "s1", JobID: testJobID, Step: "script", Text: "Script: 3 chunks"}))
	ProgressPublisher(env.hub)(pipeline.ProgressEvent{SessionID: "other", Message: "not mine"})
	DonePublisher(env.hub)(pipeline.Session{ID: "s1", JobID: testJobID}, &pipeline.Result{SessionID: "s1"}, nil)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "the stream ends after the complete event")
	out := string(body)

	assert.True(t, strings.HasPrefix(out, "retry: 3000\n\n"))
	assert.Contains(t, out, "id: 1\nevent: progress")
	assert.Contains(t, out, "Running step script")
	assert.Contains(t, out, "event: approval")
	assert.Contains(t, out, "Script: 3 chunks")
	assert.Contains(t, out, "id: 3\nevent: complete")
	assert.NotContains(t, out, "not mine")
	assert.Less(t, strings.Index(out, "event: progress"), strings.Index(out, "event: complete"))
}

func TestDonePublisher_Error(t *testing.T) {
	hub := approval.NewHub(4)
	events, release := hub.Subscribe("s1")
	defer release()

	DonePublisher(hub)(pipeline.Session{ID: "s1"}, nil, &pipeline.RejectedError{Step: steps.Script})

	e := <-events
	assert.Equal(t, approval.EventError, e.Type)
	assert.Equal(t, map[string]string{"error": "step script rejected"}, e.Data)
}

func TestArtifacts(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.files.Upload(context.Background(), []byte("PNGDATA"), artifacts.Namespace(testJobID, "images"), "image_000.png")
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/artifacts/"+testJobID+"/images/image_000.png", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PNGDATA", w.Body.String())

	w = env.do(t, http.MethodGet, "/artifacts/"+testJobID+"/images/missing.png", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	disabled := newTestEnv(t, func(c *Config) { c.Files = nil })
	w = disabled.do(t, http.MethodGet, "/artifacts/"+testJobID+"/images/image_000.png", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
