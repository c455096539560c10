package producers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonathan/video-pipeline/internal/fetch"
	"github.com/jonathan/video-pipeline/internal/llm"
	"github.com/jonathan/video-pipeline/internal/media"
	"github.com/jonathan/video-pipeline/internal/pipeline"
)

type fakePages struct {
	pages map[string]*fetch.Result
	calls []string
}

func (f *fakePages) Fetch(_ context.Context, url string) (*fetch.CachedResult, error) {
	f.calls = append(f.calls, url)
	page, ok := f.pages[url]
	if !ok {
		return nil, &fetch.Error{URL: url, Message: "HTTP 404"}
	}
	return &fetch.CachedResult{Result: page}, nil
}

type fakeLLM struct {
	responses map[llm.ModelTier]string
	prompts   []string
	err       error
}

func (f *fakeLLM) GenerateContent(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.responses[tier], f.err
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return f.GenerateContent(ctx, prompt, tier)
}

func (f *fakeLLM) GetModel(tier llm.ModelTier) string { return "fake-" + string(tier) }
func (f *fakeLLM) Close() error                       { return nil }

type fakeVideos struct {
	details map[string]*VideoDetails
}

func (f *fakeVideos) LookupVideo(_ context.Context, id string) (*VideoDetails, error) {
	d, ok := f.details[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, id)
	}
	return d, nil
}

type fakeUploader struct {
	req UploadRequest
	id  string
}

func (f *fakeUploader) Upload(_ context.Context, req UploadRequest) (string, error) {
	f.req = req
	return f.id, nil
}

// fakeFFmpeg answers every probe with a fixed duration and writes each ffmpeg
// output file.
type fakeFFmpeg struct {
	mu       sync.Mutex
	duration float64
	calls    [][]string
}

func (f *fakeFFmpeg) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	target := args[len(args)-1]
	if name == "ffprobe" {
		return []byte(fmt.Sprintf("%f\n", f.duration)), nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, err
	}
	return nil, os.WriteFile(target, []byte("media"), 0o644)
}

func (f *fakeFFmpeg) ffmpegOutputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c[0] == "ffmpeg" {
			out = append(out, c[len(c)-1])
		}
	}
	return out
}

func newEngine(ff *fakeFFmpeg) *media.Engine {
	e := media.NewEngine(media.DefaultOptions())
	e.Runner = ff
	return e
}

func newState(t *testing.T, in pipeline.Input) *pipeline.State {
	t.Helper()
	return pipeline.NewState("session-1", "job_20260101_120000_deadbeef", in, t.TempDir())
}

func writeFiles(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	var paths []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(n), 0o644))
		paths = append(paths, p)
	}
	return paths
}

func longText(words int) string {
	return strings.Repeat("vent ", words)
}

var errCapture = errors.New("navigation timeout")
