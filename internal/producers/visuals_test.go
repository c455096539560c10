package producers

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/video-pipeline/internal/pipeline"
)

func scriptOf(chunks ...pipeline.Chunk) *pipeline.ScriptOutput {
	s := &pipeline.ScriptOutput{FullText: "narration"}
	for i, c := range chunks {
		c.Index = i
		if c.Text == "" {
			c.Text = "chunk"
		}
		s.Chunks = append(s.Chunks, c)
	}
	return s
}

func TestScreenshots_CapturesEachURLOnce(t *testing.T) {
	var (
		mu    sync.Mutex
		calls = map[string]int{}
	)
	capture := func(_ context.Context, url string, w, h int) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		calls[url]++
		assert.Equal(t, 1920, w)
		assert.Equal(t, 1080, h)
		if url == "https://example.com/broken" {
			return nil, errCapture
		}
		return []byte("png:" + url), nil
	}

	st := newState(t, pipeline.Input{Topic: "vents"})
	st.SetOutput(scriptOf(
		pipeline.Chunk{SourceIndex: 1, ImageQuery: "sea floor"},
		pipeline.Chunk{SourceIndex: 1},
		pipeline.Chunk{SourceIndex: 2},
		pipeline.Chunk{},
	))
	st.SetOutput(&pipeline.ResearchOutput{Articles: []pipeline.Article{
		{Title: "A", URL: "https://example.com/a"},
		{Title: "Broken", URL: "https://example.com/broken"},
	}})

	out, err := (&Screenshots{Capture: capture, Concurrency: 3}).Produce(context.Background(), st)
	require.NoError(t, err)

	images := out.(*pipeline.ImagesOutput)
	require.NoError(t, images.Validate())
	assert.Equal(t, map[string]int{"https://example.com/a": 1, "https://example.com/broken": 1}, calls)

	var indexes []int
	for _, img := range images.Images {
		indexes = append(indexes, img.Index)
		data, err := os.ReadFile(img.Path)
		require.NoError(t, err)
		assert.Equal(t, "png:https://example.com/a", string(data))
	}
	// Chunk 3 has no citation and rotates onto article 2, which failed.
	assert.Equal(t, []int{0, 1}, indexes)
	assert.Equal(t, "image_000.png", images.Images[0].Name)
	assert.Contains(t, images.Images[0].Caption, "sea floor")
}

func TestScreenshots_NoURLs(t *testing.T) {
	st := newState(t, pipeline.Input{Topic: "vents"})
	st.SetOutput(scriptOf(pipeline.Chunk{}))
	st.SetOutput(&pipeline.ResearchOutput{Articles: []pipeline.Article{{Title: "Transcript only"}}})

	capture := func(context.Context, string, int, int) ([]byte, error) { return nil, nil }
	_, err := (&Screenshots{Capture: capture}).Produce(context.Background(), st)
	assert.EqualError(t, err, "no research article has a URL to capture")
}

func TestScreenshots_AllFail(t *testing.T) {
	st := newState(t, pipeline.Input{Topic: "vents"})
	st.SetOutput(scriptOf(pipeline.Chunk{}))
	st.SetOutput(&pipeline.ResearchOutput{Articles: []pipeline.Article{{Title: "A", URL: "https://example.com/a"}}})

	capture := func(context.Context, string, int, int) ([]byte, error) { return nil, errCapture }
	out, err := (&Screenshots{Capture: capture}).Produce(context.Background(), st)
	require.NoError(t, err)
	assert.EqualError(t, out.Validate(), "no images produced")
}

func TestSourceURL(t *testing.T) {
	articles := []pipeline.Article{{URL: ""}, {URL: "b"}, {URL: "c"}}
	assert.Equal(t, "b", sourceURL(articles, pipeline.Chunk{SourceIndex: 2}, 0))
	assert.Equal(t, "b", sourceURL(articles, pipeline.Chunk{SourceIndex: 1}, 0), "cited article without URL rotates")
	assert.Equal(t, "c", sourceURL(articles, pipeline.Chunk{SourceIndex: 9}, 2))
	assert.Equal(t, "", sourceURL(nil, pipeline.Chunk{}, 0))
}

func TestAudioDir(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "02.mp3", "01.wav", "notes.txt", "03.MP3")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.mp3"), 0o755))

	st := newState(t, pipeline.Input{Topic: "x", AudioDir: dir})
	st.SetOutput(scriptOf(pipeline.Chunk{}, pipeline.Chunk{}))

	out, err := (&AudioDir{}).Produce(context.Background(), st)
	require.NoError(t, err)

	audio := out.(*pipeline.AudioOutput)
	require.Len(t, audio.Clips, 2)
	assert.Equal(t, "01.wav", audio.Clips[0].Name)
	assert.Equal(t, 0, audio.Clips[0].Index)
	assert.Equal(t, "02.mp3", audio.Clips[1].Name)
}

func TestAudioDir_NotSet(t *testing.T) {
	_, err := (&AudioDir{}).Produce(context.Background(), newState(t, pipeline.Input{Topic: "x"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no narration source")
}

func TestIsClip(t *testing.T) {
	assert.True(t, IsClip("a/b.MP4"))
	assert.True(t, IsClip("b.webm"))
	assert.False(t, IsClip("b.png"))
	assert.False(t, IsClip(""))
}
