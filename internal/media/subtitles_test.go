package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSRTTimestamp(t *testing.T) {
	tests := []struct {
		sec  float64
		want string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{61.2346, "00:01:01,235"},
		{3725.999, "01:02:05,999"},
		{-3, "00:00:00,000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSRTTimestamp(tt.sec))
	}
}

func TestCuesFromSegments_SkipsBlankText(t *testing.T) {
	cues := CuesFromSegments([]RenderedSegment{
		{Index: 0, Duration: 2, Text: "Hello"},
		{Index: 1, Duration: 3, Text: "  "},
		{Index: 2, Duration: 1.5, Text: "World"},
	})
	require.Len(t, cues, 2)
	assert.Equal(t, Cue{Start: 0, End: 2, Text: "Hello"}, cues[0])
	assert.Equal(t, Cue{Start: 5, End: 6.5, Text: "World"}, cues[1])
}

func TestRenderSRT(t *testing.T) {
	srt := RenderSRT([]Cue{{Start: 0, End: 2, Text: "Hello"}, {Start: 2, End: 4.25, Text: "World"}})
	assert.Equal(t, "1\n00:00:00,000 --> 00:00:02,000\nHello\n\n2\n00:00:02,000 --> 00:00:04,250\nWorld\n\n", srt)
}

func TestWriteSRTAndBurn(t *testing.T) {
	dir := t.TempDir()
	srtPath := filepath.Join(dir, "subs.srt")
	require.NoError(t, WriteSRT(srtPath, []Cue{{Start: 0, End: 1, Text: "Hi"}}))

	data, err := os.ReadFile(srtPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "00:00:00,000 --> 00:00:01,000")

	runner := &fakeRunner{durations: map[string]float64{}}
	engine := NewEngine(Options{})
	engine.Runner = runner

	out := filepath.Join(dir, "subtitled.mp4")
	require.NoError(t, engine.BurnSubtitles(context.Background(), filepath.Join(dir, "in.mp4"), srtPath, out))

	calls := runner.ffmpegCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "subtitles="+EscapeFilterPath(srtPath), argAfter(calls[0], "-vf"))
	assert.Equal(t, "copy", argAfter(calls[0], "-c:a"))
}

func TestEscapeFilterPath(t *testing.T) {
	assert.Equal(t, `C\:\\subs\\a.srt`, EscapeFilterPath(`C:\subs\a.srt`))
	assert.Equal(t, `/tmp/it\'s.srt`, EscapeFilterPath(`/tmp/it's.srt`))
}
