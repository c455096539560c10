package media

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jonathan/video-pipeline/internal/fsutil"
)

// Cue is one subtitle entry.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// FormatSRTTimestamp renders seconds as HH:MM:SS,mmm.
func FormatSRTTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int64(math.Round(sec * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// CuesFromSegments lays rendered segments end to end, one cue per segment.
func CuesFromSegments(segments []RenderedSegment) []Cue {
	cues := make([]Cue, 0, len(segments))
	var t float64
	for _, s := range segments {
		text := strings.TrimSpace(s.Text)
		if text != "" {
			cues = append(cues, Cue{Start: t, End: t + s.Duration, Text: text})
		}
		t += s.Duration
	}
	return cues
}

// RenderSRT formats cues as an SRT document.
func RenderSRT(cues []Cue) string {
	var b strings.Builder
	for i, c := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, FormatSRTTimestamp(c.Start), FormatSRTTimestamp(c.End), c.Text)
	}
	return b.String()
}

// WriteSRT writes cues to path.
func WriteSRT(path string, cues []Cue) error {
	if err := fsutil.WriteFile(path, []byte(RenderSRT(cues))); err != nil {
		return fmt.Errorf("failed to write subtitles: %w", err)
	}
	return nil
}

// BurnSubtitlesArgs builds the ffmpeg arguments that hard-code srtPath into the video.
func (e *Engine) BurnSubtitlesArgs(videoPath, srtPath, outPath string) []string {
	return []string{
		"-y",
		"-i", videoPath,
		"-vf", "subtitles=" + EscapeFilterPath(srtPath),
		"-c:v", "libx264", "-preset", e.Options.Preset, "-crf", fmt.Sprint(e.Options.CRF),
		"-c:a", "copy",
		"-movflags", "+faststart",
		outPath,
	}
}

// BurnSubtitles renders videoPath with srtPath burned in to outPath.
func (e *Engine) BurnSubtitles(ctx context.Context, videoPath, srtPath, outPath string) error {
	e.Options = e.Options.withDefaults()
	if err := e.encode(ctx, e.BurnSubtitlesArgs(videoPath, srtPath, outPath), outPath); err != nil {
		return fmt.Errorf("failed to burn subtitles: %w", err)
	}
	return nil
}
