package media

import (
	"context"
	"fmt"
)

// FrameArgs grabs one frame at atSeconds, scaled to the canonical size.
func (e *Engine) FrameArgs(videoPath string, atSeconds float64, outPath string) []string {
	o := e.Options.withDefaults()
	return []string{
		"-y",
		"-ss", formatSeconds(atSeconds),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", CoverFit(o.Width, o.Height),
		outPath,
	}
}

// ExtractFrame writes a single still from videoPath. A position past the end
// falls back to the first frame.
func (e *Engine) ExtractFrame(ctx context.Context, videoPath string, atSeconds float64, outPath string) error {
	if atSeconds > 0 {
		if d, err := e.ProbeDuration(ctx, videoPath); err == nil && atSeconds >= d {
			atSeconds = 0
		}
	}
	if err := e.encode(ctx, e.FrameArgs(videoPath, atSeconds, outPath), outPath); err != nil {
		return fmt.Errorf("failed to extract frame from %s: %w", videoPath, err)
	}
	return nil
}
