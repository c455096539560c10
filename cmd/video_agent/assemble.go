package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/video-pipeline/internal/media"
	"github.com/jonathan/video-pipeline/internal/observability"
	"github.com/jonathan/video-pipeline/internal/producers"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Assemble narrated segments into a video without running the pipeline",
	Long: `Renders each segment (clip, else image with pan and zoom, else a text placeholder) over its
narration and concatenates the results. Segments come from a manifest or from a JSON array of
{index, text, audio_path, image_path, clip_path} objects.`,
	RunE: runAssemble,
}

var (
	assembleManifest    string
	assembleSegments    string
	assembleOut         string
	assembleWidth       int
	assembleHeight      int
	assembleFPS         int
	assembleConcurrency int
	assembleKeepWorkDir bool
)

func init() {
	assembleCmd.Flags().StringVarP(&assembleManifest, "manifest", "m", "", "Path to a production manifest (mutually exclusive with --segments)")
	assembleCmd.Flags().StringVar(&assembleSegments, "segments", "", "Path to a JSON segment list (mutually exclusive with --manifest)")
	assembleCmd.Flags().StringVarP(&assembleOut, "out", "o", "video.mp4", "Output video path")
	assembleCmd.Flags().IntVar(&assembleWidth, "width", 0, "Output width (default 1920)")
	assembleCmd.Flags().IntVar(&assembleHeight, "height", 0, "Output height (default 1080)")
	assembleCmd.Flags().IntVar(&assembleFPS, "fps", 0, "Output frame rate (default 30)")
	assembleCmd.Flags().IntVar(&assembleConcurrency, "concurrency", 0, "Segments rendered in parallel (defaults to media_concurrency)")
	assembleCmd.Flags().BoolVar(&assembleKeepWorkDir, "keep-work-dir", false, "Keep per-segment files")
	assembleCmd.MarkFlagsMutuallyExclusive("manifest", "segments")
	rootCmd.AddCommand(assembleCmd)
}

func runAssemble(cmd *cobra.Command, _ []string) error {
	segments, err := loadSegments(assembleManifest, assembleSegments)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := media.LookPath(cfg.FFmpeg, cfg.FFprobe); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := newEngine(cfg)
	if assembleWidth > 0 && assembleHeight > 0 {
		engine.Options.Width, engine.Options.Height = assembleWidth, assembleHeight
	}
	if assembleFPS > 0 {
		engine.Options.FPS = assembleFPS
	}
	if assembleConcurrency > 0 {
		engine.Options.Concurrency = assembleConcurrency
	}
	engine.Options.KeepWorkDir = assembleKeepWorkDir
	engine.Options.ShouldStop = func() bool { return ctx.Err() != nil }
	engine.Options.Progress = func(done, total int) {
		_, _ = fmt.Fprintf(os.Stdout, "[%3d%%] rendered %d/%d segments\n", done*100/total, done, total)
	}

	res, err := engine.Assemble(ctx, segments, assembleOut)
	if res != nil {
		observability.NewPrinter(os.Stdout).PrintAssembly(res)
	}
	return err
}

// loadSegments reads segments from a manifest or a JSON list. Relative paths
// in a list resolve against its directory.
func loadSegments(manifestPath, segmentsPath string) ([]media.Segment, error) {
	switch {
	case manifestPath != "":
		m, err := producers.LoadManifest(manifestPath)
		if err != nil {
			return nil, err
		}
		return m.MediaSegments(), nil
	case segmentsPath != "":
		data, err := os.ReadFile(segmentsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read segments: %w", err)
		}
		var segments []media.Segment
		if err := json.Unmarshal(data, &segments); err != nil {
			return nil, fmt.Errorf("failed to parse segments: %w", err)
		}
		if len(segments) == 0 {
			return nil, fmt.Errorf("no segments in %s", segmentsPath)
		}
		dir := filepath.Dir(segmentsPath)
		for i := range segments {
			s := &segments[i]
			s.AudioPath = resolveFrom(dir, s.AudioPath)
			s.ImagePath = resolveFrom(dir, s.ImagePath)
			s.ClipPath = resolveFrom(dir, s.ClipPath)
		}
		return segments, nil
	default:
		return nil, fmt.Errorf("either --manifest or --segments must be provided")
	}
}

func resolveFrom(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
