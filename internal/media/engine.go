package media

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/jonathan/video-pipeline/internal/fsutil"
	"golang.org/x/sync/errgroup"
)

// Engine renders segments and concatenates them with ffmpeg.
type Engine struct {
	FFmpeg  string
	FFprobe string
	Runner  CommandRunner
	Options Options
}

// NewEngine returns an engine using ffmpeg/ffprobe from PATH.
func NewEngine(opts Options) *Engine {
	return &Engine{
		FFmpeg:  "ffmpeg",
		FFprobe: "ffprobe",
		Runner:  ExecRunner{},
		Options: opts.withDefaults(),
	}
}

func (e *Engine) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	runner := e.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	if e.Options.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Options.CommandTimeout)
		defer cancel()
	}
	return runner.Run(ctx, name, args...)
}

// ProbeDuration returns a media file's duration in seconds.
func (e *Engine) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, &CommandError{Command: "ffprobe", Message: "cannot read " + path, Cause: err}
	}

	out, err := e.run(ctx, e.FFprobe,
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}

	raw := strings.TrimSpace(string(out))
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &CommandError{Command: "ffprobe", Message: fmt.Sprintf("unparseable duration %q for %s", raw, path), Cause: err}
	}
	return d, nil
}

// StillArgs builds the ffmpeg arguments for a still image segment.
func (e *Engine) StillArgs(index int, imagePath, audioPath string, duration float64, outPath string) []string {
	o := e.Options
	d := formatSeconds(duration)
	return []string{
		"-y",
		"-loop", "1", "-i", imagePath,
		"-i", audioPath,
		"-map", "0:v", "-map", "1:a",
		"-vf", KenBurnsFilter(o, index, duration),
		"-af", PadAudio(duration),
		"-c:v", "libx264", "-preset", o.Preset,
		"-r", strconv.Itoa(o.FPS), "-vsync", "cfr",
		"-c:a", "aac", "-b:a", o.AudioBitrate,
		"-pix_fmt", "yuv420p",
		"-t", d,
		outPath,
	}
}

// ClipArgs builds the ffmpeg arguments for a looping clip segment.
func (e *Engine) ClipArgs(clipPath, audioPath string, duration float64, outPath string) []string {
	o := e.Options
	d := formatSeconds(duration)
	return []string{
		"-y",
		"-fflags", "+genpts",
		"-stream_loop", "-1", "-i", clipPath,
		"-i", audioPath,
		"-map", "0:v", "-map", "1:a",
		"-vf", ClipFilter(o),
		"-af", PadAudio(duration),
		"-c:v", "libx264", "-preset", o.Preset,
		"-r", strconv.Itoa(o.FPS), "-vsync", "cfr",
		"-c:a", "aac", "-b:a", o.AudioBitrate,
		"-pix_fmt", "yuv420p",
		"-t", d,
		outPath,
	}
}

// PlaceholderArgs builds the ffmpeg arguments that draw a placeholder frame.
func (e *Engine) PlaceholderArgs(text, outPath string) []string {
	o := e.Options
	return []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=%dx%d", o.PlaceholderColor, o.Width, o.Height),
		"-vf", PlaceholderFilter(o, text),
		"-frames:v", "1",
		outPath,
	}
}

// ConcatArgs builds the ffmpeg arguments for re-encoding the concat list.
func (e *Engine) ConcatArgs(listPath, outPath string) []string {
	o := e.Options
	return []string{
		"-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c:v", "libx264", "-preset", o.Preset, "-crf", strconv.Itoa(o.CRF),
		"-profile:v", "high", "-level", "4.0",
		"-r", strconv.Itoa(o.FPS), "-vsync", "cfr",
		"-c:a", "aac", "-b:a", o.AudioBitrate,
		"-af", "aresample=async=1",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		outPath,
	}
}

func (e *Engine) encode(ctx context.Context, args []string, outPath string) error {
	if _, err := e.run(ctx, e.FFmpeg, args...); err != nil {
		return err
	}
	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		return &CommandError{Command: "ffmpeg", Message: "no output written to " + outPath, Cause: err}
	}
	return nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

type probedSegment struct {
	Segment
	duration float64
}

type segmentOutcome struct {
	path   string
	visual Visual
	err    error
}

// renderSegment tries clip, then image, then a placeholder until one encodes.
func (e *Engine) renderSegment(ctx context.Context, seg probedSegment, workDir string) segmentOutcome {
	out := filepath.Join(workDir, fmt.Sprintf("segment_%04d.mp4", seg.Index))
	var errs []error

	if fileExists(seg.ClipPath) {
		err := e.encode(ctx, e.ClipArgs(seg.ClipPath, seg.AudioPath, seg.duration, out), out)
		if err == nil {
			return segmentOutcome{path: out, visual: VisualClip}
		}
		if ctx.Err() != nil {
			return segmentOutcome{err: ctx.Err()}
		}
		log.Printf("[media] segment %d: clip failed, falling back: %v", seg.Index, err)
		errs = append(errs, fmt.Errorf("clip: %w", err))
	}

	if fileExists(seg.ImagePath) {
		err := e.encode(ctx, e.StillArgs(seg.Index, seg.ImagePath, seg.AudioPath, seg.duration, out), out)
		if err == nil {
			return segmentOutcome{path: out, visual: VisualImage}
		}
		if ctx.Err() != nil {
			return segmentOutcome{err: ctx.Err()}
		}
		log.Printf("[media] segment %d: image failed, falling back: %v", seg.Index, err)
		errs = append(errs, fmt.Errorf("image: %w", err))
	}

	placeholder := filepath.Join(workDir, fmt.Sprintf("placeholder_%04d.png", seg.Index))
	err := e.encode(ctx, e.PlaceholderArgs(seg.Text, placeholder), placeholder)
	if err == nil {
		err = e.encode(ctx, e.StillArgs(seg.Index, placeholder, seg.AudioPath, seg.duration, out), out)
	}
	if err == nil {
		return segmentOutcome{path: out, visual: VisualPlaceholder}
	}
	errs = append(errs, fmt.Errorf("placeholder: %w", err))
	return segmentOutcome{err: errors.Join(errs...)}
}

// Assemble renders segments in index order and concatenates them into outputPath.
// Segments whose audio cannot be probed are dropped. Segment render failures are
// recorded and skipped; Assemble fails only when nothing renders.
func (e *Engine) Assemble(ctx context.Context, segments []Segment, outputPath string) (*AssemblyResult, error) {
	e.Options = e.Options.withDefaults()
	o := e.Options

	workDir := o.WorkDir
	if workDir == "" {
		dir, err := os.MkdirTemp("", "assembly-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create work dir: %w", err)
		}
		workDir = dir
		if !o.KeepWorkDir {
			defer func() { _ = os.RemoveAll(dir) }()
		}
	} else if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	result := &AssemblyResult{OutputPath: outputPath, Dropped: []int{}}

	var probed []probedSegment
	for _, seg := range segments {
		d, err := e.ProbeDuration(ctx, seg.AudioPath)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil || d <= 0 {
			msg := "non-positive duration"
			if err != nil {
				msg = err.Error()
			}
			log.Printf("[media] dropping segment %d: unreadable audio: %s", seg.Index, msg)
			result.Dropped = append(result.Dropped, seg.Index)
			result.Errors = append(result.Errors, SegmentError{Index: seg.Index, Stage: "probe", Message: msg})
			continue
		}
		probed = append(probed, probedSegment{Segment: seg, duration: d})
	}

	if len(probed) == 0 {
		return result, ErrNoSegments
	}

	outcomes := make([]segmentOutcome, len(probed))
	var (
		mu      sync.Mutex
		done    int
		stopped bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)

	for i := range probed {
		if o.ShouldStop != nil && o.ShouldStop() {
			mu.Lock()
			stopped = true
			mu.Unlock()
			break
		}
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if o.ShouldStop != nil && o.ShouldStop() {
				mu.Lock()
				stopped = true
				mu.Unlock()
				return nil
			}

			outcome := e.renderSegment(gctx, probed[i], workDir)
			outcomes[i] = outcome
			if outcome.err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			done++
			n := done
			if o.Progress != nil && (n%o.ProgressEvery == 0 || n == len(probed)) {
				o.Progress(n, len(probed))
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if stopped {
		return nil, ErrStopped
	}

	var listLines []string
	for i, outcome := range outcomes {
		seg := probed[i]
		if outcome.err != nil {
			log.Printf("[media] segment %d failed: %v", seg.Index, outcome.err)
			result.Failed++
			result.Errors = append(result.Errors, SegmentError{Index: seg.Index, Stage: "render", Message: outcome.err.Error()})
			continue
		}
		result.Successful++
		result.Segments = append(result.Segments, RenderedSegment{
			Index:    seg.Index,
			Duration: seg.duration,
			Visual:   outcome.visual,
			Text:     seg.Text,
		})
		abs, err := filepath.Abs(outcome.path)
		if err != nil {
			abs = outcome.path
		}
		listLines = append(listLines, "file "+escapeConcatPath(abs))
	}

	if result.Successful == 0 {
		return result, ErrNoSegments
	}

	listPath := filepath.Join(workDir, "concat.txt")
	if err := fsutil.WriteFile(listPath, []byte(strings.Join(listLines, "\n")+"\n")); err != nil {
		return nil, fmt.Errorf("failed to write concat list: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	if err := e.encode(ctx, e.ConcatArgs(listPath, outputPath), outputPath); err != nil {
		return nil, fmt.Errorf("failed to concatenate segments: %w", err)
	}

	total, err := e.ProbeDuration(ctx, outputPath)
	if err != nil {
		log.Printf("[media] could not probe output duration: %v", err)
		for _, s := range result.Segments {
			total += s.Duration
		}
	}
	result.Duration = total

	log.Printf("[media] assembled %s: %d ok, %d failed, %d dropped, %.1fs",
		outputPath, result.Successful, result.Failed, len(result.Dropped), result.Duration)
	return result, nil
}
