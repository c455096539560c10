package producers

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jonathan/video-pipeline/internal/media"
	"github.com/jonathan/video-pipeline/internal/pipeline"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
	"github.com/jonathan/video-pipeline/internal/retry"
)

const (
	edgeTTS      = "edge-tts"
	defaultVoice = "en-US-GuyNeural"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// speechRetry gives each clip three attempts.
var speechRetry = retry.Config{
	MaxRetries:     2,
	InitialBackoff: 2 * time.Second,
	MaxBackoff:     10 * time.Second,
	Multiplier:     2,
	JitterFraction: 0.2,
}

// SpeechCommand returns the configured text-to-speech command, or edge-tts when
// it is on PATH. Empty means narration cannot be synthesized.
func SpeechCommand(configured string) string {
	if c := strings.TrimSpace(configured); c != "" {
		return c
	}
	if _, err := exec.LookPath(edgeTTS); err == nil {
		return edgeTTS
	}
	return ""
}

// SpeakableText strips links and line breaks from narration text.
func SpeakableText(s string) string {
	s = urlPattern.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// Speech synthesizes one narration clip per script chunk by running a
// text-to-speech command. edge-tts gets its own flags, a .py script runs under
// python3, and any other command is called with --text and --output.
type Speech struct {
	Runner  media.CommandRunner
	Command string
	Voice   string
	// Retry replaces the per-clip retry policy.
	Retry *retry.Config
}

func (p *Speech) Produce(ctx context.Context, st *pipeline.State) (pipeline.Output, error) {
	if err := requireCollaborator("text-to-speech command", p.Command != "" && p.Runner != nil); err != nil {
		return nil, err
	}
	script, err := pipeline.Require[*pipeline.ScriptOutput](st, steps.Script)
	if err != nil {
		return nil, err
	}
	dir, err := st.StepDir(steps.Audio)
	if err != nil {
		return nil, err
	}
	policy := speechRetry
	if p.Retry != nil {
		policy = *p.Retry
	}

	out := &pipeline.AudioOutput{}
	failed := 0
	for _, c := range script.Chunks {
		if st.CancelRequested() {
			return nil, pipeline.ErrCancelled
		}
		text := SpeakableText(c.Text)
		if text == "" {
			continue
		}
		name := fmt.Sprintf("chunk_%03d.mp3", c.Index)
		path := filepath.Join(dir, name)
		err := retry.Do(ctx, policy, nil, func(ctx context.Context) error {
			return p.synthesize(ctx, text, path)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			log.Printf("[audio %s] chunk %d: %v", st.JobID, c.Index, err)
			continue
		}
		out.Clips = append(out.Clips, pipeline.Asset{Index: c.Index, Name: name, Path: path})
	}

	if len(out.Clips) == 0 {
		return nil, fmt.Errorf("no narration synthesized (%d chunks failed)", failed)
	}
	log.Printf("[audio %s] synthesized %d clips with %s (%d failed)", st.JobID, len(out.Clips), filepath.Base(p.Command), failed)
	return out, nil
}

func (p *Speech) synthesize(ctx context.Context, text, path string) error {
	name, args := p.command(text, path)
	if _, err := p.Runner.Run(ctx, name, args...); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%s wrote no audio to %s", filepath.Base(name), filepath.Base(path))
	}
	return nil
}

func (p *Speech) command(text, path string) (string, []string) {
	switch {
	case filepath.Base(p.Command) == edgeTTS:
		voice := p.Voice
		if voice == "" {
			voice = defaultVoice
		}
		return p.Command, []string{"--voice", voice, "--text", text, "--write-media", path}
	case strings.HasSuffix(p.Command, ".py"):
		return "python3", append([]string{p.Command}, speechArgs(p.Voice, text, path)...)
	default:
		return p.Command, speechArgs(p.Voice, text, path)
	}
}

func speechArgs(voice, text, path string) []string {
	args := []string{"--text", text, "--output", path}
	if voice != "" {
		args = append(args, "--voice", voice)
	}
	return args
}

// Narration pairs the session's audio dir when one is given and otherwise
// synthesizes speech.
type Narration struct {
	Speech *Speech
}

func (p *Narration) Produce(ctx context.Context, st *pipeline.State) (pipeline.Output, error) {
	if st.Input.AudioDir == "" && p.Speech != nil {
		return p.Speech.Produce(ctx, st)
	}
	return (&AudioDir{}).Produce(ctx, st)
}
