package media

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
)

// maxLogOutput bounds how much tool output is kept on a CommandError.
const maxLogOutput = 4000

// CommandRunner executes an external tool and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args, capturing stdout and stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &CommandError{
			Command:   filepath.Base(name),
			Message:   "command failed",
			LogOutput: tail(stderr.String(), maxLogOutput),
			Cause:     err,
		}
	}
	return []byte(stdout.String()), nil
}

// LookPath verifies that the ffmpeg and ffprobe binaries are installed.
func LookPath(ffmpeg, ffprobe string) error {
	for _, bin := range []string{ffmpeg, ffprobe} {
		if _, err := exec.LookPath(bin); err != nil {
			return &CommandError{
				Command: filepath.Base(bin),
				Message: bin + " not found in PATH. Please install ffmpeg",
				Cause:   err,
			}
		}
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
