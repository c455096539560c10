package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/video-pipeline/internal/approval"
	"github.com/jonathan/video-pipeline/internal/observability"
	"github.com/jonathan/video-pipeline/internal/pipeline"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
	"github.com/jonathan/video-pipeline/internal/server"
	"github.com/jonathan/video-pipeline/internal/types"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run one pipeline session in the foreground",
	Long: `Runs every step for one session: info -> transcribe -> research -> outline -> script -> style ->
images -> audio -> video -> subtitles -> metadata -> thumbnail -> upload.

Each step is presented on the terminal for approve / regenerate / cancel unless --auto-approve is set.
Configuration can be loaded from a file using --config. Command-line arguments override config file values.`,
	RunE: runPipelineCmd,
}

var (
	runTopic         string
	runSourceURL     string
	runResearchURLs  []string
	runStyle         string
	runAudioDir      string
	runManifest      string
	runPrivacy       string
	runBurnSubtitles bool
	runAutoApprove   bool
	runKeepWorkDir   bool
)

func init() {
	runCommand.Flags().StringVarP(&runTopic, "topic", "t", "", "Topic of the video")
	runCommand.Flags().StringVarP(&runSourceURL, "source-url", "s", "", "Source video or article URL")
	runCommand.Flags().StringSliceVar(&runResearchURLs, "research-url", nil, "Extra research page (repeatable)")
	runCommand.Flags().StringVar(&runStyle, "style", "", "Visual style id")
	runCommand.Flags().StringVar(&runAudioDir, "audio-dir", "", "Directory of pre-recorded narration files, paired with script segments in sorted order")
	runCommand.Flags().StringVarP(&runManifest, "manifest", "m", "", "Path to a production manifest that supplies the script and narration")
	runCommand.Flags().StringVar(&runPrivacy, "privacy", "", "Upload privacy: private, unlisted or public")
	runCommand.Flags().BoolVar(&runBurnSubtitles, "burn-subtitles", false, "Render subtitles into the video")
	runCommand.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "Approve every step without prompting")
	runCommand.Flags().BoolVar(&runKeepWorkDir, "keep-work-dir", false, "Keep intermediate files after the session finishes")

	rootCmd.AddCommand(runCommand)
}

type runOutcome struct {
	res *pipeline.Result
	err error
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	req := &types.StartJobRequest{
		Topic:         runTopic,
		SourceURL:     runSourceURL,
		ResearchURLs:  runResearchURLs,
		Style:         runStyle,
		AudioDir:      runAudioDir,
		Manifest:      runManifest,
		Privacy:       runPrivacy,
		BurnSubtitles: runBurnSubtitles,
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("one of --topic, --source-url or --manifest must be provided: %w", err)
	}
	input, err := server.InputFor(req)
	if err != nil {
		return err
	}
	warnMissingTools(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return foreground(ctx, st, runAutoApprove, runKeepWorkDir, func(svc *pipeline.Service) (pipeline.Session, error) {
		return svc.Start(ctx, input)
	})
}

// foreground runs one session on a single in-process worker and blocks until
// it finishes or ctx is cancelled.
func foreground(ctx context.Context, st *stack, autoApprove, keepWorkDir bool, start func(*pipeline.Service) (pipeline.Session, error)) error {
	signer, err := newSigner()
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(os.Stdout)
	opts := serviceOptions{
		signer:      signer,
		autoApprove: autoApprove,
		keepWorkDir: keepWorkDir,
		onProgress:  printer.PrintProgress,
	}
	if !autoApprove {
		opts.channel = &promptChannel{
			applier: approval.NewApplier(st.tracker, st.queue),
			in:      bufio.NewReader(os.Stdin),
			out:     os.Stdout,
		}
	}
	done := make(chan runOutcome, 1)
	opts.onDone = func(_ pipeline.Session, res *pipeline.Result, err error) {
		done <- runOutcome{res: res, err: err}
	}

	svc, err := st.newService(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	st.queue.Start(ctx, 1)
	defer st.queue.Stop()

	sess, err := start(svc)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "Session %s running as job %s\n", sess.ID, sess.JobID)

	select {
	case out := <-done:
		if out.err != nil {
			return fmt.Errorf("pipeline failed: %w", out.err)
		}
		printer.PrintResult(out.res)
		return nil
	case <-ctx.Done():
		if st.cfg.StateBackend == "memory" {
			return fmt.Errorf("interrupted; the memory backend keeps no snapshot to resume")
		}
		return fmt.Errorf("interrupted; continue with: video_agent resume %s", sess.ID)
	}
}

// promptChannel presents each step on the terminal and applies the typed decision.
type promptChannel struct {
	applier *approval.Applier
	in      *bufio.Reader
	out     io.Writer
}

func (p *promptChannel) Notify(ctx context.Context, n approval.Notification) error {
	step, err := steps.Parse(n.Step)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(p.out, "\n── %s ready for review ──\n%s\n", step, n.Text)
	for _, l := range n.Links {
		_, _ = fmt.Fprintf(p.out, "  %s\n", l)
	}

	for {
		_, _ = fmt.Fprint(p.out, "[a]pprove / [r]egenerate / [c]ancel: ")
		line, readErr := p.in.ReadString('\n')
		if strings.TrimSpace(line) == "" && readErr != nil {
			return fmt.Errorf("failed to read decision for %s: %w", step, readErr)
		}
		action, err := parseDecision(line)
		if err != nil {
			_, _ = fmt.Fprintln(p.out, err)
			continue
		}
		return p.applier.Apply(ctx, n.JobID, step, action)
	}
}

// parseDecision accepts the single-letter shortcuts as well as full action names.
func parseDecision(s string) (approval.Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "y":
		return approval.ActionApprove, nil
	case "r":
		return approval.ActionRegenerate, nil
	case "c", "n":
		return approval.ActionCancel, nil
	}
	return approval.ParseAction(s)
}
