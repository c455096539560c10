package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/video-pipeline/internal/pipeline"
)

var (
	resumeAutoApprove bool
	resumeKeepWorkDir bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session_id>",
	Short: "Continue a session from its last snapshot",
	Long: `Restores a session from the state backend and continues it in the foreground.
Completed steps are skipped; the step that was awaiting a decision is presented again.
Requires a persistent state backend (redis or postgres).`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeAutoApprove, "auto-approve", false, "Approve every remaining step without prompting")
	resumeCmd.Flags().BoolVar(&resumeKeepWorkDir, "keep-work-dir", false, "Keep intermediate files after the session finishes")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.StateBackend == "memory" {
		return fmt.Errorf("resume requires a persistent state backend; set STATE_BACKEND to redis or postgres")
	}
	warnMissingTools(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	sessionID := args[0]
	return foreground(ctx, st, resumeAutoApprove, resumeKeepWorkDir, func(svc *pipeline.Service) (pipeline.Session, error) {
		return svc.Resume(ctx, sessionID)
	})
}
