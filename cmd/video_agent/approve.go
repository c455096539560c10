package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/video-pipeline/internal/approval"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
)

var approveAction string

var approveCmd = &cobra.Command{
	Use:   "approve <job_id> <step>",
	Short: "Apply a decision to a step awaiting approval",
	Long: `Approves, regenerates or cancels a step that is awaiting a decision. The running
session picks the decision up from the shared state backend.`,
	Args: cobra.ExactArgs(2),
	RunE: runApprove,
}

func init() {
	approveCmd.Flags().StringVarP(&approveAction, "action", "a", "approve", "Decision: approve, regenerate (regen) or cancel")
	rootCmd.AddCommand(approveCmd)
}

func runApprove(cmd *cobra.Command, args []string) error {
	action, err := approval.ParseAction(approveAction)
	if err != nil {
		return err
	}
	step, err := steps.Parse(args[1])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, err := openStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	jobID := args[0]
	if err := approval.NewApplier(st.tracker, st.queue).Apply(ctx, jobID, step, action); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "%s %s: %s\n", jobID, step, action)
	return nil
}
