package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job_id>",
	Short: "Cancel a queued or running job",
	Long: `Marks the job cancelled in the state backend. A running session stops at its next
cancellation check, which happens between steps and while waiting for a decision.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
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
	if _, err := st.queue.GetStatus(ctx, jobID); err != nil {
		return err
	}
	cancelled, err := st.queue.Cancel(ctx, jobID)
	if err != nil {
		return err
	}
	if !cancelled {
		_, _ = fmt.Fprintf(os.Stdout, "Job %s already finished\n", jobID)
		return nil
	}
	_, _ = fmt.Fprintf(os.Stdout, "Job %s cancelled\n", jobID)
	return nil
}
