package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/video-pipeline/internal/observability"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show a job and the status of each of its steps",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the records as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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
	rec, err := st.queue.GetStatus(ctx, jobID)
	if err != nil {
		return err
	}
	records, err := st.tracker.List(ctx, jobID)
	if err != nil {
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"job": rec, "steps": records})
	}

	printer := observability.NewPrinter(os.Stdout)
	printer.PrintJob(rec)
	printer.PrintSteps(records)
	if rec.Result != nil {
		_, _ = fmt.Fprintf(os.Stdout, "Result: %s\n", rec.Result)
	}
	return nil
}
