package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/video-pipeline/internal/producers"
)

var validateManifestCmd = &cobra.Command{
	Use:   "validate-manifest <path>",
	Short: "Check a production manifest against its schema and referenced files",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidateManifest,
}

func init() {
	rootCmd.AddCommand(validateManifestCmd)
}

func runValidateManifest(_ *cobra.Command, args []string) error {
	path := args[0]
	m, err := producers.LoadManifest(path)
	if err != nil {
		return err
	}

	if missing := m.MissingFiles(); len(missing) > 0 {
		return fmt.Errorf("manifest %s references %d missing file(s):\n  %s", path, len(missing), strings.Join(missing, "\n  "))
	}

	input := m.Input(path)
	_, _ = fmt.Fprintf(os.Stdout, "✓ %s is valid: %q, %d segments\n", path, input.Topic, len(m.Segments))
	return nil
}
